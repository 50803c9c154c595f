package likelihood

import (
	"context"
	"fmt"

	"xelimit/domain/core"
	"xelimit/domain/histogram"
	"xelimit/domain/nuisance"
	"xelimit/domain/sample"
	"xelimit/internal"
	"xelimit/ports"
)

// FitParameters returns the parameters a fit moves, in vector order. The POI
// is left out when freezePOI is set.
func (m *Model) FitParameters(freezePOI bool) []*nuisance.Parameter {
	return fittedParameters(m.params, m.poi, freezePOI)
}

// Maximize fits the model to its data and leaves the parameters at the
// optimum. Fitted parameters start from their initial values; a frozen POI
// stays at its current value.
func (m *Model) Maximize(ctx context.Context, freezePOI bool) (float64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	return maximize(ctx, m.maximizer, m.FitParameters(freezePOI), m.LogLikelihood, m.Name, m.log)
}

// maximize runs maximizer over fitted with ll as objective and leaves the
// parameters at the optimum.
func maximize(ctx context.Context, maximizer ports.Maximizer, fitted []*nuisance.Parameter,
	ll func() (float64, error), name string, log *internal.Logger) (float64, error) {
	specs := make([]ports.FitParameter, len(fitted))
	for i, p := range fitted {
		p.SetClamped(p.Initial)
		specs[i] = ports.FitParameter{Name: p.Name, Start: p.Value, Step: p.Step, Min: p.Min, Max: p.Max}
	}

	objective := func(x []float64) (float64, error) {
		for i, p := range fitted {
			p.Value = x[i]
		}
		return ll()
	}

	res, err := maximizer.Maximize(ctx, specs, objective)
	if err != nil {
		return 0, fmt.Errorf("model %s: %w: %w", name, core.ErrFitFailed, err)
	}
	for i, p := range fitted {
		p.SetClamped(res.X[i])
	}
	if !res.Converged {
		log.Debug("fit did not report convergence after %d evaluations (ll=%g)", res.Evaluations, res.Max)
	}
	return res.Max, nil
}

// fittedParameters filters set down to what a fit moves.
func fittedParameters(set *nuisance.Set, poi *nuisance.Parameter, freezePOI bool) []*nuisance.Parameter {
	var out []*nuisance.Parameter
	for _, p := range set.All() {
		if !p.Fitted() {
			continue
		}
		if freezePOI && p == poi {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ExpectedDensity is the sum of the default background templates plus mu
// signal events at the default signal template.
func (m *Model) ExpectedDensity(mu float64) (*histogram.Hist2D, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	total, err := m.backgrounds[0].DefaultDensity()
	if err != nil {
		return nil, err
	}
	total.Name = fmt.Sprintf("asimov_mu%g", mu)
	for _, b := range m.backgrounds[1:] {
		h, err := b.DefaultDensity()
		if err != nil {
			return nil, err
		}
		if err := total.Add(h, 1); err != nil {
			return nil, fmt.Errorf("background %s: %w: %v", b.Name, core.ErrIncompatibleBinning, err)
		}
	}
	if mu != 0 {
		sig, err := m.signal.DefaultDensity()
		if err != nil {
			return nil, err
		}
		if err := total.Add(sig, mu*m.signalMultiplier); err != nil {
			return nil, fmt.Errorf("signal %s: %w: %v", m.signal.Name, core.ErrIncompatibleBinning, err)
		}
	}
	return total, nil
}

// GenerateAsimov builds the expectation-only dataset for signal strength mu.
func (m *Model) GenerateAsimov(mu float64) (*sample.DataSample, error) {
	h, err := m.ExpectedDensity(mu)
	if err != nil {
		return nil, err
	}
	return sample.FromHistogram(h.Name, sample.RoleData, h), nil
}

// AsimovDatasets is GenerateAsimov as a one-element list.
func (m *Model) AsimovDatasets(mu float64) ([]*sample.DataSample, error) {
	d, err := m.GenerateAsimov(mu)
	if err != nil {
		return nil, err
	}
	return []*sample.DataSample{d}, nil
}
