package likelihood

import (
	"fmt"
	"math"

	"xelimit/domain/core"
	"xelimit/domain/histogram"
	"xelimit/domain/sample"
)

// densities holds one evaluation's expected distributions.
type densities struct {
	signal    *histogram.Hist2D
	sigTotal  float64
	bkg       *histogram.Hist2D
	bkgTotal  float64
	safeguard *histogram.Hist2D
}

// Epsilon is the contamination fraction carried by the safeguard parameter.
func (m *Model) Epsilon() float64 {
	if m.safeguard == nil {
		return 0
	}
	return m.safeguard.Value * safeguardToEpsilon
}

// LogLikelihood evaluates the extended log-likelihood at the current
// parameter values. Unphysical points give VerySmall; only configuration
// problems (missing template, out-of-range shape value, broken
// normalization) are returned as errors.
func (m *Model) LogLikelihood() (float64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	if m.params.HasNaN() {
		m.log.Trace("NaN parameter value, returning sentinel")
		return VerySmall, nil
	}
	ll, err := m.dataLogLikelihood()
	if err != nil || ll == VerySmall {
		return ll, err
	}
	return ll + m.params.LogConstraint(), nil
}

// dataLogLikelihood is LogLikelihood without the parameter constraints.
func (m *Model) dataLogLikelihood() (float64, error) {
	d, ok, err := m.buildDensities()
	if err != nil || !ok {
		return VerySmall, err
	}

	ns := m.poi.Value * m.signalMultiplier * d.sigTotal
	nb := d.bkgTotal
	ntot := ns + nb
	if ntot <= 0 {
		m.log.Trace("ns+nb=%g not positive", ntot)
		return VerySmall, nil
	}

	ll := m.data.SumOfWeights()*math.Log(ntot) - ntot

	for _, ev := range m.data.Events() {
		if ev.Weight == 0 {
			continue
		}
		fs := 0.0
		if d.sigTotal > 0 {
			fs = d.signal.Content(ev.X, ev.Y) / d.sigTotal
		}
		fb := 0.0
		if nb != 0 {
			fb = d.bkg.Content(ev.X, ev.Y) / nb
		}
		v := ns*fs + nb*fb
		if v <= 0 {
			m.log.Trace("event at (%g,%g) has density %g", ev.X, ev.Y, v)
			return VerySmall, nil
		}
		ll += ev.Weight * math.Log(v/ntot)
	}

	if m.opts.WithSafeguard {
		sg := m.safeguardLogLikelihood(d.safeguard, m.calibration)
		if sg == VerySmall {
			return VerySmall, nil
		}
		ll += sg
	}
	return ll, nil
}

// buildDensities interpolates every component. ok is false for an
// unphysical safeguard setting.
func (m *Model) buildDensities() (densities, bool, error) {
	var d densities
	sig, err := m.signal.Density()
	if err != nil {
		return d, false, err
	}
	d.signal = sig
	d.sigTotal = sig.Integral()

	var bkg, guarded *histogram.Hist2D
	for _, b := range m.backgrounds {
		h, err := b.Density()
		if err != nil {
			return d, false, err
		}
		target := &bkg
		if m.opts.WithSafeguard && b.Safeguarded {
			target = &guarded
		}
		if *target == nil {
			*target = h
			continue
		}
		if err := (*target).Add(h, 1); err != nil {
			return d, false, fmt.Errorf("background %s: %w: %v", b.Name, core.ErrIncompatibleBinning, err)
		}
	}

	if guarded != nil {
		if m.Epsilon() <= 0 && !m.opts.SafeguardAllowNegative {
			m.log.Trace("unsafe safeguard epsilon %g", m.Epsilon())
			return d, false, nil
		}
		blend, err := m.blend(guarded, sig, d.sigTotal)
		if err != nil || blend == nil {
			return d, false, err
		}
		d.safeguard = blend
		if bkg == nil {
			bkg = blend.Clone()
		} else if err := bkg.Add(blend, 1); err != nil {
			return d, false, fmt.Errorf("%w: %v", core.ErrIncompatibleBinning, err)
		}
	}

	d.bkg = bkg
	d.bkgTotal = bkg.Integral()
	return d, true, nil
}

// blend returns (1-ε)·guarded + ε·Nb·signal/|signal|. The integral must
// equal Nb. An empty signal cannot carry the ε fraction; that point is
// unphysical and blend returns nil without error.
func (m *Model) blend(guarded, sig *histogram.Hist2D, sigTotal float64) (*histogram.Hist2D, error) {
	if !(sigTotal > 0) {
		m.log.Trace("signal integral %g cannot carry the safeguard fraction", sigTotal)
		return nil, nil
	}
	eps := m.Epsilon()
	nb := guarded.Integral()

	out := guarded.Clone()
	out.Name = "safeguard_blend"
	out.Scale(1 - eps)
	if err := out.Add(sig, eps*nb/sigTotal); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrIncompatibleBinning, err)
	}

	if got := out.Integral(); math.Abs(got-nb) > conservationTolerance*math.Max(1, math.Abs(nb)) {
		return nil, fmt.Errorf("%w: blend integral %g, expected %g (epsilon %g)", core.ErrProbabilityNotConserved, got, nb, eps)
	}
	return out, nil
}

// safeguardLogLikelihood is the shape-only likelihood of the calibration
// sample under the blended safeguarded density plus the additional density.
func (m *Model) safeguardLogLikelihood(blend *histogram.Hist2D, cal *sample.DataSample) float64 {
	model := blend
	if m.additional != nil {
		model = blend.Clone()
		if err := model.Add(m.additional, 1); err != nil {
			m.log.Debug("additional safeguard density not compatible: %v", err)
			return VerySmall
		}
	}
	total := model.Integral()
	if total <= 0 {
		return VerySmall
	}
	ll := 0.0
	for _, ev := range cal.Events() {
		if ev.Weight == 0 {
			continue
		}
		c := model.Content(ev.X, ev.Y)
		if c <= 0 {
			return VerySmall
		}
		ll += ev.Weight * math.Log(c/total)
	}
	return ll
}
