package asymptotic

import (
	"context"
	"fmt"
	"math"

	"xelimit/domain/core"
	"xelimit/domain/limits"
)

const (
	bisectionSteps     = 80
	bisectionTolerance = 1e-6
)

// ComputeSensitivity finds the median expected limit on background-only
// Asimov data: the μ where q(μ) reaches Z(CL)², giving σ₀ = μ/Z. The band
// is then built from σ₀ and converted to cross-section units.
func (e *Engine) ComputeSensitivity(ctx context.Context) (limits.Sensitivity, error) {
	if err := e.GenerateAndSetAsimov(0); err != nil {
		return limits.Sensitivity{}, err
	}
	if _, err := e.FitUnconditional(ctx); err != nil {
		return limits.Sensitivity{}, err
	}

	z := Z(e.cfg.CL)
	target := z * z
	muMed, err := e.solveQ(ctx, target)
	if err != nil {
		return limits.Sensitivity{}, err
	}

	sigma0 := muMed / z
	s := limits.Sensitivity{Sigma0: sigma0}
	s.MedianMu = BandEdge(sigma0, e.cfg.CL, 0)
	s.ThreeSigmaMu = 3 * (BandEdge(sigma0, e.cfg.CL, 1) - s.MedianMu)
	s.Band = limits.ExpectedBand{
		Minus2: e.model.CrossSection(BandEdge(sigma0, e.cfg.CL, -2)),
		Minus1: e.model.CrossSection(BandEdge(sigma0, e.cfg.CL, -1)),
		Median: e.model.CrossSection(s.MedianMu),
		Plus1:  e.model.CrossSection(BandEdge(sigma0, e.cfg.CL, 1)),
		Plus2:  e.model.CrossSection(BandEdge(sigma0, e.cfg.CL, 2)),
	}
	e.sens = &s
	e.log.Info("sensitivity: sigma0=%.5g median=%.5g events (%.5g cross-section)", sigma0, s.MedianMu, s.Band.Median)
	return s, nil
}

// Sensitivity returns the stored result of ComputeSensitivity.
func (e *Engine) Sensitivity() (limits.Sensitivity, bool) {
	if e.sens == nil {
		return limits.Sensitivity{}, false
	}
	return *e.sens, true
}

// solveQ finds μ ≥ 0 with q(μ) = target on the current data, bracketing
// upward from 1 and then bisecting. q is assumed increasing above μ̂.
func (e *Engine) solveQ(ctx context.Context, target float64) (float64, error) {
	poiMax := e.model.POI().Max
	lo, hi := math.Max(0, e.muHat), math.Max(1, e.muHat+1)
	for {
		if hi > poiMax {
			hi = poiMax
		}
		st, err := e.ComputeQTestStat(ctx, hi, true)
		if err != nil {
			return 0, err
		}
		if st.Q >= target {
			break
		}
		if hi == poiMax {
			return 0, fmt.Errorf("%w: q(%g)=%g never reaches %g", core.ErrLimitNotBracketed, hi, st.Q, target)
		}
		lo, hi = hi, 2*hi
	}

	for i := 0; i < bisectionSteps && hi-lo > bisectionTolerance*math.Max(1, hi); i++ {
		mid := (lo + hi) / 2
		st, err := e.ComputeQTestStat(ctx, mid, true)
		if err != nil {
			return 0, err
		}
		if st.Q >= target {
			hi = mid
		} else {
			lo = mid
		}
	}
	return (lo + hi) / 2, nil
}

// ComputeSigmaAsimov returns σ_A = μ/√q(μ) on background-only Asimov data.
func (e *Engine) ComputeSigmaAsimov(ctx context.Context, mu float64) (float64, error) {
	if err := e.GenerateAndSetAsimov(0); err != nil {
		return 0, err
	}
	st, err := e.ComputeQTestStat(ctx, mu, true)
	if err != nil {
		return 0, err
	}
	if st.Q <= 0 {
		e.log.Debug("q(%g)=%g on Asimov data, sigma undefined", mu, st.Q)
		return math.NaN(), nil
	}
	return mu / math.Sqrt(st.Q), nil
}
