package asymptotic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"xelimit/domain/core"
	"xelimit/domain/limits"
)

const (
	spreadWarn  = 0.1
	spreadError = 1.0
)

// ScanRange returns the μ values of the limit scan: the configured range
// when set, otherwise the expected median ± three band widths. Negative
// starts are clamped to 0 and the first point sits one step above the start.
func (e *Engine) ScanRange() ([]float64, error) {
	min, max := e.cfg.ScanMin, e.cfg.ScanMax
	if !(max > min) {
		if e.sens == nil {
			return nil, fmt.Errorf("scan range needs a sensitivity or an explicit range")
		}
		min = e.sens.MedianMu - e.sens.ThreeSigmaMu
		max = e.sens.MedianMu + e.sens.ThreeSigmaMu
	}
	if min < 0 {
		min = 0
	}
	if max > e.model.POI().Max {
		max = e.model.POI().Max
	}
	if !(max > min) {
		return nil, fmt.Errorf("empty scan range [%g, %g]", min, max)
	}
	n := e.cfg.ScanPoints
	step := (max - min) / float64(n)
	out := make([]float64, n)
	for i := range out {
		out[i] = min + float64(i+1)*step
	}
	return out, nil
}

// ComputeSigmaScan evaluates σ_A over the scan range on Asimov(0) data and
// stores both the sigma and the expected q curve. It returns the mean σ_A.
func (e *Engine) ComputeSigmaScan(ctx context.Context) (float64, error) {
	mus, err := e.ScanRange()
	if err != nil {
		return 0, err
	}
	if err := e.GenerateAndSetAsimov(0); err != nil {
		return 0, err
	}

	e.sigmaScan = e.sigmaScan[:0]
	e.asimovScan = e.asimovScan[:0]
	sum, n := 0.0, 0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, mu := range mus {
		st, err := e.ComputeQTestStat(ctx, mu, true)
		if err != nil {
			return 0, err
		}
		e.asimovScan = append(e.asimovScan, limits.ScanPoint{Mu: mu, Q: st.Q})
		if st.Q <= 0 {
			continue
		}
		sigma := mu / math.Sqrt(st.Q)
		e.sigmaScan = append(e.sigmaScan, limits.ScanPoint{Mu: mu, Q: st.Q, Sigma: sigma})
		sum += sigma
		n++
		lo = math.Min(lo, sigma)
		hi = math.Max(hi, sigma)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no positive q on Asimov data in scan range", core.ErrFitFailed)
	}

	mean := sum / float64(n)
	switch spread := (hi - lo) / mean; {
	case spread > spreadError:
		e.log.Error("asimov sigma varies by %.0f%% over the scan (%.4g to %.4g)", 100*spread, lo, hi)
	case spread > spreadWarn:
		e.log.Warn("asimov sigma varies by %.0f%% over the scan (%.4g to %.4g)", 100*spread, lo, hi)
	}
	return mean, nil
}

// SigmaAt interpolates the stored σ_A scan linearly, holding the end values
// outside it.
func (e *Engine) SigmaAt(mu float64) float64 {
	pts := e.sigmaScan
	if len(pts) == 0 {
		return math.NaN()
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Mu >= mu })
	switch {
	case i == 0:
		return pts[0].Sigma
	case i == len(pts):
		return pts[len(pts)-1].Sigma
	}
	a, b := pts[i-1], pts[i]
	t := (mu - a.Mu) / (b.Mu - a.Mu)
	return a.Sigma + t*(b.Sigma-a.Sigma)
}

// ComputeLimits scans μ upward on the observed data and returns the first
// scan points where p(s+b) < CL (no CLs) and p(s+b)/p(b) < CL (CLs), in
// cross-section units. The limit is the scan point itself, so its precision
// is one scan step. A limit the scan never reaches is reported at the upper
// end of the scan with its Found flag unset.
func (e *Engine) ComputeLimits(ctx context.Context) (limits.ObservedLimit, error) {
	if e.sens == nil && !(e.cfg.ScanMax > e.cfg.ScanMin) {
		if _, err := e.ComputeSensitivity(ctx); err != nil {
			return limits.ObservedLimit{}, err
		}
	}
	if _, err := e.ComputeSigmaScan(ctx); err != nil {
		return limits.ObservedLimit{}, err
	}
	mus, err := e.ScanRange()
	if err != nil {
		return limits.ObservedLimit{}, err
	}

	if err := e.SetRealData(); err != nil {
		return limits.ObservedLimit{}, err
	}
	before := e.preFit()
	if _, err := e.FitUnconditional(ctx); err != nil {
		return limits.ObservedLimit{}, err
	}
	e.recordPulls("unconditional", before)
	muHatFit := e.model.Parameters().Snapshot()

	cls, noCLs := math.NaN(), math.NaN()
	e.dataScan = e.dataScan[:0]
	for i, mu := range mus {
		st, err := e.ComputeQTestStat(ctx, mu, true)
		if err != nil {
			return limits.ObservedLimit{}, err
		}
		pt := limits.ScanPoint{Mu: mu, Q: st.Q, Sigma: e.SigmaAt(mu)}
		pt.PSB = PValueSB(st.Q)
		pt.PB = PValueB(st.Q, mu, pt.Sigma)
		e.dataScan = append(e.dataScan, pt)

		if math.IsNaN(noCLs) && pt.PSB < e.cfg.CL {
			noCLs = mu
			if i == 0 {
				e.log.Warn("no-CLs limit at or below the first scan point mu=%g", mu)
			}
		}
		if math.IsNaN(cls) && pt.PSB/pt.PB < e.cfg.CL {
			cls = mu
			if i == 0 {
				e.log.Warn("CLs limit at or below the first scan point mu=%g", mu)
			}
		}
		if !math.IsNaN(cls) && !math.IsNaN(noCLs) {
			break
		}
	}
	last := mus[len(mus)-1]
	if math.IsNaN(cls) || math.IsNaN(noCLs) {
		e.log.Warn("observed limit not reached within scan up to mu=%g; widen the scan", last)
	}

	if !math.IsNaN(cls) {
		e.model.Parameters().Restore(muHatFit)
		before := e.model.Parameters().Snapshot()
		if err := e.model.POI().Set(cls); err == nil {
			if _, err := e.model.Maximize(ctx, true); err != nil {
				return limits.ObservedLimit{}, err
			}
			e.recordPulls("at limit", before)
		}
	}

	obs := limits.ObservedLimit{
		MuHat: e.muHat,
		CLs:   e.model.CrossSection(last),
		NoCLs: e.model.CrossSection(last),
	}
	if !math.IsNaN(cls) {
		obs.CLs, obs.CLsFound = e.model.CrossSection(cls), true
	}
	if !math.IsNaN(noCLs) {
		obs.NoCLs, obs.NoCLsFound = e.model.CrossSection(noCLs), true
	}
	return obs, nil
}

// LikelihoodScan evaluates q(μ) on the observed data for μ in [0, 5) in
// steps of 0.1.
func (e *Engine) LikelihoodScan(ctx context.Context) ([]limits.ScanPoint, error) {
	if err := e.SetRealData(); err != nil {
		return nil, err
	}
	var out []limits.ScanPoint
	for i := 0; i < 50; i++ {
		mu := float64(i) * 0.1
		st, err := e.ComputeQTestStat(ctx, mu, true)
		if err != nil {
			return nil, err
		}
		out = append(out, limits.ScanPoint{Mu: mu, Q: st.Q})
	}
	return out, nil
}

// Run computes the sensitivity and, when withObserved is set, the observed
// limits for one mass point.
func (e *Engine) Run(ctx context.Context, modelName string, withObserved bool) (*limits.Result, error) {
	res := &limits.Result{
		ID:        core.NewRunID(),
		ModelName: modelName,
		Mass:      e.cfg.Mass,
		AltX:      e.cfg.AltX,
		CL:        e.cfg.CL,
		CreatedAt: time.Now().UTC(),
	}

	sens, err := e.ComputeSensitivity(ctx)
	if err != nil {
		return nil, err
	}
	res.Sensitivity = sens

	if withObserved {
		obs, err := e.ComputeLimits(ctx)
		if err != nil {
			return nil, err
		}
		res.Observed = obs
		res.HasObserved = true
	} else if _, err := e.ComputeSigmaScan(ctx); err != nil {
		e.log.Warn("sigma scan skipped: %v", err)
	}

	res.AsimovScan = append(res.AsimovScan, e.asimovScan...)
	res.SigmaScan = append(res.SigmaScan, e.sigmaScan...)
	res.DataScan = append(res.DataScan, e.dataScan...)
	res.Pulls = append(res.Pulls, e.pulls...)
	return res, nil
}
