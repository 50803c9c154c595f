package toys

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"xelimit/domain/core"
	"xelimit/domain/limits"
	"xelimit/domain/nuisance"
	"xelimit/domain/sample"
	"xelimit/internal"
	"xelimit/internal/asymptotic"
	"xelimit/internal/likelihood"
	"xelimit/ports"
)

const (
	limitSearchSteps     = 60
	limitSearchTolerance = 1e-4
)

// FitterConfig controls toy fitting.
type FitterConfig struct {
	// Mus are the tested signal strengths.
	Mus []float64
	// MeasureParameters perturbs constrained parameters around their true
	// values before fitting, emulating an auxiliary measurement.
	MeasureParameters bool
	// CL is the test size used for the asymptotic starting guess.
	CL float64
}

// FitterExclusion refits pseudo-experiments with the q̃ statistic.
type FitterExclusion struct {
	model *likelihood.Model
	cfg   FitterConfig
	rng   ports.RNGPort
	log   *internal.Logger
}

func NewFitterExclusion(model *likelihood.Model, cfg FitterConfig, rng ports.RNGPort) *FitterExclusion {
	if !(cfg.CL > 0 && cfg.CL < 1) {
		cfg.CL = 0.1
	}
	return &FitterExclusion{
		model: model,
		cfg:   cfg,
		rng:   rng,
		log:   internal.DefaultLogger.With("toyfit " + model.Name),
	}
}

// load puts the toy into the model and returns a function restoring the
// previous data and parameter state.
func (f *FitterExclusion) load(toy *Toy) func() {
	data, cal := f.model.Data(), f.model.CalibrationData()
	params := f.model.Parameters()
	saved := params.Snapshot()

	f.model.SetData(toy.Data)
	if toy.Calibration != nil {
		f.model.SetCalibrationData(toy.Calibration)
	}
	return func() {
		f.model.SetData(data)
		f.model.SetCalibrationData(cal)
		for _, p := range params.All() {
			p.Measured = 0
		}
		params.Restore(saved)
	}
}

// measure draws N(true, 1) truncated to the range for every constrained,
// non-fixed parameter and uses it as both the constraint centre and the
// current value.
func (f *FitterExclusion) measure(toy *Toy) {
	params := f.model.Parameters()
	params.Restore(toy.TrueParams)
	rng := f.rng.Stream("measure", toy.Index)
	for _, p := range params.All() {
		if p.Kind != nuisance.KindNuisance {
			continue
		}
		v := TruncatedNormal(rng, p.Value, 1, p.Min, p.Max)
		p.Measured = v
		p.Value = v
	}
}

func (f *FitterExclusion) engine() (*asymptotic.Engine, error) {
	cfg := asymptotic.DefaultConfig()
	cfg.CL = f.cfg.CL
	cfg.UseQTilde = false
	return asymptotic.New(f.model, cfg)
}

// Fit refits every toy at every configured μ with one unconditional fit per
// toy. Records carry both the plain one-sided q and q̃.
func (f *FitterExclusion) Fit(ctx context.Context, batch core.BatchID, toys []*Toy) ([]limits.ToyFitRecord, error) {
	if len(f.cfg.Mus) == 0 {
		return nil, fmt.Errorf("%w: no signal strengths to test", core.ErrConfiguration)
	}
	var out []limits.ToyFitRecord
	for _, toy := range toys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := f.fitOne(ctx, batch, toy)
		if err != nil {
			return nil, fmt.Errorf("toy %d: %w", toy.Index, err)
		}
		out = append(out, recs...)
	}
	f.log.Info("fitted %d toys at %d signal strengths", len(toys), len(f.cfg.Mus))
	return out, nil
}

func (f *FitterExclusion) fitOne(ctx context.Context, batch core.BatchID, toy *Toy) ([]limits.ToyFitRecord, error) {
	restore := f.load(toy)
	defer restore()

	if f.cfg.MeasureParameters {
		f.measure(toy)
	}
	measured := f.model.Parameters().Snapshot()

	eng, err := f.engine()
	if err != nil {
		return nil, err
	}
	if _, err := eng.FitUnconditional(ctx); err != nil {
		return nil, err
	}
	muHat, _ := eng.MuHat()
	uncond := eng.FitValues()

	logDZero := math.NaN()
	out := make([]limits.ToyFitRecord, 0, len(f.cfg.Mus))
	for _, mu := range f.cfg.Mus {
		st, err := eng.ComputeQTestStat(ctx, mu, true)
		if err != nil {
			return nil, err
		}
		rec := limits.ToyFitRecord{
			BatchID:      batch,
			ToyIndex:     toy.Index,
			Mu:           mu,
			MuHat:        muHat,
			Q:            st.Q,
			QTilde:       st.Q,
			LLCond:       st.LogN,
			LLUncond:     st.LogD,
			TrueParams:   toy.TrueParams,
			Measured:     measured,
			UncondParams: uncond,
			CondParams:   f.model.Parameters().Snapshot(),
		}
		if muHat < 0 {
			if math.IsNaN(logDZero) {
				if logDZero, err = f.fitAtZero(ctx); err != nil {
					return nil, err
				}
			}
			rec.QTilde = 0
			if mu >= 0 {
				rec.QTilde = math.Max(0, 2*(logDZero-st.LogN))
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// fitAtZero is the conditional fit with the POI at zero, the q̃ reference
// for toys with negative μ̂.
func (f *FitterExclusion) fitAtZero(ctx context.Context) (float64, error) {
	f.model.POI().SetClamped(0)
	return f.model.Maximize(ctx, true)
}

// Limits finds each toy's upper limit as the μ where its q̃ meets the toy
// quantile curve. Toys whose q̃(0) already exceeds the curve get an
// interval flag.
func (f *FitterExclusion) Limits(ctx context.Context, batch core.BatchID, toys []*Toy, curve QuantileCurve) ([]limits.ToyLimitRecord, error) {
	out := make([]limits.ToyLimitRecord, 0, len(toys))
	for _, toy := range toys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := f.limitOne(ctx, toy, curve)
		if err != nil {
			return nil, fmt.Errorf("toy %d: %w", toy.Index, err)
		}
		rec.BatchID = batch
		out = append(out, rec)
	}
	return out, nil
}

func (f *FitterExclusion) limitOne(ctx context.Context, toy *Toy, curve QuantileCurve) (limits.ToyLimitRecord, error) {
	restore := f.load(toy)
	defer restore()
	if f.cfg.MeasureParameters {
		f.measure(toy)
	}

	cfg := asymptotic.DefaultConfig()
	cfg.CL = f.cfg.CL
	eng, err := asymptotic.New(f.model, cfg)
	if err != nil {
		return limits.ToyLimitRecord{}, err
	}

	q := func(mu float64) (float64, error) {
		st, err := eng.ComputeQTestStat(ctx, mu, true)
		return st.Q, err
	}

	if _, err := eng.FitUnconditional(ctx); err != nil {
		return limits.ToyLimitRecord{}, err
	}
	rawMuHat, _ := eng.MuHat()
	q0, err := q(0)
	if err != nil {
		return limits.ToyLimitRecord{}, err
	}
	rec := limits.ToyLimitRecord{
		ToyIndex: toy.Index,
		Q0:       q0,
		MuHat:    rawMuHat,
		Interval: q0 > curve.At(0),
	}

	muHat := math.Max(0, rawMuHat)
	sigma := 1.0
	if q1, err := q(muHat + 1); err != nil {
		return rec, err
	} else if q1 > 0 {
		sigma = 1 / math.Sqrt(q1)
	}
	guess := muHat + sigma*math.Sqrt(distuv.ChiSquared{K: 1}.Quantile(1-f.cfg.CL))

	gap := func(mu float64) (float64, error) {
		v, err := q(mu)
		return v - curve.At(mu), err
	}

	poiMax := f.model.POI().Max
	lo, hi := muHat, math.Min(math.Max(guess, muHat+limitSearchTolerance), poiMax)
	for {
		g, err := gap(hi)
		if err != nil {
			return rec, err
		}
		if g >= 0 {
			break
		}
		if hi >= poiMax {
			f.log.Warn("toy %d: limit above POI range", toy.Index)
			rec.Limit = poiMax
			return rec, nil
		}
		lo, hi = hi, math.Min(2*hi, poiMax)
	}
	for i := 0; i < limitSearchSteps && hi-lo > limitSearchTolerance; i++ {
		mid := (lo + hi) / 2
		g, err := gap(mid)
		if err != nil {
			return rec, err
		}
		if g >= 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	rec.Limit = (lo + hi) / 2
	return rec, nil
}

// LoadToys wraps stored pseudo-datasets so they can be fitted. A
// calibration sample belongs to the data sample stored before it.
func LoadToys(samples []*sample.DataSample) []*Toy {
	var out []*Toy
	for _, s := range samples {
		if s.Role == sample.RoleCalibration && len(out) > 0 && out[len(out)-1].Calibration == nil {
			out[len(out)-1].Calibration = s
			continue
		}
		out = append(out, &Toy{Index: len(out), Data: s, TrueParams: s.TrueParams})
	}
	return out
}

// Samples flattens toys for storage in the order LoadToys expects.
func Samples(toys []*Toy) []*sample.DataSample {
	out := make([]*sample.DataSample, 0, 2*len(toys))
	for _, t := range toys {
		out = append(out, t.Data)
		if t.Calibration != nil {
			out = append(out, t.Calibration)
		}
	}
	return out
}
