// Package asymptotic computes expected and observed exclusion limits from
// profile-likelihood fits using the asymptotic distribution of q̃.
package asymptotic

import (
	"context"
	"fmt"
	"math"

	"xelimit/domain/core"
	"xelimit/domain/limits"
	"xelimit/domain/nuisance"
	"xelimit/domain/sample"
	"xelimit/internal"
)

// DefaultScanPoints is the number of μ values in a limit scan.
const DefaultScanPoints = 100

// Config holds the engine settings.
type Config struct {
	// CL is the size of the test: 0.1 gives 90% confidence limits.
	CL float64
	// UseQTilde applies the non-negative signal convention.
	UseQTilde bool
	// ScanMin and ScanMax fix the limit scan range in μ when ScanMax > ScanMin;
	// otherwise the range is the expected median ± three band widths.
	ScanMin    float64
	ScanMax    float64
	ScanPoints int
	// Mass and AltX label the result.
	Mass float64
	AltX float64
}

// DefaultConfig returns 90% CLs limits with q̃.
func DefaultConfig() Config {
	return Config{CL: 0.1, UseQTilde: true, ScanPoints: DefaultScanPoints}
}

type state int

const (
	stateIdle state = iota
	stateAsimov
	stateRealData
)

// TestStat is the outcome of one test-statistic evaluation.
type TestStat struct {
	Mu    float64
	MuHat float64
	LogD  float64
	LogN  float64
	// Raw is 2(logD − logN) before the one-sided rule.
	Raw float64
	// Q is Raw when μ̂ ≤ μ and 0 otherwise, never negative.
	Q float64
}

// Likelihood is what the engine fits: a single model or a combination of
// models sharing one POI. Datasets are per member, in member order.
type Likelihood interface {
	Label() string
	POI() *nuisance.Parameter
	Parameters() *nuisance.Set
	Maximize(ctx context.Context, freezePOI bool) (float64, error)
	CrossSection(mu float64) float64
	Datasets() []*sample.DataSample
	SetDatasets(data []*sample.DataSample) error
	AsimovDatasets(mu float64) ([]*sample.DataSample, error)
}

// Engine is an AsymptoticExclusionEngine bound to one likelihood. Like the
// likelihood, it must not be shared between goroutines.
type Engine struct {
	model Likelihood
	cfg   Config
	log   *internal.Logger

	state      state
	realData   []*sample.DataSample
	asimovMu   float64
	hasFit     bool
	muHat      float64
	logD       float64
	fitValues  []nuisance.Value
	sens       *limits.Sensitivity
	sigmaScan  []limits.ScanPoint
	asimovScan []limits.ScanPoint
	dataScan   []limits.ScanPoint
	pulls      []limits.Pulls
}

// New binds an engine to an initialized likelihood. Its current data is
// taken as the observed data.
func New(model Likelihood, cfg Config) (*Engine, error) {
	if !(cfg.CL > 0 && cfg.CL < 1) {
		return nil, fmt.Errorf("%w: got %g", core.ErrInvalidConfidenceLevel, cfg.CL)
	}
	if cfg.ScanPoints <= 0 {
		cfg.ScanPoints = DefaultScanPoints
	}
	if model.POI() == nil {
		return nil, fmt.Errorf("model %s: %w", model.Label(), core.ErrNotInitialized)
	}
	return &Engine{
		model:    model,
		cfg:      cfg,
		log:      internal.DefaultLogger.With("asymptotic " + model.Label()),
		realData: model.Datasets(),
		state:    stateRealData,
	}, nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Likelihood() Likelihood { return e.model }

// GenerateAndSetAsimov replaces the model data by the expectation at
// signal strength mu. The observed data is kept for SetRealData.
func (e *Engine) GenerateAndSetAsimov(mu float64) error {
	if e.state == stateAsimov && e.asimovMu == mu {
		return nil
	}
	asimov, err := e.model.AsimovDatasets(mu)
	if err != nil {
		return err
	}
	if err := e.model.SetDatasets(asimov); err != nil {
		return err
	}
	e.state = stateAsimov
	e.asimovMu = mu
	e.hasFit = false
	return nil
}

// SetRealData restores the observed data.
func (e *Engine) SetRealData() error {
	if !complete(e.realData) {
		return fmt.Errorf("model %s: %w", e.model.Label(), core.ErrNoData)
	}
	if e.state == stateRealData {
		return nil
	}
	if err := e.model.SetDatasets(e.realData); err != nil {
		return err
	}
	e.state = stateRealData
	e.hasFit = false
	return nil
}

func complete(data []*sample.DataSample) bool {
	for _, d := range data {
		if d == nil {
			return false
		}
	}
	return len(data) > 0
}

// OnAsimov reports whether Asimov data is loaded.
func (e *Engine) OnAsimov() bool { return e.state == stateAsimov }

// FitUnconditional fits with the POI free and stores μ̂ and logD.
func (e *Engine) FitUnconditional(ctx context.Context) (float64, error) {
	ll, err := e.model.Maximize(ctx, false)
	if err != nil {
		return 0, err
	}
	e.muHat = e.model.POI().Value
	e.logD = ll
	e.fitValues = e.model.Parameters().Snapshot()
	e.hasFit = true
	e.log.Debug("unconditional fit: muHat=%.6g logD=%.8g", e.muHat, e.logD)
	return ll, nil
}

// MuHat returns the stored best-fit signal strength.
func (e *Engine) MuHat() (float64, bool) { return e.muHat, e.hasFit }

// ComputeQTestStat evaluates q(μ). With useStoredFit the last unconditional
// fit is reused when there is one.
//
// Under q̃ a negative μ̂ is replaced by a fit with the POI fixed at 0, which
// then serves as the unconditional reference with μ̂ = 0.
func (e *Engine) ComputeQTestStat(ctx context.Context, mu float64, useStoredFit bool) (TestStat, error) {
	if !useStoredFit || !e.hasFit {
		if _, err := e.FitUnconditional(ctx); err != nil {
			return TestStat{}, err
		}
	}
	poi := e.model.POI()
	st := TestStat{Mu: mu, MuHat: e.muHat, LogD: e.logD}

	if e.cfg.UseQTilde && st.MuHat < 0 {
		poi.Value = 0
		ll, err := e.model.Maximize(ctx, true)
		if err != nil {
			return TestStat{}, err
		}
		st.MuHat = 0
		st.LogD = ll
	}

	if err := poi.Set(mu); err != nil {
		return TestStat{}, err
	}
	logN, err := e.model.Maximize(ctx, true)
	if err != nil {
		return TestStat{}, err
	}
	st.LogN = logN
	st.Raw = 2 * (st.LogD - st.LogN)
	if st.MuHat <= mu {
		st.Q = math.Max(0, st.Raw)
	}
	e.log.Trace("q(%g) = %g (raw %g, muHat %g)", mu, st.Q, st.Raw, st.MuHat)
	return st, nil
}

// recordPulls stores the parameter values before a fit and now.
func (e *Engine) recordPulls(label string, before []nuisance.Value) {
	e.pulls = append(e.pulls, limits.Pulls{
		Label:  label,
		Before: before,
		After:  e.model.Parameters().Snapshot(),
	})
}

// preFit is the parameter vector at initial values.
func (e *Engine) preFit() []nuisance.Value {
	set := e.model.Parameters()
	current := set.Snapshot()
	set.ResetAll()
	before := set.Snapshot()
	set.Restore(current)
	return before
}

// FitValues returns the parameter values of the stored unconditional fit.
func (e *Engine) FitValues() []nuisance.Value { return e.fitValues }
