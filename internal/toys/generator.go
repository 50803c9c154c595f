// Package toys generates pseudo-experiments from a likelihood model and
// refits them to calibrate the test statistic.
package toys

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"xelimit/domain/histogram"
	"xelimit/domain/nuisance"
	"xelimit/domain/sample"
	"xelimit/internal"
	"xelimit/internal/likelihood"
	"xelimit/ports"
)

const truncationAttempts = 1000

// Toy is one pseudo-experiment.
type Toy struct {
	Index       int
	Data        *sample.DataSample
	Calibration *sample.DataSample
	TrueParams  []nuisance.Value
}

// GeneratorConfig controls toy generation.
type GeneratorConfig struct {
	// Mu is the injected signal strength; 0 generates background only.
	Mu float64
	// AverageDataEvents > 0 rescales the backgrounds to this mean total.
	AverageDataEvents float64
	// AverageCalibrationEvents > 0 rescales the calibration sources likewise.
	AverageCalibrationEvents float64
	// RandomizeNuisance draws the systematics before each toy.
	RandomizeNuisance bool
	// WithCalibration also produces a calibration sample per toy.
	WithCalibration bool
}

// Generator is a ToyGenerator. It mutates the model's parameters while
// generating and restores them afterwards.
type Generator struct {
	model *likelihood.Model
	cfg   GeneratorConfig
	rng   ports.RNGPort
	log   *internal.Logger
}

func NewGenerator(model *likelihood.Model, cfg GeneratorConfig, rng ports.RNGPort) *Generator {
	return &Generator{
		model: model,
		cfg:   cfg,
		rng:   rng,
		log:   internal.DefaultLogger.With("toys " + model.Name),
	}
}

// GenerateBatch produces toys first..first+n-1.
func (g *Generator) GenerateBatch(ctx context.Context, first, n int) ([]*Toy, error) {
	out := make([]*Toy, 0, n)
	for i := first; i < first+n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		toy, err := g.Generate(i)
		if err != nil {
			return nil, fmt.Errorf("toy %d: %w", i, err)
		}
		out = append(out, toy)
	}
	g.log.Info("generated %d toys at mu=%g", n, g.cfg.Mu)
	return out, nil
}

// Generate produces toy index. The same index and seed give the same toy.
func (g *Generator) Generate(index int) (*Toy, error) {
	params := g.model.Parameters()
	saved := params.Snapshot()
	defer params.Restore(saved)

	rng := g.rng.Stream("toys", index)
	if g.cfg.RandomizeNuisance {
		RandomizeParameters(params.All(), rng)
	}
	g.model.POI().SetClamped(g.cfg.Mu)

	toy := &Toy{Index: index, TrueParams: params.Snapshot()}

	data, err := g.generateData(index, rng)
	if err != nil {
		return nil, err
	}
	toy.Data = data

	if g.cfg.WithCalibration {
		cal, err := g.generateCalibration(index, rng)
		if err != nil {
			return nil, err
		}
		toy.Calibration = cal
	}
	data.TrueParams = toy.TrueParams
	return toy, nil
}

func (g *Generator) generateData(index int, rng *rand.Rand) (*sample.DataSample, error) {
	data := sample.New(fmt.Sprintf("toy_%d", index), sample.RoleData)

	scale := 1.0
	if g.cfg.AverageDataEvents > 0 {
		total := 0.0
		for _, b := range g.model.Backgrounds() {
			total += b.DefaultEvents()
		}
		if total > 0 {
			scale = g.cfg.AverageDataEvents / total
		}
	}

	for _, b := range g.model.Backgrounds() {
		h, err := b.Density()
		if err != nil {
			return nil, err
		}
		if err := fill(data, h, scale, rng); err != nil {
			return nil, fmt.Errorf("background %s: %w", b.Name, err)
		}
	}

	if mu := g.model.POI().Value; mu > 0 {
		h, err := g.model.Signal().Density()
		if err != nil {
			return nil, err
		}
		if err := fill(data, h, mu*g.model.SignalMultiplier(), rng); err != nil {
			return nil, fmt.Errorf("signal: %w", err)
		}
	}
	return data, nil
}

// generateCalibration draws from the safeguarded backgrounds plus the
// additional safeguard density.
func (g *Generator) generateCalibration(index int, rng *rand.Rand) (*sample.DataSample, error) {
	cal := sample.New(fmt.Sprintf("calibration_%d", index), sample.RoleCalibration)

	var sources []*histogram.Hist2D
	for _, b := range g.model.Backgrounds() {
		if !b.Safeguarded {
			continue
		}
		h, err := b.Density()
		if err != nil {
			return nil, err
		}
		sources = append(sources, h)
	}
	if add := g.model.AdditionalSafeguard(); add != nil {
		sources = append(sources, add)
	}
	if len(sources) == 0 {
		return cal, nil
	}

	scale := 1.0
	if g.cfg.AverageCalibrationEvents > 0 {
		total := 0.0
		for _, h := range sources {
			total += h.Integral()
		}
		if total > 0 {
			scale = g.cfg.AverageCalibrationEvents / total
		}
	}
	for _, h := range sources {
		if err := fill(cal, h, scale, rng); err != nil {
			return nil, err
		}
	}
	return cal, nil
}

// fill adds Poisson(scale·∫h) unit-weight events distributed like h.
func fill(d *sample.DataSample, h *histogram.Hist2D, scale float64, rng *rand.Rand) error {
	mean := scale * h.Integral()
	if mean <= 0 {
		return nil
	}
	n := int(distuv.Poisson{Lambda: mean, Src: rng}.Rand())
	if n == 0 {
		return nil
	}
	s, err := histogram.NewSampler(h)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		x, y := s.Sample(rng)
		d.Add(x, y, 1)
	}
	return nil
}

// RandomizeParameters draws every movable parameter: Free ones uniformly in
// their range, constrained ones from a unit Gaussian truncated to the range.
// POI, Fixed and Frozen parameters are left alone.
func RandomizeParameters(params []*nuisance.Parameter, rng *rand.Rand) {
	for _, p := range params {
		switch p.Kind {
		case nuisance.KindPOI, nuisance.KindFixed, nuisance.KindFrozen:
			continue
		case nuisance.KindFree:
			p.Value = p.Min + rng.Float64()*(p.Max-p.Min)
		default:
			p.Value = TruncatedNormal(rng, p.Measured, 1, p.Min, p.Max)
		}
	}
}

// TruncatedNormal draws N(mean, sigma) restricted to [min, max] by
// rejection, falling back to clamping.
func TruncatedNormal(rng *rand.Rand, mean, sigma, min, max float64) float64 {
	n := distuv.Normal{Mu: mean, Sigma: sigma, Src: rng}
	v := n.Rand()
	for i := 0; i < truncationAttempts && (v < min || v > max); i++ {
		v = n.Rand()
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
