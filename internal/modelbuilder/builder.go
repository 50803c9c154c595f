// Package modelbuilder turns a model configuration into an initialized
// likelihood model.
package modelbuilder

import (
	"context"
	"fmt"

	"xelimit/domain/core"
	"xelimit/domain/histogram"
	"xelimit/domain/nuisance"
	"xelimit/domain/sample"
	"xelimit/internal"
	"xelimit/internal/config"
	"xelimit/internal/errors"
	"xelimit/internal/likelihood"
	"xelimit/internal/pdf"
	"xelimit/ports"
)

// Builder wires templates, samples and the maximizer into models.
type Builder struct {
	templates ports.TemplateSource
	samples   ports.SampleReader
	maximizer ports.Maximizer
	log       *internal.Logger
}

func New(templates ports.TemplateSource, samples ports.SampleReader, maximizer ports.Maximizer) *Builder {
	return &Builder{
		templates: templates,
		samples:   samples,
		maximizer: maximizer,
		log:       internal.DefaultLogger.With("modelbuilder"),
	}
}

// Build constructs and initializes the model. Every failure is a
// configuration error naming the offending component, parameter or key.
func (b *Builder) Build(ctx context.Context, cfg *config.ModelConfig) (*likelihood.Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := likelihood.New(cfg.Name, b.maximizer, likelihood.Options{
		WithSafeguard:          cfg.Safeguard,
		SafeguardFixValue:      cfg.SafeguardFixValue,
		SafeguardAllowNegative: !cfg.SafeguardPositiveDefinite(),
		POIMin:                 cfg.POIMin,
		POIMax:                 cfg.POIMax,
		SafeguardName:          cfg.SafeguardName,
	})

	sig, err := b.Component(cfg.Signal())
	if err != nil {
		return nil, errors.Classify(err, fmt.Sprintf("model %s: signal", cfg.Name))
	}
	m.SetSignal(sig)

	for _, bc := range cfg.Backgrounds() {
		c, err := b.Component(bc)
		if err != nil {
			return nil, errors.Classify(err, fmt.Sprintf("model %s: background", cfg.Name))
		}
		if err := m.AddBackground(c); err != nil {
			return nil, errors.Classify(err, fmt.Sprintf("model %s", cfg.Name))
		}
	}
	m.SetSignalDefaultNorm(cfg.SignalDefaultNorm)

	for _, dc := range cfg.Datasets {
		d, err := b.samples.ReadSample(ctx, ports.SampleSource{
			Name:         dc.Name,
			Role:         sample.Role(dc.Type),
			Path:         dc.FilePath,
			Sheet:        dc.Sheet,
			XColumn:      dc.XColumn,
			YColumn:      dc.YColumn,
			WeightColumn: dc.WeightColumn,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "model %s: dataset %s", cfg.Name, dc.Name)
		}
		switch dc.Type {
		case config.DatasetData:
			m.SetData(d)
		case config.DatasetCalibration:
			m.SetCalibrationData(d)
		}
		b.log.Info("dataset %s (%s): %d entries, %.4g total weight", dc.Name, dc.Type, d.Entries(), d.SumOfWeights())
	}

	if a := cfg.AdditionalSafeguard; a != nil {
		h, err := b.additional(a)
		if err != nil {
			return nil, errors.Classify(err, fmt.Sprintf("model %s: additional safeguard component", cfg.Name))
		}
		m.SetAdditionalSafeguard(h, a.Scale)
	}

	if err := m.Initialize(); err != nil {
		return nil, errors.Classify(err, fmt.Sprintf("model %s", cfg.Name))
	}
	return m, nil
}

// Combine builds every model and joins them into one likelihood named name.
// All models must describe the same mass point.
func (b *Builder) Combine(ctx context.Context, name string, cfgs []*config.ModelConfig) (*likelihood.Combined, error) {
	c := likelihood.NewCombined(name, b.maximizer)
	for _, mc := range cfgs {
		if mc.Mass != cfgs[0].Mass || mc.AltX != cfgs[0].AltX {
			return nil, errors.Classify(fmt.Errorf("%w: model %s at mass %g, expected %g",
				core.ErrInconsistentCombination, mc.Name, mc.Mass, cfgs[0].Mass), "combined "+name)
		}
		m, err := b.Build(ctx, mc)
		if err != nil {
			return nil, err
		}
		if err := c.Add(m); err != nil {
			return nil, errors.Classify(err, "combined "+name)
		}
	}
	if err := c.Initialize(); err != nil {
		return nil, errors.Classify(err, "combined "+name)
	}
	b.log.Info("combined %s: %d models, %d parameters", name, len(c.Members()), c.Parameters().Len())
	return c, nil
}

// Component builds and loads one component. Expected events or a scale
// factor are applied after the default template is loaded.
func (b *Builder) Component(cc config.ComponentConfig) (*pdf.Component, error) {
	store, err := b.templates.Open(cc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("component %s: %w", cc.Name, err)
	}

	c := pdf.NewComponent(cc.Name, cc.HistogramName, store)
	c.Safeguarded = cc.Safeguard
	if cc.Suffix != "" {
		c.SetSuffix(cc.Suffix)
	}

	for _, sc := range cc.ShapeParameters {
		s := nuisance.NewShapeSystematic(sc.Name)
		s.Step = sc.StepSize
		if err := applyLimits(s.Parameter, sc.LowerLimit, sc.UpperLimit, sc.Type); err != nil {
			return nil, fmt.Errorf("component %s: %w", cc.Name, err)
		}
		if err := c.AddShape(s); err != nil {
			return nil, err
		}
	}
	for _, rc := range cc.RateParameters {
		s := nuisance.NewScaleSystematic(rc.Name, rc.DefaultValue)
		if err := applyLimits(s.Parameter, rc.LowerLimit, rc.UpperLimit, rc.Type); err != nil {
			return nil, fmt.Errorf("component %s: %w", cc.Name, err)
		}
		if rc.NullCentered {
			s.SetNull()
		}
		if err := c.AddScale(s); err != nil {
			return nil, err
		}
	}

	if err := c.Load(); err != nil {
		return nil, err
	}
	switch {
	case cc.ExpEvents != nil:
		if err := c.SetEvents(*cc.ExpEvents); err != nil {
			return nil, err
		}
	case cc.ScaleFactor != nil:
		if err := c.SetScaleFactor(*cc.ScaleFactor); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func applyLimits(p *nuisance.Parameter, lo, hi *float64, kind string) error {
	if lo != nil {
		p.Min = *lo
	}
	if hi != nil {
		p.Max = *hi
	}
	if kind != "" {
		k, err := nuisance.ParseKind(kind)
		if err != nil {
			return fmt.Errorf("%w: parameter %s: %v", core.ErrConfiguration, p.Name, err)
		}
		p.Kind = k
	}
	if p.Initial < p.Min || p.Initial > p.Max {
		p.Initial = p.Min
	}
	p.Value = p.Initial
	return nil
}

func (b *Builder) additional(a *config.AdditionalComponentConfig) (*histogram.Hist2D, error) {
	store, err := b.templates.Open(a.FilePath)
	if err != nil {
		return nil, err
	}
	base, err := store.Template(a.HistogramName)
	if err != nil {
		return nil, err
	}
	h := base.Clone()
	for _, extra := range a.ExtraHistograms {
		es, err := b.templates.Open(extra.FilePath)
		if err != nil {
			return nil, err
		}
		eh, err := es.Template(extra.HistogramName)
		if err != nil {
			return nil, err
		}
		if err := h.Add(eh, extra.Multiplier); err != nil {
			return nil, err
		}
	}
	return h, nil
}
