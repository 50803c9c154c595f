// Package likelihood evaluates the extended log-likelihood of a signal plus
// background model against a weighted event sample.
package likelihood

import (
	"fmt"

	"xelimit/domain/core"
	"xelimit/domain/histogram"
	"xelimit/domain/nuisance"
	"xelimit/domain/sample"
	"xelimit/internal"
	"xelimit/internal/pdf"
	"xelimit/ports"
)

// VerySmall is returned instead of an error for unphysical parameter points,
// so the maximizer can move away from them.
const VerySmall = -1e19

// Names of the parameters the model creates itself.
const (
	POIName       = "Sigma"
	SafeguardName = "Safeguard"
)

// Default POI range and step, in signal events at the default normalization.
const (
	DefaultPOIMin  = -50.0
	DefaultPOIMax  = 50.0
	DefaultPOIStep = 0.001
)

// Safeguard parameter settings. The fitted value is in units of 1/1000 of
// the contamination fraction ε.
const (
	SafeguardInitial      = 1.0
	SafeguardMin          = 1e-5
	SafeguardMax          = 20.0
	SafeguardStep         = 0.01
	safeguardToEpsilon    = 1e-3
	conservationTolerance = 1e-6
)

// Options configure a Model.
type Options struct {
	// WithSafeguard enables the calibration-constrained background blend.
	WithSafeguard bool
	// SafeguardFixValue > 0 holds the safeguard parameter at that value.
	SafeguardFixValue float64
	// SafeguardAllowNegative widens the safeguard range to [-20, 20].
	SafeguardAllowNegative bool
	// POIMin and POIMax override the default POI range when POIMax > POIMin.
	POIMin float64
	POIMax float64
	// SafeguardName renames the safeguard parameter. In a Combined
	// likelihood members with the same safeguard name share one parameter.
	SafeguardName string
}

// Model is a LikelihoodModel. It is not safe for concurrent use: fits
// mutate the parameter values in place.
type Model struct {
	Name string

	opts        Options
	signal      *pdf.Component
	backgrounds []*pdf.Component

	poi       *nuisance.Parameter
	safeguard *nuisance.Parameter
	params    *nuisance.Set

	data        *sample.DataSample
	calibration *sample.DataSample
	additional  *histogram.Hist2D

	signalDefaultNorm float64
	signalMultiplier  float64

	maximizer   ports.Maximizer
	initialized bool
	log         *internal.Logger
}

// New creates an empty model fitted with maximizer.
func New(name string, maximizer ports.Maximizer, opts Options) *Model {
	return &Model{
		Name:      name,
		opts:      opts,
		maximizer: maximizer,
		log:       internal.DefaultLogger.With("likelihood " + name),
	}
}

// SetSignal sets the single signal component.
func (m *Model) SetSignal(c *pdf.Component) {
	m.signal = c
	m.initialized = false
}

// AddBackground registers a background component. Names must be unique.
func (m *Model) AddBackground(c *pdf.Component) error {
	for _, b := range m.backgrounds {
		if b == c || b.Name == c.Name {
			return fmt.Errorf("%w: background %s", core.ErrDuplicateComponent, c.Name)
		}
	}
	m.backgrounds = append(m.backgrounds, c)
	m.initialized = false
	return nil
}

func (m *Model) Signal() *pdf.Component        { return m.signal }
func (m *Model) Backgrounds() []*pdf.Component { return m.backgrounds }

// SetData sets the sample the likelihood is evaluated on.
func (m *Model) SetData(d *sample.DataSample) { m.data = d }

func (m *Model) Data() *sample.DataSample { return m.data }

// Label names the model in logs and errors.
func (m *Model) Label() string { return m.Name }

// Datasets returns the data sample as a one-element list.
func (m *Model) Datasets() []*sample.DataSample { return []*sample.DataSample{m.data} }

// SetDatasets sets the data sample from a one-element list.
func (m *Model) SetDatasets(data []*sample.DataSample) error {
	if len(data) != 1 {
		return fmt.Errorf("model %s: %w: expected 1 dataset, got %d", m.Name, core.ErrConfiguration, len(data))
	}
	m.data = data[0]
	return nil
}

// SetCalibrationData sets the sample the safeguard term is evaluated on.
func (m *Model) SetCalibrationData(d *sample.DataSample) { m.calibration = d }

func (m *Model) CalibrationData() *sample.DataSample { return m.calibration }

// SetAdditionalSafeguard adds a fixed density to the calibration model. It
// is copied and multiplied by scale, which converts it to expected events.
func (m *Model) SetAdditionalSafeguard(h *histogram.Hist2D, scale float64) {
	c := h.Clone()
	c.Scale(scale)
	m.additional = c
}

func (m *Model) AdditionalSafeguard() *histogram.Hist2D { return m.additional }

// SetSignalDefaultNorm sets the cross-section the signal default template
// corresponds to.
func (m *Model) SetSignalDefaultNorm(xsec float64) { m.signalDefaultNorm = xsec }

func (m *Model) SignalDefaultNorm() float64 { return m.signalDefaultNorm }

// SignalMultiplier is 1 / default signal events, so that μ counts signal
// events at the default configuration.
func (m *Model) SignalMultiplier() float64 { return m.signalMultiplier }

// CrossSection converts a signal strength to cross-section units.
func (m *Model) CrossSection(mu float64) float64 {
	return mu * m.signalMultiplier * m.signalDefaultNorm
}

// SafeguardEnabled reports whether the safeguard term is active.
func (m *Model) SafeguardEnabled() bool { return m.opts.WithSafeguard }

func (m *Model) POI() *nuisance.Parameter              { return m.poi }
func (m *Model) SafeguardParameter() *nuisance.Parameter { return m.safeguard }
func (m *Model) Parameters() *nuisance.Set               { return m.params }

// Initialize checks the structure and builds the parameter set. Missing
// inputs are configuration errors.
func (m *Model) Initialize() error {
	m.initialized = false
	switch {
	case len(m.backgrounds) == 0:
		return fmt.Errorf("model %s: %w", m.Name, core.ErrNoBackground)
	case m.signal == nil:
		return fmt.Errorf("model %s: %w", m.Name, core.ErrNoSignal)
	case m.data == nil:
		return fmt.Errorf("model %s: %w", m.Name, core.ErrNoData)
	case m.signalDefaultNorm <= 0:
		return fmt.Errorf("model %s: %w", m.Name, core.ErrNoDefaultNorm)
	}

	nSafeguarded := 0
	for _, b := range m.backgrounds {
		if b.Safeguarded {
			nSafeguarded++
		}
	}
	if m.opts.WithSafeguard {
		if m.calibration == nil {
			return fmt.Errorf("model %s: %w", m.Name, core.ErrNoCalibration)
		}
		if nSafeguarded == 0 {
			return fmt.Errorf("model %s: %w", m.Name, core.ErrNoSafeguarded)
		}
	} else if nSafeguarded > 0 {
		m.log.Warn("%d background(s) flagged safeguarded but safeguard is off; they enter as plain backgrounds", nSafeguarded)
	}

	sigEvents := m.signal.DefaultEvents()
	if sigEvents <= 0 {
		return fmt.Errorf("model %s: signal %s: %w", m.Name, m.signal.Name, core.ErrEmptyTemplate)
	}
	m.signalMultiplier = 1 / sigEvents

	if m.additional != nil {
		def, err := m.signal.DefaultDensity()
		if err != nil {
			return fmt.Errorf("model %s: %w", m.Name, err)
		}
		if !def.Compatible(m.additional) {
			return fmt.Errorf("model %s: additional safeguard density: %w", m.Name, core.ErrIncompatibleBinning)
		}
	}

	if err := m.buildParameters(); err != nil {
		return fmt.Errorf("model %s: %w", m.Name, err)
	}
	m.initialized = true
	m.log.Debug("initialized with %d parameters, signal multiplier %.6g", m.params.Len(), m.signalMultiplier)
	return nil
}

func (m *Model) buildParameters() error {
	if m.poi == nil {
		min, max := DefaultPOIMin, DefaultPOIMax
		if m.opts.POIMax > m.opts.POIMin {
			min, max = m.opts.POIMin, m.opts.POIMax
		}
		poi, err := nuisance.NewParameter(POIName, nuisance.KindPOI, 0, min, max, DefaultPOIStep)
		if err != nil {
			return err
		}
		m.poi = poi
	}

	m.safeguard = nil
	if m.opts.WithSafeguard {
		min := SafeguardMin
		if m.opts.SafeguardAllowNegative {
			min = -SafeguardMax
		}
		initial, kind := SafeguardInitial, nuisance.KindFree
		if m.opts.SafeguardFixValue > 0 {
			initial, kind = m.opts.SafeguardFixValue, nuisance.KindFixed
		}
		name := SafeguardName
		if m.opts.SafeguardName != "" {
			name = m.opts.SafeguardName
		}
		sg, err := nuisance.NewParameter(name, kind, initial, min, SafeguardMax, SafeguardStep)
		if err != nil {
			return err
		}
		m.safeguard = sg
	}
	return m.assembleParameters()
}

// assembleParameters collects the POI, the component systematics and the
// safeguard into a fresh set.
func (m *Model) assembleParameters() error {
	set := nuisance.NewSet()
	if err := set.Add(m.poi); err != nil {
		return err
	}
	for _, c := range append([]*pdf.Component{m.signal}, m.backgrounds...) {
		for _, p := range c.Parameters() {
			if err := set.Add(p); err != nil {
				return fmt.Errorf("component %s: %w", c.Name, err)
			}
		}
	}
	if m.safeguard != nil {
		if err := set.Add(m.safeguard); err != nil {
			return err
		}
	}
	m.params = set
	return nil
}

// replaceParameter swaps every parameter named p.Name for p. The caller
// rebuilds the set afterwards.
func (m *Model) replaceParameter(p *nuisance.Parameter) {
	switch {
	case m.poi != nil && m.poi.Name == p.Name:
		m.poi = p
	case m.safeguard != nil && m.safeguard.Name == p.Name:
		m.safeguard = p
	}
	for _, c := range append([]*pdf.Component{m.signal}, m.backgrounds...) {
		c.ReplaceParameter(p)
	}
}

func (m *Model) ready() error {
	if !m.initialized {
		return fmt.Errorf("model %s: %w", m.Name, core.ErrNotInitialized)
	}
	return nil
}

// ComponentEvents is one line of the event summary.
type ComponentEvents struct {
	Name        string
	Signal      bool
	Safeguarded bool
	Default     float64
	Current     float64
}

// EventSummary lists expected events per component at the default and at
// the current parameter values. Signal events are at μ = 1.
func (m *Model) EventSummary() ([]ComponentEvents, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var out []ComponentEvents
	sig, err := m.signal.Events()
	if err != nil {
		return nil, err
	}
	out = append(out, ComponentEvents{
		Name:    m.signal.Name,
		Signal:  true,
		Default: m.signal.DefaultEvents() * m.signalMultiplier,
		Current: sig * m.signalMultiplier,
	})
	for _, b := range m.backgrounds {
		n, err := b.Events()
		if err != nil {
			return nil, err
		}
		out = append(out, ComponentEvents{
			Name:        b.Name,
			Safeguarded: b.Safeguarded,
			Default:     b.DefaultEvents(),
			Current:     n,
		})
	}
	return out, nil
}
