// Package pdf builds interpolated density templates for one model component
// from a discrete grid of stored templates.
package pdf

import (
	"fmt"
	"math"

	"xelimit/domain/core"
	"xelimit/domain/histogram"
	"xelimit/domain/nuisance"
	"xelimit/internal"
	"xelimit/ports"
)

// Component is one signal or background contribution to the likelihood.
type Component struct {
	Name string
	// Safeguarded marks backgrounds that take part in the safeguard blend.
	Safeguarded bool

	store  ports.TemplateStore
	keyer  Keyer
	shapes []*nuisance.ShapeSystematic
	scales []*nuisance.ScaleSystematic

	// scaleFactor pins the default template to a target event count. It is
	// applied only once scaled is set.
	scaleFactor float64
	scaled      bool
	defaultTpl  *histogram.Hist2D
}

// NewComponent names the templates <baseName>...; call Load once all
// systematics are declared.
func NewComponent(name, baseName string, store ports.TemplateStore) *Component {
	return &Component{
		Name:  name,
		store: store,
		keyer: NameKeyer{Base: baseName},
	}
}

// SetSuffix appends suffix to every template name.
func (c *Component) SetSuffix(suffix string) {
	if k, ok := c.keyer.(NameKeyer); ok {
		k.Suffix = suffix
		c.keyer = k
	}
}

// SetKeyer replaces the naming scheme.
func (c *Component) SetKeyer(k Keyer) {
	c.keyer = k
}

func (c *Component) AddShape(s *nuisance.ShapeSystematic) error {
	if c.hasParameter(s.Name) {
		return fmt.Errorf("component %s: %w: %s", c.Name, core.ErrDuplicateParameter, s.Name)
	}
	c.shapes = append(c.shapes, s)
	return nil
}

func (c *Component) AddScale(s *nuisance.ScaleSystematic) error {
	if c.hasParameter(s.Name) {
		return fmt.Errorf("component %s: %w: %s", c.Name, core.ErrDuplicateParameter, s.Name)
	}
	c.scales = append(c.scales, s)
	return nil
}

func (c *Component) hasParameter(name string) bool {
	for _, p := range c.Parameters() {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Shapes returns the declared shape systematics in declaration order.
func (c *Component) Shapes() []*nuisance.ShapeSystematic { return c.shapes }

// Scales returns the declared scale systematics.
func (c *Component) Scales() []*nuisance.ScaleSystematic { return c.scales }

// Parameters lists shape then scale parameters.
func (c *Component) Parameters() []*nuisance.Parameter {
	out := make([]*nuisance.Parameter, 0, len(c.shapes)+len(c.scales))
	for _, s := range c.shapes {
		out = append(out, s.Parameter)
	}
	for _, s := range c.scales {
		out = append(out, s.Parameter)
	}
	return out
}

// ReplaceParameter points every systematic named p.Name at p, so that
// several components or models fit one shared value. It reports whether any
// systematic matched.
func (c *Component) ReplaceParameter(p *nuisance.Parameter) bool {
	found := false
	for _, s := range c.shapes {
		if s.Name == p.Name {
			s.Parameter = p
			found = true
		}
	}
	for _, s := range c.scales {
		if s.Name == p.Name {
			s.Parameter = p
			found = true
		}
	}
	return found
}

// DefaultKey is the storage key with every shape parameter at zero.
func (c *Component) DefaultKey() string {
	coords := make([]Coordinate, len(c.shapes))
	for i, s := range c.shapes {
		coords[i] = Coordinate{Name: s.Name}
	}
	return c.keyer.Key(coords)
}

// Load fetches the default template. A missing default is a configuration
// error naming the key.
func (c *Component) Load() error {
	tpl, err := c.store.Template(c.DefaultKey())
	if err != nil {
		return fmt.Errorf("component %s: %w", c.Name, err)
	}
	if tpl.Integral() <= 0 {
		return fmt.Errorf("component %s: %w: %s", c.Name, core.ErrEmptyTemplate, c.DefaultKey())
	}
	c.defaultTpl = tpl
	internal.DefaultLogger.Debug("component %s loaded default template %s (%.4g raw events)", c.Name, c.DefaultKey(), tpl.Integral())
	return nil
}

func (c *Component) loaded() error {
	if c.defaultTpl == nil {
		return fmt.Errorf("component %s: %w: templates not loaded", c.Name, core.ErrNotInitialized)
	}
	return nil
}

// SetEvents sets the scale factor so the default template integrates to n.
// n must be positive.
func (c *Component) SetEvents(n float64) error {
	if err := c.loaded(); err != nil {
		return err
	}
	if !(n > 0) {
		return fmt.Errorf("component %s: %w: event count must be positive, got %g", c.Name, core.ErrConfiguration, n)
	}
	return c.SetScaleFactor(n / c.defaultTpl.Integral())
}

// SetScaleFactor sets the absolute scale directly. f must be positive.
func (c *Component) SetScaleFactor(f float64) error {
	if !(f > 0) || math.IsInf(f, 1) {
		return fmt.Errorf("component %s: %w: scale factor must be positive and finite, got %g", c.Name, core.ErrConfiguration, f)
	}
	c.scaleFactor = f
	c.scaled = true
	return nil
}

// ScaleFactor returns the absolute scale, 1 when none was set.
func (c *Component) ScaleFactor() float64 {
	if !c.scaled {
		return 1
	}
	return c.scaleFactor
}

func (c *Component) applyScaleFactor(h *histogram.Hist2D) {
	if c.scaled {
		h.Scale(c.scaleFactor)
	}
}

// DefaultDensity is the default template with the scale factor applied and
// no systematics. The result is a fresh copy.
func (c *Component) DefaultDensity() (*histogram.Hist2D, error) {
	if err := c.loaded(); err != nil {
		return nil, err
	}
	h := c.defaultTpl.Clone()
	h.Name = c.Name + "_default"
	c.applyScaleFactor(h)
	return h, nil
}

// DefaultEvents is the integral of DefaultDensity.
func (c *Component) DefaultEvents() float64 {
	if c.defaultTpl == nil {
		return 0
	}
	return c.defaultTpl.Integral() * c.ScaleFactor()
}

// Density interpolates the template grid at the current shape values and
// applies scale modifiers and the scale factor. The result is a fresh copy.
func (c *Component) Density() (*histogram.Hist2D, error) {
	if err := c.loaded(); err != nil {
		return nil, err
	}
	corners, err := c.Corners()
	if err != nil {
		return nil, err
	}

	out := c.defaultTpl.CloneEmpty(c.Name + "_interpolated")
	for _, corner := range corners {
		if corner.Weight == 0 {
			continue
		}
		tpl, err := c.store.Template(corner.Key)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", c.Name, err)
		}
		if err := out.Add(tpl, corner.Weight); err != nil {
			return nil, fmt.Errorf("component %s: %w: %v", c.Name, core.ErrIncompatibleBinning, err)
		}
	}

	mod := 1.0
	for _, s := range c.scales {
		mod *= s.NormModifier()
	}
	if mod != 1 {
		out.Scale(mod)
	}
	c.applyScaleFactor(out)
	return out, nil
}

// Events is the integral of Density.
func (c *Component) Events() (float64, error) {
	h, err := c.Density()
	if err != nil {
		return 0, err
	}
	return h.Integral(), nil
}
