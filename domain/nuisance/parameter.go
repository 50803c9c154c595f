// Package nuisance defines the bounded scalar parameters of the likelihood:
// the parameter of interest, systematic uncertainties and free parameters.
package nuisance

import (
	"fmt"
	"math"

	"xelimit/domain/core"
)

// Kind controls how a parameter takes part in fits and constraints.
type Kind int

const (
	// KindPOI is the signal strength. Fitted unless the fit freezes it.
	KindPOI Kind = iota
	// KindNuisance is fitted and carries a unit Gaussian constraint.
	KindNuisance
	// KindFixed is held at its value but still carries the constraint.
	KindFixed
	// KindFrozen is held at its value with no constraint.
	KindFrozen
	// KindFree is fitted without constraint.
	KindFree
)

var kindNames = map[Kind]string{
	KindPOI:      "POI",
	KindNuisance: "NUISANCE",
	KindFixed:    "FIXED",
	KindFrozen:   "FROZEN",
	KindFree:     "FREE",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts the upper-case names used in model configuration files.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown parameter kind %q", s)
}

// Parameter is a named bounded scalar.
type Parameter struct {
	Name    string
	Value   float64
	Initial float64
	Min     float64
	Max     float64
	Step    float64
	Kind    Kind
	// Measured is the centre of the Gaussian constraint.
	Measured float64
}

// NewParameter builds a parameter sitting at its initial value.
func NewParameter(name string, kind Kind, initial, min, max, step float64) (*Parameter, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: parameter name is empty", core.ErrConfiguration)
	}
	if min > max {
		return nil, fmt.Errorf("%w: parameter %s has min %g > max %g", core.ErrConfiguration, name, min, max)
	}
	if initial < min || initial > max {
		return nil, core.NewOutOfRangeError(name, initial, min, max)
	}
	return &Parameter{
		Name:    name,
		Value:   initial,
		Initial: initial,
		Min:     min,
		Max:     max,
		Step:    step,
		Kind:    kind,
	}, nil
}

// Set assigns v after checking the bounds.
func (p *Parameter) Set(v float64) error {
	if math.IsNaN(v) || v < p.Min || v > p.Max {
		return core.NewOutOfRangeError(p.Name, v, p.Min, p.Max)
	}
	p.Value = v
	return nil
}

// SetClamped assigns v limited to the bounds.
func (p *Parameter) SetClamped(v float64) {
	p.Value = math.Max(p.Min, math.Min(p.Max, v))
}

// Reset restores the initial value.
func (p *Parameter) Reset() {
	p.Value = p.Initial
}

// SetMinimum moves the lower bound, pulling the value along if needed.
func (p *Parameter) SetMinimum(min float64) {
	p.Min = min
	if p.Initial < min {
		p.Initial = min
	}
	if p.Value < min {
		p.Value = min
	}
}

// Constrained reports whether the parameter adds a Gaussian term.
func (p *Parameter) Constrained() bool {
	return p.Kind == KindNuisance || p.Kind == KindFixed
}

// LogConstraint is -(t - t0)²/2 for constrained kinds and 0 otherwise.
func (p *Parameter) LogConstraint() float64 {
	if !p.Constrained() {
		return 0
	}
	d := p.Value - p.Measured
	return -d * d / 2
}

// Fitted reports whether the maximizer moves this parameter. The POI is
// fitted here; conditional fits freeze it explicitly.
func (p *Parameter) Fitted() bool {
	switch p.Kind {
	case KindPOI, KindNuisance, KindFree:
		return true
	default:
		return false
	}
}

func (p *Parameter) String() string {
	return fmt.Sprintf("%s=%g [%g,%g] %s", p.Name, p.Value, p.Min, p.Max, p.Kind)
}
