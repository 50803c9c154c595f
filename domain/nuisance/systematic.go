package nuisance

import (
	"fmt"
	"math"

	"xelimit/domain/core"
)

// Defaults for systematics declared without explicit bounds.
const (
	DefaultScaleMin  = -5.0
	DefaultScaleMax  = 5.0
	DefaultScaleStep = 0.01

	DefaultShapeMin  = -1.0
	DefaultShapeMax  = 1.0
	DefaultShapeStep = 1.0

	gridTolerance = 1e-9
)

// ScaleSystematic multiplies a component's normalization.
type ScaleSystematic struct {
	*Parameter
	RelativeUncertainty float64
	// Null centres the modifier on zero instead of one.
	Null bool
}

// NewScaleSystematic creates a Nuisance-kind scale systematic on [-5, 5].
func NewScaleSystematic(name string, relativeUncertainty float64) *ScaleSystematic {
	return &ScaleSystematic{
		Parameter: &Parameter{
			Name: name,
			Min:  DefaultScaleMin,
			Max:  DefaultScaleMax,
			Step: DefaultScaleStep,
			Kind: KindNuisance,
		},
		RelativeUncertainty: relativeUncertainty,
	}
}

// SetNull switches to the null-centred modifier; the range becomes non-negative.
func (s *ScaleSystematic) SetNull() {
	s.Null = true
	s.SetMinimum(math.Max(0, s.Min))
}

// NormModifier is 1 + t·σ_rel, or t·σ_rel when null-centred.
func (s *ScaleSystematic) NormModifier() float64 {
	m := s.Value * s.RelativeUncertainty
	if s.Null {
		return m
	}
	return 1 + m
}

// ShapeSystematic morphs a component's density through a template grid.
type ShapeSystematic struct {
	*Parameter
}

// NewShapeSystematic creates a shape systematic on [-1, 1] with step 1.
func NewShapeSystematic(name string) *ShapeSystematic {
	return &ShapeSystematic{Parameter: &Parameter{
		Name: name,
		Min:  DefaultShapeMin,
		Max:  DefaultShapeMax,
		Step: DefaultShapeStep,
		Kind: KindNuisance,
	}}
}

// Active reports whether the parameter takes part in interpolation.
func (s *ShapeSystematic) Active() bool {
	return s.Step > 0
}

// NearestLow returns the grid value at or below the current value. At the
// upper bound it returns Max-Step so a bracketing pair always exists.
func (s *ShapeSystematic) NearestLow() (float64, error) {
	v := s.Value
	if math.IsNaN(v) || v < s.Min || v > s.Max {
		return 0, fmt.Errorf("shape systematic: %w", core.NewOutOfRangeError(s.Name, v, s.Min, s.Max))
	}
	if !s.Active() {
		return 0, nil
	}
	if v == s.Min {
		return normZero(s.Min), nil
	}
	top := s.Max - s.Step
	if v >= s.Max || v >= top+s.Step*(1-gridTolerance) {
		return normZero(top), nil
	}
	r := v / s.Step
	k := math.Floor(r)
	if n := math.Round(r); math.Abs(r-n) < gridTolerance {
		k = n
	}
	low := k * s.Step
	if low < s.Min {
		low = s.Min
	}
	if low > top {
		low = top
	}
	return normZero(low), nil
}

// NearestHigh is NearestLow + Step.
func (s *ShapeSystematic) NearestHigh() (float64, error) {
	low, err := s.NearestLow()
	if err != nil {
		return 0, err
	}
	return normZero(low + s.Step), nil
}

func normZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}
