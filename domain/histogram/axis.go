package histogram

import (
	"fmt"
	"math"
)

// Axis is a uniform binning of [Min, Max) into NBins bins.
type Axis struct {
	NBins int     `json:"nbins"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// NewAxis validates the binning.
func NewAxis(nbins int, min, max float64) (Axis, error) {
	a := Axis{NBins: nbins, Min: min, Max: max}
	if err := a.Validate(); err != nil {
		return Axis{}, err
	}
	return a, nil
}

func (a Axis) Validate() error {
	if a.NBins <= 0 {
		return fmt.Errorf("axis must have at least one bin, got %d", a.NBins)
	}
	if !(a.Max > a.Min) || math.IsInf(a.Max-a.Min, 0) {
		return fmt.Errorf("axis range [%g, %g) is empty", a.Min, a.Max)
	}
	return nil
}

// Width returns the bin width.
func (a Axis) Width() float64 {
	return (a.Max - a.Min) / float64(a.NBins)
}

// FindBin returns the zero-based bin holding v. The upper edge Max is
// attributed to the last bin; anything else outside the range reports false.
func (a Axis) FindBin(v float64) (int, bool) {
	if math.IsNaN(v) || v < a.Min || v > a.Max {
		return 0, false
	}
	if v == a.Max {
		return a.NBins - 1, true
	}
	i := int((v - a.Min) / a.Width())
	if i >= a.NBins {
		i = a.NBins - 1
	}
	return i, true
}

func (a Axis) LowEdge(i int) float64 {
	return a.Min + float64(i)*a.Width()
}

func (a Axis) Center(i int) float64 {
	return a.Min + (float64(i)+0.5)*a.Width()
}

// Equal reports identical binning.
func (a Axis) Equal(o Axis) bool {
	return a.NBins == o.NBins && a.Min == o.Min && a.Max == o.Max
}

// overlap returns the fraction of bin i lying inside [lo, hi].
func (a Axis) overlap(i int, lo, hi float64) float64 {
	b0 := a.LowEdge(i)
	b1 := b0 + a.Width()
	l := math.Max(b0, lo)
	h := math.Min(b1, hi)
	if h <= l {
		return 0
	}
	return (h - l) / (b1 - b0)
}
