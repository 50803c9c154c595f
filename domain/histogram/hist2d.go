// Package histogram holds the binned two-dimensional density templates the
// likelihood is built from.
package histogram

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Hist2D is a binned density over (x, y). Rows index x bins, columns y bins.
type Hist2D struct {
	Name    string
	X       Axis
	Y       Axis
	content *mat.Dense
}

// New returns an empty histogram with the given binning.
func New(name string, x, y Axis) (*Hist2D, error) {
	if err := x.Validate(); err != nil {
		return nil, fmt.Errorf("histogram %q x axis: %w", name, err)
	}
	if err := y.Validate(); err != nil {
		return nil, fmt.Errorf("histogram %q y axis: %w", name, err)
	}
	return &Hist2D{Name: name, X: x, Y: y, content: mat.NewDense(x.NBins, y.NBins, nil)}, nil
}

// FromValues builds a histogram from row-major bin contents (x outer, y inner).
func FromValues(name string, x, y Axis, values []float64) (*Hist2D, error) {
	h, err := New(name, x, y)
	if err != nil {
		return nil, err
	}
	if len(values) != x.NBins*y.NBins {
		return nil, fmt.Errorf("histogram %q: expected %d bin values, got %d", name, x.NBins*y.NBins, len(values))
	}
	buf := make([]float64, len(values))
	copy(buf, values)
	h.content = mat.NewDense(x.NBins, y.NBins, buf)
	return h, nil
}

// Values returns a row-major copy of the bin contents.
func (h *Hist2D) Values() []float64 {
	out := make([]float64, 0, h.X.NBins*h.Y.NBins)
	for i := 0; i < h.X.NBins; i++ {
		out = append(out, h.content.RawRowView(i)...)
	}
	return out
}

func (h *Hist2D) BinContent(i, j int) float64 {
	return h.content.At(i, j)
}

func (h *Hist2D) SetBinContent(i, j int, v float64) {
	h.content.Set(i, j, v)
}

// Content returns the content of the bin holding (x, y), or 0 outside the range.
func (h *Hist2D) Content(x, y float64) float64 {
	i, okx := h.X.FindBin(x)
	j, oky := h.Y.FindBin(y)
	if !okx || !oky {
		return 0
	}
	return h.content.At(i, j)
}

// Fill adds w to the bin holding (x, y). Entries outside the range are dropped.
func (h *Hist2D) Fill(x, y, w float64) bool {
	i, okx := h.X.FindBin(x)
	j, oky := h.Y.FindBin(y)
	if !okx || !oky {
		return false
	}
	h.content.Set(i, j, h.content.At(i, j)+w)
	return true
}

// Integral is the sum of all bin contents.
func (h *Hist2D) Integral() float64 {
	return mat.Sum(h.content)
}

// IntegralRange sums the contents inside [x0,x1]×[y0,y1], counting partially
// covered edge bins by their covered fraction.
func (h *Hist2D) IntegralRange(x0, x1, y0, y1 float64) float64 {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	sum := 0.0
	for i := 0; i < h.X.NBins; i++ {
		fx := h.X.overlap(i, x0, x1)
		if fx == 0 {
			continue
		}
		for j := 0; j < h.Y.NBins; j++ {
			fy := h.Y.overlap(j, y0, y1)
			if fy == 0 {
				continue
			}
			sum += fx * fy * h.content.At(i, j)
		}
	}
	return sum
}

// Scale multiplies every bin by f.
func (h *Hist2D) Scale(f float64) {
	h.content.Scale(f, h.content)
}

// Add accumulates c·o into h. Both histograms must share binning.
func (h *Hist2D) Add(o *Hist2D, c float64) error {
	if !h.Compatible(o) {
		return fmt.Errorf("cannot add %q to %q: incompatible binning", o.Name, h.Name)
	}
	var scaled mat.Dense
	scaled.Scale(c, o.content)
	h.content.Add(h.content, &scaled)
	return nil
}

func (h *Hist2D) Compatible(o *Hist2D) bool {
	return o != nil && h.X.Equal(o.X) && h.Y.Equal(o.Y)
}

// Clone returns a deep copy.
func (h *Hist2D) Clone() *Hist2D {
	return &Hist2D{Name: h.Name, X: h.X, Y: h.Y, content: mat.DenseCopyOf(h.content)}
}

// CloneEmpty returns a zeroed histogram with the same binning.
func (h *Hist2D) CloneEmpty(name string) *Hist2D {
	return &Hist2D{Name: name, X: h.X, Y: h.Y, content: mat.NewDense(h.X.NBins, h.Y.NBins, nil)}
}

// Reset zeroes all bins.
func (h *Hist2D) Reset() {
	h.content.Zero()
}

// MinContent returns the smallest bin content.
func (h *Hist2D) MinContent() float64 {
	return mat.Min(h.content)
}
