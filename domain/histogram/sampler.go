package histogram

import (
	"errors"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ErrNotSampleable is returned for histograms without positive content.
var ErrNotSampleable = errors.New("histogram has no positive content to sample")

// Sampler draws (x, y) points distributed like a histogram's contents,
// uniformly within the chosen bin. Negative bins are treated as empty.
type Sampler struct {
	x, y Axis
	cdf  []float64
}

// NewSampler snapshots the histogram into a cumulative table.
func NewSampler(h *Hist2D) (*Sampler, error) {
	vals := h.Values()
	for i, v := range vals {
		if v < 0 {
			vals[i] = 0
		}
	}
	cdf := make([]float64, len(vals))
	floats.CumSum(cdf, vals)
	if len(cdf) == 0 || cdf[len(cdf)-1] <= 0 {
		return nil, ErrNotSampleable
	}
	return &Sampler{x: h.X, y: h.Y, cdf: cdf}, nil
}

// Sample draws one point.
func (s *Sampler) Sample(rng *rand.Rand) (float64, float64) {
	total := s.cdf[len(s.cdf)-1]
	u := rng.Float64() * total
	k := sort.SearchFloat64s(s.cdf, u)
	// skip empty bins that share the same cumulative value
	for k < len(s.cdf)-1 && s.cdf[k] <= u {
		k++
	}
	i, j := k/s.y.NBins, k%s.y.NBins
	x := s.x.LowEdge(i) + rng.Float64()*s.x.Width()
	y := s.y.LowEdge(j) + rng.Float64()*s.y.Width()
	return x, y
}
