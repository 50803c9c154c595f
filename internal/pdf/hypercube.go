package pdf

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Corner is one vertex of the interpolation hypercube.
type Corner struct {
	Coordinates []Coordinate
	Key         string
	Weight      float64
}

// Corners enumerates the 2^K vertices around the current shape values, K
// being the number of shape systematics with a non-zero step. A corner's
// weight is the volume on the far side of it divided by the cell volume, so
// the weights sum to one.
// Shape systematics with zero step stay at their 0.00 grid value.
func (c *Component) Corners() ([]Corner, error) {
	type axis struct {
		index     int
		low, high float64
		v         float64
	}

	base := make([]Coordinate, len(c.shapes))
	var axes []axis
	for i, s := range c.shapes {
		base[i] = Coordinate{Name: s.Name}
		if !s.Active() {
			continue
		}
		low, err := s.NearestLow()
		if err != nil {
			return nil, err
		}
		high, err := s.NearestHigh()
		if err != nil {
			return nil, err
		}
		axes = append(axes, axis{index: i, low: low, high: high, v: s.Value})
	}

	n := 1 << len(axes)
	corners := make([]Corner, 0, n)
	raw := make([]float64, 0, n)
	for mask := 0; mask < n; mask++ {
		coords := make([]Coordinate, len(base))
		copy(coords, base)
		w := 1.0
		for k, a := range axes {
			if mask&(1<<k) != 0 {
				coords[a.index].Value = a.high
				w *= a.v - a.low
			} else {
				coords[a.index].Value = a.low
				w *= a.high - a.v
			}
		}
		raw = append(raw, math.Abs(w))
		corners = append(corners, Corner{Coordinates: coords, Key: c.keyer.Key(coords)})
	}

	// the raw weights add up to the cell volume
	volume := floats.Sum(raw)
	for i := range corners {
		corners[i].Weight = raw[i] / volume
	}
	return corners, nil
}
