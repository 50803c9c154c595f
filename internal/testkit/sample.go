package testkit

import (
	"xelimit/domain/histogram"
	"xelimit/domain/sample"
)

func asimovFrom(h *histogram.Hist2D) *sample.DataSample {
	return sample.FromHistogram(h.Name, sample.RoleData, h)
}

// Uniform returns n unit-weight events on a regular grid of the unit square.
func Uniform(name string, role sample.Role, n int) *sample.DataSample {
	d := sample.New(name, role)
	side := 1
	for side*side < n {
		side++
	}
	for i := 0; i < n; i++ {
		x := (float64(i%side) + 0.5) / float64(side)
		y := (float64(i/side) + 0.5) / float64(side)
		d.Add(x, y, 1)
	}
	return d
}
