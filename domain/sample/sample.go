// Package sample holds weighted (x, y) event collections: observed data,
// calibration data, Asimov expectations and toy pseudo-experiments.
package sample

import (
	"fmt"

	"xelimit/domain/histogram"
	"xelimit/domain/nuisance"
)

// Role distinguishes the sample a dataset feeds.
type Role string

const (
	RoleData        Role = "DATA"
	RoleCalibration Role = "CALIBRATION"
)

// Event is one weighted observation.
type Event struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Weight float64 `json:"weight"`
}

// DataSample keeps its events and the running weight sum.
type DataSample struct {
	Name   string
	Role   Role
	events []Event
	sumW   float64
	// TrueParams records the generating parameters of a toy.
	TrueParams []nuisance.Value
}

func New(name string, role Role) *DataSample {
	return &DataSample{Name: name, Role: role}
}

// Add appends an event.
func (d *DataSample) Add(x, y, w float64) {
	d.events = append(d.events, Event{X: x, Y: y, Weight: w})
	d.sumW += w
}

// Entries is the number of stored events.
func (d *DataSample) Entries() int { return len(d.events) }

// SumOfWeights is the total event weight.
func (d *DataSample) SumOfWeights() float64 { return d.sumW }

// Entry returns event i.
func (d *DataSample) Entry(i int) (Event, error) {
	if i < 0 || i >= len(d.events) {
		return Event{}, fmt.Errorf("entry %d out of range [0,%d)", i, len(d.events))
	}
	return d.events[i], nil
}

// Events exposes the events read-only by convention.
func (d *DataSample) Events() []Event { return d.events }

// Clear drops all events.
func (d *DataSample) Clear() {
	d.events = d.events[:0]
	d.sumW = 0
	d.TrueParams = nil
}

// FromHistogram turns an expectation histogram into a weighted sample with one
// event per positive bin at the bin centre. This is how Asimov data is built.
func FromHistogram(name string, role Role, h *histogram.Hist2D) *DataSample {
	d := New(name, role)
	for i := 0; i < h.X.NBins; i++ {
		for j := 0; j < h.Y.NBins; j++ {
			if c := h.BinContent(i, j); c > 0 {
				d.Add(h.X.Center(i), h.Y.Center(j), c)
			}
		}
	}
	return d
}
