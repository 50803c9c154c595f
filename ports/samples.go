package ports

import (
	"context"

	"xelimit/domain/sample"
)

// SampleSource describes a columnar event file.
type SampleSource struct {
	Name         string      `json:"name"`
	Role         sample.Role `json:"role"`
	Path         string      `json:"path"`
	Sheet        string      `json:"sheet,omitempty"`
	XColumn      string      `json:"xColumn"`
	YColumn      string      `json:"yColumn"`
	WeightColumn string      `json:"weightColumn,omitempty"`
}

// SampleReader loads events from a columnar source. Missing weight column
// means unit weights.
type SampleReader interface {
	ReadSample(ctx context.Context, src SampleSource) (*sample.DataSample, error)
}

// ToyStore persists generated pseudo-datasets for later fitting.
type ToyStore interface {
	WriteToys(ctx context.Context, path string, toys []*sample.DataSample) error
	ReadToys(ctx context.Context, path string) ([]*sample.DataSample, error)
}
