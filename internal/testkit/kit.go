// Package testkit provides fixtures shared by package tests: flat template
// stores, ready-built models and seeded random streams.
package testkit

import (
	"fmt"

	"xelimit/adapters/fit"
	"xelimit/adapters/rng"
	"xelimit/adapters/templatestore"
	"xelimit/domain/histogram"
	"xelimit/internal/likelihood"
	"xelimit/internal/pdf"
	"xelimit/ports"
)

// UnitSquare is the binning every fixture template uses.
var UnitSquare = histogram.Axis{NBins: 4, Min: 0, Max: 1}

// Flat returns a template with total integral total spread evenly over the
// unit square.
func Flat(name string, total float64) *histogram.Hist2D {
	n := UnitSquare.NBins * UnitSquare.NBins
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = total / float64(n)
	}
	h, err := histogram.FromValues(name, UnitSquare, UnitSquare, vals)
	if err != nil {
		panic(fmt.Sprintf("testkit: %v", err))
	}
	return h
}

// Gradient returns a template rising linearly in x, integral total.
func Gradient(name string, total float64) *histogram.Hist2D {
	nb := UnitSquare.NBins
	vals := make([]float64, 0, nb*nb)
	norm := 0.0
	for i := 0; i < nb; i++ {
		for j := 0; j < nb; j++ {
			vals = append(vals, float64(i+1))
			norm += float64(i + 1)
		}
	}
	for i := range vals {
		vals[i] *= total / norm
	}
	h, err := histogram.FromValues(name, UnitSquare, UnitSquare, vals)
	if err != nil {
		panic(fmt.Sprintf("testkit: %v", err))
	}
	return h
}

// FlatScenario describes the reference model: one flat background, one flat
// signal, no shape systematics and no safeguard.
type FlatScenario struct {
	Background   float64
	Signal       float64
	CrossSection float64
}

// DefaultFlatScenario has 100 background events and 1 signal event at
// μ = 1 for a cross-section of 1e-45.
func DefaultFlatScenario() FlatScenario {
	return FlatScenario{Background: 100, Signal: 1, CrossSection: 1e-45}
}

// Store returns a store holding the scenario's templates, deliberately not
// pre-normalized so SetEvents does the work.
func (s FlatScenario) Store() *templatestore.MemoryStore {
	store := templatestore.NewMemoryStore()
	store.Put("bkg", Flat("bkg", 1))
	store.Put("sig", Flat("sig", 3))
	return store
}

// Build returns an initialized model whose data is the μ′ = 0 Asimov set.
func (s FlatScenario) Build(maximizer ports.Maximizer) (*likelihood.Model, error) {
	store := s.Store()

	bkg := pdf.NewComponent("bkg", "bkg", store)
	if err := bkg.Load(); err != nil {
		return nil, err
	}
	if err := bkg.SetEvents(s.Background); err != nil {
		return nil, err
	}
	sig := pdf.NewComponent("sig", "sig", store)
	if err := sig.Load(); err != nil {
		return nil, err
	}
	if err := sig.SetEvents(s.Signal); err != nil {
		return nil, err
	}

	m := likelihood.New("flat", maximizer, likelihood.Options{})
	m.SetSignal(sig)
	if err := m.AddBackground(bkg); err != nil {
		return nil, err
	}
	m.SetSignalDefaultNorm(s.CrossSection)

	h, err := bkg.DefaultDensity()
	if err != nil {
		return nil, err
	}
	m.SetData(asimovFrom(h))
	if err := m.Initialize(); err != nil {
		return nil, err
	}
	asimov, err := m.GenerateAsimov(0)
	if err != nil {
		return nil, err
	}
	m.SetData(asimov)
	return m, nil
}

// Combined builds one scenario model per name and joins them. The members
// are identical apart from their names.
func (s FlatScenario) Combined(maximizer ports.Maximizer, names ...string) (*likelihood.Combined, error) {
	c := likelihood.NewCombined("combined", maximizer)
	for _, name := range names {
		m, err := s.Build(maximizer)
		if err != nil {
			return nil, err
		}
		m.Name = name
		if err := c.Add(m); err != nil {
			return nil, err
		}
	}
	if err := c.Initialize(); err != nil {
		return nil, err
	}
	return c, nil
}

// Maximizer is the production fitter with default settings.
func Maximizer() ports.Maximizer {
	return fit.NewNelderMead(fit.DefaultConfig())
}

// RNG returns a seeded stream provider.
func RNG(seed uint64) ports.RNGPort {
	return rng.NewSeeded(seed)
}
