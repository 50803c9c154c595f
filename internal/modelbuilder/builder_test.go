package modelbuilder

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xelimit/adapters/templatestore"
	"xelimit/domain/core"
	"xelimit/domain/nuisance"
	"xelimit/domain/sample"
	"xelimit/internal/config"
	"xelimit/internal/errors"
	"xelimit/internal/likelihood"
	"xelimit/internal/testkit"
	"xelimit/ports"
)

type mapSource map[string]*templatestore.MemoryStore

func (s mapSource) Open(path string) (ports.TemplateStore, error) {
	store, ok := s[path]
	if !ok {
		return nil, fmt.Errorf("%w: no container %s", core.ErrConfiguration, path)
	}
	return store, nil
}

type uniformReader struct{ n int }

func (r uniformReader) ReadSample(_ context.Context, src ports.SampleSource) (*sample.DataSample, error) {
	return testkit.Uniform(src.Name, src.Role, r.n), nil
}

func source() mapSource {
	store := templatestore.NewMemoryStore()
	store.Put("sig", testkit.Flat("sig", 3))
	store.Put("bkg", testkit.Flat("bkg", 1))
	for _, v := range []string{"-1.00", "0.00", "1.00"} {
		store.Put("erLeff"+v, testkit.Gradient("er", 2))
	}
	return mapSource{"t.json": store}
}

func ptr(v float64) *float64 { return &v }

func baseConfig() *config.ModelConfig {
	return &config.ModelConfig{
		Name:              "m",
		SignalDefaultNorm: 1e-45,
		Models: []config.ComponentConfig{
			{Name: "sig", Type: config.ComponentSignal, FilePath: "t.json", HistogramName: "sig", ExpEvents: ptr(1)},
			{Name: "bkg", Type: config.ComponentBackground, FilePath: "t.json", HistogramName: "bkg", ExpEvents: ptr(100)},
		},
		Datasets: []config.DatasetConfig{
			{Name: "data", Type: config.DatasetData, FilePath: "d.csv", XColumn: "x", YColumn: "y"},
		},
	}
}

func TestBuildFlatModel(t *testing.T) {
	b := New(source(), uniformReader{n: 100}, testkit.Maximizer())
	m, err := b.Build(context.Background(), baseConfig())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.SignalMultiplier(), 1e-12)
	assert.InDelta(t, 100.0, m.Backgrounds()[0].DefaultEvents(), 1e-9)
	assert.Equal(t, 100, m.Data().Entries())
	assert.Equal(t, 1, m.Parameters().Len())
	assert.InDelta(t, 1e-45, m.CrossSection(1), 1e-60)
}

func TestBuildWithSystematicsAndSafeguard(t *testing.T) {
	cfg := baseConfig()
	cfg.Safeguard = true
	cfg.Models = append(cfg.Models, config.ComponentConfig{
		Name:          "er",
		Type:          config.ComponentBackground,
		FilePath:      "t.json",
		HistogramName: "er",
		Safeguard:     true,
		ScaleFactor:   ptr(5),
		ShapeParameters: []config.ShapeParameterConfig{
			{Name: "Leff", StepSize: 1, LowerLimit: ptr(-1), UpperLimit: ptr(1)},
		},
		RateParameters: []config.RateParameterConfig{
			{Name: "ERNorm", DefaultValue: 0.1, LowerLimit: ptr(-3), UpperLimit: ptr(3), Type: "FIXED"},
		},
	})
	cfg.Datasets = append(cfg.Datasets, config.DatasetConfig{
		Name: "cal", Type: config.DatasetCalibration, FilePath: "c.csv", XColumn: "x", YColumn: "y",
	})

	b := New(source(), uniformReader{n: 50}, testkit.Maximizer())
	m, err := b.Build(context.Background(), cfg)
	require.NoError(t, err)

	assert.True(t, m.SafeguardEnabled())
	require.NotNil(t, m.SafeguardParameter())
	assert.Equal(t, likelihood.SafeguardMin, m.SafeguardParameter().Min)
	assert.Equal(t, 50, m.CalibrationData().Entries())

	norm, err := m.Parameters().Get("ERNorm")
	require.NoError(t, err)
	assert.Equal(t, nuisance.KindFixed, norm.Kind)
	assert.Equal(t, -3.0, norm.Min)

	er := m.Backgrounds()[1]
	assert.Equal(t, "erLeff0.00", er.DefaultKey())
	assert.InDelta(t, 10.0, er.DefaultEvents(), 1e-9)

	ll, err := m.LogLikelihood()
	require.NoError(t, err)
	assert.Greater(t, ll, likelihood.VerySmall)
}

func TestBuildMissingTemplate(t *testing.T) {
	cfg := baseConfig()
	cfg.Models[1].HistogramName = "nope"

	b := New(source(), uniformReader{n: 10}, testkit.Maximizer())
	_, err := b.Build(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTemplateNotFound)
	assert.Equal(t, errors.CodeTemplateNotFound, errors.GetCode(err))
	assert.Contains(t, err.Error(), "nope")
}

func TestBuildNegativeSafeguardRange(t *testing.T) {
	cfg := baseConfig()
	no := false
	cfg.Safeguard = true
	cfg.PosDefSafeguard = &no
	cfg.Models[1].Safeguard = true
	cfg.Datasets = append(cfg.Datasets, config.DatasetConfig{
		Name: "cal", Type: config.DatasetCalibration, FilePath: "c.csv", XColumn: "x", YColumn: "y",
	})

	b := New(source(), uniformReader{n: 10}, testkit.Maximizer())
	m, err := b.Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, -likelihood.SafeguardMax, m.SafeguardParameter().Min)
}

func TestCombine(t *testing.T) {
	named := func(name string, sigEvents float64) *config.ModelConfig {
		cfg := baseConfig()
		cfg.Name = name
		cfg.Models[0].ExpEvents = ptr(sigEvents)
		return cfg
	}
	b := New(source(), uniformReader{n: 100}, testkit.Maximizer())

	c, err := b.Combine(context.Background(), "sr0+sr1", []*config.ModelConfig{named("sr0", 1), named("sr1", 2)})
	require.NoError(t, err)
	require.Len(t, c.Members(), 2)
	assert.Equal(t, 1, c.Parameters().Len(), "the POI is shared")
	assert.InDelta(t, 0.5, c.SignalMultiplier(), 1e-12)
	assert.Same(t, c.Members()[0].POI(), c.Members()[1].POI())
	assert.Len(t, c.Datasets(), 2)

	tests := []struct {
		name   string
		modify func(*config.ModelConfig)
	}{
		{"different mass", func(c *config.ModelConfig) { c.Mass = 50 }},
		{"different signal norm", func(c *config.ModelConfig) { c.SignalDefaultNorm = 2e-45 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := named("sr1", 1)
			tt.modify(other)
			_, err := b.Combine(context.Background(), "bad", []*config.ModelConfig{named("sr0", 1), other})
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInconsistentCombination)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}
