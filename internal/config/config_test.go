package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xelimit/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XELIMIT_CONFIDENCE_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Limits.ConfidenceLevel)
	assert.Equal(t, 100, cfg.Limits.ScanPoints)
	assert.True(t, cfg.Limits.UseQTilde)
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadRejectsConfidenceLevel(t *testing.T) {
	for _, v := range []string{"0", "1", "1.5", "-0.2"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("XELIMIT_CONFIDENCE_LEVEL", v)
			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
			assert.Contains(t, err.Error(), "ConfidenceLevel")
		})
	}
}

func TestLoadRejectsNonPositiveCounts(t *testing.T) {
	tests := []struct {
		env, field string
	}{
		{"XELIMIT_SCAN_POINTS", "ScanPoints"},
		{"XELIMIT_PARALLEL", "Parallel"},
		{"XELIMIT_TOY_BATCH", "BatchSize"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, "0")
			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	tests := []struct {
		url, mode, want string
	}{
		{"", "disable", ""},
		{"postgres://u@h/db", "disable", "postgres://u@h/db?sslmode=disable"},
		{"postgres://u@h/db?connect_timeout=5", "require", "postgres://u@h/db?connect_timeout=5&sslmode=require"},
		{"postgres://u@h/db?sslmode=verify-full", "disable", "postgres://u@h/db?sslmode=verify-full"},
	}
	for _, tt := range tests {
		d := DatabaseConfig{URL: tt.url, SSLMode: tt.mode}
		assert.Equal(t, tt.want, d.DSN())
	}
}

func TestLoadModelJSON(t *testing.T) {
	cfg, err := LoadModel(filepath.Join("testdata", "model.json"))
	require.NoError(t, err)

	assert.Equal(t, "sr1_50gev", cfg.Name)
	assert.Equal(t, "wimp", cfg.Signal().Name)
	require.Len(t, cfg.Backgrounds(), 1)
	assert.True(t, cfg.Backgrounds()[0].Safeguard)
	require.NotNil(t, cfg.Signal().ExpEvents)
	assert.Equal(t, 10.0, *cfg.Signal().ExpEvents)

	data, ok := cfg.Dataset(DatasetData)
	require.True(t, ok)
	assert.Equal(t, filepath.Join("testdata", "data.csv"), data.FilePath)
	cal, ok := cfg.Dataset(DatasetCalibration)
	require.True(t, ok)
	assert.Equal(t, "/abs/calib.xlsx", cal.FilePath)
	assert.Equal(t, "w", cal.WeightColumn)
}

func TestLoadModelYAML(t *testing.T) {
	cfg, err := LoadModel(filepath.Join("testdata", "model.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sr0", cfg.Name)
	assert.False(t, cfg.Safeguard)
	assert.True(t, cfg.SafeguardPositiveDefinite())
	require.NotNil(t, cfg.Backgrounds()[0].ScaleFactor)
	assert.Equal(t, 2.0, *cfg.Backgrounds()[0].ScaleFactor)
}

func validModel() *ModelConfig {
	return &ModelConfig{
		Name:              "m",
		SignalDefaultNorm: 1e-45,
		Models: []ComponentConfig{
			{Name: "sig", Type: ComponentSignal, FilePath: "t.json", HistogramName: "sig"},
			{Name: "bkg", Type: ComponentBackground, FilePath: "t.json", HistogramName: "bkg"},
		},
		Datasets: []DatasetConfig{
			{Name: "data", Type: DatasetData, FilePath: "d.csv", XColumn: "x", YColumn: "y"},
		},
	}
}

func TestModelValidation(t *testing.T) {
	lo, hi := 1.0, -1.0
	tests := []struct {
		name   string
		mutate func(*ModelConfig)
		code   string
	}{
		{"missing norm", func(c *ModelConfig) { c.SignalDefaultNorm = 0 }, errors.CodeValidationError},
		{"two signals", func(c *ModelConfig) { c.Models[1].Type = ComponentSignal }, errors.CodeConfigInvalid},
		{"unknown type", func(c *ModelConfig) { c.Models[1].Type = "NOISE" }, errors.CodeValidationError},
		{"duplicate component", func(c *ModelConfig) { c.Models[1].Name = "sig" }, errors.CodeConfigInvalid},
		{"no data", func(c *ModelConfig) { c.Datasets[0].Type = DatasetCalibration }, errors.CodeConfigInvalid},
		{"safeguard without calibration", func(c *ModelConfig) {
			c.Safeguard = true
			c.Models[1].Safeguard = true
		}, errors.CodeConfigInvalid},
		{"safeguard without safeguarded background", func(c *ModelConfig) {
			c.Safeguard = true
			c.Datasets = append(c.Datasets, DatasetConfig{Name: "cal", Type: DatasetCalibration, FilePath: "c.csv", XColumn: "x", YColumn: "y"})
		}, errors.CodeConfigInvalid},
		{"inverted limits", func(c *ModelConfig) {
			c.Models[0].ShapeParameters = []ShapeParameterConfig{{Name: "s", StepSize: 1, LowerLimit: &lo, UpperLimit: &hi}}
		}, errors.CodeValidationError},
		{"events and scale", func(c *ModelConfig) {
			n, f := 10.0, 2.0
			c.Models[1].ExpEvents, c.Models[1].ScaleFactor = &n, &f
		}, errors.CodeConfigInvalid},
		{"empty poi range", func(c *ModelConfig) { c.POIMin, c.POIMax = 5, 1 }, errors.CodeConfigInvalid},
	}

	require.NoError(t, validModel().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validModel()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}
