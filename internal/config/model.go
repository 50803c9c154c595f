package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"xelimit/internal/errors"
)

// Component and dataset roles accepted in model files.
const (
	ComponentSignal     = "SIGNAL"
	ComponentBackground = "BACKGROUND"
	DatasetData         = "DATA"
	DatasetCalibration  = "CALIBRATION"
)

// validate checks struct tags of both the environment and model configs.
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterStructValidation(validateLimits, ShapeParameterConfig{}, RateParameterConfig{})
}

// ModelConfig describes one likelihood: its components, datasets and
// safeguard settings.
type ModelConfig struct {
	Name              string  `json:"name" yaml:"name" validate:"required"`
	Mass              float64 `json:"mass" yaml:"mass" validate:"gte=0"`
	AltX              float64 `json:"alt_x,omitempty" yaml:"alt_x,omitempty"`
	SignalDefaultNorm float64 `json:"signal_default_norm" yaml:"signal_default_norm" validate:"gt=0"`

	Safeguard         bool    `json:"safeguard" yaml:"safeguard"`
	PosDefSafeguard   *bool   `json:"posdef_safeguard,omitempty" yaml:"posdef_safeguard,omitempty"`
	SafeguardFixValue float64 `json:"safeguard_fix_value,omitempty" yaml:"safeguard_fix_value,omitempty" validate:"gte=0"`
	// SafeguardName renames the safeguard parameter; combined models with the
	// same name share it.
	SafeguardName string `json:"safeguard_name,omitempty" yaml:"safeguard_name,omitempty"`

	POIMin float64 `json:"poi_min,omitempty" yaml:"poi_min,omitempty"`
	POIMax float64 `json:"poi_max,omitempty" yaml:"poi_max,omitempty"`

	Models   []ComponentConfig `json:"models" yaml:"models" validate:"required,min=2,dive"`
	Datasets []DatasetConfig   `json:"datasets" yaml:"datasets" validate:"required,min=1,dive"`

	AdditionalSafeguard *AdditionalComponentConfig `json:"additional_safeguard_component,omitempty" yaml:"additional_safeguard_component,omitempty" validate:"omitempty"`
}

// ComponentConfig declares one signal or background component.
type ComponentConfig struct {
	Name          string `json:"name" yaml:"name" validate:"required"`
	Type          string `json:"type" yaml:"type" validate:"required,oneof=SIGNAL BACKGROUND"`
	FilePath      string `json:"file_path" yaml:"file_path" validate:"required"`
	HistogramName string `json:"histogram_name" yaml:"histogram_name" validate:"required"`
	Suffix        string `json:"suffix,omitempty" yaml:"suffix,omitempty"`
	Safeguard     bool   `json:"safeguard" yaml:"safeguard"`

	ExpEvents   *float64 `json:"exp_events,omitempty" yaml:"exp_events,omitempty" validate:"omitempty,gt=0"`
	ScaleFactor *float64 `json:"scale_factor,omitempty" yaml:"scale_factor,omitempty" validate:"omitempty,gt=0"`

	ShapeParameters []ShapeParameterConfig `json:"shape_parameters,omitempty" yaml:"shape_parameters,omitempty" validate:"dive"`
	RateParameters  []RateParameterConfig  `json:"rate_parameters,omitempty" yaml:"rate_parameters,omitempty" validate:"dive"`
}

// ShapeParameterConfig declares a template-grid systematic.
type ShapeParameterConfig struct {
	Name       string   `json:"name" yaml:"name" validate:"required"`
	StepSize   float64  `json:"step_size" yaml:"step_size" validate:"gte=0"`
	LowerLimit *float64 `json:"lower_limit,omitempty" yaml:"lower_limit,omitempty"`
	UpperLimit *float64 `json:"upper_limit,omitempty" yaml:"upper_limit,omitempty"`
	Type       string   `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=NUISANCE FIXED FROZEN FREE"`
}

// RateParameterConfig declares a normalization systematic. DefaultValue is
// the one-sigma relative uncertainty.
type RateParameterConfig struct {
	Name         string   `json:"name" yaml:"name" validate:"required"`
	DefaultValue float64  `json:"default_value" yaml:"default_value"`
	LowerLimit   *float64 `json:"lower_limit,omitempty" yaml:"lower_limit,omitempty"`
	UpperLimit   *float64 `json:"upper_limit,omitempty" yaml:"upper_limit,omitempty"`
	Type         string   `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=NUISANCE FIXED FROZEN FREE"`
	NullCentered bool     `json:"null_centered,omitempty" yaml:"null_centered,omitempty"`
}

// DatasetConfig points at a columnar event file.
type DatasetConfig struct {
	Name         string `json:"name" yaml:"name" validate:"required"`
	Type         string `json:"type" yaml:"type" validate:"required,oneof=DATA CALIBRATION"`
	FilePath     string `json:"file_path" yaml:"file_path" validate:"required"`
	Sheet        string `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	XColumn      string `json:"x_column" yaml:"x_column" validate:"required"`
	YColumn      string `json:"y_column" yaml:"y_column" validate:"required"`
	WeightColumn string `json:"weight_column,omitempty" yaml:"weight_column,omitempty"`
}

// AdditionalComponentConfig is a fixed density added to the safeguard
// calibration model: a base template plus weighted extras, times Scale.
type AdditionalComponentConfig struct {
	FilePath        string                 `json:"histogram_file" yaml:"histogram_file" validate:"required"`
	HistogramName   string                 `json:"histogram_name" yaml:"histogram_name" validate:"required"`
	Scale           float64                `json:"scale" yaml:"scale" validate:"gt=0"`
	ExtraHistograms []ExtraHistogramConfig `json:"extra_histograms,omitempty" yaml:"extra_histograms,omitempty" validate:"dive"`
}

type ExtraHistogramConfig struct {
	FilePath      string  `json:"histogram_file" yaml:"histogram_file" validate:"required"`
	HistogramName string  `json:"histogram_name" yaml:"histogram_name" validate:"required"`
	Multiplier    float64 `json:"multiplier" yaml:"multiplier"`
}

func validateLimits(sl validator.StructLevel) {
	var lo, hi *float64
	switch p := sl.Current().Interface().(type) {
	case ShapeParameterConfig:
		lo, hi = p.LowerLimit, p.UpperLimit
	case RateParameterConfig:
		lo, hi = p.LowerLimit, p.UpperLimit
	}
	if lo != nil && hi != nil && *lo > *hi {
		sl.ReportError(*lo, "LowerLimit", "lower_limit", "ltefield", "UpperLimit")
	}
}

// LoadModel reads a model file, JSON or YAML by extension, and validates it.
func LoadModel(path string) (*ModelConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read model file %s", path)
	}
	var cfg ModelConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &cfg)
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("failed to parse model file %s: %w", path, err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "model file %s", path)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return &cfg, nil
}

// Validate checks field constraints and the component/dataset roles.
func (c *ModelConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.ValidationError(fmt.Sprintf("model %q", c.Name), err)
	}

	var signals, backgrounds, safeguarded int
	names := make(map[string]bool)
	for _, m := range c.Models {
		if names[m.Name] {
			return errors.ConfigInvalid(fmt.Sprintf("component %q declared twice", m.Name))
		}
		names[m.Name] = true
		switch m.Type {
		case ComponentSignal:
			signals++
		case ComponentBackground:
			backgrounds++
			if m.Safeguard {
				safeguarded++
			}
		}
		if m.ExpEvents != nil && m.ScaleFactor != nil {
			return errors.ConfigInvalid(fmt.Sprintf("component %q sets both exp_events and scale_factor", m.Name))
		}
	}
	if signals != 1 {
		return errors.ConfigInvalid(fmt.Sprintf("model %q needs exactly one SIGNAL component, found %d", c.Name, signals))
	}
	if backgrounds == 0 {
		return errors.ConfigInvalid(fmt.Sprintf("model %q has no BACKGROUND component", c.Name))
	}

	var data, calibration int
	for _, d := range c.Datasets {
		switch d.Type {
		case DatasetData:
			data++
		case DatasetCalibration:
			calibration++
		}
	}
	if data != 1 {
		return errors.ConfigInvalid(fmt.Sprintf("model %q needs exactly one DATA dataset, found %d", c.Name, data))
	}
	if calibration > 1 {
		return errors.ConfigInvalid(fmt.Sprintf("model %q has %d CALIBRATION datasets", c.Name, calibration))
	}
	if c.Safeguard {
		if calibration == 0 {
			return errors.ConfigInvalid(fmt.Sprintf("model %q requests the safeguard without a CALIBRATION dataset", c.Name))
		}
		if safeguarded == 0 {
			return errors.ConfigInvalid(fmt.Sprintf("model %q requests the safeguard but no background is safeguarded", c.Name))
		}
	}
	if c.POIMax != 0 || c.POIMin != 0 {
		if !(c.POIMax > c.POIMin) {
			return errors.ConfigInvalid(fmt.Sprintf("model %q: poi range [%g, %g] is empty", c.Name, c.POIMin, c.POIMax))
		}
	}
	return nil
}

// SafeguardPositiveDefinite reports whether ε is kept above zero. Unset
// means yes.
func (c *ModelConfig) SafeguardPositiveDefinite() bool {
	return c.PosDefSafeguard == nil || *c.PosDefSafeguard
}

// Signal returns the signal component.
func (c *ModelConfig) Signal() ComponentConfig {
	for _, m := range c.Models {
		if m.Type == ComponentSignal {
			return m
		}
	}
	return ComponentConfig{}
}

// Backgrounds returns the background components in declaration order.
func (c *ModelConfig) Backgrounds() []ComponentConfig {
	var out []ComponentConfig
	for _, m := range c.Models {
		if m.Type == ComponentBackground {
			out = append(out, m)
		}
	}
	return out
}

// Dataset returns the dataset with the given role.
func (c *ModelConfig) Dataset(role string) (DatasetConfig, bool) {
	for _, d := range c.Datasets {
		if d.Type == role {
			return d, true
		}
	}
	return DatasetConfig{}, false
}

// resolvePaths makes relative file paths relative to the model file.
func (c *ModelConfig) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i := range c.Models {
		c.Models[i].FilePath = abs(c.Models[i].FilePath)
	}
	for i := range c.Datasets {
		c.Datasets[i].FilePath = abs(c.Datasets[i].FilePath)
	}
	if a := c.AdditionalSafeguard; a != nil {
		a.FilePath = abs(a.FilePath)
		for i := range a.ExtraHistograms {
			a.ExtraHistograms[i].FilePath = abs(a.ExtraHistograms[i].FilePath)
		}
	}
}
