package config

import (
	"os"
	"strconv"
	"strings"

	"xelimit/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig `validate:"required"`
	Paths    PathConfig   `validate:"required"`
	Limits   LimitConfig  `validate:"required"`
	Toys     ToyConfig
}

// DatabaseConfig holds database connection settings. An empty URL disables
// persistence.
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// Enabled reports whether results go to postgres.
func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

// DSN is the connection string with SSLMode applied unless the URL sets one.
func (d DatabaseConfig) DSN() string {
	if d.URL == "" || d.SSLMode == "" || strings.Contains(d.URL, "sslmode=") {
		return d.URL
	}
	sep := "?"
	if strings.Contains(d.URL, "?") {
		sep = "&"
	}
	return d.URL + sep + "sslmode=" + d.SSLMode
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `validate:"required"`
	GinMode string
}

// PathConfig holds file system paths
type PathConfig struct {
	OutputDir string `validate:"required"`
}

// LimitConfig holds the defaults of the asymptotic engine.
type LimitConfig struct {
	// ConfidenceLevel is the test size: 0.1 gives 90% limits.
	ConfidenceLevel float64 `validate:"gt=0,lt=1"`
	ScanPoints      int     `validate:"gt=0"`
	UseQTilde       bool
	// Parallel is the number of mass points fitted at once.
	Parallel int `validate:"gt=0"`
}

// ToyConfig holds toy generation defaults.
type ToyConfig struct {
	Seed      uint64
	BatchSize int `validate:"gt=0"`
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: *loadDatabaseConfig(),
		Server:   *loadServerConfig(),
		Paths:    *loadPathConfig(),
		Limits:   *loadLimitConfig(),
		Toys:     *loadToyConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URL:     os.Getenv("DATABASE_URL"),
		SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadPathConfig() *PathConfig {
	return &PathConfig{
		OutputDir: getEnvOrDefault("XELIMIT_OUTPUT_DIR", "./results"),
	}
}

func loadLimitConfig() *LimitConfig {
	return &LimitConfig{
		ConfidenceLevel: getEnvFloatOrDefault("XELIMIT_CONFIDENCE_LEVEL", 0.1),
		ScanPoints:      getEnvIntOrDefault("XELIMIT_SCAN_POINTS", 100),
		UseQTilde:       getEnvBoolOrDefault("XELIMIT_QTILDE", true),
		Parallel:        getEnvIntOrDefault("XELIMIT_PARALLEL", 1),
	}
}

func loadToyConfig() *ToyConfig {
	return &ToyConfig{
		Seed:      uint64(getEnvIntOrDefault("XELIMIT_SEED", 1)),
		BatchSize: getEnvIntOrDefault("XELIMIT_TOY_BATCH", 100),
	}
}

func validateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		return errors.ValidationError("environment", err)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
