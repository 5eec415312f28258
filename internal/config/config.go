package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/thibautjombart/epichange/domain/detect"
	"github.com/thibautjombart/epichange/domain/model"
	"github.com/thibautjombart/epichange/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Detection DetectionConfig
	Database  DatabaseConfig
	Server    ServerConfig
	Input     InputConfig
}

// DetectionConfig holds the recognized tuning knobs of the engine.
type DetectionConfig struct {
	MaxK   int
	Alpha  float64
	Method string
	Models []string // candidate names; empty means the default registry
}

// DatabaseConfig holds result-store settings. The store is optional: an
// empty URL disables persistence.
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
}

// InputConfig holds dataset provider settings
type InputConfig struct {
	File        string
	Sheet       string
	DateColumn  string
	CountColumn string
	GroupColumn string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Detection: DetectionConfig{
			MaxK:   getEnvIntOrDefault("EPICHANGE_MAX_K", 7),
			Alpha:  getEnvFloatOrDefault("EPICHANGE_ALPHA", 0.05),
			Method: getEnvOrDefault("EPICHANGE_METHOD", string(model.MethodJackknifeRMSE)),
			Models: splitList(os.Getenv("EPICHANGE_MODELS")),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("SERVER_PORT", "8080"),
		},
		Input: InputConfig{
			File:        os.Getenv("INPUT_FILE"),
			Sheet:       getEnvOrDefault("INPUT_SHEET", "Sheet1"),
			DateColumn:  getEnvOrDefault("INPUT_DATE_COLUMN", "date"),
			CountColumn: getEnvOrDefault("INPUT_COUNT_COLUMN", "count"),
			GroupColumn: os.Getenv("INPUT_GROUP_COLUMN"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// DetectOptions converts the configuration into engine options.
func (c *Config) DetectOptions() (detect.Options, error) {
	method, err := model.ParseMethod(c.Detection.Method)
	if err != nil {
		return detect.Options{}, err
	}
	opts := detect.Options{
		MaxK:   c.Detection.MaxK,
		Alpha:  c.Detection.Alpha,
		Method: method,
	}
	if len(c.Detection.Models) > 0 {
		models, err := model.RegistryByName(c.Detection.Models)
		if err != nil {
			return detect.Options{}, err
		}
		opts.Models = models
	}
	return opts, nil
}

func validate(cfg *Config) error {
	if cfg.Detection.MaxK < 1 {
		return errors.ConfigInvalid("EPICHANGE_MAX_K must be a positive integer")
	}
	if cfg.Detection.Alpha <= 0 || cfg.Detection.Alpha >= 1 {
		return errors.ConfigInvalid("EPICHANGE_ALPHA must be in (0,1)")
	}
	if _, err := model.ParseMethod(cfg.Detection.Method); err != nil {
		return errors.ConfigInvalid("EPICHANGE_METHOD must be jackknife_rmse or aic")
	}
	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloatOrDefault(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
