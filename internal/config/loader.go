package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "craftd.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Logging.Level, "CRAFTD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CRAFTD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CRAFTD_LOG_ASYNC")
	setInt(&cfg.Rate.PerMinute, "CRAFTD_RATE_PER_MINUTE")
	setInt(&cfg.Rate.TickPerMinute, "CRAFTD_RATE_TICK_PER_MINUTE")
	setInt(&cfg.History.MaxEntries, "CRAFTD_HISTORY_MAX_ENTRIES")
	setString(&cfg.Files.Rules, "CRAFTD_RULES_FILE")
	setString(&cfg.Files.History, "CRAFTD_HISTORY_FILE")
	setString(&cfg.Telemetry.Endpoint, "CRAFTD_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "CRAFTD_OTLP_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Rate.PerMinute < 1 {
		return errors.New("rate.per_minute must be >= 1")
	}
	if cfg.Rate.TickPerMinute < 1 {
		return errors.New("rate.tick_per_minute must be >= 1")
	}
	if cfg.History.MaxEntries < 1 {
		return errors.New("history.max_entries must be >= 1")
	}
	if cfg.Files.Rules == "" {
		return errors.New("files.rules is required")
	}
	if cfg.Files.History == "" {
		return errors.New("files.history is required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
