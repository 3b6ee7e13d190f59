// Package config provides hierarchical configuration loading for craftd.
// Precedence: defaults < YAML file < environment variables.
package config

// Config holds all runtime configuration for the craftd engine.
type Config struct {
	Logging   Logging   `yaml:"logging"`
	Rate      Rate      `yaml:"rate"`
	History   History   `yaml:"history"`
	Files     Files     `yaml:"files"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Rate holds the per-event-type bus budgets, counted over a sliding minute.
type Rate struct {
	PerMinute     int `yaml:"per_minute"`      // budget for every event type
	TickPerMinute int `yaml:"tick_per_minute"` // budget for scheduler ticks
}

// History holds event log retention configuration.
type History struct {
	MaxEntries int `yaml:"max_entries"`
}

// Files holds engine file locations. Relative paths are resolved against
// the workspace root.
type Files struct {
	Rules   string `yaml:"rules"`
	History string `yaml:"history"`
}

// Telemetry holds OTLP exporter configuration. An empty endpoint disables
// export entirely.
type Telemetry struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Defaults returns a Config with the stock engine tuning.
func Defaults() Config {
	return Config{
		Logging: Logging{
			Level:   "info",
			Service: "craftd",
		},
		Rate: Rate{
			PerMinute:     10,
			TickPerMinute: 60,
		},
		History: History{
			MaxEntries: 1000,
		},
		Files: Files{
			Rules:   ".craft/automations.json",
			History: ".craft/automation-history.jsonl",
		},
		Telemetry: Telemetry{
			Insecure: true,
		},
	}
}
