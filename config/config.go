// Package config loads runtime configuration from the environment. All
// variables share the RUNLOOP_ prefix; unset variables fall back to the
// documented defaults.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the tunable runtime settings.
type Config struct {
	// BufferSize is the per-subscriber event queue depth.
	BufferSize int `env:"BUFFER_SIZE" envDefault:"1024"`
	// PublishTimeout bounds a blocked event publish before the event is dropped.
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`
	// GuardrailTimeout bounds the pre-flight guardrails check.
	GuardrailTimeout time.Duration `env:"GUARDRAIL_TIMEOUT" envDefault:"10s"`
	// ActionTimeout bounds a single local action execution.
	ActionTimeout time.Duration `env:"ACTION_TIMEOUT" envDefault:"30s"`
	// MaxModelCalls bounds provider round-trips per run. 0 means unlimited.
	MaxModelCalls int `env:"MAX_MODEL_CALLS" envDefault:"10"`
	// StateBackend selects agent state persistence: "memory" or "sqlite".
	StateBackend string `env:"STATE_BACKEND" envDefault:"memory"`
	// StatePath is the database path when StateBackend is "sqlite".
	StatePath string `env:"STATE_PATH" envDefault:"runloop.db"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// LogFormat is "text" or "json".
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "RUNLOOP_"}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with every field at its default.
func Default() *Config {
	return &Config{
		BufferSize:       1024,
		PublishTimeout:   5 * time.Second,
		GuardrailTimeout: 10 * time.Second,
		ActionTimeout:    30 * time.Second,
		MaxModelCalls:    10,
		StateBackend:     "memory",
		StatePath:        "runloop.db",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Validate rejects values no component could honor.
func (c *Config) Validate() error {
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive, got %d", c.BufferSize)
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("publish timeout must be positive, got %s", c.PublishTimeout)
	}
	switch c.StateBackend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown state backend %q", c.StateBackend)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
