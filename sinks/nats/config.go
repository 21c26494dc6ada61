package natsx

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultPublishTimeout = 5 * time.Second

// ErrDisabled indicates NATS_URL is unset and events are not published.
var ErrDisabled = errors.New("nats publisher disabled")

// Config captures the runtime parameters for the JetStream publisher.
type Config struct {
	URL            string        `env:"NATS_URL"`
	Stream         string        `env:"NATS_STREAM"`
	SubjectRoot    string        `env:"NATS_SUBJECT_ROOT"`
	PublishTimeout time.Duration `env:"NATS_PUBLISH_TIMEOUT"`
	// CreateStream adds the stream bound to "<SubjectRoot>.>" when missing.
	CreateStream bool `env:"NATS_CREATE_STREAM"`
}

// DefaultConfig initialises Config with defaults for optional fields.
func DefaultConfig() Config {
	return Config{
		Stream:         "CURVE",
		SubjectRoot:    "curve",
		PublishTimeout: defaultPublishTimeout,
	}
}

// Validate ensures required fields are populated and durations are sane.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("NATS URL is required")
	}
	if c.Stream == "" {
		return fmt.Errorf("NATS stream is required")
	}
	if c.SubjectRoot == "" {
		return fmt.Errorf("subject root cannot be empty")
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("publish timeout must be positive")
	}
	return nil
}

// FromEnv overlays NATS_* variables on DefaultConfig. It returns ErrDisabled
// when NATS_URL is unset.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse nats env: %w", err)
	}
	if cfg.URL == "" {
		return cfg, ErrDisabled
	}
	return cfg, cfg.Validate()
}
