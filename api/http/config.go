package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultPort = "3000"

// Config holds HTTP listener settings. API_HTTP_ADDR wins over PORT.
type Config struct {
	Addr              string        `env:"API_HTTP_ADDR"`
	Port              string        `env:"PORT"`
	ReadHeaderTimeout time.Duration `env:"API_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `env:"API_SHUTDOWN_TIMEOUT"`
	CORSOrigins       []string      `env:"API_CORS_ORIGINS" envSeparator:","`
}

// DefaultConfig listens on :3000 and allows every origin.
func DefaultConfig() Config {
	return Config{
		Port:              defaultPort,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		CORSOrigins:       []string{"*"},
	}
}

// ListenAddr resolves the address passed to http.Server.
func (c Config) ListenAddr() string {
	if c.Addr != "" {
		return c.Addr
	}
	return ":" + c.Port
}

// Validate ensures the listener can be configured.
func (c Config) Validate() error {
	if c.Addr == "" && c.Port == "" {
		return fmt.Errorf("listen address or port is required")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin is required")
	}
	return nil
}

// ConfigFromEnv overlays environment variables on DefaultConfig.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse http env: %w", err)
	}
	return cfg, cfg.Validate()
}
