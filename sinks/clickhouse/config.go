package clickhouse

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServiceConfig drives the JetStream to ClickHouse sink service.
type ServiceConfig struct {
	NATSURL     string        `env:"CH_SINK_NATS_URL"`
	Stream      string        `env:"CH_SINK_NATS_STREAM"`
	SubjectRoot string        `env:"CH_SINK_SUBJECT_ROOT"`
	Consumer    string        `env:"CH_SINK_CONSUMER"`
	PullBatch   int           `env:"CH_SINK_PULL_BATCH"`
	PullTimeout time.Duration `env:"CH_SINK_PULL_TIMEOUT"`
	// AckWait must outlive a flush interval: messages are acked only once
	// the batch holding them reaches ClickHouse.
	AckWait       time.Duration `env:"CH_SINK_ACK_WAIT"`
	MaxAckPending int           `env:"CH_SINK_MAX_ACK_PENDING"`
	Writer        Config
}

// DefaultServiceConfig returns the sink defaults; NATS URL and DSN stay empty.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Stream:        "CURVE",
		SubjectRoot:   "curve",
		Consumer:      "clickhouse-sink",
		PullBatch:     256,
		PullTimeout:   500 * time.Millisecond,
		AckWait:       30 * time.Second,
		MaxAckPending: 4096,
		Writer: Config{
			Database:         "default",
			TradesTable:      "curve_trades",
			CandlesTable:     "curve_candles",
			BatchSize:        512,
			FlushInterval:    1 * time.Second,
			MaxRetries:       3,
			RetryBackoffBase: 200 * time.Millisecond,
			RetryBackoffMax:  5 * time.Second,
		},
	}
}

// Validate ensures required fields are populated.
func (c ServiceConfig) Validate() error {
	if c.NATSURL == "" {
		return fmt.Errorf("nats url is required")
	}
	if c.Stream == "" {
		return fmt.Errorf("nats stream is required")
	}
	if c.SubjectRoot == "" {
		return fmt.Errorf("subject root is required")
	}
	if c.Consumer == "" {
		return fmt.Errorf("consumer name is required")
	}
	if c.PullBatch <= 0 {
		return fmt.Errorf("pull batch must be positive")
	}
	if c.PullTimeout <= 0 {
		return fmt.Errorf("pull timeout must be positive")
	}
	if c.Writer.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive")
	}
	if c.AckWait <= c.Writer.FlushInterval {
		return fmt.Errorf("ack wait %s must exceed flush interval %s", c.AckWait, c.Writer.FlushInterval)
	}
	if c.MaxAckPending <= c.PullBatch {
		return fmt.Errorf("max ack pending must exceed pull batch")
	}
	return validateConfig(c.Writer)
}

// ServiceConfigFromEnv overlays CH_SINK_* variables on DefaultServiceConfig.
func ServiceConfigFromEnv() (ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	if err := env.Parse(&cfg); err != nil {
		return ServiceConfig{}, fmt.Errorf("parse clickhouse sink env: %w", err)
	}
	return cfg, cfg.Validate()
}
