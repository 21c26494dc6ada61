package parquet

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultFlushInterval = 15 * time.Minute
	defaultPrefix        = "curve/candles/"
)

// Config holds parameters for the candle archive writer. Objects land under
// Prefix/mint=<mint>/date=<yyyy-mm-dd>/.
type Config struct {
	Endpoint      string        `env:"S3_ENDPOINT"`
	Bucket        string        `env:"S3_BUCKET"`
	AccessKey     string        `env:"S3_ACCESS_KEY"`
	SecretKey     string        `env:"S3_SECRET_KEY"`
	Prefix        string        `env:"PARQUET_PREFIX"`
	FlushInterval time.Duration `env:"PARQUET_FLUSH_INTERVAL"`
	BatchRows     int           `env:"PARQUET_BATCH_ROWS"`
	Region        string        `env:"PARQUET_REGION"`
}

// DefaultConfig archives a day of 30s candles per object at most.
func DefaultConfig() Config {
	return Config{
		Prefix:        defaultPrefix,
		FlushInterval: defaultFlushInterval,
		BatchRows:     2880,
		Region:        "us-east-1",
	}
}

// Validate ensures mandatory fields are present.
func (c Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return fmt.Errorf("S3 endpoint is required")
	case c.Bucket == "":
		return fmt.Errorf("S3 bucket is required")
	case c.AccessKey == "" || c.SecretKey == "":
		return fmt.Errorf("S3 credentials are required")
	case c.FlushInterval <= 0:
		return fmt.Errorf("flush interval must be positive")
	case c.Prefix == "":
		return fmt.Errorf("object prefix cannot be empty")
	case c.BatchRows <= 0:
		return fmt.Errorf("batch rows must be positive")
	case c.Region == "":
		return fmt.Errorf("region must be set")
	}
	return nil
}

// FromEnv overlays S3_* and PARQUET_* variables on DefaultConfig.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse parquet env: %w", err)
	}
	return cfg, cfg.Validate()
}

// ServiceConfig drives the JetStream candle archiver.
type ServiceConfig struct {
	NATSURL     string        `env:"PARQUET_NATS_URL"`
	Stream      string        `env:"PARQUET_NATS_STREAM"`
	SubjectRoot string        `env:"PARQUET_SUBJECT_ROOT"`
	Consumer    string        `env:"PARQUET_CONSUMER"`
	PullBatch   int           `env:"PARQUET_PULL_BATCH"`
	PullTimeout time.Duration `env:"PARQUET_PULL_TIMEOUT"`
	// AckWait must outlive a flush interval: candles are acked only after
	// the object holding them is uploaded.
	AckWait       time.Duration `env:"PARQUET_ACK_WAIT"`
	MaxAckPending int           `env:"PARQUET_MAX_ACK_PENDING"`
	Writer        Config
}

// DefaultServiceConfig returns archiver defaults; NATS and S3 settings stay empty.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Stream:        "CURVE",
		SubjectRoot:   "curve",
		Consumer:      "parquet-sink",
		PullBatch:     256,
		PullTimeout:   500 * time.Millisecond,
		AckWait:       defaultFlushInterval + 5*time.Minute,
		MaxAckPending: 20000,
		Writer:        DefaultConfig(),
	}
}

// Validate checks the consumer settings and the embedded writer config.
func (c ServiceConfig) Validate() error {
	switch {
	case c.NATSURL == "":
		return fmt.Errorf("nats url is required")
	case c.Stream == "":
		return fmt.Errorf("nats stream is required")
	case c.SubjectRoot == "":
		return fmt.Errorf("subject root is required")
	case c.Consumer == "":
		return fmt.Errorf("consumer name is required")
	case c.PullBatch <= 0:
		return fmt.Errorf("pull batch must be positive")
	case c.PullTimeout <= 0:
		return fmt.Errorf("pull timeout must be positive")
	case c.AckWait <= c.Writer.FlushInterval:
		return fmt.Errorf("ack wait %s must exceed flush interval %s", c.AckWait, c.Writer.FlushInterval)
	case c.MaxAckPending <= c.PullBatch:
		return fmt.Errorf("max ack pending must exceed pull batch")
	}
	return c.Writer.Validate()
}

// ServiceConfigFromEnv overlays PARQUET_* and S3_* variables on
// DefaultServiceConfig.
func ServiceConfigFromEnv() (ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	if err := env.Parse(&cfg); err != nil {
		return ServiceConfig{}, fmt.Errorf("parse parquet sink env: %w", err)
	}
	return cfg, cfg.Validate()
}
