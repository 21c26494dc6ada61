package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/rexbrahh/curve-gateway/candles"
)

// ErrDisabled indicates the cache layer is disabled via configuration.
var ErrDisabled = errors.New("redis cache disabled")

const defaultTTL = 24 * time.Hour

// Config represents Redis client configuration options. The cache is
// enabled only when Addr is set.
type Config struct {
	Addr     string        `env:"API_REDIS_ADDR"`
	Password string        `env:"API_REDIS_PASSWORD"`
	DB       int           `env:"API_REDIS_DB"`
	TTL      time.Duration `env:"API_REDIS_TTL"`
	Prefix   string        `env:"API_REDIS_PREFIX"`
}

// DefaultConfig returns a disabled configuration with default TTL and prefix.
func DefaultConfig() Config {
	return Config{TTL: defaultTTL, Prefix: "candles"}
}

// Enabled reports whether a Redis address is configured.
func (c Config) Enabled() bool {
	return c.Addr != ""
}

// Validate checks option ranges.
func (c Config) Validate() error {
	if c.DB < 0 {
		return fmt.Errorf("redis db must be non-negative")
	}
	if c.TTL < 0 {
		return fmt.Errorf("redis ttl must be non-negative")
	}
	if c.Prefix == "" {
		return fmt.Errorf("redis key prefix is required")
	}
	return nil
}

// LoadConfigFromEnv constructs a Config from API_REDIS_* variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse redis env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Cache stores candle series in Redis as JSON. It satisfies candles.Store.
type Cache struct {
	client *redis.Client
	cfg    Config
}

// New creates a Cache. It returns ErrDisabled when no address is configured.
func New(cfg Config) (*Cache, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Cache{client: client, cfg: cfg}, nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrDisabled
	}
	return c.client.Ping(ctx).Err()
}

func (c *Cache) key(mint string) string {
	return fmt.Sprintf("%s:%s", c.cfg.Prefix, mint)
}

// Load retrieves the cached series for a mint.
func (c *Cache) Load(ctx context.Context, mint string) (candles.Series, bool, error) {
	if c == nil || c.client == nil {
		return candles.Series{}, false, ErrDisabled
	}

	payload, err := c.client.Get(ctx, c.key(mint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return candles.Series{}, false, nil
	}
	if err != nil {
		return candles.Series{}, false, fmt.Errorf("redis get %s: %w", mint, err)
	}

	var series candles.Series
	if err := json.Unmarshal(payload, &series); err != nil {
		return candles.Series{}, false, fmt.Errorf("decode series %s: %w", mint, err)
	}
	return series, true, nil
}

// Save stores the series for a mint with the configured TTL.
func (c *Cache) Save(ctx context.Context, mint string, series candles.Series) error {
	if c == nil || c.client == nil {
		return ErrDisabled
	}

	payload, err := json.Marshal(series)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(mint), payload, c.cfg.TTL).Err()
}

// Close releases the Redis connection pool.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
