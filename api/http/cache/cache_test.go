package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rexbrahh/curve-gateway/candles"
)

var _ candles.Store = (*Cache)(nil)

func TestLoadConfigFromEnvDisabled(t *testing.T) {
	t.Setenv("API_REDIS_ADDR", "")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.Enabled() {
		t.Fatal("expected cache to be disabled")
	}
	if cfg.TTL != defaultTTL {
		t.Fatalf("unexpected ttl %s", cfg.TTL)
	}

	c, err := New(cfg)
	if !errors.Is(err, ErrDisabled) || c != nil {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("API_REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("API_REDIS_DB", "2")
	t.Setenv("API_REDIS_TTL", "90m")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if !cfg.Enabled() || cfg.DB != 2 || cfg.TTL != 90*time.Minute {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("API_REDIS_DB", "two")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected error for invalid db")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DB = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative db")
	}
	cfg = DefaultConfig()
	cfg.Prefix = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty prefix")
	}
}

func TestNilCacheIsDisabled(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	if _, _, err := c.Load(ctx, "mint"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Load() error = %v, want ErrDisabled", err)
	}
	if err := c.Save(ctx, "mint", candles.Series{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Save() error = %v, want ErrDisabled", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestKey(t *testing.T) {
	c := &Cache{cfg: DefaultConfig()}
	if got := c.key("So11111111111111111111111111111111111111112"); got != "candles:So11111111111111111111111111111111111111112" {
		t.Fatalf("unexpected key %q", got)
	}
}
