package candles

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultInterval     = 30 * time.Second
	defaultSampleStep   = 3 * time.Second
	defaultLookback     = 60 * time.Second
	defaultMaxCatchUp   = 120
	defaultMaxHistory   = 2880
	defaultPollInterval = 30 * time.Second
)

// Config controls bucket width, sampling density and retention.
type Config struct {
	Interval   time.Duration `env:"CANDLE_INTERVAL"`
	SampleStep time.Duration `env:"CANDLE_SAMPLE_STEP"`
	// Lookback positions the cursor of a newly seen mint.
	Lookback    time.Duration `env:"CANDLE_LOOKBACK"`
	SampleDelay time.Duration `env:"CANDLE_SAMPLE_DELAY"`
	// MaxCatchUp bounds the intervals sampled per call; 0 disables the cap.
	MaxCatchUp int `env:"CANDLE_MAX_CATCHUP"`
	// MaxHistory bounds retained candles per mint; 0 disables the cap.
	MaxHistory int `env:"CANDLE_MAX_HISTORY"`

	TrackMints   []string      `env:"CANDLE_TRACK_MINTS" envSeparator:","`
	TrackFile    string        `env:"CANDLE_TRACK_FILE"`
	PollInterval time.Duration `env:"CANDLE_POLL_INTERVAL"`
}

// DefaultConfig returns 30s candles built from samples 3s apart.
func DefaultConfig() Config {
	return Config{
		Interval:     defaultInterval,
		SampleStep:   defaultSampleStep,
		Lookback:     defaultLookback,
		MaxCatchUp:   defaultMaxCatchUp,
		MaxHistory:   defaultMaxHistory,
		PollInterval: defaultPollInterval,
	}
}

// Validate checks durations are whole seconds and positive.
func (c Config) Validate() error {
	if c.Interval < time.Second || c.Interval%time.Second != 0 {
		return fmt.Errorf("candle interval must be a positive whole number of seconds")
	}
	if c.SampleStep <= 0 {
		return fmt.Errorf("sample step must be positive")
	}
	if c.Lookback < 0 {
		return fmt.Errorf("lookback cannot be negative")
	}
	if c.SampleDelay < 0 {
		return fmt.Errorf("sample delay cannot be negative")
	}
	if c.MaxCatchUp < 0 || c.MaxHistory < 0 {
		return fmt.Errorf("candle caps cannot be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

// SamplesPerInterval is the number of price samples taken for one candle.
func (c Config) SamplesPerInterval() int {
	n := int(c.Interval / c.SampleStep)
	if c.Interval%c.SampleStep != 0 {
		n++
	}
	return n
}

// FromEnv overlays environment variables on DefaultConfig.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse candle config: %w", err)
	}
	return cfg, cfg.Validate()
}

type trackFile struct {
	Mints []string `yaml:"mints"`
}

// LoadTrackFile reads a YAML document of the form `mints: [...]`.
func LoadTrackFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track file: %w", err)
	}
	var doc trackFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse track file: %w", err)
	}
	return doc.Mints, nil
}

// TrackedMints merges CANDLE_TRACK_MINTS with the track file, dropping
// blanks and duplicates while keeping first-seen order.
func (c Config) TrackedMints() ([]string, error) {
	all := append([]string{}, c.TrackMints...)
	if c.TrackFile != "" {
		fromFile, err := LoadTrackFile(c.TrackFile)
		if err != nil {
			return nil, err
		}
		all = append(all, fromFile...)
	}

	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, mint := range all {
		mint = strings.TrimSpace(mint)
		if mint == "" {
			continue
		}
		if _, ok := seen[mint]; ok {
			continue
		}
		seen[mint] = struct{}{}
		out = append(out, mint)
	}
	return out, nil
}
