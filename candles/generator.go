// Package candles builds OHLC candles per token mint by repeatedly sampling
// the pool price and bucketing samples into fixed intervals.
package candles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/rexbrahh/curve-gateway/observability"
)

// Candle is one OHLC bucket. Time is the bucket start in unix seconds.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Series is the per-mint candle history plus the start of the next bucket.
type Series struct {
	History              []Candle `json:"history"`
	LastFetchedTimestamp int64    `json:"lastFetchedTimestamp"`
}

func (s Series) clone() Series {
	out := Series{LastFetchedTimestamp: s.LastFetchedTimestamp}
	if s.History != nil {
		out.History = append(make([]Candle, 0, len(s.History)), s.History...)
	}
	return out
}

// PriceSource returns the current pool price for a mint.
type PriceSource interface {
	Price(ctx context.Context, mint string) (float64, error)
}

// Emitter receives candles as they close.
type Emitter interface {
	EmitCandles(ctx context.Context, mint string, interval time.Duration, candles []Candle) error
}

// Option customises a Generator.
type Option func(*Generator)

// WithStore replaces the default in-memory store.
func WithStore(store Store) Option {
	return func(g *Generator) {
		if store != nil {
			g.store = store
		}
	}
}

// WithEmitter publishes newly closed candles.
func WithEmitter(emitter Emitter) Option {
	return func(g *Generator) {
		g.emitter = emitter
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithMetricsRegisterer registers generator metrics on reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(g *Generator) {
		g.metrics = newGeneratorMetrics(reg)
	}
}

// Generator owns candle construction for every mint it is asked about.
type Generator struct {
	cfg     Config
	source  PriceSource
	store   Store
	emitter Emitter
	logger  *zap.Logger
	now     func() time.Time
	metrics *generatorMetrics

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewGenerator validates cfg and builds a Generator sampling from source.
func NewGenerator(cfg Config, source PriceSource, opts ...Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, errors.New("price source is required")
	}

	g := &Generator{
		cfg:    cfg,
		source: source,
		store:  NewMemoryStore(),
		logger: zap.NewNop(),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.metrics == nil {
		g.metrics = newGeneratorMetrics(nil)
	}
	return g, nil
}

func (g *Generator) lock(mint string) func() {
	g.locksMu.Lock()
	mu, ok := g.locks[mint]
	if !ok {
		mu = &sync.Mutex{}
		g.locks[mint] = mu
	}
	g.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Generate closes every complete interval since the mint's cursor and returns
// the full history. A mint seen for the first time starts Lookback in the past.
func (g *Generator) Generate(ctx context.Context, mint string) ([]Candle, error) {
	if mint == "" {
		return nil, errors.New("mint is required")
	}
	unlock := g.lock(mint)
	defer unlock()

	now := g.now().Unix()
	interval := int64(g.cfg.Interval / time.Second)

	series, ok, err := g.store.Load(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("load candles for %s: %w", mint, err)
	}
	if !ok {
		series = Series{LastFetchedTimestamp: now - int64(g.cfg.Lookback/time.Second)}
	}

	if g.cfg.MaxCatchUp > 0 {
		pending := (now - series.LastFetchedTimestamp) / interval
		if pending > int64(g.cfg.MaxCatchUp) {
			skipped := pending - int64(g.cfg.MaxCatchUp)
			series.LastFetchedTimestamp += skipped * interval
			g.logger.Info("skipping stale candle intervals",
				zap.String("mint", mint),
				zap.Int64("skipped", skipped),
			)
		}
	}

	var (
		created []Candle
		runErr  error
	)
	for series.LastFetchedTimestamp+interval <= now {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		start := series.LastFetchedTimestamp
		prices := g.sample(ctx, mint)
		// A cancelled interval is partial; leave the cursor so it is resampled.
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if candle, ok := Aggregate(start, prices); ok {
			series.History = append(series.History, candle)
			created = append(created, candle)
		} else {
			g.logger.Warn("no price samples for interval",
				zap.String("mint", mint),
				zap.Int64("start", start),
			)
		}
		series.LastFetchedTimestamp += interval
	}

	if limit := g.cfg.MaxHistory; limit > 0 && len(series.History) > limit {
		series.History = append([]Candle(nil), series.History[len(series.History)-limit:]...)
	}

	if err := g.store.Save(ctx, mint, series); err != nil {
		return nil, fmt.Errorf("save candles for %s: %w", mint, err)
	}

	if len(created) > 0 {
		g.metrics.emitted.Add(float64(len(created)))
		if g.emitter != nil {
			if err := g.emitter.EmitCandles(ctx, mint, g.cfg.Interval, created); err != nil {
				g.logger.Warn("emit candles failed", zap.String("mint", mint), zap.Error(err))
			}
		}
	}

	if runErr != nil {
		return nil, runErr
	}
	if series.History == nil {
		return []Candle{}, nil
	}
	return series.History, nil
}

// sample collects up to SamplesPerInterval prices, stopping at the first error
// or when ctx is done.
func (g *Generator) sample(ctx context.Context, mint string) []float64 {
	n := g.cfg.SamplesPerInterval()
	prices := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return prices
		}
		price, err := g.source.Price(ctx, mint)
		if err != nil {
			g.metrics.sampleErrors.Inc()
			g.logger.Warn("price sample failed", zap.String("mint", mint), zap.Error(err))
			break
		}
		g.metrics.samples.Inc()
		prices = append(prices, price)

		if g.cfg.SampleDelay > 0 && i < n-1 {
			select {
			case <-ctx.Done():
				return prices
			case <-time.After(g.cfg.SampleDelay):
			}
		}
	}
	return prices
}

// Aggregate folds samples into a candle starting at start. It reports false
// when there are no samples.
func Aggregate(start int64, prices []float64) (Candle, bool) {
	if len(prices) == 0 {
		return Candle{}, false
	}
	c := Candle{
		Time:  start,
		Open:  prices[0],
		High:  prices[0],
		Low:   prices[0],
		Close: prices[len(prices)-1],
	}
	for _, p := range prices[1:] {
		if p > c.High {
			c.High = p
		}
		if p < c.Low {
			c.Low = p
		}
	}
	return c, true
}

type generatorMetrics struct {
	samples      prometheus.Counter
	sampleErrors prometheus.Counter
	emitted      prometheus.Counter
}

func newGeneratorMetrics(reg prometheus.Registerer) *generatorMetrics {
	factory := promauto.With(observability.Registerer(reg))
	return &generatorMetrics{
		samples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "candles",
			Name:      observability.MetricCandleSamplesTotal,
			Help:      "Successful pool price samples.",
		}),
		sampleErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "candles",
			Name:      observability.MetricCandleSampleErrors,
			Help:      "Failed pool price samples.",
		}),
		emitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "candles",
			Name:      observability.MetricCandlesEmittedTotal,
			Help:      "Candles closed across all mints.",
		}),
	}
}
