package candles

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const pollerConcurrency = 4

// Poller regenerates candles for a fixed set of mints on a ticker so that
// tracked markets keep closing buckets without inbound requests.
type Poller struct {
	gen      *Generator
	mints    []string
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller builds a Poller; it does nothing when mints is empty.
func NewPoller(gen *Generator, mints []string, interval time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{gen: gen, mints: mints, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.mints) == 0 {
		return nil
	}
	p.logger.Info("candle poller started",
		zap.Strings("mints", p.mints),
		zap.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.PollOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce runs one generation pass over every tracked mint.
func (p *Poller) PollOnce(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollerConcurrency)
	for _, mint := range p.mints {
		mint := mint
		g.Go(func() error {
			if _, err := p.gen.Generate(gctx, mint); err != nil && ctx.Err() == nil {
				p.logger.Warn("candle poll failed", zap.String("mint", mint), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
