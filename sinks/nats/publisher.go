package natsx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/rexbrahh/curve-gateway/candles"
	"github.com/rexbrahh/curve-gateway/events"
	"github.com/rexbrahh/curve-gateway/observability"
)

// Option customises Publisher behaviour.
type Option func(*Publisher)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetricsRegisterer registers publisher metrics on reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(p *Publisher) {
		p.metrics = newPublisherMetrics(reg)
	}
}

// Publisher emits JSON events to JetStream with per-event dedupe ids.
type Publisher struct {
	cfg     Config
	conn    *nats.Conn
	js      nats.JetStreamContext
	logger  *zap.Logger
	metrics *publisherMetrics
}

// NewPublisher validates configuration and connects to JetStream.
func NewPublisher(cfg Config, opts ...Option) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Publisher{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.metrics == nil {
		p.metrics = newPublisherMetrics(nil)
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("curve-gateway"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				p.logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	p.conn = conn
	p.js = js

	if cfg.CreateStream {
		if err := p.ensureStream(); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return p, nil
}

func (p *Publisher) ensureStream() error {
	_, err := p.js.StreamInfo(p.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", p.cfg.Stream, err)
	}
	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:       p.cfg.Stream,
		Subjects:   []string{p.cfg.SubjectRoot + ".>"},
		Storage:    nats.FileStorage,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", p.cfg.Stream, err)
	}
	p.logger.Info("created jetstream stream", zap.String("stream", p.cfg.Stream))
	return nil
}

// PublishTx publishes a transaction event to <root>.tx.<kind>.
func (p *Publisher) PublishTx(ctx context.Context, evt events.TxEvent) error {
	return p.publish(ctx, events.TxSubject(p.cfg.SubjectRoot, evt.Kind), evt.Signature, evt)
}

// PublishCandle publishes a candle event to <root>.candle.<mint>.
func (p *Publisher) PublishCandle(ctx context.Context, evt events.CandleEvent) error {
	return p.publish(ctx, events.CandleSubject(p.cfg.SubjectRoot, evt.Mint), events.CandleMsgID(evt.Mint, evt.Time), evt)
}

// EmitCandles satisfies candles.Emitter. It stops at the first failure.
func (p *Publisher) EmitCandles(ctx context.Context, mint string, interval time.Duration, cs []candles.Candle) error {
	for _, c := range cs {
		evt := events.CandleEvent{
			Mint:            mint,
			IntervalSeconds: int64(interval / time.Second),
			Time:            c.Time,
			Open:            c.Open,
			High:            c.High,
			Low:             c.Low,
			Close:           c.Close,
		}
		if err := p.PublishCandle(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, subject, msgID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	if msgID != "" {
		msg.Header.Set(nats.MsgIdHdr, msgID)
	}

	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()

	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		p.metrics.errors.WithLabelValues(subject).Inc()
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.metrics.acks.WithLabelValues(subject).Inc()
	return nil
}

// WithTimeout returns a context with the publisher's timeout applied.
func (p *Publisher) WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := p.cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return context.WithTimeout(parent, timeout)
}

// Close drains the underlying connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

type publisherMetrics struct {
	acks   *prometheus.CounterVec
	errors *prometheus.CounterVec
}

func newPublisherMetrics(reg prometheus.Registerer) *publisherMetrics {
	factory := promauto.With(observability.Registerer(reg))
	return &publisherMetrics{
		acks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "nats",
			Name:      observability.MetricPublisherAcksTotal,
			Help:      "JetStream publish acknowledgements by subject.",
		}, []string{"subject"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "nats",
			Name:      observability.MetricPublisherErrors,
			Help:      "JetStream publish failures by subject.",
		}, []string{"subject"}),
	}
}
