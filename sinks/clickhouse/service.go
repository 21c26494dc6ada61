package clickhouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/rexbrahh/curve-gateway/events"
	natsx "github.com/rexbrahh/curve-gateway/sinks/nats"
)

var errMalformed = errors.New("malformed event")

type eventWriter interface {
	WriteTrades(ctx context.Context, trades []Trade) error
	WriteCandles(ctx context.Context, candles []Candle) error
	Flush(ctx context.Context) error
}

type processor struct {
	writer eventWriter
}

func newProcessor(writer eventWriter) *processor {
	return &processor{writer: writer}
}

func (p *processor) handleTx(ctx context.Context, evt events.TxEvent) error {
	bump := int16(-1)
	if evt.Bump != nil {
		bump = int16(*evt.Bump)
	}
	trade := Trade{
		Timestamp: time.Unix(evt.Timestamp, 0).UTC(),
		Signature: evt.Signature,
		Kind:      string(evt.Kind),
		ProgramID: evt.ProgramID,
		Mint:      evt.Mint,
		User:      evt.User,
		Amount:    evt.Amount,
		Bump:      bump,
		Fees:      evt.Fees,
	}
	return p.writer.WriteTrades(ctx, []Trade{trade})
}

func (p *processor) handleCandle(ctx context.Context, evt events.CandleEvent) error {
	candle := Candle{
		Timestamp:       time.Unix(evt.Time, 0).UTC(),
		Mint:            evt.Mint,
		IntervalSeconds: uint32(evt.IntervalSeconds),
		Open:            evt.Open,
		High:            evt.High,
		Low:             evt.Low,
		Close:           evt.Close,
	}
	return p.writer.WriteCandles(ctx, []Candle{candle})
}

func (p *processor) handle(ctx context.Context, subject string, data []byte) error {
	switch {
	case events.IsTxSubject(subject):
		var evt events.TxEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return fmt.Errorf("%w: tx: %v", errMalformed, err)
		}
		return p.handleTx(ctx, evt)
	case events.IsCandleSubject(subject):
		var evt events.CandleEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return fmt.Errorf("%w: candle: %v", errMalformed, err)
		}
		return p.handleCandle(ctx, evt)
	default:
		return nil
	}
}

// Service drains the event stream into ClickHouse.
type Service struct {
	cfg       ServiceConfig
	conn      *nats.Conn
	sub       *nats.Subscription
	processor *processor
	pending   natsx.PendingAcks
	logger    *zap.Logger
}

// NewService connects to ClickHouse and binds a durable pull consumer.
func NewService(ctx context.Context, cfg ServiceConfig, logger *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	writer, err := NewWithConfig(ctx, cfg.Writer)
	if err != nil {
		return nil, err
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.Consumer))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	subject := cfg.SubjectRoot + ".>"
	sub, err := js.PullSubscribe(subject, cfg.Consumer,
		nats.BindStream(cfg.Stream),
		nats.ManualAck(),
		nats.AckWait(cfg.AckWait),
		nats.MaxAckPending(cfg.MaxAckPending),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("pull subscribe: %w", err)
	}

	return &Service{
		cfg:       cfg,
		conn:      conn,
		sub:       sub,
		processor: newProcessor(writer),
		logger:    logger,
	}, nil
}

// Run fetches and writes until ctx is cancelled, flushing on an interval.
// Messages are acked only after the flush that persists them.
func (s *Service) Run(ctx context.Context) error {
	flushTicker := time.NewTicker(s.cfg.Writer.FlushInterval)
	defer flushTicker.Stop()
	defer s.conn.Drain()
	defer func() {
		if err := s.flush(context.Background()); err != nil {
			s.logger.Error("final flush failed", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-flushTicker.C:
			if err := s.flush(ctx); err != nil {
				return err
			}
		default:
		}

		msgs, err := s.sub.Fetch(s.cfg.PullBatch, nats.MaxWait(s.cfg.PullTimeout))
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		if err != nil {
			return fmt.Errorf("fetch messages: %w", err)
		}

		if err := s.consume(ctx, msgs); err != nil {
			return err
		}
		// Flush early so the consumer never stalls on MaxAckPending.
		if s.pending.Len()+s.cfg.PullBatch > s.cfg.MaxAckPending {
			if err := s.flush(ctx); err != nil {
				return err
			}
		}
	}
}

// consume buffers msgs into the writer and defers their acks. Malformed
// events are terminated; a write failure naks everything unsettled.
func (s *Service) consume(ctx context.Context, msgs []*nats.Msg) error {
	for _, msg := range msgs {
		err := s.processor.handle(ctx, msg.Subject, msg.Data)
		if errors.Is(err, errMalformed) {
			s.logger.Warn("dropping malformed event", zap.String("subject", msg.Subject), zap.Error(err))
			_ = msg.Term()
			continue
		}
		if err != nil {
			_ = msg.Nak()
			s.pending.NakAll()
			return err
		}
		s.pending.Add(msg)
	}
	return nil
}

// flush writes buffered rows and settles the messages behind them.
func (s *Service) flush(ctx context.Context) error {
	if err := s.processor.writer.Flush(ctx); err != nil {
		s.pending.NakAll()
		return err
	}
	if err := s.pending.AckAll(); err != nil {
		s.logger.Warn("ack after flush failed", zap.Error(err))
	}
	return nil
}
