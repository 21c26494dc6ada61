package parquet

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

// Service archives candle events from JetStream into Parquet objects.
type Service struct {
	cfg       ServiceConfig
	conn      *nats.Conn
	sub       *nats.Subscription
	writer    *Writer
	pending   natsx.PendingAcks
	logger    *zap.Logger
	flushTick *time.Ticker
}

// NewService builds the writer and binds a durable pull consumer on the
// candle subjects.
func NewService(_ context.Context, cfg ServiceConfig, logger *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	writer, err := NewWriter(cfg.Writer, WithLogger(logger))
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

	subject := cfg.SubjectRoot + ".candle.>"
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
		writer:    writer,
		logger:    logger,
		flushTick: time.NewTicker(cfg.Writer.FlushInterval),
	}, nil
}

// Run archives candles until ctx is cancelled. Messages are acked only after
// the upload that contains them.
func (s *Service) Run(ctx context.Context) error {
	defer s.flushTick.Stop()
	defer s.conn.Drain()
	defer func() {
		if err := s.writer.Close(); err != nil {
			s.logger.Error("final parquet flush failed", zap.Error(err))
			s.pending.NakAll()
			return
		}
		s.settle()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.flushTick.C:
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
		if s.pending.Len()+s.cfg.PullBatch > s.cfg.MaxAckPending {
			if err := s.flush(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Service) consume(ctx context.Context, msgs []*nats.Msg) error {
	for _, msg := range msgs {
		evt, ok, err := decodeCandle(msg.Subject, msg.Data)
		if err != nil {
			s.logger.Warn("dropping malformed candle", zap.String("subject", msg.Subject), zap.Error(err))
			_ = msg.Term()
			continue
		}
		if ok {
			if err := s.writer.AppendCandle(ctx, evt); err != nil {
				_ = msg.Nak()
				s.pending.NakAll()
				return err
			}
		}
		s.pending.Add(msg)
	}
	return nil
}

func (s *Service) flush(ctx context.Context) error {
	if err := s.writer.Flush(ctx); err != nil {
		s.pending.NakAll()
		return err
	}
	s.settle()
	return nil
}

func (s *Service) settle() {
	if err := s.pending.AckAll(); err != nil {
		s.logger.Warn("ack after upload failed", zap.Error(err))
	}
}

// decodeCandle reports ok=false for subjects that do not carry candles.
func decodeCandle(subject string, data []byte) (events.CandleEvent, bool, error) {
	if !events.IsCandleSubject(subject) {
		return events.CandleEvent{}, false, nil
	}
	var evt events.CandleEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return events.CandleEvent{}, false, fmt.Errorf("unmarshal candle: %w", err)
	}
	if evt.Mint == "" {
		return events.CandleEvent{}, false, errors.New("candle without mint")
	}
	return evt, true, nil
}
