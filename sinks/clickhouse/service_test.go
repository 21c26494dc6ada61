package clickhouse

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/rexbrahh/curve-gateway/events"
	natsx "github.com/rexbrahh/curve-gateway/sinks/nats"
)

type stubWriter struct {
	trades   []Trade
	candles  []Candle
	flush    int
	writeErr error
	flushErr error
}

func (s *stubWriter) WriteTrades(_ context.Context, trades []Trade) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.trades = append(s.trades, trades...)
	return nil
}

func (s *stubWriter) WriteCandles(_ context.Context, candles []Candle) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.candles = append(s.candles, candles...)
	return nil
}

func (s *stubWriter) Flush(_ context.Context) error {
	s.flush++
	return s.flushErr
}

type recordingAcker struct {
	acks int
	naks int
}

func (r *recordingAcker) Ack(...nats.AckOpt) error {
	r.acks++
	return nil
}

func (r *recordingAcker) Nak(...nats.AckOpt) error {
	r.naks++
	return nil
}

func natsPending(msgs ...natsx.Acker) natsx.PendingAcks {
	var pending natsx.PendingAcks
	for _, msg := range msgs {
		pending.Add(msg)
	}
	return pending
}

func candleMsg(t *testing.T) *nats.Msg {
	t.Helper()
	payload, err := json.Marshal(events.CandleEvent{Mint: "mint1", IntervalSeconds: 30, Time: 1700000000, Close: 1})
	if err != nil {
		t.Fatalf("marshal candle: %v", err)
	}
	return &nats.Msg{Subject: "curve.candle.mint1", Data: payload}
}

func TestServiceDefersAcksUntilFlush(t *testing.T) {
	writer := &stubWriter{}
	svc := &Service{processor: newProcessor(writer), logger: zap.NewNop()}

	msgs := []*nats.Msg{candleMsg(t), {Subject: "curve.candle.mint1", Data: []byte("{")}}
	if err := svc.consume(context.Background(), msgs); err != nil {
		t.Fatalf("consume() error = %v", err)
	}
	if len(writer.candles) != 1 {
		t.Fatalf("expected 1 buffered candle, got %d", len(writer.candles))
	}
	if svc.pending.Len() != 1 {
		t.Fatalf("expected 1 unsettled message, got %d", svc.pending.Len())
	}

	acker := &recordingAcker{}
	svc.pending = natsPending(acker)
	if err := svc.flush(context.Background()); err != nil {
		t.Fatalf("flush() error = %v", err)
	}
	if writer.flush != 1 || acker.acks != 1 || acker.naks != 0 {
		t.Fatalf("expected flush then ack, got flush=%d acks=%d naks=%d", writer.flush, acker.acks, acker.naks)
	}
	if svc.pending.Len() != 0 {
		t.Fatal("pending acks should be cleared after flush")
	}
}

func TestServiceNaksWhenFlushFails(t *testing.T) {
	writer := &stubWriter{flushErr: errors.New("clickhouse down")}
	svc := &Service{processor: newProcessor(writer), logger: zap.NewNop()}

	acker := &recordingAcker{}
	svc.pending = natsPending(acker)
	if err := svc.flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	if acker.acks != 0 || acker.naks != 1 {
		t.Fatalf("expected nak without ack, got acks=%d naks=%d", acker.acks, acker.naks)
	}
}

func TestServiceConsumeWriteFailureNaksPending(t *testing.T) {
	writer := &stubWriter{writeErr: errors.New("batch append failed")}
	svc := &Service{processor: newProcessor(writer), logger: zap.NewNop()}

	acker := &recordingAcker{}
	svc.pending = natsPending(acker)
	if err := svc.consume(context.Background(), []*nats.Msg{candleMsg(t)}); err == nil {
		t.Fatal("expected write error")
	}
	if acker.naks != 1 || svc.pending.Len() != 0 {
		t.Fatalf("expected earlier messages naked, got naks=%d pending=%d", acker.naks, svc.pending.Len())
	}
}

func TestProcessorHandlesTxEvent(t *testing.T) {
	writer := &stubWriter{}
	proc := newProcessor(writer)

	bump := uint8(254)
	payload, err := json.Marshal(events.TxEvent{
		Kind:      events.KindSell,
		Signature: "sig",
		ProgramID: "prog",
		Mint:      "mint",
		User:      "user",
		Amount:    1000,
		Bump:      &bump,
		Timestamp: 1_700_000_000,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := proc.handle(context.Background(), "curve.tx.sell", payload); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	if len(writer.trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(writer.trades))
	}
	trade := writer.trades[0]
	if trade.Signature != "sig" || trade.Kind != "sell" || trade.Amount != 1000 {
		t.Fatalf("unexpected trade fields: %+v", trade)
	}
	if trade.Timestamp != time.Unix(1_700_000_000, 0).UTC() {
		t.Fatalf("unexpected timestamp %v", trade.Timestamp)
	}
	if trade.Bump != 254 {
		t.Fatalf("unexpected bump %d", trade.Bump)
	}
}

func TestProcessorMarksMissingBump(t *testing.T) {
	writer := &stubWriter{}
	proc := newProcessor(writer)

	if err := proc.handleTx(context.Background(), events.TxEvent{Kind: events.KindBuy, Signature: "buy"}); err != nil {
		t.Fatalf("handleTx error: %v", err)
	}
	if writer.trades[0].Bump != -1 {
		t.Fatalf("expected -1 bump for buy, got %d", writer.trades[0].Bump)
	}
}

func TestProcessorHandlesCandleEvent(t *testing.T) {
	writer := &stubWriter{}
	proc := newProcessor(writer)

	payload, err := json.Marshal(events.CandleEvent{
		Mint:            "mint",
		IntervalSeconds: 30,
		Time:            1_700_000_030,
		Open:            1,
		High:            2,
		Low:             0.5,
		Close:           1.5,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := proc.handle(context.Background(), "curve.candle.mint", payload); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if len(writer.candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(writer.candles))
	}
	candle := writer.candles[0]
	if candle.IntervalSeconds != 30 || candle.Low != 0.5 || candle.Mint != "mint" {
		t.Fatalf("unexpected candle %+v", candle)
	}
}

func TestProcessorRejectsMalformedAndIgnoresUnknown(t *testing.T) {
	writer := &stubWriter{}
	proc := newProcessor(writer)

	err := proc.handle(context.Background(), "curve.tx.buy", []byte("{"))
	if !errors.Is(err, errMalformed) {
		t.Fatalf("expected errMalformed, got %v", err)
	}
	if err := proc.handle(context.Background(), "curve.other", []byte("{")); err != nil {
		t.Fatalf("unknown subject should be ignored: %v", err)
	}
	if len(writer.trades)+len(writer.candles) != 0 {
		t.Fatal("nothing should have been written")
	}
}

func TestServiceConfigFromEnv(t *testing.T) {
	t.Setenv("CH_SINK_NATS_URL", "nats://localhost:4222")
	t.Setenv("CH_SINK_DSN", "clickhouse://localhost:9000/curve")
	t.Setenv("CH_SINK_BATCH_SIZE", "64")
	t.Setenv("CH_SINK_CREATE_TABLES", "true")
	t.Setenv("CH_SINK_FLUSH_INTERVAL", "2s")

	cfg, err := ServiceConfigFromEnv()
	if err != nil {
		t.Fatalf("ServiceConfigFromEnv() error = %v", err)
	}
	if cfg.Stream != "CURVE" || cfg.SubjectRoot != "curve" {
		t.Fatalf("unexpected stream defaults %+v", cfg)
	}
	if cfg.Writer.BatchSize != 64 || !cfg.Writer.CreateTables {
		t.Fatalf("unexpected writer config %+v", cfg.Writer)
	}
	if cfg.Writer.TradesTable != "curve_trades" || cfg.Writer.CandlesTable != "curve_candles" {
		t.Fatalf("unexpected table defaults %+v", cfg.Writer)
	}
	if cfg.Writer.FlushInterval != 2*time.Second || cfg.AckWait != 30*time.Second {
		t.Fatalf("unexpected durations flush=%s ackWait=%s", cfg.Writer.FlushInterval, cfg.AckWait)
	}

	t.Setenv("CH_SINK_ACK_WAIT", "1s")
	if _, err := ServiceConfigFromEnv(); err == nil || !strings.Contains(err.Error(), "ack wait") {
		t.Fatalf("expected ack wait error, got %v", err)
	}
	t.Setenv("CH_SINK_ACK_WAIT", "")

	t.Setenv("CH_SINK_CREATE_TABLES", "maybe")
	if _, err := ServiceConfigFromEnv(); err == nil {
		t.Fatal("expected error for invalid bool")
	}
}
