package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rexbrahh/curve-gateway/events"
	natsx "github.com/rexbrahh/curve-gateway/sinks/nats"
)

// fixture is one line of a replay file: either a tx or a candle event.
type fixture struct {
	Type        string              `json:"type"`
	Tx          *events.TxEvent     `json:"tx,omitempty"`
	Candle      *events.CandleEvent `json:"candle,omitempty"`
	SleepMillis int                 `json:"sleep_ms"`
}

type publisher interface {
	PublishTx(ctx context.Context, evt events.TxEvent) error
	PublishCandle(ctx context.Context, evt events.CandleEvent) error
}

func main() {
	inputPath := flag.String("input", "fixtures/sink_sample.json", "path to event fixture (JSON array)")
	natsURL := flag.String("nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	stream := flag.String("stream", "CURVE", "JetStream stream name")
	subjectRoot := flag.String("subject-root", "curve", "subject root for publishing")
	createStream := flag.Bool("create-stream", false, "create the stream when missing")
	publishDelay := flag.Int("delay-ms", 0, "delay in milliseconds between events")
	flag.Parse()

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("failed to read input: %v", err)
	}

	var fixtures []fixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		log.Fatalf("failed to decode fixture: %v", err)
	}

	cfg := natsx.DefaultConfig()
	cfg.URL = *natsURL
	cfg.Stream = *stream
	cfg.SubjectRoot = *subjectRoot
	cfg.CreateStream = *createStream

	pub, err := natsx.NewPublisher(cfg)
	if err != nil {
		log.Fatalf("connect to nats: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for idx, fx := range fixtures {
		if ctx.Err() != nil {
			log.Fatalf("context cancelled before event %d", idx)
		}
		if err := replay(ctx, pub, fx); err != nil {
			log.Fatalf("failed to publish event %d (%s): %v", idx, fx.Type, err)
		}
		delay := fx.SleepMillis
		if delay == 0 {
			delay = *publishDelay
		}
		if delay > 0 {
			time.Sleep(time.Duration(delay) * time.Millisecond)
		}
	}

	log.Printf("published %d events", len(fixtures))
}

func replay(ctx context.Context, pub publisher, fx fixture) error {
	switch fx.Type {
	case "tx":
		if fx.Tx == nil {
			return fmt.Errorf("tx fixture without payload")
		}
		evt := *fx.Tx
		if evt.Timestamp == 0 {
			evt.Timestamp = time.Now().Unix()
		}
		return pub.PublishTx(ctx, evt)
	case "candle":
		if fx.Candle == nil {
			return fmt.Errorf("candle fixture without payload")
		}
		return pub.PublishCandle(ctx, *fx.Candle)
	default:
		return fmt.Errorf("unsupported event type %q", fx.Type)
	}
}
