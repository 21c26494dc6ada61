package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rexbrahh/curve-gateway/events"
)

type recordingPublisher struct {
	txs     []events.TxEvent
	candles []events.CandleEvent
}

func (r *recordingPublisher) PublishTx(_ context.Context, evt events.TxEvent) error {
	r.txs = append(r.txs, evt)
	return nil
}

func (r *recordingPublisher) PublishCandle(_ context.Context, evt events.CandleEvent) error {
	r.candles = append(r.candles, evt)
	return nil
}

func TestReplayFixtures(t *testing.T) {
	raw := `[
		{"type":"tx","tx":{"kind":"buy","signature":"sig1","programId":"prog","mint":"mint","amount":100}},
		{"type":"candle","candle":{"mint":"mint","intervalSeconds":30,"time":60,"open":1,"high":2,"low":1,"close":2}},
		{"type":"unknown"}
	]`
	var fixtures []fixture
	if err := json.Unmarshal([]byte(raw), &fixtures); err != nil {
		t.Fatalf("decode fixtures: %v", err)
	}

	pub := &recordingPublisher{}
	ctx := context.Background()
	if err := replay(ctx, pub, fixtures[0]); err != nil {
		t.Fatalf("replay tx: %v", err)
	}
	if err := replay(ctx, pub, fixtures[1]); err != nil {
		t.Fatalf("replay candle: %v", err)
	}
	if err := replay(ctx, pub, fixtures[2]); err == nil {
		t.Fatal("expected error for unknown fixture type")
	}
	if err := replay(ctx, pub, fixture{Type: "tx"}); err == nil {
		t.Fatal("expected error for tx without payload")
	}

	if len(pub.txs) != 1 || pub.txs[0].Kind != events.KindBuy || pub.txs[0].Timestamp == 0 {
		t.Fatalf("unexpected tx events %+v", pub.txs)
	}
	if len(pub.candles) != 1 || pub.candles[0].Time != 60 {
		t.Fatalf("unexpected candle events %+v", pub.candles)
	}
}
