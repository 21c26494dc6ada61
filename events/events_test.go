package events

import (
	"encoding/json"
	"testing"
)

func TestSubjects(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		isTx     bool
		isCandle bool
	}{
		{name: "sell", subject: TxSubject("curve", KindSell), isTx: true},
		{name: "create pool", subject: TxSubject("curve", KindCreatePool), isTx: true},
		{name: "candle", subject: CandleSubject("curve", "So11111111111111111111111111111111111111112"), isCandle: true},
		{name: "other", subject: "curve.health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTxSubject(tt.subject); got != tt.isTx {
				t.Fatalf("IsTxSubject(%q) = %v", tt.subject, got)
			}
			if got := IsCandleSubject(tt.subject); got != tt.isCandle {
				t.Fatalf("IsCandleSubject(%q) = %v", tt.subject, got)
			}
		})
	}

	if got := TxSubject("curve", KindRemoveLiquidity); got != "curve.tx.remove_liquidity" {
		t.Fatalf("unexpected tx subject %q", got)
	}
	if got := CandleMsgID("mint", 1700000030); got != "mint:1700000030" {
		t.Fatalf("unexpected candle msg id %q", got)
	}
}

func TestTxEventOmitsAbsentBump(t *testing.T) {
	data, err := json.Marshal(TxEvent{Kind: KindBuy, Signature: "sig", Amount: 5})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["bump"]; ok {
		t.Fatalf("bump should be omitted: %s", data)
	}

	bump := uint8(0)
	data, err = json.Marshal(TxEvent{Kind: KindSell, Bump: &bump})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var evt TxEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Bump == nil || *evt.Bump != 0 {
		t.Fatalf("zero bump should round-trip, got %v", evt.Bump)
	}
}
