// Package events defines the JSON payloads fanned out to JetStream after pool
// transactions confirm and candles close.
package events

import (
	"fmt"
	"strconv"
	"strings"
)

// TxKind names the pool operation behind a transaction event.
type TxKind string

const (
	KindInitialize      TxKind = "initialize"
	KindCreatePool      TxKind = "create_pool"
	KindAddLiquidity    TxKind = "add_liquidity"
	KindRemoveLiquidity TxKind = "remove_liquidity"
	KindBuy             TxKind = "buy"
	KindSell            TxKind = "sell"
)

// TxEvent records a confirmed program transaction submitted by the gateway.
type TxEvent struct {
	Kind      TxKind  `json:"kind"`
	Signature string  `json:"signature"`
	ProgramID string  `json:"programId"`
	Mint      string  `json:"mint,omitempty"`
	User      string  `json:"user,omitempty"`
	Amount    uint64  `json:"amount,omitempty"`
	Bump      *uint8  `json:"bump,omitempty"`
	Fees      float64 `json:"fees,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// CandleEvent is one closed OHLC bucket for a mint.
type CandleEvent struct {
	Mint            string  `json:"mint"`
	IntervalSeconds int64   `json:"intervalSeconds"`
	Time            int64   `json:"time"`
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Close           float64 `json:"close"`
}

// TxSubject returns the subject for a transaction event.
func TxSubject(root string, kind TxKind) string {
	return fmt.Sprintf("%s.tx.%s", root, kind)
}

// CandleSubject returns the subject for a candle event.
func CandleSubject(root, mint string) string {
	return fmt.Sprintf("%s.candle.%s", root, mint)
}

// CandleMsgID deduplicates candle events per mint and bucket.
func CandleMsgID(mint string, ts int64) string {
	return mint + ":" + strconv.FormatInt(ts, 10)
}

// IsTxSubject reports whether subject carries transaction events.
func IsTxSubject(subject string) bool {
	return strings.Contains(subject, ".tx.")
}

// IsCandleSubject reports whether subject carries candle events.
func IsCandleSubject(subject string) bool {
	return strings.Contains(subject, ".candle.")
}
