package parquet

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/parquet-go/parquet-go"

	"github.com/rexbrahh/curve-gateway/events"
)

type captureUploader struct {
	keys    []string
	bodies  [][]byte
	buckets []string
}

func (c *captureUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return c.UploadWithContext(context.Background(), in, opts...)
}

func (c *captureUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.keys = append(c.keys, aws.StringValue(in.Key))
	c.buckets = append(c.buckets, aws.StringValue(in.Bucket))
	c.bodies = append(c.bodies, body)
	return &s3manager.UploadOutput{}, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Endpoint = "http://minio:9000"
	cfg.Bucket = "curve-archive"
	cfg.AccessKey = "access"
	cfg.SecretKey = "secret"
	return cfg
}

func TestWriterValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoint = ""

	w, err := NewWriter(cfg)
	if err != ErrWriterDisabled || w != nil {
		t.Fatalf("expected ErrWriterDisabled, got %v", err)
	}
}

func TestWriterBuffersUntilFlush(t *testing.T) {
	up := &captureUploader{}
	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	w, err := NewWriter(testConfig(), WithUploader(up), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	ctx := context.Background()
	for i, mint := range []string{"mintA", "mintA", "mintB"} {
		evt := events.CandleEvent{Mint: mint, IntervalSeconds: 30, Time: int64(1000 + 30*i), Open: 1, High: 2, Low: 0.5, Close: float64(i)}
		if err := w.AppendCandle(ctx, evt); err != nil {
			t.Fatalf("AppendCandle() error = %v", err)
		}
	}
	if len(up.keys) != 0 {
		t.Fatalf("expected no uploads before flush, got %d", len(up.keys))
	}
	if w.Pending() != 3 {
		t.Fatalf("expected 3 pending rows, got %d", w.Pending())
	}

	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(up.keys) != 2 {
		t.Fatalf("expected one object per mint, got %d", len(up.keys))
	}
	if w.Pending() != 0 {
		t.Fatalf("expected empty buffer after flush, got %d", w.Pending())
	}

	for i, key := range up.keys {
		if !strings.HasPrefix(key, "curve/candles/mint=") || !strings.Contains(key, "/date=2025-03-04/") {
			t.Fatalf("unexpected object key %q", key)
		}
		if up.buckets[i] != "curve-archive" {
			t.Fatalf("unexpected bucket %q", up.buckets[i])
		}
		rows, err := parquet.Read[CandleRow](bytes.NewReader(up.bodies[i]), int64(len(up.bodies[i])))
		if err != nil {
			t.Fatalf("read parquet: %v", err)
		}
		if strings.Contains(key, "mint=mintA") && len(rows) != 2 {
			t.Fatalf("expected 2 rows for mintA, got %d", len(rows))
		}
		if strings.Contains(key, "mint=mintB") {
			if len(rows) != 1 || rows[0].WindowStart != 1060 || rows[0].IntervalSeconds != 30 {
				t.Fatalf("unexpected mintB rows %+v", rows)
			}
		}
	}
}

func TestWriterFlushesOnBatchRows(t *testing.T) {
	up := &captureUploader{}
	cfg := testConfig()
	cfg.BatchRows = 2
	w, err := NewWriter(cfg, WithUploader(up))
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := w.AppendCandle(ctx, events.CandleEvent{Mint: "mint", Time: int64(i)}); err != nil {
			t.Fatalf("AppendCandle() error = %v", err)
		}
	}
	if len(up.keys) != 1 {
		t.Fatalf("expected flush at batch size, got %d uploads", len(up.keys))
	}
}

func TestWriterRejectsCandleWithoutMint(t *testing.T) {
	w, err := NewWriter(testConfig(), WithUploader(&captureUploader{}))
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if err := w.AppendCandle(context.Background(), events.CandleEvent{}); err == nil {
		t.Fatal("expected error for candle without mint")
	}
}

func TestDecodeCandle(t *testing.T) {
	evt, ok, err := decodeCandle("curve.candle.mint", []byte(`{"mint":"mint","intervalSeconds":30,"time":60,"open":1,"high":1,"low":1,"close":1}`))
	if err != nil || !ok {
		t.Fatalf("decodeCandle() = %v, %v", ok, err)
	}
	if evt.Time != 60 || evt.IntervalSeconds != 30 {
		t.Fatalf("unexpected event %+v", evt)
	}

	if _, ok, err := decodeCandle("curve.tx.buy", []byte(`{}`)); ok || err != nil {
		t.Fatalf("tx subject should be skipped, got ok=%v err=%v", ok, err)
	}
	if _, _, err := decodeCandle("curve.candle.mint", []byte(`{`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
