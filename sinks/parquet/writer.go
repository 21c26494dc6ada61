package parquet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/snappy"
	"go.uber.org/zap"

	"github.com/rexbrahh/curve-gateway/events"
)

var ErrWriterDisabled = errors.New("parquet writer disabled: missing configuration")

// Writer buffers candles per mint and periodically uploads Parquet files to
// S3-compatible storage.
type Writer struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string][]CandleRow
	uploader  s3manageriface.UploaderAPI
	lastFlush time.Time
}

// CandleRow is the archived layout of one closed candle.
type CandleRow struct {
	Mint            string  `parquet:"mint,dict"`
	IntervalSeconds int64   `parquet:"interval_s"`
	WindowStart     int64   `parquet:"window_start"`
	Open            float64 `parquet:"open"`
	High            float64 `parquet:"high"`
	Low             float64 `parquet:"low"`
	Close           float64 `parquet:"close"`
}

// WriterOption customises a Writer.
type WriterOption func(*Writer)

// WithUploader replaces the S3 uploader.
func WithUploader(u s3manageriface.UploaderAPI) WriterOption {
	return func(w *Writer) {
		if u != nil {
			w.uploader = u
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) WriterOption {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithClock overrides the time source used for flush timing and object keys.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWriter validates configuration and prepares a Writer.
func NewWriter(cfg Config, opts ...WriterOption) (*Writer, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, ErrWriterDisabled
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := &Writer{
		cfg:     cfg,
		logger:  zap.NewNop(),
		now:     time.Now,
		buckets: make(map[string][]CandleRow),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	if w.uploader == nil {
		awsCfg := &aws.Config{
			Endpoint:         aws.String(cfg.Endpoint),
			Region:           aws.String(cfg.Region),
			S3ForcePathStyle: aws.Bool(true),
			Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		}
		sess, err := session.NewSession(awsCfg)
		if err != nil {
			return nil, fmt.Errorf("create aws session: %w", err)
		}
		w.uploader = s3manager.NewUploader(sess)
	}
	w.lastFlush = w.now()
	return w, nil
}

// AppendCandle buffers one candle and flushes when the batch is full or the
// flush interval elapsed.
func (w *Writer) AppendCandle(ctx context.Context, evt events.CandleEvent) error {
	if evt.Mint == "" {
		return errors.New("candle without mint")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	row := CandleRow{
		Mint:            evt.Mint,
		IntervalSeconds: evt.IntervalSeconds,
		WindowStart:     evt.Time,
		Open:            evt.Open,
		High:            evt.High,
		Low:             evt.Low,
		Close:           evt.Close,
	}
	bucket := append(w.buckets[evt.Mint], row)
	w.buckets[evt.Mint] = bucket

	if len(bucket) >= w.cfg.BatchRows || w.now().Sub(w.lastFlush) >= w.cfg.FlushInterval {
		return w.flushLocked(ctx)
	}
	return nil
}

// Pending returns the number of buffered rows.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, rows := range w.buckets {
		n += len(rows)
	}
	return n
}

func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *Writer) Close() error {
	return w.Flush(context.Background())
}

func (w *Writer) flushLocked(ctx context.Context) error {
	for mint, rows := range w.buckets {
		if len(rows) == 0 {
			delete(w.buckets, mint)
			continue
		}
		key, err := w.writeBucket(ctx, mint, rows)
		if err != nil {
			return err
		}
		w.logger.Info("uploaded candle archive",
			zap.String("mint", mint),
			zap.String("key", key),
			zap.Int("rows", len(rows)),
		)
		delete(w.buckets, mint)
	}
	w.lastFlush = w.now()
	return nil
}

func (w *Writer) writeBucket(ctx context.Context, mint string, rows []CandleRow) (string, error) {
	buf := bytes.NewBuffer(nil)

	writer := parquet.NewGenericWriter[CandleRow](buf, parquet.Compression(&snappy.Codec{}))
	if _, err := writer.Write(rows); err != nil {
		return "", fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close parquet writer: %w", err)
	}

	key := w.objectKey(mint)

	_, err := w.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(w.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("upload parquet to s3: %w", err)
	}
	return key, nil
}

func (w *Writer) objectKey(mint string) string {
	now := w.now().UTC()
	prefix := strings.TrimSuffix(w.cfg.Prefix, "/")
	filename := fmt.Sprintf("candles-%d.parquet", now.UnixNano())
	return path.Join(prefix, "mint="+mint, "date="+now.Format("2006-01-02"), filename)
}
