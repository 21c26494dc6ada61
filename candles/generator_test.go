package candles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMint = "So11111111111111111111111111111111111111112"

type seqSource struct {
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
	always error
}

func (s *seqSource) Price(ctx context.Context, mint string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.always != nil {
		return 0, s.always
	}
	if s.failOn[s.calls] {
		return 0, errors.New("rpc unavailable")
	}
	return float64(s.calls), nil
}

type recordingEmitter struct {
	mu      sync.Mutex
	candles []Candle
}

func (r *recordingEmitter) EmitCandles(ctx context.Context, mint string, interval time.Duration, candles []Candle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candles = append(r.candles, candles...)
	return nil
}

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func newTestGenerator(t *testing.T, cfg Config, src PriceSource, opts ...Option) *Generator {
	t.Helper()
	gen, err := NewGenerator(cfg, src, opts...)
	require.NoError(t, err)
	return gen
}

func TestGenerateNewMintBuildsTwoCandles(t *testing.T) {
	src := &seqSource{}
	emitter := &recordingEmitter{}
	gen := newTestGenerator(t, DefaultConfig(), src, WithClock(fixedClock(1000)), WithEmitter(emitter))

	history, err := gen.Generate(context.Background(), testMint)
	require.NoError(t, err)

	require.Len(t, history, 2)
	assert.Equal(t, Candle{Time: 940, Open: 1, High: 10, Low: 1, Close: 10}, history[0])
	assert.Equal(t, Candle{Time: 970, Open: 11, High: 20, Low: 11, Close: 20}, history[1])
	assert.Equal(t, 20, src.calls)
	assert.Equal(t, history, emitter.candles)

	again, err := gen.Generate(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, history, again)
	assert.Equal(t, 20, src.calls, "no complete interval elapsed")
}

func TestGenerateStopsSamplingIntervalOnError(t *testing.T) {
	src := &seqSource{failOn: map[int]bool{4: true}}
	gen := newTestGenerator(t, DefaultConfig(), src, WithClock(fixedClock(1000)))

	history, err := gen.Generate(context.Background(), testMint)
	require.NoError(t, err)

	require.Len(t, history, 2)
	assert.Equal(t, Candle{Time: 940, Open: 1, High: 3, Low: 1, Close: 3}, history[0])
	assert.Equal(t, Candle{Time: 970, Open: 5, High: 14, Low: 5, Close: 14}, history[1])
}

func TestGenerateSkipsIntervalsWithoutSamples(t *testing.T) {
	src := &seqSource{always: errors.New("pool not found")}
	store := NewMemoryStore()
	gen := newTestGenerator(t, DefaultConfig(), src, WithClock(fixedClock(1000)), WithStore(store))

	history, err := gen.Generate(context.Background(), testMint)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.NotNil(t, history)

	series, ok, err := store.Load(context.Background(), testMint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1000), series.LastFetchedTimestamp)
	assert.Equal(t, 2, src.calls, "one failed sample per interval")
}

func TestGenerateCapsCatchUp(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), testMint, Series{LastFetchedTimestamp: 0}))

	cfg := DefaultConfig()
	cfg.MaxCatchUp = 2
	src := &seqSource{}
	gen := newTestGenerator(t, cfg, src, WithClock(fixedClock(1000)), WithStore(store))

	history, err := gen.Generate(context.Background(), testMint)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(930), history[0].Time)
	assert.Equal(t, int64(960), history[1].Time)

	series, _, err := store.Load(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, int64(990), series.LastFetchedTimestamp)
}

func TestGenerateTrimsHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistory = 1
	gen := newTestGenerator(t, cfg, &seqSource{}, WithClock(fixedClock(1000)))

	history, err := gen.Generate(context.Background(), testMint)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(970), history[0].Time)
}

func TestGenerateSerialisesPerMint(t *testing.T) {
	var (
		mu  sync.Mutex
		now int64 = 1000
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now += 30
		return time.Unix(now, 0)
	}
	store := NewMemoryStore()
	gen := newTestGenerator(t, DefaultConfig(), &seqSource{}, WithClock(clock), WithStore(store))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gen.Generate(context.Background(), testMint)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	series, ok, err := store.Load(context.Background(), testMint)
	require.NoError(t, err)
	require.True(t, ok)
	history := series.History
	require.NotEmpty(t, history)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].Time+30, history[i].Time, "candles must be contiguous and ordered")
	}
}

func TestGenerateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := newTestGenerator(t, DefaultConfig(), &seqSource{}, WithClock(fixedClock(1000)))

	_, err := gen.Generate(ctx, testMint)
	require.ErrorIs(t, err, context.Canceled)
}

// cancelSource cancels its caller's context on call number cancelOn.
type cancelSource struct {
	calls    int
	cancelOn int
	cancel   context.CancelFunc
}

func (s *cancelSource) Price(ctx context.Context, mint string) (float64, error) {
	s.calls++
	if s.calls == s.cancelOn {
		s.cancel()
		return 0, ctx.Err()
	}
	return float64(s.calls), nil
}

func TestGenerateCancelledMidIntervalKeepsCursor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &cancelSource{cancelOn: 4, cancel: cancel}
	store := NewMemoryStore()
	emitter := &recordingEmitter{}
	gen := newTestGenerator(t, DefaultConfig(), src,
		WithClock(fixedClock(1000)), WithStore(store), WithEmitter(emitter))

	_, err := gen.Generate(ctx, testMint)
	require.ErrorIs(t, err, context.Canceled)

	series, ok, err := store.Load(context.Background(), testMint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, series.History, "partial interval must not be committed")
	assert.Equal(t, int64(940), series.LastFetchedTimestamp)
	assert.Empty(t, emitter.candles)

	history, err := gen.Generate(context.Background(), testMint)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(940), history[0].Time)
	assert.Equal(t, int64(970), history[1].Time)
}

func TestGeneratorMetricNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	gen := newTestGenerator(t, DefaultConfig(), &seqSource{failOn: map[int]bool{4: true}},
		WithClock(fixedClock(1000)), WithMetricsRegisterer(reg))

	_, err := gen.Generate(context.Background(), testMint)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		values[mf.GetName()] = mf.GetMetric()[0].GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{
		"curve_candles_samples_total":       13,
		"curve_candles_sample_errors_total": 1,
		"curve_candles_emitted_total":       2,
	}, values)
}

func TestAggregate(t *testing.T) {
	_, ok := Aggregate(0, nil)
	assert.False(t, ok)

	c, ok := Aggregate(60, []float64{2, 5, 1, 3})
	require.True(t, ok)
	assert.Equal(t, Candle{Time: 60, Open: 2, High: 5, Low: 1, Close: 3}, c)
}

func TestSamplesPerInterval(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.SamplesPerInterval())
	cfg.SampleStep = 7 * time.Second
	assert.Equal(t, 5, cfg.SamplesPerInterval())
}

func TestTrackedMints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mints.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mints:\n  - mintB\n  - mintA\n  - \"\"\n"), 0o600))

	cfg := DefaultConfig()
	cfg.TrackMints = []string{"mintA", " mintC "}
	cfg.TrackFile = path

	mints, err := cfg.TrackedMints()
	require.NoError(t, err)
	assert.Equal(t, []string{"mintA", "mintC", "mintB"}, mints)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CANDLE_INTERVAL", "1m")
	t.Setenv("CANDLE_MAX_HISTORY", "10")
	t.Setenv("CANDLE_TRACK_MINTS", "a,b")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 10, cfg.MaxHistory)
	assert.Equal(t, []string{"a", "b"}, cfg.TrackMints)
	assert.Equal(t, defaultSampleStep, cfg.SampleStep)

	t.Setenv("CANDLE_INTERVAL", "1500ms")
	_, err = FromEnv()
	require.Error(t, err)
}

type failingStore struct{}

func (failingStore) Load(context.Context, string) (Series, bool, error) {
	return Series{}, false, errors.New("redis down")
}

func (failingStore) Save(context.Context, string, Series) error {
	return errors.New("redis down")
}

func TestCachedStoreToleratesRemoteFailures(t *testing.T) {
	local := NewMemoryStore()
	store := NewCachedStore(local, failingStore{}, nil)

	_, ok, err := store.Load(context.Background(), testMint)
	require.NoError(t, err)
	assert.False(t, ok)

	want := Series{History: []Candle{{Time: 30, Open: 1, High: 1, Low: 1, Close: 1}}, LastFetchedTimestamp: 60}
	require.NoError(t, store.Save(context.Background(), testMint, want))

	got, ok, err := store.Load(context.Background(), testMint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestCachedStoreWarmsFromRemote(t *testing.T) {
	remote := NewMemoryStore()
	want := Series{History: []Candle{{Time: 30, Open: 2, High: 2, Low: 2, Close: 2}}, LastFetchedTimestamp: 60}
	require.NoError(t, remote.Save(context.Background(), testMint, want))

	local := NewMemoryStore()
	store := NewCachedStore(local, remote, nil)

	got, ok, err := store.Load(context.Background(), testMint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	warmed, ok, err := local.Load(context.Background(), testMint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, warmed)
}

func TestCachedStorePrefersNewerRemote(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStore()
	remote := NewMemoryStore()
	store := NewCachedStore(local, remote, nil)

	stale := Series{History: []Candle{{Time: 30, Open: 1, High: 1, Low: 1, Close: 1}}, LastFetchedTimestamp: 60}
	require.NoError(t, store.Save(ctx, testMint, stale))

	fresh := Series{
		History:              append(append([]Candle{}, stale.History...), Candle{Time: 60, Open: 2, High: 2, Low: 2, Close: 2}),
		LastFetchedTimestamp: 90,
	}
	require.NoError(t, remote.Save(ctx, testMint, fresh))

	got, ok, err := store.Load(ctx, testMint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fresh, got)

	refreshed, _, err := local.Load(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, fresh, refreshed)

	require.NoError(t, remote.Save(ctx, testMint, stale))
	got, _, err = store.Load(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, fresh, got, "older remote copy must not replace local")
}

func TestPollerPollOnce(t *testing.T) {
	src := &seqSource{}
	store := NewMemoryStore()
	gen := newTestGenerator(t, DefaultConfig(), src, WithClock(fixedClock(1000)), WithStore(store))
	poller := NewPoller(gen, []string{"mintA", "mintB"}, time.Second, nil)

	poller.PollOnce(context.Background())

	for _, mint := range []string{"mintA", "mintB"} {
		series, ok, err := store.Load(context.Background(), mint)
		require.NoError(t, err)
		require.True(t, ok, mint)
		assert.Len(t, series.History, 2, mint)
	}
	assert.Equal(t, 40, src.calls)
}
