package candles

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Store persists one Series per mint.
type Store interface {
	Load(ctx context.Context, mint string) (Series, bool, error)
	Save(ctx context.Context, mint string, series Series) error
}

// MemoryStore keeps series in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[string]Series
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{series: make(map[string]Series)}
}

// Load returns a copy of the stored series.
func (m *MemoryStore) Load(_ context.Context, mint string) (Series, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.series[mint]
	if !ok {
		return Series{}, false, nil
	}
	return s.clone(), true, nil
}

// Save replaces the stored series with a copy of s.
func (m *MemoryStore) Save(_ context.Context, mint string, s Series) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[mint] = s.clone()
	return nil
}

// CachedStore serves from a local store and mirrors writes to a remote one.
// Remote failures are logged and never fail the caller.
type CachedStore struct {
	local  Store
	remote Store
	logger *zap.Logger
}

// NewCachedStore layers remote behind local. A nil remote yields local alone.
func NewCachedStore(local, remote Store, logger *zap.Logger) Store {
	if remote == nil {
		return local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{local: local, remote: remote, logger: logger}
}

// Load returns the copy with the later cursor, refreshing local when remote
// was advanced by another process. An unreachable remote falls back to local.
func (c *CachedStore) Load(ctx context.Context, mint string) (Series, bool, error) {
	local, localOK, err := c.local.Load(ctx, mint)
	if err != nil {
		return Series{}, false, err
	}

	remote, remoteOK, err := c.remote.Load(ctx, mint)
	if err != nil {
		c.logger.Warn("remote candle store load failed", zap.String("mint", mint), zap.Error(err))
		return local, localOK, nil
	}
	if !remoteOK || (localOK && local.LastFetchedTimestamp >= remote.LastFetchedTimestamp) {
		return local, localOK, nil
	}
	if err := c.local.Save(ctx, mint, remote); err != nil {
		return Series{}, false, err
	}
	return remote, true, nil
}

// Save writes local first, then remote on a best-effort basis.
func (c *CachedStore) Save(ctx context.Context, mint string, s Series) error {
	if err := c.local.Save(ctx, mint, s); err != nil {
		return err
	}
	if err := c.remote.Save(ctx, mint, s); err != nil {
		c.logger.Warn("remote candle store save failed", zap.String("mint", mint), zap.Error(err))
	}
	return nil
}
