package cache

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Provider is the small key/value surface the statistics cache needs.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider never stores anything.
type NoopProvider struct{}

func (NoopProvider) Get(context.Context, string) ([]byte, error) { return nil, ErrCacheMiss }

func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopProvider) Del(context.Context, ...string) error { return nil }

func (NoopProvider) Close() error { return nil }

// MemoryProvider keeps entries in process. It suits single-instance deployments.
type MemoryProvider struct {
	items *gocache.Cache
}

// NewMemoryProvider returns an in-process cache. Expired entries are swept
// every cleanup interval; a non-positive interval disables the sweep.
func NewMemoryProvider(cleanup time.Duration) *MemoryProvider {
	return &MemoryProvider{items: gocache.New(gocache.NoExpiration, cleanup)}
}

func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), v.([]byte)...), nil
}

// Set stores a copy of value. A zero ttl keeps the entry until it is deleted.
func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (m *MemoryProvider) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.items.Delete(k)
	}
	return nil
}

func (m *MemoryProvider) Close() error {
	m.items.Flush()
	return nil
}
