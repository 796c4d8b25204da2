package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"poolScope/internal/metrics"
)

// Entry is a cached value with the time it was fetched.
type Entry[V any] struct {
	Value     V             `json:"value"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
}

// Stale reports whether now is at or past FetchedAt+TTL.
func (e Entry[V]) Stale(now time.Time) bool {
	return !now.Before(e.FetchedAt.Add(e.TTL))
}

// Store persists entries. Implementations must be safe for concurrent use.
type Store[V any] interface {
	Get(ctx context.Context, key string) (Entry[V], bool, error)
	Set(ctx context.Context, key string, entry Entry[V]) error
}

// Option configures a Cache.
type Option func(*settings)

// DefaultFetchTimeout bounds a shared fetch once it is detached from its callers.
const DefaultFetchTimeout = 30 * time.Second

type settings struct {
	now          func() time.Time
	logger       *zap.Logger
	fetchTimeout time.Duration
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithLogger sets the logger used for store failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithFetchTimeout bounds each shared fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.fetchTimeout = d
	}
}

// Cache is a read-through TTL cache with one in-flight fetch per key.
type Cache[V any] struct {
	name         string
	store        Store[V]
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
	group        singleflight.Group
}

// New creates a cache named name over store. Every fetched value lives for ttl.
func New[V any](name string, store Store[V], ttl time.Duration, opts ...Option) *Cache[V] {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = DefaultFetchTimeout
	}
	if store == nil {
		store = NewMemoryStore[V]()
	}
	return &Cache[V]{
		name:         name,
		store:        store,
		ttl:          ttl,
		fetchTimeout: s.fetchTimeout,
		now:          s.now,
		logger:       s.logger,
	}
}

// Name returns the cache name used in metrics.
func (c *Cache[V]) Name() string {
	return c.name
}

// TTL returns the entry lifetime.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the fresh entry for key, calling fetch on a miss or stale entry.
// Concurrent callers for the same key share a single fetch. The shared fetch
// is detached from any one caller's cancellation and bounded by the fetch
// timeout; each caller still stops waiting when its own ctx is done. A failed
// fetch is returned as an error and the stale entry is not served.
func (c *Cache[V]) Get(ctx context.Context, key string, fetch func(context.Context) (V, error)) (Entry[V], error) {
	if entry, ok := c.Lookup(ctx, key); ok {
		return entry, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		// another caller may have filled the key while we waited
		if entry, ok := c.lookup(fctx, key); ok {
			return entry, nil
		}
		value, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		return c.Put(fctx, key, value), nil
	})

	select {
	case <-ctx.Done():
		metrics.CacheRequests.WithLabelValues(c.name, "error").Inc()
		return Entry[V]{}, fmt.Errorf("cache %s fetch %s: %w", c.name, key, ctx.Err())
	case res := <-ch:
		if res.Shared {
			metrics.CacheRequests.WithLabelValues(c.name, "shared").Inc()
		}
		if res.Err != nil {
			metrics.CacheRequests.WithLabelValues(c.name, "error").Inc()
			return Entry[V]{}, fmt.Errorf("cache %s fetch %s: %w", c.name, key, res.Err)
		}
		return res.Val.(Entry[V]), nil
	}
}

// Lookup returns the entry for key only if it is still fresh.
func (c *Cache[V]) Lookup(ctx context.Context, key string) (Entry[V], bool) {
	entry, ok := c.lookup(ctx, key)
	if ok {
		metrics.CacheRequests.WithLabelValues(c.name, "hit").Inc()
	} else {
		metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()
	}
	return entry, ok
}

func (c *Cache[V]) lookup(ctx context.Context, key string) (Entry[V], bool) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("cache", c.name), zap.String("key", key), zap.Error(err))
		return Entry[V]{}, false
	}
	if !ok || entry.Stale(c.now()) {
		return Entry[V]{}, false
	}
	return entry, true
}

// Put stores value under key with the cache TTL and returns the entry.
func (c *Cache[V]) Put(ctx context.Context, key string, value V) Entry[V] {
	entry := Entry[V]{Value: value, FetchedAt: c.now(), TTL: c.ttl}
	if err := c.store.Set(ctx, key, entry); err != nil {
		c.logger.Warn("cache write failed", zap.String("cache", c.name), zap.String("key", key), zap.Error(err))
	}
	return entry
}
