// Package querycache is a caller-side data-fetching cache with freshness windows.
//
// An entry younger than StaleTime is served as is. An older entry is still served, and a
// background refetch is started. An entry older than CacheTime is gone: the janitor evicts
// it and Get fetches synchronously. Concurrent fetches for one key share a single call.
package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Default freshness windows.
const (
	DefaultStaleTime = 5 * time.Minute
	DefaultCacheTime = 10 * time.Minute
)

const backgroundFetchTimeout = 30 * time.Second

// Source tells where a value came from.
type Source string

const (
	SourceFresh Source = "fresh"
	SourceStale Source = "stale"
	SourceFetch Source = "fetch"
)

// Fetcher loads the value for key.
type Fetcher[T any] func(ctx context.Context, key string) (T, error)

// Options configures a Cache.
type Options struct {
	StaleTime time.Duration
	CacheTime time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
	// Detach derives the context of a background refetch from the caller's. It defaults to
	// context.WithoutCancel.
	Detach func(context.Context) context.Context
}

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cache stores values of type T by string key.
type Cache[T any] struct {
	stale  time.Duration
	ttl    time.Duration
	now    func() time.Time
	detach func(context.Context) context.Context
	logger *slog.Logger

	group singleflight.Group
	bg    sync.WaitGroup

	mu       sync.Mutex
	entries  map[string]entry[T]
	versions map[string]uint64
}

// New builds a cache. CacheTime never drops below StaleTime.
func New[T any](opts Options) *Cache[T] {
	stale := opts.StaleTime
	if stale <= 0 {
		stale = DefaultStaleTime
	}
	ttl := opts.CacheTime
	if ttl <= 0 {
		ttl = DefaultCacheTime
	}
	if ttl < stale {
		ttl = stale
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	detach := opts.Detach
	if detach == nil {
		detach = context.WithoutCancel
	}
	return &Cache[T]{
		stale:    stale,
		ttl:      ttl,
		now:      now,
		detach:   detach,
		logger:   logger,
		entries:  make(map[string]entry[T]),
		versions: make(map[string]uint64),
	}
}

// Get returns the cached value for key, fetching it when missing or expired.
func (c *Cache[T]) Get(ctx context.Context, key string, fetch Fetcher[T]) (T, Source, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	now := c.now()
	if ok && now.Sub(e.fetchedAt) >= c.ttl {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if ok {
		if now.Sub(e.fetchedAt) < c.stale {
			return e.value, SourceFresh, nil
		}
		c.refreshInBackground(ctx, key, fetch)
		return e.value, SourceStale, nil
	}

	v, err := c.load(ctx, key, fetch)
	if err != nil {
		var zero T
		return zero, SourceFetch, err
	}
	return v, SourceFetch, nil
}

// Peek returns a live entry without fetching.
func (c *Cache[T]) Peek(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Invalidate drops key so the next Get fetches synchronously. A fetch already in flight
// for key will not repopulate it.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.versions[key]++
	c.group.Forget(key)
}

// Refetch fetches key now, replacing any cached value.
func (c *Cache[T]) Refetch(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	c.Invalidate(key)
	return c.load(ctx, key, fetch)
}

// Sweep evicts expired entries and returns how many were removed.
func (c *Cache[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RunJanitor sweeps every interval until ctx is done.
func (c *Cache[T]) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.stale
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.DebugContext(ctx, "query cache evicted entries", "count", n)
			}
		}
	}
}

// Wait blocks until background refetches have finished.
func (c *Cache[T]) Wait() {
	c.bg.Wait()
}

func (c *Cache[T]) load(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	c.mu.Lock()
	version := c.versions[key]
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.versions[key] == version {
			c.entries[key] = entry[T]{value: value, fetchedAt: c.now()}
		}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("querycache: fetch %q: %w", key, err)
	}
	return v.(T), nil
}

func (c *Cache[T]) refreshInBackground(ctx context.Context, key string, fetch Fetcher[T]) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		bgCtx, cancel := context.WithTimeout(c.detach(ctx), backgroundFetchTimeout)
		defer cancel()
		if _, err := c.load(bgCtx, key, fetch); err != nil {
			c.logger.WarnContext(bgCtx, "background refetch failed", "key", key, "error", err)
		}
	}()
}
