// Package fetch is the client-side data layer: a TTL cache in front of
// per-key request deduplication, and an HTTP client whose transport retries
// server errors with exponential backoff.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the freshness bound used when a caller passes maxAge <= 0.
const DefaultTTL = 30 * time.Second

// FetchFunc produces the value for a cache key. The context it receives is
// shared by every caller waiting on the same key and is not cancelled when
// one of them gives up.
type FetchFunc func(ctx context.Context) (any, error)

// Entry is a cached value and the time it was stored.
type Entry struct {
	Key       string
	Data      any
	Timestamp time.Time
}

// Cache is a TTL cache with in-flight request deduplication. Entries are
// replaced wholesale on refresh; errors are never cached.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	group   singleflight.Group

	ttl time.Duration
	now func() time.Time
	log *slog.Logger
}

// NewCache creates an empty cache. A non-positive ttl selects DefaultTTL.
func NewCache(ttl time.Duration, log *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
		log:     log.With("component", "fetch-cache"),
	}
}

// TTL returns the default freshness bound.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Fetch returns the cached value for key when it is younger than maxAge.
// Otherwise it runs fn through Dedup and returns the result. The shared call
// stores a successful result even when every waiter has given up. An
// expired entry is never served; the caller waits for the refetch.
func (c *Cache) Fetch(ctx context.Context, key string, fn FetchFunc, maxAge time.Duration) (any, error) {
	if maxAge <= 0 {
		maxAge = c.ttl
	}
	if data, ok := c.lookup(key, maxAge); ok {
		c.log.Debug("cache hit", "key", key)
		return data, nil
	}

	c.log.Debug("cache miss", "key", key)
	return c.Dedup(ctx, key, func(ctx context.Context) (any, error) {
		data, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = Entry{Key: key, Data: data, Timestamp: c.now()}
		c.mu.Unlock()
		return data, nil
	})
}

// Dedup runs fn at most once per key while a call for that key is in
// flight; concurrent callers share its result or error. The pending call is
// forgotten as soon as it settles, successful or not. If ctx ends first the
// caller stops waiting, but the shared call keeps running for the others.
func (c *Cache) Dedup(ctx context.Context, key string, fn FetchFunc) (any, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("fetch %q panicked: %v", key, r)
			}
		}()
		return fn(shared)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.log.Debug("shared in-flight request", "key", key)
		}
		return res.Val, res.Err
	}
}

// Clear removes the entry for key. In-flight calls are unaffected.
func (c *Cache) Clear(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// ClearAll removes every entry. In-flight calls are unaffected.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Peek returns the stored entry for key regardless of age.
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache) lookup(key string, maxAge time.Duration) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.Timestamp) >= maxAge {
		return nil, false
	}
	return e.Data, true
}

// FetchAs is Fetch for callers that want a typed result.
func FetchAs[T any](ctx context.Context, c *Cache, key string, maxAge time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, maxAge)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache key %q holds %T, want %T", key, v, zero)
	}
	return t, nil
}

// Key builds a cache key from an endpoint and its query parameters. The
// parameters are encoded in sorted order so equal requests share a key.
func Key(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + params.Encode()
}
