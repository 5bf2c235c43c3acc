// Package cache memoizes raw remote responses for a bounded time.
//
// Entries expire a fixed TTL after insertion. Concurrent lookups of a key
// whose value is being fetched share the in-flight fetch instead of issuing
// their own. Failed fetches are never stored.
package cache

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// maxRejoin bounds how often a waiter restarts a flight abandoned by
// another caller.
const maxRejoin = 2

// Lookup results reported to the Recorder.
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultShared = "shared"
)

// Recorder receives lookup outcomes; metrics.Manager satisfies it.
type Recorder interface {
	CacheLookup(result string)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(string) {}

// Options configures a Cache.
type Options struct {
	// MaxEntries bounds the number of stored entries; 0 means unbounded.
	MaxEntries int
	Now        func() time.Time
	Recorder   Recorder
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache is a TTL cache with at-most-one-concurrent-fetch-per-key.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	group      singleflight.Group
	now        func() time.Time
	maxEntries int
	recorder   Recorder
}

// New creates an empty cache.
func New[V any](opts Options) *Cache[V] {
	c := &Cache[V]{
		entries:    make(map[string]entry[V]),
		now:        opts.Now,
		maxEntries: opts.MaxEntries,
		recorder:   opts.Recorder,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	return c
}

// Key builds the normalized cache key for an endpoint and its parameters.
// Parameter names and repeated values are sorted so that equivalent
// requests share a key.
func Key(endpoint string, params url.Values) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if len(params) == 0 {
		return endpoint
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(endpoint)
	b.WriteByte('?')
	for i, name := range names {
		values := append([]string(nil), params[name]...)
		sort.Strings(values)
		for j, v := range values {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Get returns the live value stored under key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(key)
}

func (c *Cache[V]) lookupLocked(key string) (V, bool) {
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl stores nothing.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{value: value, expires: c.now().Add(ttl)}
	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.purgeLocked()
		for len(c.entries) > c.maxEntries {
			c.evictOldestLocked()
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every expired entry and returns how many were removed.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked()
}

func (c *Cache[V]) purgeLocked() int {
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *Cache[V]) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	delete(c.entries, oldestKey)
}

// GetOrFetch returns the cached value for key or runs fetch to produce it.
// While a fetch for key is in flight, other callers wait for its result.
// Each caller stops waiting when its own ctx is done.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (V, error)) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		c.recorder.CacheLookup(ResultHit)
		return v, nil
	}

	for attempt := 0; ; attempt++ {
		ch := c.group.DoChan(key, func() (any, error) {
			c.mu.Lock()
			v, ok := c.lookupLocked(key)
			c.mu.Unlock()
			if ok {
				return v, nil
			}
			v, err := fetch(ctx)
			if err != nil {
				return nil, err
			}
			c.Set(key, v, ttl)
			return v, nil
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// the flight belonged to a caller that gave up; try again with ours
				if res.Shared && attempt < maxRejoin && isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}
				return zero, res.Err
			}
			if res.Shared {
				c.recorder.CacheLookup(ResultShared)
			} else {
				c.recorder.CacheLookup(ResultMiss)
			}
			return res.Val.(V), nil
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
