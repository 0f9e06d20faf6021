// Package dircache caches directory listings with optional expiry and a
// bounded entry count, so repeated traversals of the same tree skip the
// backend. Values are arbitrary listing types; backends typically store
// their per-directory metadata slices.
//
// Entries expire lazily: an expired entry is dropped on the Get that finds
// it, never by a background goroutine.
package dircache

import (
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Option configures a Cache.
type Option func(*config)

type config struct {
	ttl        time.Duration
	maxEntries int
	disabled   bool
}

// WithTTL sets how long a listing stays valid. Zero, the default, means
// listings never expire.
func WithTTL(d time.Duration) Option {
	return func(c *config) {
		c.ttl = d
	}
}

// WithMaxEntries bounds the number of cached listings; the least recently
// used entry is evicted first. Zero, the default, means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *config) {
		c.maxEntries = n
	}
}

// Disabled turns the cache into a no-op: Set does nothing and Get always
// misses. Useful when a backend's listings must never go stale.
func Disabled() Option {
	return func(c *config) {
		c.disabled = true
	}
}

type entry[V any] struct {
	value  V
	stored time.Time
}

// Cache maps directory paths to listings of type V. It is safe for
// concurrent use.
type Cache[V any] struct {
	mu       sync.Mutex
	disabled bool
	ttl      time.Duration

	// Exactly one of the two stores is non-nil.
	entries map[string]entry[V]
	bounded *lru.Cache[string, entry[V]]

	now func() time.Time
}

// New returns a listings cache configured by opts.
func New[V any](opts ...Option) (*Cache[V], error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ttl < 0 {
		return nil, errors.New("dircache: ttl must be >= 0")
	}
	if cfg.maxEntries < 0 {
		return nil, errors.New("dircache: max entries must be >= 0")
	}
	c := &Cache[V]{
		disabled: cfg.disabled,
		ttl:      cfg.ttl,
		now:      time.Now,
	}
	if cfg.maxEntries > 0 {
		bounded, err := lru.New[string, entry[V]](cfg.maxEntries)
		if err != nil {
			return nil, err
		}
		c.bounded = bounded
	} else {
		c.entries = make(map[string]entry[V])
	}
	return c, nil
}

// Get returns the cached listing for path. An entry past its TTL is removed
// and reported as a miss.
func (c *Cache[V]) Get(path string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(path)
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && c.now().Sub(e.stored) > c.ttl {
		c.remove(path)
		return zero, false
	}
	return e.value, true
}

// Set stores the listing for path, replacing any previous one. On a
// disabled cache it does nothing.
func (c *Cache[V]) Set(path string, value V) {
	if c.disabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry[V]{value: value, stored: c.now()}
	if c.bounded != nil {
		c.bounded.Add(path, e)
		return
	}
	c.entries[path] = e
}

// Delete removes the listing for path, if present.
func (c *Cache[V]) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(path)
}

// Clear removes every cached listing.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bounded != nil {
		c.bounded.Purge()
		return
	}
	clear(c.entries)
}

// Len returns the number of live cached listings. Entries past their TTL
// are swept before counting, so an expired listing never inflates the count.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
	if c.bounded != nil {
		return c.bounded.Len()
	}
	return len(c.entries)
}

// Keys returns the live cached paths in unspecified order, sweeping expired
// entries first.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
	if c.bounded != nil {
		return c.bounded.Keys()
	}
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// sweep removes entries past their TTL. Requires mu.
func (c *Cache[V]) sweep() {
	if c.ttl <= 0 {
		return
	}
	now := c.now()
	if c.bounded != nil {
		for _, k := range c.bounded.Keys() {
			if e, ok := c.bounded.Peek(k); ok && now.Sub(e.stored) > c.ttl {
				c.bounded.Remove(k)
			}
		}
		return
	}
	for k, e := range c.entries {
		if now.Sub(e.stored) > c.ttl {
			delete(c.entries, k)
		}
	}
}

func (c *Cache[V]) lookup(path string) (entry[V], bool) {
	if c.bounded != nil {
		return c.bounded.Get(path)
	}
	e, ok := c.entries[path]
	return e, ok
}

func (c *Cache[V]) remove(path string) {
	if c.bounded != nil {
		c.bounded.Remove(path)
		return
	}
	delete(c.entries, path)
}
