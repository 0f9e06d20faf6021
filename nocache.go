package rangecache

import (
	"errors"
	"fmt"
)

// NoCache delegates every request straight to the fetcher. It exists so
// callers can opt out of caching without changing the read path.
type NoCache struct {
	base
}

// NewNoCache returns a pass-through strategy.
func NewNoCache(fetcher Fetcher, size int64) (*NoCache, error) {
	if fetcher == nil {
		return nil, errors.New("rangecache: fetcher is nil")
	}
	if size < 0 {
		return nil, fmt.Errorf("rangecache: size must be >= 0, got %d", size)
	}
	return &NoCache{base: base{fetcher: fetcher, size: size}}, nil
}

// Fetch delegates to the fetcher after the usual range normalization.
func (c *NoCache) Fetch(start, end int64) ([]byte, error) {
	start, end, ok := clampRange(start, end, c.size)
	if !ok {
		return nil, nil
	}
	c.stats.Misses++
	c.stats.BytesRequested += end - start
	return c.fetcher(start, end)
}

// Kind returns KindNone.
func (c *NoCache) Kind() Kind { return KindNone }

// Close is a no-op; nothing is held.
func (c *NoCache) Close() error { return nil }
