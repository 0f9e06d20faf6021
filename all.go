package rangecache

import (
	"bytes"
	"errors"
	"fmt"
)

// AllBytes holds the complete file contents in memory. Supply them with
// WithData when they are already in hand; otherwise the whole file is
// fetched once, eagerly, at construction.
type AllBytes struct {
	base
	data []byte
}

// NewAllBytes returns a whole-content strategy. With WithData the given
// bytes define both content and size and the fetcher may be nil.
func NewAllBytes(fetcher Fetcher, size int64, opts ...Option) (*AllBytes, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.data != nil {
		return &AllBytes{
			base: base{fetcher: fetcher, size: int64(len(cfg.data))},
			data: cfg.data,
		}, nil
	}
	if fetcher == nil {
		return nil, errors.New("rangecache: all-bytes cache needs data or a fetcher")
	}
	if size < 0 {
		return nil, fmt.Errorf("rangecache: size must be >= 0, got %d", size)
	}
	c := &AllBytes{base: base{fetcher: fetcher, size: size}}
	if size > 0 {
		c.stats.Misses++
		c.stats.BytesRequested += size
		data, err := fetcher(0, size)
		if err != nil {
			return nil, err
		}
		c.data = data
	}
	return c, nil
}

// Fetch slices the held contents; the backend is never consulted again.
func (c *AllBytes) Fetch(start, end int64) ([]byte, error) {
	start, end, ok := clampRange(start, end, c.size)
	if !ok {
		return nil, nil
	}
	c.stats.Hits++
	lo := min(start, int64(len(c.data)))
	hi := min(end, int64(len(c.data)))
	return bytes.Clone(c.data[lo:hi]), nil
}

// Kind returns KindAll.
func (c *AllBytes) Kind() Kind { return KindAll }

// Close drops the contents.
func (c *AllBytes) Close() error {
	c.data = nil
	return nil
}
