package rangecache

import "bytes"

// FirstBlockCache caches only the first block of the file. Requests past
// that block always go to the backend. Useful for formats that keep their
// header at the start of the file and are otherwise scanned once.
type FirstBlockCache struct {
	base
	buf []byte // first block, nil until populated
}

// NewFirstBlock returns a first-block strategy. A blocksize larger than the
// file is capped at the file size, so the cache never outgrows the file.
func NewFirstBlock(blocksize int64, fetcher Fetcher, size int64) (*FirstBlockCache, error) {
	b, err := newBase(blocksize, fetcher, size)
	if err != nil {
		return nil, err
	}
	if b.blocksize > size && size > 0 {
		b.blocksize = size
	}
	return &FirstBlockCache{base: b}, nil
}

// Fetch serves [start, end), pinning the first block on first use. A
// request that starts inside the first block but runs past it serves the
// cached head and fetches the tail; a request entirely past the first block
// bypasses the cache.
func (c *FirstBlockCache) Fetch(start, end int64) ([]byte, error) {
	start, end, ok := clampRange(start, end, c.size)
	if !ok {
		return nil, nil
	}
	if start >= c.blocksize {
		c.stats.Misses++
		c.stats.BytesRequested += end - start
		return c.fetcher(start, end)
	}
	if c.buf == nil {
		c.stats.Misses++
		if end > c.blocksize {
			// One call covers both the block to pin and the requested tail.
			c.stats.BytesRequested += end
			data, err := c.fetcher(0, end)
			if err != nil {
				return nil, err
			}
			c.buf = bytes.Clone(data[:min(c.blocksize, int64(len(data)))])
			return data[start:], nil
		}
		c.stats.BytesRequested += c.blocksize
		data, err := c.fetcher(0, c.blocksize)
		if err != nil {
			return nil, err
		}
		c.buf = data
	}
	lo := min(start, int64(len(c.buf)))
	hi := min(end, int64(len(c.buf)))
	out := bytes.Clone(c.buf[lo:hi])
	if end <= c.blocksize {
		c.stats.Hits++
		return out, nil
	}
	c.stats.Misses++
	c.stats.BytesRequested += end - c.blocksize
	tail, err := c.fetcher(c.blocksize, end)
	if err != nil {
		return nil, err
	}
	return append(out, tail...), nil
}

// Kind returns KindFirst.
func (c *FirstBlockCache) Kind() Kind { return KindFirst }

// Close drops the pinned block.
func (c *FirstBlockCache) Close() error {
	c.buf = nil
	return nil
}
