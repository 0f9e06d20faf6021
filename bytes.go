package rangecache

import "bytes"

// BytesCache grows a single buffer on either side of the requested range,
// so modest backward seeks and forward reads stay in memory. Whether a gap
// is fetched as a small delta or the buffer is replaced wholesale depends
// on how much of the existing buffer a fresh bulk fetch would re-cover.
//
// With trimming enabled (the default) the front of the buffer is discarded
// once it falls more than a block behind the read position, bounding memory
// under long sequential scans while still tolerating seeks within a block.
type BytesCache struct {
	base
	buf   []byte
	start int64
	end   int64
	valid bool // false until the first fetch
	trim  bool
}

// NewBytes returns an adaptive byte-buffer strategy.
func NewBytes(blocksize int64, fetcher Fetcher, size int64, opts ...Option) (*BytesCache, error) {
	b, err := newBase(blocksize, fetcher, size)
	if err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &BytesCache{base: b, trim: cfg.trim}, nil
}

// Fetch returns the bytes in [start, end), growing, replacing, or trimming
// the internal buffer as the request demands.
func (c *BytesCache) Fetch(start, end int64) ([]byte, error) {
	start, end, ok := clampRange(start, end, c.size)
	if !ok {
		return nil, nil
	}
	if c.valid && start >= c.start && end <= c.end {
		c.stats.Hits++
		offset := start - c.start
		return bytes.Clone(c.buf[offset:min(offset+end-start, int64(len(c.buf)))]), nil
	}
	c.stats.Misses++
	fetchEnd := min(c.size, end+c.blocksize)

	switch {
	case !c.valid || (start < c.start && end > c.end):
		// First fetch, or the request spills over both ends of the buffer.
		c.stats.BytesRequested += fetchEnd - start
		data, err := c.fetcher(start, fetchEnd)
		if err != nil {
			return nil, err
		}
		c.buf = data
		c.start = start
		c.valid = true

	case start < c.start:
		if c.end-end > c.blocksize {
			// Buffer tail extends more than a block past the request.
			c.stats.BytesRequested += fetchEnd - start
			data, err := c.fetcher(start, fetchEnd)
			if err != nil {
				return nil, err
			}
			c.buf = data
			c.start = start
		} else {
			c.stats.BytesRequested += c.start - start
			head, err := c.fetcher(start, c.start)
			if err != nil {
				return nil, err
			}
			c.buf = append(head, c.buf...)
			c.start = start
		}

	case fetchEnd > c.end:
		switch {
		case c.end > c.size:
			// Buffer already runs past EOF; nothing left to fetch.
		case end-c.end > c.blocksize:
			c.stats.BytesRequested += fetchEnd - start
			data, err := c.fetcher(start, fetchEnd)
			if err != nil {
				return nil, err
			}
			c.buf = data
			c.start = start
		default:
			c.stats.BytesRequested += fetchEnd - c.end
			tail, err := c.fetcher(c.end, fetchEnd)
			if err != nil {
				return nil, err
			}
			c.buf = append(c.buf, tail...)
		}
	}

	c.end = c.start + int64(len(c.buf))
	offset := start - c.start
	out := bytes.Clone(c.buf[offset:min(offset+end-start, int64(len(c.buf)))])

	if c.trim {
		// Drop whole blocks from the front once the buffer holds more than
		// two blocks' worth of data.
		num := int64(len(c.buf)) / (c.blocksize + 1)
		if num > 1 {
			c.buf = c.buf[num*c.blocksize:]
			c.start += num * c.blocksize
		}
	}
	return out, nil
}

// Kind returns KindBytes.
func (c *BytesCache) Kind() Kind { return KindBytes }

// Close drops the buffer.
func (c *BytesCache) Close() error {
	c.buf = nil
	c.valid = false
	return nil
}
