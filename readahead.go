package rangecache

import "bytes"

// ReadAheadCache keeps a single contiguous buffer that always extends one
// block past the most recent request. It suits strictly sequential reads;
// any miss throws the previous buffer away, so backward seeks refetch.
type ReadAheadCache struct {
	base
	buf   []byte
	start int64
	end   int64
}

// NewReadAhead returns a read-ahead strategy with the given block span.
func NewReadAhead(blocksize int64, fetcher Fetcher, size int64) (*ReadAheadCache, error) {
	b, err := newBase(blocksize, fetcher, size)
	if err != nil {
		return nil, err
	}
	return &ReadAheadCache{base: b}, nil
}

// Fetch returns the bytes in [start, end), reading one extra block past end
// whenever the backend has to be consulted.
func (c *ReadAheadCache) Fetch(start, end int64) ([]byte, error) {
	start, end, ok := clampRange(start, end, c.size)
	if !ok {
		return nil, nil
	}
	want := end - start
	var head []byte
	switch {
	case start >= c.start && end <= c.end:
		c.stats.Hits++
		return bytes.Clone(c.buf[start-c.start : end-c.start]), nil
	case start >= c.start && start < c.end:
		// Partial hit: keep the buffered tail, fetch only what follows.
		c.stats.Misses++
		head = bytes.Clone(c.buf[start-c.start:])
		want -= int64(len(head))
		start = c.end
	default:
		c.stats.Misses++
	}
	fetchEnd := min(c.size, end+c.blocksize)
	c.stats.BytesRequested += fetchEnd - start
	data, err := c.fetcher(start, fetchEnd)
	if err != nil {
		return nil, err
	}
	c.buf = data
	c.start = start
	c.end = start + int64(len(data))
	if want > int64(len(data)) {
		want = int64(len(data))
	}
	return append(head, data[:want]...), nil
}

// Kind returns KindReadAhead.
func (c *ReadAheadCache) Kind() Kind { return KindReadAhead }

// Close drops the buffer.
func (c *ReadAheadCache) Close() error {
	c.buf = nil
	return nil
}
