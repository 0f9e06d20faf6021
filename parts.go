package rangecache

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// Range is a half-open byte interval [Start, End).
type Range struct {
	Start int64
	End   int64
}

// KnownParts serves requests from byte ranges declared at construction, for
// callers that know in advance exactly which sparse ranges of a file they
// will need (footer plus selected column chunks of a table file, say).
// Adjacent parts are merged up front, so a request spanning what were
// originally separate fragments comes back as one slice.
//
// A request outside the declared parts falls back to the fetcher when one
// was supplied; with no fetcher it fails with ErrUnknownRange, surfacing
// miscalculated ranges instead of masking them.
type KnownParts struct {
	base
	ranges []Range  // sorted, non-overlapping, adjacent runs merged
	blobs  [][]byte // blobs[i] holds the contents of ranges[i]
	strict bool
}

// NewKnownParts returns a declared-parts strategy. Parts are supplied with
// WithParts; at least one part or a fallback fetcher is required.
func NewKnownParts(blocksize int64, fetcher Fetcher, size int64, opts ...Option) (*KnownParts, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.parts) == 0 && fetcher == nil {
		return nil, errors.New("rangecache: parts cache needs parts or a fetcher")
	}
	if size < 0 {
		return nil, fmt.Errorf("rangecache: size must be >= 0, got %d", size)
	}
	c := &KnownParts{
		base:   base{blocksize: blocksize, fetcher: fetcher, size: size},
		strict: cfg.strict,
	}

	keys := make([]Range, 0, len(cfg.parts))
	for r := range cfg.parts {
		keys = append(keys, r)
	}
	slices.SortFunc(keys, func(a, b Range) int { return cmp.Compare(a.Start, b.Start) })

	for _, r := range keys {
		if r.End < r.Start {
			return nil, fmt.Errorf("rangecache: invalid part range [%d, %d)", r.Start, r.End)
		}
		if n := len(c.ranges); n > 0 {
			prev := c.ranges[n-1]
			if r.Start < prev.End {
				return nil, fmt.Errorf("rangecache: part ranges [%d, %d) and [%d, %d) overlap",
					prev.Start, prev.End, r.Start, r.End)
			}
			if r.Start == prev.End {
				c.ranges[n-1].End = r.End
				c.blobs[n-1] = append(c.blobs[n-1], cfg.parts[r]...)
				continue
			}
		}
		c.ranges = append(c.ranges, r)
		c.blobs = append(c.blobs, bytes.Clone(cfg.parts[r]))
	}
	return c, nil
}

// Fetch serves [start, end) from the declared parts. A read that starts in
// a part and runs past its end continues through the fallback fetcher in
// strict mode, or is zero-filled otherwise.
func (c *KnownParts) Fetch(start, end int64) ([]byte, error) {
	start, end, ok := clampRange(start, end, c.size)
	if !ok {
		return nil, nil
	}
	var out []byte
	for i, r := range c.ranges {
		if start < r.Start || start >= r.End {
			continue
		}
		blob := c.blobs[i]
		off := start - r.Start
		lo := min(off, int64(len(blob)))
		hi := min(off+end-start, int64(len(blob)))
		out = bytes.Clone(blob[lo:hi])
		if !c.strict || end <= r.End {
			// Zero-fill whatever the stored blob does not cover.
			if pad := end - start - int64(len(out)); pad > 0 {
				out = append(out, make([]byte, pad)...)
			}
			c.stats.Hits++
			return out, nil
		}
		start = r.End
		break
	}
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrUnknownRange, start, end)
	}
	c.stats.Misses++
	c.stats.BytesRequested += end - start
	rest, err := c.fetcher(start, end)
	if err != nil {
		return nil, err
	}
	return append(out, rest...), nil
}

// Kind returns KindParts.
func (c *KnownParts) Kind() Kind { return KindParts }

// Close drops the declared parts.
func (c *KnownParts) Close() error {
	c.ranges = nil
	c.blobs = nil
	return nil
}
