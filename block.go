package rangecache

import (
	"bytes"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// BlockCache partitions the file into fixed-size blocks and keeps at most
// maxBlocks of them in a per-instance LRU. It is the only strategy with a
// hard memory bound independent of file size and read pattern, which makes
// it the safe default for random access over very large files.
type BlockCache struct {
	base
	nblocks int64
	blocks  *lru.Cache[int64, []byte]
}

// NewBlock returns a block LRU strategy. The retained block count is set
// with WithMaxBlocks and defaults to DefaultMaxBlocks.
func NewBlock(blocksize int64, fetcher Fetcher, size int64, opts ...Option) (*BlockCache, error) {
	b, err := newBase(blocksize, fetcher, size)
	if err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	blocks, err := lru.New[int64, []byte](cfg.maxBlocks)
	if err != nil {
		return nil, err
	}
	return &BlockCache{
		base:    b,
		nblocks: (size + blocksize - 1) / blocksize,
		blocks:  blocks,
	}, nil
}

// Fetch concatenates every block overlapping [start, end), slicing the
// first and last blocks to the exact offsets within them.
func (c *BlockCache) Fetch(start, end int64) ([]byte, error) {
	start, end, ok := clampRange(start, end, c.size)
	if !ok {
		return nil, nil
	}
	first := start / c.blocksize
	last := end / c.blocksize

	if first == last {
		block, err := c.block(first)
		if err != nil {
			return nil, err
		}
		lo := start - first*c.blocksize
		hi := min(end-first*c.blocksize, int64(len(block)))
		return bytes.Clone(block[min(lo, hi):hi]), nil
	}

	out := make([]byte, 0, end-start)
	for i := first; i <= last; i++ {
		block, err := c.block(i)
		if err != nil {
			return nil, err
		}
		lo := int64(0)
		hi := int64(len(block))
		if i == first {
			lo = min(start-i*c.blocksize, hi)
		}
		if i == last {
			hi = min(end-i*c.blocksize, hi)
		}
		out = append(out, block[lo:hi]...)
	}
	return out, nil
}

// block returns the contents of block n, fetching and inserting it into the
// LRU on a miss. An index beyond the block count is a caller bug.
func (c *BlockCache) block(n int64) ([]byte, error) {
	if n > c.nblocks {
		return nil, fmt.Errorf("%w: block %d of %d", ErrBlockOutOfRange, n, c.nblocks)
	}
	if data, ok := c.blocks.Get(n); ok {
		c.stats.Hits++
		return data, nil
	}
	c.stats.Misses++
	c.stats.BytesRequested += c.blocksize

	var data []byte
	if s, e, ok := clampRange(n*c.blocksize, n*c.blocksize+c.blocksize, c.size); ok {
		var err error
		data, err = c.fetcher(s, e)
		if err != nil {
			return nil, err
		}
	}
	c.blocks.Add(n, data)
	return data, nil
}

// Kind returns KindBlock.
func (c *BlockCache) Kind() Kind { return KindBlock }

// Close drops all retained blocks.
func (c *BlockCache) Close() error {
	c.blocks.Purge()
	return nil
}
