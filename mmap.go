package rangecache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/willf/bitset"
)

// MmapCache lazily fills a file-backed memory map, one block at a time.
// Present blocks are tracked in a bitset and consecutive missing blocks are
// fetched as single merged runs, so a large sequential read costs one
// backend call regardless of block size.
//
// With a named location the filled blocks outlive the process: Snapshot
// captures the durable state and a later construction with WithLocation and
// WithBlocks resumes without refetching. An anonymous cache (no location)
// maps a temp file that is removed on Close.
type MmapCache struct {
	base
	location  string
	anonymous bool
	f         *os.File
	mm        mmap.MMap // nil when size == 0
	blocks    *bitset.BitSet
	nblocks   uint
	closed    bool
}

// MmapState is the durable part of an MmapCache, captured by Snapshot.
// Resource handles are never serialized; Restore reconstructs them fresh.
type MmapState struct {
	Location  string `json:"location"`
	BlockSize int64  `json:"block_size"`
	Size      int64  `json:"size"`
	Blocks    []uint `json:"blocks"`
}

// NewMmap returns a memory-mapped strategy. With WithLocation the backing
// file is created or reopened at that path; WithBlocks then marks already
// filled blocks. A backing file whose size does not match is truncated to
// the expected size and refilled on demand, discarding the block set.
func NewMmap(blocksize int64, fetcher Fetcher, size int64, opts ...Option) (*MmapCache, error) {
	b, err := newBase(blocksize, fetcher, size)
	if err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &MmapCache{
		base:      b,
		location:  cfg.location,
		anonymous: cfg.location == "",
		nblocks:   uint((size + blocksize - 1) / blocksize),
	}
	c.blocks = bitset.New(c.nblocks)
	if size == 0 {
		return c, nil
	}

	if c.anonymous {
		f, err := os.CreateTemp("", "rangecache-mmap-*")
		if err != nil {
			return nil, err
		}
		c.f = f
	} else {
		f, err := os.OpenFile(c.location, os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			return nil, err
		}
		c.f = f
		if fi, err := f.Stat(); err != nil {
			c.cleanup()
			return nil, err
		} else if fi.Size() == size {
			for _, i := range cfg.blocks {
				if i < c.nblocks {
					c.blocks.Set(i)
				}
			}
		}
	}
	if err := c.f.Truncate(size); err != nil {
		c.cleanup()
		return nil, err
	}
	mm, err := mmap.Map(c.f, mmap.RDWR, 0)
	if err != nil {
		c.cleanup()
		return nil, err
	}
	c.mm = mm
	return c, nil
}

// Fetch returns the bytes in [start, end), filling any missing blocks from
// the backend first.
func (c *MmapCache) Fetch(start, end int64) ([]byte, error) {
	start, end, ok := clampRange(start, end, c.size)
	if !ok {
		return nil, nil
	}
	if c.closed {
		return nil, ErrClosed
	}

	first := uint(start / c.blocksize)
	last := uint((end - 1) / c.blocksize)
	var need []uint
	for i := first; i <= last; i++ {
		if c.blocks.Test(i) {
			c.stats.Hits++
		} else {
			need = append(need, i)
		}
	}
	for len(need) > 0 {
		run := 1
		for run < len(need) && need[run] == need[run-1]+1 {
			run++
		}
		if err := c.fill(need[0], need[run-1]); err != nil {
			return nil, err
		}
		need = need[run:]
	}
	return bytes.Clone(c.mm[start:end]), nil
}

// fill fetches blocks [first, last] as one run and copies them into the map.
func (c *MmapCache) fill(first, last uint) error {
	lo := int64(first) * c.blocksize
	hi := min(int64(last+1)*c.blocksize, c.size)
	c.stats.Misses++
	c.stats.BytesRequested += hi - lo

	data, err := c.fetcher(lo, hi)
	if err != nil {
		return err
	}
	if int64(len(data)) != hi-lo {
		return fmt.Errorf("rangecache: mmap fill [%d, %d): %w", lo, hi, io.ErrUnexpectedEOF)
	}
	copy(c.mm[lo:hi], data)
	for i := first; i <= last; i++ {
		c.blocks.Set(i)
	}
	return nil
}

// Snapshot captures the durable state of a named cache: location, sizes,
// and the set of filled blocks. The map is flushed first so the state on
// disk matches. Snapshotting an anonymous cache fails with ErrAnonymousMmap.
func (c *MmapCache) Snapshot() (MmapState, error) {
	if c.anonymous {
		return MmapState{}, ErrAnonymousMmap
	}
	if c.closed {
		return MmapState{}, ErrClosed
	}
	if c.mm != nil {
		if err := c.mm.Flush(); err != nil {
			return MmapState{}, err
		}
	}
	blocks := make([]uint, 0, c.blocks.Count())
	for i, ok := c.blocks.NextSet(0); ok; i, ok = c.blocks.NextSet(i + 1) {
		blocks = append(blocks, i)
	}
	return MmapState{
		Location:  c.location,
		BlockSize: c.blocksize,
		Size:      c.size,
		Blocks:    blocks,
	}, nil
}

// RestoreMmap rebuilds a memory-mapped cache from a snapshot, reopening the
// backing file fresh. A missing or resized backing file discards the block
// set; the blocks are simply refetched on demand.
func RestoreMmap(state MmapState, fetcher Fetcher) (*MmapCache, error) {
	if state.Location == "" {
		return nil, ErrAnonymousMmap
	}
	return NewMmap(state.BlockSize, fetcher, state.Size,
		WithLocation(state.Location), WithBlocks(state.Blocks))
}

// Kind returns KindMmap.
func (c *MmapCache) Kind() Kind { return KindMmap }

// Close unmaps and closes the backing file, removing it when anonymous.
// Further fetches fail with ErrClosed.
func (c *MmapCache) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var unmapErr error
	if c.mm != nil {
		unmapErr = c.mm.Unmap()
		c.mm = nil
	}
	return errors.Join(unmapErr, c.cleanup())
}

// cleanup closes the backing file and removes it if anonymous.
func (c *MmapCache) cleanup() error {
	if c.f == nil {
		return nil
	}
	name := c.f.Name()
	err := c.f.Close()
	c.f = nil
	if c.anonymous {
		if rmErr := os.Remove(name); err == nil {
			err = rmErr
		}
	}
	return err
}
