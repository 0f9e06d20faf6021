package disk

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/rangecache"
)

// Cached is a read-through view of one source backed by a Store. Its
// Fetch method satisfies the rangecache fetcher contract, so it can feed
// any in-memory strategy or be handed to OpenFile via WithFetcher.
type Cached struct {
	store     *Store
	sourceID  string
	blocksize int64
	size      int64
	nblocks   int64
	fetcher   rangecache.Fetcher
	state     *sourceState
}

// Fetch returns bytes in [start, end), reading blocks from disk when
// present and fetching plus persisting the rest. Negative bounds select
// the whole file and degenerate ranges return an empty slice.
func (c *Cached) Fetch(start, end int64) ([]byte, error) {
	if start < 0 {
		start = 0
	}
	if end < 0 || end > c.size {
		end = c.size
	}
	if c.size == 0 || start >= c.size || start >= end {
		return []byte{}, nil
	}

	first := start / c.blocksize
	last := (end - 1) / c.blocksize

	out := make([]byte, 0, end-start)
	fetched := false
	for i := first; i <= last; i++ {
		data, miss, err := c.block(i)
		if err != nil {
			return nil, err
		}
		fetched = fetched || miss

		lo := i * c.blocksize
		copyStart := max(start, lo) - lo
		copyEnd := min(end, lo+int64(len(data))) - lo
		out = append(out, data[copyStart:copyEnd]...)
	}
	if fetched {
		c.store.saveState()
	}
	return out, nil
}

// block loads block i through the store, recording newly fetched blocks
// in the source state.
func (c *Cached) block(i int64) ([]byte, bool, error) {
	lo := i * c.blocksize
	hi := min(lo+c.blocksize, c.size)
	data, fetched, err := c.store.getBlock(c.sourceID, c.blocksize, i, hi-lo, func() ([]byte, error) {
		return c.fetcher(lo, hi)
	})
	if err != nil {
		return nil, false, err
	}
	if fetched {
		c.record(i)
	}
	return data, fetched, nil
}

// record marks block i present, collapsing the list once all blocks are in.
func (c *Cached) record(i int64) {
	c.store.stateMu.Lock()
	defer c.store.stateMu.Unlock()
	if c.state.Blocks.add(i) {
		c.state.Blocks.collapse(c.nblocks)
	}
}

// has reports whether block i is already recorded on disk.
func (c *Cached) has(i int64) bool {
	c.store.stateMu.Lock()
	defer c.store.stateMu.Unlock()
	return c.state.Blocks.has(i)
}

// Warm fetches every missing block with up to workers concurrent fetches,
// leaving the source fully cached on disk. Workers of zero or less uses
// one per CPU. Warm stops at the first fetch error or once ctx is done.
func (c *Cached) Warm(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i := int64(0); i < c.nblocks; i++ {
		if gctx.Err() != nil {
			break
		}
		if c.has(i) {
			continue
		}
		i := i
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, _, err := c.block(i)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.store.saveState()
	return nil
}

// Complete reports whether every block of the source is on disk.
func (c *Cached) Complete() bool {
	c.store.stateMu.Lock()
	defer c.store.stateMu.Unlock()
	return c.state.Blocks.complete
}

// Blocks returns how many of the source's blocks are cached, along with
// the total block count.
func (c *Cached) Blocks() (cached, total int64) {
	c.store.stateMu.Lock()
	defer c.store.stateMu.Unlock()
	if c.state.Blocks.complete {
		return c.nblocks, c.nblocks
	}
	return c.state.Blocks.count(), c.nblocks
}

// Size returns the source size in bytes.
func (c *Cached) Size() int64 {
	return c.size
}

// Fetcher adapts the view for APIs that take a plain fetcher function.
func (c *Cached) Fetcher() rangecache.Fetcher {
	return c.Fetch
}
