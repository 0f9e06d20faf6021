package rangecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/rangecache/internal/testutil"
)

func newBlockCache(t *testing.T, blocksize int64, maxBlocks int, data []byte) (*BlockCache, *testutil.CountingFetcher) {
	t.Helper()
	fetcher := testutil.NewCountingFetcher(data)
	c, err := NewBlock(blocksize, fetcher.Fetch, fetcher.Size(), WithMaxBlocks(maxBlocks))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, fetcher
}

func TestBlockCacheSparseReads(t *testing.T) {
	t.Parallel()

	truth := testutil.Pattern(13)
	c, fetcher := newBlockCache(t, 4, 2, truth)

	reads := []Range{{0, 2}, {4, 6}, {12, 13}}
	for _, r := range reads {
		got, err := c.Fetch(r.Start, r.End)
		require.NoError(t, err)
		assert.Equal(t, truth[r.Start:r.End], got)
	}

	// Three distinct blocks touched, one backend call each.
	assert.Equal(t, int64(3), fetcher.Calls())
	assert.Equal(t, int64(3), c.Stats().Misses)
	assert.Zero(t, c.Stats().Hits)
}

func TestBlockCacheEviction(t *testing.T) {
	t.Parallel()

	truth := testutil.Pattern(16)
	c, fetcher := newBlockCache(t, 4, 2, truth)

	fetch := func(start, end int64) {
		got, err := c.Fetch(start, end)
		require.NoError(t, err)
		assert.Equal(t, truth[start:end], got)
	}

	fetch(0, 3) // block 0
	assert.Equal(t, int64(1), fetcher.Calls())
	fetch(4, 7) // block 1
	assert.Equal(t, int64(2), fetcher.Calls())
	fetch(8, 11) // block 2, evicts block 0
	assert.Equal(t, int64(3), fetcher.Calls())
	fetch(0, 3) // block 0 again, refetched
	assert.Equal(t, int64(4), fetcher.Calls())

	assert.LessOrEqual(t, c.blocks.Len(), 2, "retained blocks must stay within the limit")
}

func TestBlockCacheHitCounting(t *testing.T) {
	t.Parallel()

	truth := testutil.Pattern(16)
	c, _ := newBlockCache(t, 4, 4, truth)

	_, err := c.Fetch(0, 3)
	require.NoError(t, err)
	_, err = c.Fetch(1, 2)
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestBlockCacheRequestedBytesCountWholeBlocks(t *testing.T) {
	t.Parallel()

	// The final block holds a single byte but still accounts for a full
	// block of requested bytes, matching the whole-block fetch granularity.
	truth := testutil.Pattern(13)
	c, _ := newBlockCache(t, 4, 4, truth)

	_, err := c.Fetch(12, 13)
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.Stats().BytesRequested)
}

func TestBlockCacheSpanningRead(t *testing.T) {
	t.Parallel()

	truth := testutil.Pattern(64)
	c, fetcher := newBlockCache(t, 8, 16, truth)

	got, err := c.Fetch(5, 37)
	require.NoError(t, err)
	assert.Equal(t, truth[5:37], got)
	// Blocks 0 through 4 inclusive.
	assert.Equal(t, int64(5), fetcher.Calls())

	// A later read over the same span is served entirely from cache.
	got, err = c.Fetch(7, 30)
	require.NoError(t, err)
	assert.Equal(t, truth[7:30], got)
	assert.Equal(t, int64(5), fetcher.Calls())
}

func TestBlockCacheBoundaryEndTouchesNextBlock(t *testing.T) {
	t.Parallel()

	// A read ending exactly on a block boundary also consults the next
	// block; at EOF that block is empty and cached as such.
	truth := testutil.Pattern(12)
	c, fetcher := newBlockCache(t, 4, 8, truth)

	got, err := c.Fetch(8, 12)
	require.NoError(t, err)
	assert.Equal(t, truth[8:12], got)
	assert.Equal(t, int64(1), fetcher.Calls(), "the empty trailing block needs no backend call")
	assert.Equal(t, int64(2), c.Stats().Misses)

	// The phantom block is retained, so repeating the read adds no misses.
	_, err = c.Fetch(8, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Stats().Misses)
}

func TestBlockCacheOutOfRangeBlock(t *testing.T) {
	t.Parallel()

	c, _ := newBlockCache(t, 4, 2, testutil.Pattern(13))

	_, err := c.block(c.nblocks + 1)
	require.ErrorIs(t, err, ErrBlockOutOfRange)
}

func TestBlockCacheCloseDropsBlocks(t *testing.T) {
	t.Parallel()

	truth := testutil.Pattern(16)
	fetcher := testutil.NewCountingFetcher(truth)
	c, err := NewBlock(4, fetcher.Fetch, 16, WithMaxBlocks(4))
	require.NoError(t, err)

	_, err = c.Fetch(0, 16)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.Zero(t, c.blocks.Len())
}
