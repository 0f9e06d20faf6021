package rangecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/rangecache/internal/testutil"
)

func newFirstBlockCache(t *testing.T, blocksize int64, data []byte) (*FirstBlockCache, *testutil.CountingFetcher) {
	t.Helper()
	fetcher := testutil.NewCountingFetcher(data)
	c, err := NewFirstBlock(blocksize, fetcher.Fetch, fetcher.Size())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, fetcher
}

func TestFirstBlockPinsHeader(t *testing.T) {
	t.Parallel()

	truth := testutil.Pattern(500)
	c, fetcher := newFirstBlockCache(t, 100, truth)

	got, err := c.Fetch(10, 60)
	require.NoError(t, err)
	assert.Equal(t, truth[10:60], got)
	assert.Equal(t, int64(1), fetcher.Calls())
	assert.Equal(t, int64(100), fetcher.FetchedBytes(), "populating reads the whole first block")

	// Every further read inside the block is free.
	for _, r := range []Range{{0, 100}, {20, 80}, {99, 100}} {
		got, err = c.Fetch(r.Start, r.End)
		require.NoError(t, err)
		assert.Equal(t, truth[r.Start:r.End], got)
	}
	assert.Equal(t, int64(1), fetcher.Calls())
}

func TestFirstBlockPopulateCountsMissAndHit(t *testing.T) {
	t.Parallel()

	truth := testutil.Pattern(500)
	c, _ := newFirstBlockCache(t, 100, truth)

	// The populating request is accounted as the miss that filled the block
	// and the hit that served from it.
	_, err := c.Fetch(10, 60)
	require.NoError(t, err)
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(100), stats.BytesRequested)
}

func TestFirstBlockStraddlingColdCache(t *testing.T) {
	t.Parallel()

	truth := testutil.Pattern(500)
	c, fetcher := newFirstBlockCache(t, 100, truth)

	// A cold straddling read covers the block and the tail in one call.
	got, err := c.Fetch(50, 250)
	require.NoError(t, err)
	assert.Equal(t, truth[50:250], got)
	assert.Equal(t, int64(1), fetcher.Calls())
	assert.Equal(t, int64(250), fetcher.FetchedBytes())

	// The block got pinned along the way.
	got, err = c.Fetch(0, 90)
	require.NoError(t, err)
	assert.Equal(t, truth[:90], got)
	assert.Equal(t, int64(1), fetcher.Calls())
}

func TestFirstBlockStraddlingWarmCache(t *testing.T) {
	t.Parallel()

	truth := testutil.Pattern(500)
	c, fetcher := newFirstBlockCache(t, 100, truth)

	_, err := c.Fetch(0, 100)
	require.NoError(t, err)

	// Warm straddle: cached head plus a tail fetch from the block boundary.
	got, err := c.Fetch(50, 250)
	require.NoError(t, err)
	assert.Equal(t, truth[50:250], got)
	assert.Equal(t, int64(2), fetcher.Calls())
	assert.Equal(t, int64(250), fetcher.FetchedBytes())
}

func TestFirstBlockBypassPastBlock(t *testing.T) {
	t.Parallel()

	truth := testutil.Pattern(500)
	c, fetcher := newFirstBlockCache(t, 100, truth)

	// Entirely past the first block: straight through, nothing pinned.
	got, err := c.Fetch(200, 300)
	require.NoError(t, err)
	assert.Equal(t, truth[200:300], got)
	assert.Equal(t, int64(1), fetcher.Calls())
	assert.Nil(t, c.buf)

	// Repeating it is another backend call.
	_, err = c.Fetch(200, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetcher.Calls())
}

func TestFirstBlockSizeCap(t *testing.T) {
	t.Parallel()

	truth := []byte(testutil.Letters)
	fetcher := testutil.NewCountingFetcher(truth)
	c, err := NewFirstBlock(4096, fetcher.Fetch, fetcher.Size())
	require.NoError(t, err)
	defer c.Close()

	// The block shrinks to the file, so the whole file is pinned at once.
	got, err := c.Fetch(0, 52)
	require.NoError(t, err)
	assert.Equal(t, truth, got)
	assert.Equal(t, int64(52), fetcher.FetchedBytes())

	_, err = c.Fetch(40, 52)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fetcher.Calls())
}
