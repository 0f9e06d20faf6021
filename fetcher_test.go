package rangecache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/rangecache/internal/testutil"
)

func TestReaderAtFetcher(t *testing.T) {
	t.Parallel()

	truth := testutil.Pattern(100)
	fetch := ReaderAtFetcher(bytes.NewReader(truth), 100)

	got, err := fetch(0, 100)
	require.NoError(t, err)
	assert.Equal(t, truth, got)

	got, err = fetch(40, 60)
	require.NoError(t, err)
	assert.Equal(t, truth[40:60], got)

	// Past-EOF requests truncate instead of failing.
	got, err = fetch(90, 500)
	require.NoError(t, err)
	assert.Equal(t, truth[90:], got)

	// Degenerate ranges are empty.
	for _, r := range []Range{{100, 200}, {50, 50}, {60, 40}, {-5, 0}} {
		got, err = fetch(r.Start, r.End)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestStatsHitRatio(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Stats{}.HitRatio())
	assert.Equal(t, 0.75, Stats{Hits: 3, Misses: 1}.HitRatio())
	assert.Equal(t, "3 hits, 1 misses, 128 bytes requested",
		Stats{Hits: 3, Misses: 1, BytesRequested: 128}.String())
}
