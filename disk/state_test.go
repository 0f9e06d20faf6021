package disk

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestBlockListMarshalPartial(t *testing.T) {
	t.Parallel()

	var bl blockList
	bl.add(3)
	bl.add(1)
	bl.add(2)

	data, err := json.Marshal(bl)
	require.NoError(t, err)
	require.JSONEq(t, "[1,2,3]", string(data))
}

func TestBlockListMarshalComplete(t *testing.T) {
	t.Parallel()

	var bl blockList
	bl.add(0)
	bl.add(1)
	bl.collapse(2)
	require.True(t, bl.complete)

	data, err := json.Marshal(bl)
	require.NoError(t, err)
	require.Equal(t, "true", string(data))
}

func TestBlockListUnmarshal(t *testing.T) {
	t.Parallel()

	var complete blockList
	require.NoError(t, json.Unmarshal([]byte("true"), &complete))
	require.True(t, complete.complete)
	require.True(t, complete.has(17))

	var empty blockList
	require.NoError(t, json.Unmarshal([]byte("false"), &empty))
	require.False(t, empty.complete)
	require.False(t, empty.has(0))

	var partial blockList
	require.NoError(t, json.Unmarshal([]byte("[0, 2]"), &partial))
	require.True(t, partial.has(0))
	require.False(t, partial.has(1))
	require.True(t, partial.has(2))

	var bad blockList
	require.Error(t, json.Unmarshal([]byte(`"nope"`), &bad))
}

func TestBlockListCollapseRequiresAllBlocks(t *testing.T) {
	t.Parallel()

	var bl blockList
	bl.add(0)
	bl.collapse(3)
	require.False(t, bl.complete)
	require.EqualValues(t, 1, bl.count())

	bl.add(1)
	bl.add(2)
	bl.collapse(3)
	require.True(t, bl.complete)
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := map[string]*sourceState{
		"s3://bucket/a": {
			Token:     "sha256:aaa",
			BlockSize: 64,
			Size:      1000,
			Time:      time.Now().UTC(),
			Blocks:    blockList{present: map[int64]struct{}{0: {}, 3: {}}},
		},
		"s3://bucket/b": {
			Token:      "sha256:bbb",
			BlockSize:  128,
			Size:       256,
			Compressed: true,
			Time:       time.Now().UTC(),
			Blocks:     blockList{complete: true},
		},
	}
	require.NoError(t, writeStates(dir, want))

	got, err := loadStates(dir)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got, cmp.AllowUnexported(blockList{})); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadStatesMissingFile(t *testing.T) {
	t.Parallel()

	states, err := loadStates(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, states)
}

func TestLoadStatesCorruptFileStartsFresh(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFile), []byte("{not json"), 0o600))

	states, err := loadStates(dir)
	require.NoError(t, err)
	require.Empty(t, states)
}
