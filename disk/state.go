package disk

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/natefinch/atomic"
)

// stateFile sits next to the blocks directory and records, per source,
// which blocks are on disk and the metadata they were fetched under.
const stateFile = "cache.json"

// sourceState is the durable record for one wrapped source.
type sourceState struct {
	Token      string    `json:"content_hash"`
	BlockSize  int64     `json:"block_size"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	Time       time.Time `json:"time"`
	Blocks     blockList `json:"blocks"`
}

func (st *sourceState) nblocks() int64 {
	if st.BlockSize <= 0 {
		return 0
	}
	return (st.Size + st.BlockSize - 1) / st.BlockSize
}

// blockList is the set of block indices present on disk. Once every block
// of the source has been seen it collapses to a complete marker, which
// serializes as the JSON literal true instead of an exhaustive array.
type blockList struct {
	complete bool
	present  map[int64]struct{}
}

func (b *blockList) has(i int64) bool {
	if b.complete {
		return true
	}
	_, ok := b.present[i]
	return ok
}

// add records block i and reports whether the set changed.
func (b *blockList) add(i int64) bool {
	if b.complete {
		return false
	}
	if b.present == nil {
		b.present = make(map[int64]struct{})
	}
	if _, ok := b.present[i]; ok {
		return false
	}
	b.present[i] = struct{}{}
	return true
}

// collapse switches to the complete marker once n blocks are present.
func (b *blockList) collapse(n int64) {
	if b.complete {
		return
	}
	if n > 0 && int64(len(b.present)) >= n {
		b.complete = true
		b.present = nil
	}
}

func (b *blockList) count() int64 {
	return int64(len(b.present))
}

// indices returns the recorded blocks in ascending order. For a complete
// list the caller derives the range from the block count instead.
func (b *blockList) indices() []int64 {
	out := make([]int64, 0, len(b.present))
	for i := range b.present {
		out = append(out, i)
	}
	slices.SortFunc(out, cmp.Compare)
	return out
}

func (b blockList) MarshalJSON() ([]byte, error) {
	if b.complete {
		return []byte("true"), nil
	}
	return json.Marshal(b.indices())
}

func (b *blockList) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(bytes.TrimSpace(data), []byte("true")):
		*b = blockList{complete: true}
		return nil
	case bytes.Equal(bytes.TrimSpace(data), []byte("false")):
		*b = blockList{}
		return nil
	}
	var indices []int64
	if err := json.Unmarshal(data, &indices); err != nil {
		return fmt.Errorf("disk: block list: %w", err)
	}
	*b = blockList{}
	for _, i := range indices {
		b.add(i)
	}
	return nil
}

// loadStates reads the state file under dir. A missing file is an empty
// state; a corrupt one is discarded, since every block is re-verified
// against its file on read anyway.
func loadStates(dir string) (map[string]*sourceState, error) {
	states := make(map[string]*sourceState)
	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return states, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &states); err != nil {
		return make(map[string]*sourceState), nil
	}
	return states, nil
}

// writeStates persists the state file atomically, so a crash mid-write
// never leaves a truncated file behind.
func writeStates(dir string, states map[string]*sourceState) error {
	data, err := json.Marshal(states)
	if err != nil {
		return err
	}
	return atomic.WriteFile(filepath.Join(dir, stateFile), bytes.NewReader(data))
}
