// Package testutil provides in-memory fetchers with call accounting for
// cache tests and benchmarks.
package testutil

import (
	"fmt"
	"sync/atomic"
)

// Letters is 52 bytes of distinct ascii content, handy as a small ground
// truth where every offset is identifiable.
const Letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// CountingFetcher serves byte ranges from an in-memory buffer and counts
// backend calls, behaving at EOF the way a real remote fetcher does.
type CountingFetcher struct {
	data    []byte
	calls   atomic.Int64
	fetched atomic.Int64
	failing atomic.Bool
}

// NewCountingFetcher returns a fetcher over data.
func NewCountingFetcher(data []byte) *CountingFetcher {
	return &CountingFetcher{data: data}
}

// Fetch returns the bytes in [start, end) clamped to the buffer. Every
// invocation is counted, including ones that fail.
func (f *CountingFetcher) Fetch(start, end int64) ([]byte, error) {
	f.calls.Add(1)
	if f.failing.Load() {
		return nil, fmt.Errorf("fetch [%d, %d): backend unavailable", start, end)
	}
	if start < 0 {
		start = 0
	}
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	if start >= end {
		return nil, nil
	}
	f.fetched.Add(end - start)
	out := make([]byte, end-start)
	copy(out, f.data[start:end])
	return out, nil
}

// Size returns the length of the backing buffer.
func (f *CountingFetcher) Size() int64 {
	return int64(len(f.data))
}

// Data returns the backing buffer as ground truth for comparisons.
func (f *CountingFetcher) Data() []byte {
	return f.data
}

// Calls returns the number of Fetch invocations so far.
func (f *CountingFetcher) Calls() int64 {
	return f.calls.Load()
}

// FetchedBytes returns the total number of bytes served so far.
func (f *CountingFetcher) FetchedBytes() int64 {
	return f.fetched.Load()
}

// SetFailing toggles forced failures for subsequent fetches.
func (f *CountingFetcher) SetFailing(fail bool) {
	f.failing.Store(fail)
}

// Pattern returns n bytes of repeating ascii content so any slice of it is
// position-identifiable.
func Pattern(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = Letters[i%len(Letters)]
	}
	return out
}
