package rangecache

import (
	"errors"
	"fmt"
)

// DefaultBlockSize is the fetch granularity used when none is given: the
// read-ahead span for buffering strategies and the flush threshold for
// write-mode files.
const DefaultBlockSize = 5 * 1024 * 1024

// DefaultMaxBlocks bounds a BlockCache when no limit is configured.
const DefaultMaxBlocks = 32

// Kind identifies a caching strategy variant. The set is closed: dispatch
// happens once, at construction, in [New].
type Kind uint8

const (
	// KindNone delegates every request straight to the fetcher.
	KindNone Kind = iota
	// KindMmap lazily fills a file-backed memory map, block by block.
	KindMmap
	// KindBytes grows one in-memory buffer on either side of the read
	// position, trimming its front to bound memory.
	KindBytes
	// KindReadAhead keeps a single buffer extending one block past the most
	// recent request.
	KindReadAhead
	// KindBlock caches fixed-size blocks in a bounded per-instance LRU.
	KindBlock
	// KindFirst caches only the first block of the file.
	KindFirst
	// KindAll holds the complete file contents in memory.
	KindAll
	// KindParts serves byte ranges declared at construction.
	KindParts
)

var kindNames = [...]string{
	KindNone:      "none",
	KindMmap:      "mmap",
	KindBytes:     "bytes",
	KindReadAhead: "readahead",
	KindBlock:     "block",
	KindFirst:     "first",
	KindAll:       "all",
	KindParts:     "parts",
}

// String returns the strategy name recognized by ParseKind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps a strategy name to its Kind. Recognized names are "none",
// "mmap", "bytes", "readahead", "block", "first", "all" and "parts".
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Strategy answers byte-range read requests, deciding what is already
// buffered and what must be fetched from the backend.
//
// A strategy is not safe for concurrent use. Each File owns exactly one
// instance and serializes access to it; independent files get independent
// strategies.
type Strategy interface {
	// Fetch returns the bytes in [start, end). A negative start means the
	// beginning of the file, a negative end means the end of the file.
	// Ranges past EOF are truncated; an empty or inverted range returns an
	// empty slice without consulting the backend. The returned slice is
	// owned by the caller.
	Fetch(start, end int64) ([]byte, error)

	// Kind reports the strategy variant.
	Kind() Kind

	// Size returns the total logical file length in bytes.
	Size() int64

	// Stats returns cache effectiveness counters.
	Stats() Stats

	// Close releases any resources held by the strategy.
	Close() error
}

var (
	_ Strategy = (*NoCache)(nil)
	_ Strategy = (*MmapCache)(nil)
	_ Strategy = (*BytesCache)(nil)
	_ Strategy = (*ReadAheadCache)(nil)
	_ Strategy = (*BlockCache)(nil)
	_ Strategy = (*FirstBlockCache)(nil)
	_ Strategy = (*AllBytes)(nil)
	_ Strategy = (*KnownParts)(nil)
)

// New builds the strategy for kind. blocksize is the fetch granularity,
// fetcher the backend range reader, size the total file length in bytes.
// Options not consumed by the chosen kind are ignored.
func New(kind Kind, blocksize int64, fetcher Fetcher, size int64, opts ...Option) (Strategy, error) {
	switch kind {
	case KindNone:
		return NewNoCache(fetcher, size)
	case KindMmap:
		return NewMmap(blocksize, fetcher, size, opts...)
	case KindBytes:
		return NewBytes(blocksize, fetcher, size, opts...)
	case KindReadAhead:
		return NewReadAhead(blocksize, fetcher, size)
	case KindBlock:
		return NewBlock(blocksize, fetcher, size, opts...)
	case KindFirst:
		return NewFirstBlock(blocksize, fetcher, size)
	case KindAll:
		return NewAllBytes(fetcher, size, opts...)
	case KindParts:
		return NewKnownParts(blocksize, fetcher, size, opts...)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
}

// base carries the fields every strategy shares.
type base struct {
	blocksize int64
	fetcher   Fetcher
	size      int64
	stats     Stats
}

func (b *base) Size() int64  { return b.size }
func (b *base) Stats() Stats { return b.stats }

func newBase(blocksize int64, fetcher Fetcher, size int64) (base, error) {
	if blocksize <= 0 {
		return base{}, fmt.Errorf("rangecache: block size must be > 0, got %d", blocksize)
	}
	if fetcher == nil {
		return base{}, errors.New("rangecache: fetcher is nil")
	}
	if size < 0 {
		return base{}, fmt.Errorf("rangecache: size must be >= 0, got %d", size)
	}
	return base{blocksize: blocksize, fetcher: fetcher, size: size}, nil
}

// clampRange normalizes a requested range to the file bounds. A negative
// start selects the beginning of the file, a negative end the end of it. ok
// is false when the normalized range is empty: zero-length file, start at
// or past EOF, or start >= end. Every strategy short-circuits that case
// identically, returning empty bytes without a fetcher call.
func clampRange(start, end, size int64) (int64, int64, bool) {
	if start < 0 {
		start = 0
	}
	if end < 0 || end > size {
		end = size
	}
	if size == 0 || start >= size || start >= end {
		return 0, 0, false
	}
	return start, end, true
}
