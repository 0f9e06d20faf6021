// Package disk persists fetched blocks on the local filesystem so ranges
// cached by one process are available to the next. A Store owns a cache
// directory holding a state file plus content-addressed block files; Wrap
// binds a remote source to the store and yields a Fetcher-compatible view
// that reads through the on-disk blocks.
package disk

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/rangecache"
)

const (
	blocksDir             = "blocks"
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
)

// Store is a persistent block store rooted at a local directory.
type Store struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64
	ttl            time.Duration
	compress       bool
	logger         *slog.Logger

	bytes      atomic.Int64
	fetchGroup singleflight.Group
	pruneMu    sync.Mutex

	stateMu sync.Mutex
	states  map[string]*sourceState

	enc *zstd.Encoder
	dec *zstd.Decoder

	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64
	ttl            time.Duration
	compress       bool
	logger         *slog.Logger
}

// WithMaxBytes bounds the total size of block files. Writes that would
// exceed the bound trigger a prune of the oldest blocks first. Zero means
// unbounded.
func WithMaxBytes(n int64) StoreOption {
	return func(c *storeConfig) {
		c.maxBytes = n
	}
}

// WithShardPrefixLen sets how many hex characters of the block key name
// the shard subdirectory.
func WithShardPrefixLen(n int) StoreOption {
	return func(c *storeConfig) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets permissions for created directories.
func WithDirPerm(perm os.FileMode) StoreOption {
	return func(c *storeConfig) {
		c.dirPerm = perm
	}
}

// WithCompression stores blocks zstd-compressed. Sources cached without
// compression are invalidated when reopened on a compressing store, and
// vice versa.
func WithCompression(on bool) StoreOption {
	return func(c *storeConfig) {
		c.compress = on
	}
}

// WithExpiry invalidates a source's cached blocks once they are older
// than ttl. Zero keeps blocks indefinitely.
func WithExpiry(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

// WithStoreLogger sets the logger used for background cache maintenance.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(c *storeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewStore opens or creates a block store rooted at dir.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if dir == "" {
		return nil, errors.New("disk: store dir is empty")
	}

	cfg := storeConfig{
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.shardPrefixLen < 0 || cfg.shardPrefixLen > 4 {
		return nil, errors.New("disk: shard prefix length must be between 0 and 4")
	}
	if cfg.maxBytes < 0 {
		return nil, errors.New("disk: max bytes must be non-negative")
	}
	if cfg.ttl < 0 {
		return nil, errors.New("disk: expiry must be non-negative")
	}

	blocksPath := filepath.Join(dir, blocksDir)
	if err := os.MkdirAll(blocksPath, cfg.dirPerm); err != nil {
		return nil, fmt.Errorf("disk: create store dir: %w", err)
	}

	states, err := loadStates(dir)
	if err != nil {
		return nil, fmt.Errorf("disk: load state: %w", err)
	}

	size, err := dirSize(blocksPath)
	if err != nil {
		return nil, fmt.Errorf("disk: measure store: %w", err)
	}

	s := &Store{
		dir:            dir,
		shardPrefixLen: cfg.shardPrefixLen,
		dirPerm:        cfg.dirPerm,
		maxBytes:       cfg.maxBytes,
		ttl:            cfg.ttl,
		compress:       cfg.compress,
		logger:         cfg.logger,
		states:         states,
		now:            time.Now,
	}
	s.bytes.Store(size)

	if cfg.compress {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderConcurrency(1),
			zstd.WithLowerEncoderMem(true),
		)
		if err != nil {
			return nil, fmt.Errorf("disk: create encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
		)
		if err != nil {
			enc.Close()
			return nil, fmt.Errorf("disk: create decoder: %w", err)
		}
		s.enc = enc
		s.dec = dec
	}

	return s, nil
}

// Wrap binds a source to the store. sourceID names the source (typically
// its URL or path), token fingerprints its content, and fetcher reads the
// authoritative bytes. If the source was cached before under the same
// token, size, and block size, its blocks are reused without refetching;
// any mismatch or expiry discards the stale blocks first.
func (s *Store) Wrap(sourceID, token string, blocksize, size int64, fetcher rangecache.Fetcher) (*Cached, error) {
	if sourceID == "" {
		return nil, errors.New("disk: source id is empty")
	}
	if blocksize <= 0 {
		return nil, errors.New("disk: blocksize must be positive")
	}
	if size < 0 {
		return nil, errors.New("disk: size must be non-negative")
	}
	if fetcher == nil {
		return nil, errors.New("disk: fetcher is nil")
	}

	s.stateMu.Lock()
	st := s.states[sourceID]
	if st != nil && !s.usableLocked(st, token, blocksize, size) {
		s.dropLocked(sourceID, st)
		st = nil
	}
	if st == nil {
		st = &sourceState{
			Token:      token,
			BlockSize:  blocksize,
			Size:       size,
			Compressed: s.compress,
			Time:       s.now(),
		}
		s.states[sourceID] = st
		if err := writeStates(s.dir, s.states); err != nil {
			s.stateMu.Unlock()
			return nil, fmt.Errorf("disk: save state: %w", err)
		}
	}
	s.stateMu.Unlock()

	nblocks := int64(0)
	if size > 0 {
		nblocks = (size + blocksize - 1) / blocksize
	}
	return &Cached{
		store:     s,
		sourceID:  sourceID,
		blocksize: blocksize,
		size:      size,
		nblocks:   nblocks,
		fetcher:   fetcher,
		state:     st,
	}, nil
}

// usableLocked reports whether a recorded state still matches the source
// being wrapped. Requires stateMu.
func (s *Store) usableLocked(st *sourceState, token string, blocksize, size int64) bool {
	if st.Token != token || st.BlockSize != blocksize || st.Size != size {
		return false
	}
	if st.Compressed != s.compress {
		return false
	}
	if s.ttl > 0 && s.now().Sub(st.Time) > s.ttl {
		return false
	}
	return true
}

// Forget drops a source's state and block files.
func (s *Store) Forget(sourceID string) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	st, ok := s.states[sourceID]
	if !ok {
		return nil
	}
	s.dropLocked(sourceID, st)
	return writeStates(s.dir, s.states)
}

// dropLocked removes the state entry and best-effort deletes its block
// files. Requires stateMu.
func (s *Store) dropLocked(sourceID string, st *sourceState) {
	var indices []int64
	if st.Blocks.complete {
		n := st.nblocks()
		indices = make([]int64, 0, n)
		for i := int64(0); i < n; i++ {
			indices = append(indices, i)
		}
	} else {
		indices = st.Blocks.indices()
	}
	for _, i := range indices {
		path := s.blockPath(blockKey(sourceID, st.BlockSize, i))
		if info, err := os.Stat(path); err == nil {
			if os.Remove(path) == nil {
				s.bytes.Add(-info.Size())
			}
		}
	}
	delete(s.states, sourceID)
}

// Sources lists the source IDs with recorded state, sorted.
func (s *Store) Sources() []string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	out := make([]string, 0, len(s.states))
	for id := range s.states {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// SizeBytes returns the total size of block files on disk.
func (s *Store) SizeBytes() int64 {
	return s.bytes.Load()
}

// MaxBytes returns the configured size bound, zero if unbounded.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Prune removes the oldest block files until the store holds at most
// target bytes. It returns the number of bytes freed.
func (s *Store) Prune(target int64) (int64, error) {
	if target < 0 {
		return 0, errors.New("disk: prune target must be non-negative")
	}

	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()

	freed, remaining, err := pruneDir(filepath.Join(s.dir, blocksDir), target)
	if err != nil {
		return freed, fmt.Errorf("disk: prune store: %w", err)
	}
	s.bytes.Store(remaining)
	return freed, nil
}

// Close flushes the state file and releases the compression codecs.
func (s *Store) Close() error {
	s.stateMu.Lock()
	err := writeStates(s.dir, s.states)
	s.stateMu.Unlock()

	if s.enc != nil {
		s.enc.Close()
	}
	if s.dec != nil {
		s.dec.Close()
	}
	if err != nil {
		return fmt.Errorf("disk: save state: %w", err)
	}
	return nil
}

// blockKey derives the content-addressed name for one block of a source.
func blockKey(sourceID string, blocksize, index int64) string {
	return digest.FromString(fmt.Sprintf("%s\x00%d\x00%d", sourceID, blocksize, index)).Encoded()
}

// blockPath maps a block key to its sharded location under the store.
func (s *Store) blockPath(key string) string {
	if s.shardPrefixLen == 0 || len(key) <= s.shardPrefixLen {
		return filepath.Join(s.dir, blocksDir, key)
	}
	return filepath.Join(s.dir, blocksDir, key[:s.shardPrefixLen], key)
}

// getBlock returns one block's bytes, reading the block file when present
// and falling back to fetch otherwise. Concurrent requests for the same
// block share a single fill. The second result reports whether the block
// had to be fetched.
func (s *Store) getBlock(sourceID string, blocksize, index, blockLen int64, fetch func() ([]byte, error)) ([]byte, bool, error) {
	type blockResult struct {
		data    []byte
		fetched bool
	}

	key := blockKey(sourceID, blocksize, index)
	v, err, _ := s.fetchGroup.Do(key, func() (any, error) {
		path := s.blockPath(key)

		raw, err := os.ReadFile(path)
		if err == nil {
			data, decErr := s.decode(raw)
			if decErr == nil && int64(len(data)) == blockLen {
				return blockResult{data: data}, nil
			}
			// Truncated or unreadable block file. Drop it and refetch.
			if os.Remove(path) == nil {
				s.bytes.Add(-int64(len(raw)))
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}

		data, err := fetch()
		if err != nil {
			return nil, err
		}
		if int64(len(data)) != blockLen {
			return nil, fmt.Errorf("disk: block %d of %s: %w", index, sourceID, io.ErrUnexpectedEOF)
		}

		// Persisting is best effort. A full disk degrades to fetching.
		if err := s.writeBlock(path, s.encode(data)); err != nil {
			s.logger.Warn("failed to persist block",
				"source", sourceID,
				"block", index,
				"error", err,
			)
		}
		return blockResult{data: data, fetched: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(blockResult)
	return res.data, res.fetched, nil
}

// writeBlock stores raw block bytes via a temp file and rename.
func (s *Store) writeBlock(path string, raw []byte) error {
	if err := s.ensureCapacity(int64(len(raw))); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}

	s.bytes.Add(int64(len(raw)))
	return nil
}

// ensureCapacity prunes until incoming bytes fit under the size bound.
func (s *Store) ensureCapacity(incoming int64) error {
	if s.maxBytes <= 0 {
		return nil
	}
	if incoming > s.maxBytes {
		return fmt.Errorf("disk: block of %d bytes exceeds store bound of %d", incoming, s.maxBytes)
	}
	if s.bytes.Load()+incoming <= s.maxBytes {
		return nil
	}
	freed, err := s.Prune(s.maxBytes - incoming)
	if err != nil {
		return err
	}
	s.logger.Debug("pruned block store",
		"freed", freed,
		"size", s.bytes.Load(),
		"max", s.maxBytes,
	)
	return nil
}

func (s *Store) encode(data []byte) []byte {
	if s.enc == nil {
		return data
	}
	return s.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func (s *Store) decode(raw []byte) ([]byte, error) {
	if s.dec == nil {
		return raw, nil
	}
	return s.dec.DecodeAll(raw, nil)
}

// saveState persists the state file, logging instead of failing so a
// transient write error never breaks an otherwise successful read.
func (s *Store) saveState() {
	s.stateMu.Lock()
	err := writeStates(s.dir, s.states)
	s.stateMu.Unlock()
	if err != nil {
		s.logger.Warn("failed to save cache state", "error", err)
	}
}
