package rangecache

import (
	"fmt"
	"io"
	"log/slog"
)

// Mode selects how a File is opened.
type Mode uint8

const (
	// ModeRead opens for random-access reading through a cache strategy.
	ModeRead Mode = iota
	// ModeWrite opens for sequential writing through the upload buffer,
	// replacing any existing object.
	ModeWrite
	// ModeAppend is ModeWrite keeping the existing object content.
	ModeAppend
)

// String returns the conventional short spelling: "rb", "wb" or "ab".
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "rb"
	case ModeWrite:
		return "wb"
	case ModeAppend:
		return "ab"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode maps the conventional mode strings to a Mode: "r"/"rb" read,
// "w"/"wb" write, "a"/"ab" append.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "r", "rb":
		return ModeRead, nil
	case "w", "wb":
		return ModeWrite, nil
	case "a", "ab":
		return ModeAppend, nil
	default:
		return 0, fmt.Errorf("rangecache: unknown file mode %q", s)
	}
}

// FileOption configures OpenFile.
type FileOption func(*fileConfig)

type fileConfig struct {
	blocksize  int64
	kind       Kind
	cacheOpts  []Option
	autocommit bool
	size       int64
	sizeSet    bool
	fetcher    Fetcher
	logger     *slog.Logger
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		blocksize:  DefaultBlockSize,
		kind:       KindReadAhead,
		autocommit: true,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithBlockSize sets the read granularity and the write flush threshold.
// Defaults to DefaultBlockSize.
func WithBlockSize(n int64) FileOption {
	return func(c *fileConfig) {
		c.blocksize = n
	}
}

// WithCache selects the caching strategy for read-mode files. Defaults to
// KindReadAhead.
func WithCache(kind Kind) FileOption {
	return func(c *fileConfig) {
		c.kind = kind
	}
}

// WithCacheOptions forwards strategy options to the cache constructor.
func WithCacheOptions(opts ...Option) FileOption {
	return func(c *fileConfig) {
		c.cacheOpts = append(c.cacheOpts, opts...)
	}
}

// WithAutoCommit controls whether Close finalizes the upload itself or
// leaves the session pending for an explicit Commit or Discard, as a
// surrounding transaction requires. On by default.
func WithAutoCommit(autocommit bool) FileOption {
	return func(c *fileConfig) {
		c.autocommit = autocommit
	}
}

// WithSize supplies an already-known file size, skipping the backend Info
// call on open. Read mode only.
func WithSize(n int64) FileOption {
	return func(c *fileConfig) {
		c.size = n
		c.sizeSet = true
	}
}

// WithFetcher routes a read-mode file's range reads through f instead of the
// backend's FetchRange. This is how a persistent layer slots in: wrap the
// backend's fetcher in a disk store view and hand the view here, and the
// file's strategy reads through the on-disk blocks.
func WithFetcher(f Fetcher) FileOption {
	return func(c *fileConfig) {
		c.fetcher = f
	}
}

// WithLogger sets the logger for debug-level cache diagnostics. Defaults to
// a discarding logger.
func WithLogger(logger *slog.Logger) FileOption {
	return func(c *fileConfig) {
		c.logger = logger
	}
}
