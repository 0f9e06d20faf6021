package rangecache

import "errors"

var (
	// ErrClosed is returned when an operation is attempted on a closed file
	// or strategy.
	ErrClosed = errors.New("rangecache: already closed")

	// ErrNotReadable is returned when reading from a write-mode file.
	ErrNotReadable = errors.New("rangecache: file not open for reading")

	// ErrNotWritable is returned when writing to a read-mode file.
	ErrNotWritable = errors.New("rangecache: file not open for writing")

	// ErrNotSeekable is returned when seeking a write-mode file. Writes are
	// sequential only.
	ErrNotSeekable = errors.New("rangecache: write-mode files are not seekable")

	// ErrNegativeSeek is returned when a seek would land before the start of
	// the file.
	ErrNegativeSeek = errors.New("rangecache: seek before start of file")

	// ErrAlreadyForced is returned when a file is force-flushed twice, or
	// written to after a forced flush. A forced flush seals the file; the
	// only remaining operation is Close.
	ErrAlreadyForced = errors.New("rangecache: flush already forced")

	// ErrNoUpload is returned by Commit or Discard when no upload session is
	// pending.
	ErrNoUpload = errors.New("rangecache: no pending upload")

	// ErrBlockOutOfRange is returned when a block index beyond the known
	// block count is requested. It indicates a bug in the calling code, not
	// a backend failure.
	ErrBlockOutOfRange = errors.New("rangecache: block index out of range")

	// ErrUnknownRange is returned by a parts cache when a requested range is
	// not covered by the declared parts and no fallback fetcher was given.
	ErrUnknownRange = errors.New("rangecache: range not in known parts")

	// ErrAnonymousMmap is returned when snapshotting an mmap cache that has
	// no named location. Anonymous maps live in a temp file that is removed
	// on Close, so there is nothing durable to capture.
	ErrAnonymousMmap = errors.New("rangecache: mmap cache has no location")

	// ErrUnknownKind is returned for strategy names or Kind values this
	// package does not recognize.
	ErrUnknownKind = errors.New("rangecache: unknown cache kind")
)
