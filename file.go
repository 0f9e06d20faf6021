package rangecache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/meigma/rangecache/internal/pathutil"
)

// File is a buffered view of one backend object. Read-mode files are
// seekable and own a caching strategy; write-mode files buffer sequential
// writes and upload them in blocksize chunks. A File is not safe for
// concurrent use; run one File per goroutine instead.
type File struct {
	backend Backend
	path    string
	mode    Mode
	info    Info
	token   string

	blocksize  int64
	autocommit bool
	logger     *slog.Logger

	loc  int64
	size int64

	cache Strategy

	buffer  bytes.Buffer
	upload  Upload
	started bool
	offset  int64
	forced  bool

	closed bool
}

var (
	_ io.Reader = (*File)(nil)
	_ io.Writer = (*File)(nil)
	_ io.Seeker = (*File)(nil)
	_ io.Closer = (*File)(nil)
)

// OpenFile opens path through b. Read mode queries the backend for metadata
// and builds the configured cache strategy around it; write and append
// modes start with an empty buffer and defer the upload session until the
// first flush.
func OpenFile(b Backend, path string, mode Mode, opts ...FileOption) (*File, error) {
	if b == nil {
		return nil, errors.New("rangecache: backend is nil")
	}
	if path == "" {
		return nil, errors.New("rangecache: path is empty")
	}
	cfg := defaultFileConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.blocksize <= 0 {
		return nil, fmt.Errorf("rangecache: block size must be > 0, got %d", cfg.blocksize)
	}
	f := &File{
		backend:    b,
		path:       path,
		mode:       mode,
		blocksize:  cfg.blocksize,
		autocommit: cfg.autocommit,
		logger:     cfg.logger,
	}
	switch mode {
	case ModeRead:
		info := Info{Name: path, Size: cfg.size}
		if !cfg.sizeSet {
			var err error
			info, err = b.Info(path)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", path, err)
			}
		}
		f.info = info
		f.token = info.Token()
		f.size = info.Size
		fetch := cfg.fetcher
		if fetch == nil {
			fetch = func(start, end int64) ([]byte, error) {
				return b.FetchRange(path, start, end)
			}
		}
		cache, err := New(cfg.kind, cfg.blocksize, fetch, f.size, cfg.cacheOpts...)
		if err != nil {
			return nil, err
		}
		f.cache = cache
	case ModeWrite, ModeAppend:
		// Nothing to do up front; StartUpload happens on the first flush.
	default:
		return nil, fmt.Errorf("rangecache: invalid mode %d", uint8(mode))
	}
	return f, nil
}

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.path }

// Mode returns the mode the file was opened with.
func (f *File) Mode() Mode { return f.mode }

// Size returns the object size in bytes. It is only meaningful in read
// mode; write-mode files report the bytes written so far.
func (f *File) Size() int64 {
	if f.mode == ModeRead {
		return f.size
	}
	return f.loc
}

// Tell returns the current position: the read cursor in read mode, the
// total bytes written in write mode.
func (f *File) Tell() int64 { return f.loc }

// Uploaded returns the number of buffered bytes already handed to the
// upload session. It trails Tell until a flush catches up.
func (f *File) Uploaded() int64 { return f.offset }

// Info returns the backend metadata captured at open time (read mode).
func (f *File) Info() Info { return f.info }

// Stats returns the cache counters of a read-mode file. Write-mode files
// report zeroes.
func (f *File) Stats() Stats {
	if f.cache == nil {
		return Stats{}
	}
	return f.cache.Stats()
}

// Token returns the metadata fingerprint captured at open time. Write-mode
// handles have no stable fingerprint until committed and return "".
func (f *File) Token() string {
	if f.mode != ModeRead {
		return ""
	}
	return f.token
}

// Equal reports whether two read-mode handles refer to the same object
// version, by metadata fingerprint. A write-mode handle equals only itself.
func (f *File) Equal(other *File) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.mode != ModeRead || other.mode != ModeRead {
		return f == other
	}
	return f.token == other.token
}

// Read fills p from the current position, advancing it by the number of
// bytes read. At end of file it returns 0, io.EOF.
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if f.mode != ModeRead {
		return 0, ErrNotReadable
	}
	if len(p) == 0 {
		return 0, nil
	}
	if f.loc >= f.size {
		return 0, io.EOF
	}
	out, err := f.cache.Fetch(f.loc, f.loc+int64(len(p)))
	if err != nil {
		return 0, err
	}
	n := copy(p, out)
	f.loc += int64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Seek moves the read cursor. Write-mode files are sequential only and
// fail with ErrNotSeekable. Seeking past EOF is allowed; subsequent reads
// return io.EOF.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if f.mode != ModeRead {
		return 0, ErrNotSeekable
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.loc + offset
	case io.SeekEnd:
		abs = f.size + offset
	default:
		return 0, fmt.Errorf("rangecache: invalid seek whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeSeek, abs)
	}
	f.loc = abs
	return abs, nil
}

// ReadUntil reads forward until delim is found, returning everything up to
// and including it and leaving the cursor just past it. When the file ends
// first, the accumulated bytes come back with io.EOF, in the manner of
// bufio.Reader.ReadBytes. The scan is chunk-local: a multi-byte delimiter
// straddling a block boundary is not found.
func (f *File) ReadUntil(delim []byte) ([]byte, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if f.mode != ModeRead {
		return nil, ErrNotReadable
	}
	if len(delim) == 0 {
		return nil, errors.New("rangecache: empty delimiter")
	}
	var out []byte
	chunk := make([]byte, f.blocksize)
	for {
		start := f.loc
		n, err := f.Read(chunk)
		if err != nil && err != io.EOF {
			return nil, err
		}
		if n == 0 {
			return out, io.EOF
		}
		part := chunk[:n]
		if i := bytes.Index(part, delim); i >= 0 {
			out = append(out, part[:i+len(delim)]...)
			f.loc = start + int64(i+len(delim))
			return out, nil
		}
		out = append(out, part...)
	}
}

// ReadLine reads up to and including the next newline.
func (f *File) ReadLine() ([]byte, error) {
	return f.ReadUntil([]byte{'\n'})
}

// invalidateListings drops the backend's cached listings for the file's
// path and its parent directory, after a write made them stale.
func (f *File) invalidateListings() {
	f.backend.InvalidateCache(f.path)
	f.backend.InvalidateCache(pathutil.Parent(f.path))
}
