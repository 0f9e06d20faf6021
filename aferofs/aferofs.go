// Package aferofs adapts an afero filesystem to the rangecache Backend
// contract. It is the reference backend: metadata, ranged reads, staged
// uploads and listing invalidation expressed over any afero.Fs, which makes
// the same code serve in-memory test fixtures and real local trees.
//
// Uploads are staged in a hidden temp file beside the destination and
// renamed into place on commit, so an aborted or discarded upload never
// leaves a partial object visible under the target name.
//
// Paths are used as given after cleaning. Mixing absolute and relative
// spellings of the same file defeats the listing cache; pick one.
package aferofs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/spf13/afero"

	"github.com/meigma/rangecache"
	"github.com/meigma/rangecache/dircache"
	"github.com/meigma/rangecache/internal/pathutil"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// Option configures an FS.
type Option func(*config)

type config struct {
	dirPerm  os.FileMode
	filePerm os.FileMode
	listOpts []dircache.Option
}

// WithDirPerm sets permissions for directories created to hold uploads.
func WithDirPerm(perm os.FileMode) Option {
	return func(c *config) { c.dirPerm = perm }
}

// WithFilePerm sets permissions for committed uploads.
func WithFilePerm(perm os.FileMode) Option {
	return func(c *config) { c.filePerm = perm }
}

// WithListTTL sets how long a cached directory listing stays valid. Zero,
// the default, means listings never expire.
func WithListTTL(ttl time.Duration) Option {
	return func(c *config) { c.listOpts = append(c.listOpts, dircache.WithTTL(ttl)) }
}

// WithMaxListings bounds the number of directories whose listings are
// retained, evicting the least recently used beyond n.
func WithMaxListings(n int) Option {
	return func(c *config) { c.listOpts = append(c.listOpts, dircache.WithMaxEntries(n)) }
}

// WithoutListCache disables listing caching; every Ls hits the filesystem.
func WithoutListCache() Option {
	return func(c *config) { c.listOpts = append(c.listOpts, dircache.Disabled()) }
}

// FS implements rangecache.Backend over an afero filesystem.
type FS struct {
	fs       afero.Fs
	lists    *dircache.Cache[[]rangecache.Info]
	dirPerm  os.FileMode
	filePerm os.FileMode
}

// New wraps fsys as a Backend.
func New(fsys afero.Fs, opts ...Option) (*FS, error) {
	if fsys == nil {
		return nil, errors.New("aferofs: filesystem is nil")
	}
	cfg := config{dirPerm: defaultDirPerm, filePerm: defaultFilePerm}
	for _, opt := range opts {
		opt(&cfg)
	}
	lists, err := dircache.New[[]rangecache.Info](cfg.listOpts...)
	if err != nil {
		return nil, err
	}
	return &FS{
		fs:       fsys,
		lists:    lists,
		dirPerm:  cfg.dirPerm,
		filePerm: cfg.filePerm,
	}, nil
}

// norm maps a storage path to its cache key: cleaned, with "" meaning the
// filesystem root.
func norm(p string) string {
	if p == "" {
		return "."
	}
	return path.Clean(p)
}

// Info returns metadata for path. Directory sizes are reported as zero so
// tokens stay stable across filesystems.
func (b *FS) Info(p string) (rangecache.Info, error) {
	p = norm(p)
	fi, err := b.fs.Stat(p)
	if err != nil {
		return rangecache.Info{}, err
	}
	return fileInfo(p, fi), nil
}

// FetchRange reads the bytes in [start, end) of path. The range is clamped
// to the current file size; reads past EOF return the available bytes.
func (b *FS) FetchRange(p string, start, end int64) ([]byte, error) {
	f, err := b.fs.Open(norm(p))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if end > fi.Size() {
		end = fi.Size()
	}
	if start < 0 {
		start = 0
	}
	if start >= end {
		return []byte{}, nil
	}
	buf := make([]byte, end-start)
	n, err := f.ReadAt(buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// InvalidateCache drops the cached listing for path. An empty path drops
// every listing.
func (b *FS) InvalidateCache(p string) {
	if p == "" {
		b.lists.Clear()
		return
	}
	b.lists.Delete(norm(p))
}

// Open opens path through this backend. It is shorthand for
// rangecache.OpenFile(b, path, mode, opts...).
func (b *FS) Open(p string, mode rangecache.Mode, opts ...rangecache.FileOption) (*rangecache.File, error) {
	return rangecache.OpenFile(b, p, mode, opts...)
}

func fileInfo(full string, fi fs.FileInfo) rangecache.Info {
	size := fi.Size()
	if fi.IsDir() {
		size = 0
	}
	return rangecache.Info{
		Name:    full,
		Size:    size,
		ModTime: fi.ModTime(),
		Dir:     fi.IsDir(),
	}
}

var _ rangecache.Backend = (*FS)(nil)

// parentDir returns the directory that will hold path, in the form the
// underlying filesystem expects.
func parentDir(p string) string {
	dir := pathutil.Parent(p)
	if dir == "" {
		return "."
	}
	return dir
}
