package aferofs

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/afero"

	"github.com/meigma/rangecache"
	"github.com/meigma/rangecache/internal/pathutil"
)

var errUploadFinished = errors.New("aferofs: upload already finished")

// StartUpload begins staging an upload for path. Chunks accumulate in a
// hidden temp file in the destination directory; Commit renames it into
// place and Discard removes it. When appending, the temp file is pre-filled
// with the existing content so chunks continue where the object ends.
func (b *FS) StartUpload(p string, appending bool) (rangecache.Upload, error) {
	p = norm(p)
	dir := parentDir(p)
	if dir != "." && dir != "/" {
		if err := b.fs.MkdirAll(dir, b.dirPerm); err != nil {
			return nil, err
		}
	}
	tmp, err := afero.TempFile(b.fs, dir, "."+pathutil.Base(p)+".upload-*")
	if err != nil {
		return nil, err
	}
	u := &upload{
		fs:   b.fs,
		f:    tmp,
		tmp:  tmp.Name(),
		dest: p,
		perm: b.filePerm,
	}
	if appending {
		if err := u.prefill(); err != nil {
			u.Discard()
			return nil, err
		}
	}
	return u, nil
}

// upload is one staged upload session. Not safe for concurrent use; the
// file layer drives it from a single goroutine.
type upload struct {
	fs   afero.Fs
	f    afero.File
	tmp  string
	dest string
	perm os.FileMode
	done bool
}

// prefill copies the existing destination content into the temp file. A
// missing destination is fine; appending to nothing is a plain write.
func (u *upload) prefill() error {
	src, err := u.fs.Open(u.dest)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(u.f, src)
	return err
}

// WriteChunk appends p to the staged file. The final chunk is synced so a
// commit never renames bytes the filesystem hasn't accepted.
func (u *upload) WriteChunk(p []byte, final bool) error {
	if u.done {
		return errUploadFinished
	}
	if _, err := u.f.Write(p); err != nil {
		return err
	}
	if final {
		return u.f.Sync()
	}
	return nil
}

// Commit closes the staged file and renames it over the destination. On
// any failure the temp file is removed; the destination is never left
// half-written.
func (u *upload) Commit() error {
	if u.done {
		return errUploadFinished
	}
	u.done = true
	if err := u.f.Close(); err != nil {
		u.fs.Remove(u.tmp)
		return err
	}
	if err := u.fs.Chmod(u.tmp, u.perm); err != nil {
		u.fs.Remove(u.tmp)
		return err
	}
	if err := u.fs.Rename(u.tmp, u.dest); err != nil {
		// Some afero backends refuse to rename over an existing file.
		// Clear the destination and retry once.
		if rerr := u.fs.Remove(u.dest); rerr != nil {
			u.fs.Remove(u.tmp)
			return err
		}
		if err := u.fs.Rename(u.tmp, u.dest); err != nil {
			u.fs.Remove(u.tmp)
			return err
		}
	}
	return nil
}

// Discard aborts the session and removes the staged file. Discarding a
// finished session is a no-op.
func (u *upload) Discard() error {
	if u.done {
		return nil
	}
	u.done = true
	u.f.Close()
	if err := u.fs.Remove(u.tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
