package aferofs

import (
	"github.com/spf13/afero"

	"github.com/meigma/rangecache"
	"github.com/meigma/rangecache/internal/pathutil"
)

// Ls lists the directory at path, sorted by name, serving repeated calls
// from the listing cache until the entry expires or is invalidated. Entry
// names are full paths relative to the backend root. The returned slice is
// shared with the cache; treat it as read-only.
func (b *FS) Ls(p string) ([]rangecache.Info, error) {
	dir := norm(p)
	if cached, ok := b.lists.Get(dir); ok {
		return cached, nil
	}
	fis, err := afero.ReadDir(b.fs, dir)
	if err != nil {
		return nil, err
	}
	infos := make([]rangecache.Info, 0, len(fis))
	for _, fi := range fis {
		full := fi.Name()
		if dir != "." {
			full = pathutil.Join(dir, fi.Name())
		}
		infos = append(infos, fileInfo(full, fi))
	}
	b.lists.Set(dir, infos)
	return infos, nil
}
