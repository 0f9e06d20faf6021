package disk

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// dirSize totals the regular files under dir.
func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// pruneDir removes the oldest regular files under dir until at most
// target bytes remain. Files that vanish mid-walk are skipped. It returns
// the bytes freed and the bytes still on disk.
func pruneDir(dir string, target int64) (freed, remaining int64, err error) {
	type entry struct {
		path    string
		size    int64
		modTime time.Time
	}

	var entries []entry
	var total int64
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		entries = append(entries, entry{path: path, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	slices.SortFunc(entries, func(a, b entry) int {
		return a.modTime.Compare(b.modTime)
	})

	for _, e := range entries {
		if total <= target {
			break
		}
		if err := os.Remove(e.path); err != nil {
			continue
		}
		total -= e.size
		freed += e.size
	}
	return freed, total, nil
}
