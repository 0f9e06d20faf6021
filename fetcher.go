package rangecache

import (
	"errors"
	"io"
)

// Fetcher reads the half-open byte range [start, end) from backing storage.
// Backends supply one per object; it owns the wire protocol and any retry
// or timeout policy. A fetch that runs into EOF returns the available bytes
// without an error, matching how local file reads behave.
type Fetcher func(start, end int64) ([]byte, error)

// ReaderAtFetcher adapts an io.ReaderAt covering size bytes to the Fetcher
// contract. Requests past EOF are truncated to the available bytes.
func ReaderAtFetcher(r io.ReaderAt, size int64) Fetcher {
	return func(start, end int64) ([]byte, error) {
		if start < 0 {
			start = 0
		}
		if end > size {
			end = size
		}
		if start >= end {
			return nil, nil
		}
		buf := make([]byte, end-start)
		n, err := r.ReadAt(buf, start)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return buf[:n], nil
	}
}
