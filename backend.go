package rangecache

import (
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"
)

// Backend supplies the storage primitives a File delegates to: metadata,
// ranged reads, chunked uploads, and listing-cache invalidation.
// Implementations own the wire protocol, credentials, and retry policy; the
// file layer never retries and passes backend errors through unchanged.
type Backend interface {
	// Info returns metadata for path.
	Info(path string) (Info, error)

	// FetchRange reads the bytes in [start, end) of path. Reads past EOF
	// return the available bytes.
	FetchRange(path string, start, end int64) ([]byte, error)

	// StartUpload begins an upload session for path. appending is true when
	// the file was opened in append mode and existing content must be kept.
	StartUpload(path string, appending bool) (Upload, error)

	// InvalidateCache drops cached listings for path. An empty path drops
	// everything.
	InvalidateCache(path string)
}

// Upload is one in-progress upload session produced by StartUpload. Exactly
// one of Commit or Discard ends the session.
type Upload interface {
	// WriteChunk transfers the next run of buffered bytes. final marks the
	// last chunk of the session. p is only valid for the duration of the
	// call.
	WriteChunk(p []byte, final bool) error

	// Commit finalizes the upload, making the written object visible.
	Commit() error

	// Discard aborts the upload and removes any temporary artifacts.
	Discard() error
}

// Info describes a stored object as reported by a Backend.
type Info struct {
	Name    string
	Size    int64
	ModTime time.Time
	ETag    string
	Dir     bool
}

// Token returns a deterministic fingerprint of the metadata. Two read
// handles over the same path compare equal when their tokens match, which
// makes the token a cheap "same object version" check.
func (i Info) Token() string {
	return digest.FromString(fmt.Sprintf("%s\x00%d\x00%d\x00%s\x00%t",
		i.Name, i.Size, i.ModTime.UnixNano(), i.ETag, i.Dir)).String()
}
