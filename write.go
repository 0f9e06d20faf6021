package rangecache

import "fmt"

// Write appends p to the upload buffer, flushing upstream once a full
// block has accumulated. Only write- and append-mode files are writable.
// The returned count is always len(p) because the bytes are buffered even
// when the triggered flush fails; the flush is retried by the next Write,
// Flush or Close.
func (f *File) Write(p []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if f.mode == ModeRead {
		return 0, ErrNotWritable
	}
	if f.forced {
		return 0, ErrAlreadyForced
	}
	f.buffer.Write(p) // in-memory, never fails
	f.loc += int64(len(p))
	if int64(f.buffer.Len()) >= f.blocksize {
		if err := f.Flush(false); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush pushes buffered bytes upstream. A non-forced flush below the block
// size threshold is a no-op; force sends whatever remains, marks the chunk
// final, and seals the file against further writes. Forcing twice is a
// contract violation, except that a force whose chunk transfer failed may
// be forced again to retry delivery. The first effective flush starts the
// upload session; if that fails the file is closed and the error propagates.
func (f *File) Flush(force bool) error {
	if f.closed {
		return ErrClosed
	}
	if f.mode == ModeRead {
		return nil
	}
	if force && f.forced && f.buffer.Len() == 0 {
		return ErrAlreadyForced
	}
	if !force && (f.forced || int64(f.buffer.Len()) < f.blocksize) {
		// Not enough for a full chunk yet, or the final chunk is pending a
		// forced retry.
		return nil
	}
	if force {
		f.forced = true
	}
	if !f.started {
		up, err := f.backend.StartUpload(f.path, f.mode == ModeAppend)
		if err != nil {
			f.closed = true
			return fmt.Errorf("initiate upload for %s: %w", f.path, err)
		}
		f.upload = up
		f.started = true
	}
	if err := f.upload.WriteChunk(f.buffer.Bytes(), force); err != nil {
		return err
	}
	f.offset += int64(f.buffer.Len())
	f.buffer.Reset()
	return nil
}

// Close releases the file. Read mode closes the cache strategy and logs its
// counters. Write mode forces a final flush, then either commits the upload
// (autocommit, the default) or leaves it pending for Commit or Discard, and
// finally invalidates the backend's listings for the path and its parent.
// Closing twice is a no-op.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	if f.mode == ModeRead {
		f.closed = true
		st := f.cache.Stats()
		f.logger.Debug("closing cached file",
			"path", f.path,
			"cache", f.cache.Kind().String(),
			"hits", st.Hits,
			"misses", st.Misses,
			"bytes_requested", st.BytesRequested,
		)
		err := f.cache.Close()
		f.cache = nil
		return err
	}
	if !f.forced || f.buffer.Len() > 0 {
		if err := f.Flush(true); err != nil {
			// StartUpload failures have already closed the file; chunk
			// transfer failures leave it open so Close can be retried.
			return err
		}
	}
	f.closed = true
	if f.autocommit && f.upload != nil {
		if err := f.upload.Commit(); err != nil {
			return err
		}
		f.upload = nil
	}
	f.invalidateListings()
	return nil
}

// Commit finalizes the pending upload of a non-autocommit file after Close.
// Without a pending session it fails with ErrNoUpload.
func (f *File) Commit() error {
	if f.mode == ModeRead {
		return ErrNotWritable
	}
	if f.upload == nil {
		return ErrNoUpload
	}
	err := f.upload.Commit()
	f.upload = nil
	if err != nil {
		return err
	}
	f.invalidateListings()
	return nil
}

// Discard aborts the pending upload of a non-autocommit file, removing any
// temporary artifacts. Without a pending session it fails with ErrNoUpload.
func (f *File) Discard() error {
	if f.mode == ModeRead {
		return ErrNotWritable
	}
	if f.upload == nil {
		return ErrNoUpload
	}
	err := f.upload.Discard()
	f.upload = nil
	return err
}
