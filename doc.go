// Package rangecache provides byte-range read caching between a seekable
// file interface and a backend's "fetch a byte range" primitive.
//
// Remote storage is slow per round-trip, so the unit of work here is the
// range request: each caching strategy decides what it already holds and
// what it still needs to ask the backend for. The strategies never perform
// network I/O themselves; they call a [Fetcher] supplied by the backend and
// only choose which ranges to request.
//
// # Strategies
//
// Pick a strategy with a [Kind] and build it with [New], or construct the
// concrete type directly:
//
//	fetch := func(start, end int64) ([]byte, error) {
//	    return client.ReadRange(url, start, end)
//	}
//	cache, err := rangecache.New(rangecache.KindBlock, 64<<10, fetch, size,
//	    rangecache.WithMaxBlocks(128),
//	)
//	if err != nil {
//	    return err
//	}
//	data, err := cache.Fetch(1<<20, 1<<20+4096)
//
// The variants trade memory for round-trips: [NoCache] delegates everything,
// [ReadAheadCache] keeps one block-extended buffer for sequential scans,
// [BytesCache] grows a buffer on either side of the read position,
// [BlockCache] holds a bounded LRU of fixed-size blocks, [FirstBlockCache]
// pins only the file header, [MmapCache] fills a file-backed memory map,
// [AllBytes] holds the complete content, and [KnownParts] serves ranges
// declared up front.
//
// All strategies share one contract: requests are half-open [start, end)
// ranges, negative bounds select the start and end of the file, ranges past
// EOF are truncated, and an empty or inverted range returns empty bytes
// without touching the backend.
//
// # Files
//
// [OpenFile] wraps a [Backend] in a conventional seekable file. Read-mode
// files own one strategy instance; write-mode files buffer sequentially and
// upload in blocksize chunks, deferring the final commit when autocommit is
// off:
//
//	f, err := rangecache.OpenFile(backend, "data/logs.bin", rangecache.ModeRead,
//	    rangecache.WithCache(rangecache.KindBytes),
//	    rangecache.WithBlockSize(1<<20),
//	)
//
// # Backends
//
// A [Backend] owns the wire protocol, credentials, and retry policy. This
// package ships no network adapters; the aferofs subpackage adapts any
// afero filesystem and serves as the reference implementation. The disk
// subpackage persists fetched blocks across process restarts, and dircache
// caches directory listings with a TTL.
package rangecache
