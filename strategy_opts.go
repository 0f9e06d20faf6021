package rangecache

// Option configures strategy construction. Each option is consumed by the
// kinds named in its documentation and ignored by the rest, so a caller can
// pass one option set through [New] regardless of kind.
type Option func(*config)

type config struct {
	maxBlocks int
	trim      bool
	location  string
	blocks    []uint
	data      []byte
	parts     map[Range][]byte
	strict    bool
}

func defaultConfig() config {
	return config{
		maxBlocks: DefaultMaxBlocks,
		trim:      true,
		strict:    true,
	}
}

// WithMaxBlocks bounds the number of blocks a BlockCache retains before
// evicting the least recently used. Values <= 0 fall back to
// DefaultMaxBlocks. Consumed by KindBlock.
func WithMaxBlocks(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBlocks = n
		}
	}
}

// WithTrim controls front-trimming of the adaptive byte buffer once it has
// grown more than one block past the current read position. On by default;
// disabling it lets the buffer grow with the span of all reads so far.
// Consumed by KindBytes.
func WithTrim(trim bool) Option {
	return func(c *config) {
		c.trim = trim
	}
}

// WithLocation names the backing file for a memory-mapped cache. The file
// is created if missing and kept on Close, so filled blocks survive the
// process. An empty location (the default) maps an anonymous temp file that
// is removed on Close. Consumed by KindMmap.
func WithLocation(path string) Option {
	return func(c *config) {
		c.location = path
	}
}

// WithBlocks marks block indices as already present in the backing file at
// the configured location, as captured by a prior [MmapCache.Snapshot].
// Ignored unless the file at the location matches the expected size.
// Consumed by KindMmap.
func WithBlocks(blocks []uint) Option {
	return func(c *config) {
		c.blocks = blocks
	}
}

// WithData supplies the complete file contents, so no fetcher call is ever
// needed. Consumed by KindAll.
func WithData(data []byte) Option {
	return func(c *config) {
		c.data = data
	}
}

// WithParts supplies pre-declared byte ranges and their contents. Adjacent
// ranges are merged at construction. Consumed by KindParts.
func WithParts(parts map[Range][]byte) Option {
	return func(c *config) {
		c.parts = parts
	}
}

// WithStrict controls reads that run past the end of a declared part. When
// strict (the default) the missing tail goes to the fallback fetcher, or
// fails with ErrUnknownRange if there is none; with strict disabled the
// tail is zero-filled instead. Consumed by KindParts.
func WithStrict(strict bool) Option {
	return func(c *config) {
		c.strict = strict
	}
}
