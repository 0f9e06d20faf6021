// rangeprof replays byte-range read workloads through a cache strategy and
// reports hit ratios, backend traffic, and throughput. The source is either
// synthetic seeded data or a local file; reads come from a generator or a
// HuJSON workload file, optionally through a persistent block store and a
// simulated slow backend.
//
// Examples:
//
//	rangeprof -cache=block -read-size=131072 -iterations=10000
//	rangeprof -mode=file -path=testdata/big.bin -cache=bytes -latency=20ms
//	rangeprof -mode=warm -store=/tmp/blocks -size=268435456 -bps=50MBps
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"
	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"

	"github.com/meigma/rangecache"
	"github.com/meigma/rangecache/aferofs"
	"github.com/meigma/rangecache/disk"
)

type config struct {
	mode          string
	cache         string
	blockSize     int64
	size          int64
	path          string
	pattern       string
	workloadFile  string
	readSize      int64
	readRandom    bool
	iterations    int
	duration      time.Duration
	seed          int64
	latency       time.Duration
	bps           int64
	storeDir      string
	storeCompress bool
	warmWorkers   int
	tempDir       string
	keepTemp      bool
	pprofAddr     string
	cpuProfile    string
	memProfile    string
	fgProfile     string
	traceFile     string
}

// sink keeps fetched slices live so reads aren't optimized away.
var sinkBytes []byte

func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	if cfg.fgProfile != "" {
		fgFile, err := os.Create(cfg.fgProfile)
		if err != nil {
			log.Fatal(err)
		}
		stop := fgprof.Start(fgFile, fgprof.FormatPprof)
		defer func() {
			if err := stop(); err != nil {
				log.Printf("fgprof stop error: %v", err)
			}
			fgFile.Close()
		}()
	}

	if cfg.cpuProfile != "" {
		cpuFile, err := os.Create(cfg.cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.StartCPUProfile(cpuFile); err != nil {
			log.Fatal(err)
		}
		defer func() {
			pprof.StopCPUProfile()
			cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, err := os.Create(cfg.traceFile)
		if err != nil {
			log.Fatal(err)
		}
		if err := trace.Start(traceFile); err != nil {
			log.Fatal(err)
		}
		defer func() {
			trace.Stop()
			traceFile.Close()
		}()
	}

	stats, err := runProfile(cfg)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		f.Close()
	}

	fmt.Printf("mode=%s cache=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode,
		cfg.cache,
		stats.ops,
		stats.bytes,
		stats.elapsed.Round(time.Millisecond),
		float64(stats.bytes)/(1024*1024)/stats.elapsed.Seconds(),
	)
	fmt.Printf("cache: %s (%.1f%% hit) backend: calls=%d bytes=%d\n",
		stats.cache, stats.cache.HitRatio()*100, stats.backendCalls, stats.backendBytes)
	if stats.storeTotal > 0 {
		fmt.Printf("store: blocks=%d/%d dir-bytes=%d\n",
			stats.storeCached, stats.storeTotal, stats.storeBytes)
	}
}

type profileStats struct {
	ops          int
	bytes        int64
	elapsed      time.Duration
	cache        rangecache.Stats
	backendCalls int64
	backendBytes int64
	storeCached  int64
	storeTotal   int64
	storeBytes   int64
}

func runProfile(cfg config) (profileStats, error) {
	kind, err := rangecache.ParseKind(cfg.cache)
	if err != nil {
		return profileStats{}, err
	}

	var wl *workload
	if cfg.workloadFile != "" {
		wl, err = loadWorkload(cfg.workloadFile)
		if err != nil {
			return profileStats{}, err
		}
	}

	src, err := buildSource(cfg)
	if err != nil {
		return profileStats{}, err
	}
	defer src.cleanup()

	// Counting sits between the store and the (possibly throttled) origin,
	// so store hits never inflate the backend numbers.
	counted := &countingFetcher{fetch: src.fetch}
	if cfg.latency > 0 || cfg.bps > 0 {
		counted.fetch = throttleFetcher(src.fetch, cfg.latency, cfg.bps)
	}
	effective := rangecache.Fetcher(counted.Fetch)

	var store *disk.Store
	var cached *disk.Cached
	if cfg.storeDir != "" {
		store, err = disk.NewStore(cfg.storeDir, disk.WithCompression(cfg.storeCompress))
		if err != nil {
			return profileStats{}, err
		}
		defer store.Close()
		cached, err = store.Wrap(src.id, src.token, cfg.blockSize, src.size, effective)
		if err != nil {
			return profileStats{}, err
		}
		effective = cached.Fetcher()
	}

	stats := profileStats{}
	started := time.Now()

	switch cfg.mode {
	case "fetch":
		strat, err := rangecache.New(kind, cfg.blockSize, effective, src.size)
		if err != nil {
			return profileStats{}, err
		}
		defer strat.Close()
		stats.ops, stats.bytes, err = runReads(cfg, wl, src.size, func(start, end int64) (int, error) {
			data, err := strat.Fetch(start, end)
			sinkBytes = data
			return len(data), err
		})
		if err != nil {
			return profileStats{}, err
		}
		stats.cache = strat.Stats()

	case "file":
		if src.backend == nil {
			return profileStats{}, errors.New("file mode needs a file-backed source; set -path or -temp-dir")
		}
		f, err := src.backend.Open(src.name, rangecache.ModeRead,
			rangecache.WithCache(kind),
			rangecache.WithBlockSize(cfg.blockSize),
			rangecache.WithFetcher(effective),
		)
		if err != nil {
			return profileStats{}, err
		}
		stats.ops, stats.bytes, err = runReads(cfg, wl, f.Size(), func(start, end int64) (int, error) {
			if _, err := f.Seek(start, io.SeekStart); err != nil {
				return 0, err
			}
			if end > f.Size() {
				end = f.Size()
			}
			if end <= start {
				return 0, nil
			}
			buf := make([]byte, end-start)
			n, err := io.ReadFull(f, buf)
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = nil
			}
			sinkBytes = buf
			return n, err
		})
		if err != nil {
			f.Close()
			return profileStats{}, err
		}
		stats.cache = f.Stats()
		if err := f.Close(); err != nil {
			return profileStats{}, err
		}

	case "warm":
		if cached == nil {
			return profileStats{}, errors.New("warm mode needs -store")
		}
		if err := cached.Warm(context.Background(), cfg.warmWorkers); err != nil {
			return profileStats{}, err
		}
		n, _ := cached.Blocks()
		stats.ops = int(n)
		stats.bytes = counted.bytes.Load()

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	stats.elapsed = time.Since(started)
	stats.backendCalls = counted.calls.Load()
	stats.backendBytes = counted.bytes.Load()
	if cached != nil {
		stats.storeCached, stats.storeTotal = cached.Blocks()
		stats.storeBytes = store.SizeBytes()
	}
	return stats, nil
}

// runReads drives read after read: an exact replay when a workload is
// loaded, otherwise generated offsets until the iteration or duration
// budget runs out.
func runReads(cfg config, wl *workload, size int64, read func(start, end int64) (int, error)) (int, int64, error) {
	start := time.Now()
	ops := 0
	var byteCount int64

	if wl != nil {
		repeats := max(wl.Repeat, 1)
		for r := 0; r < repeats; r++ {
			for _, sp := range wl.Reads {
				n, err := read(sp.Start, sp.End)
				if err != nil {
					return ops, byteCount, fmt.Errorf("read [%d, %d): %w", sp.Start, sp.End, err)
				}
				byteCount += int64(n)
				ops++
			}
		}
		return ops, byteCount, nil
	}

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}
	rng := rand.New(rand.NewSource(cfg.seed))
	for shouldContinue() {
		off := nextOffset(rng, ops, size, cfg.readSize, cfg.readRandom)
		n, err := read(off, off+cfg.readSize)
		if err != nil {
			return ops, byteCount, fmt.Errorf("read [%d, %d): %w", off, off+cfg.readSize, err)
		}
		byteCount += int64(n)
		ops++
	}
	return ops, byteCount, nil
}

func nextOffset(rng *rand.Rand, ops int, size, readSize int64, random bool) int64 {
	if size <= readSize {
		return 0
	}
	if random {
		return rng.Int63n(size - readSize + 1)
	}
	return (int64(ops) * readSize) % size
}

// source is the profiled object: a fetcher over its bytes plus the
// identity a block store needs. File-backed sources also carry a backend
// for file mode.
type source struct {
	fetch   rangecache.Fetcher
	size    int64
	id      string
	token   string
	backend *aferofs.FS
	name    string
	cleanup func()
}

func buildSource(cfg config) (*source, error) {
	if cfg.path != "" {
		return fileSource(cfg.path)
	}
	return syntheticSource(cfg)
}

func fileSource(path string) (*source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	info := rangecache.Info{Name: abs, Size: fi.Size(), ModTime: fi.ModTime()}
	backend, err := aferofs.New(afero.NewBasePathFs(afero.NewOsFs(), filepath.Dir(abs)))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &source{
		fetch:   rangecache.ReaderAtFetcher(f, fi.Size()),
		size:    fi.Size(),
		id:      abs,
		token:   info.Token(),
		backend: backend,
		name:    filepath.Base(abs),
		cleanup: func() { f.Close() },
	}, nil
}

func syntheticSource(cfg config) (*source, error) {
	data, err := makeData(cfg.size, cfg.pattern, cfg.seed)
	if err != nil {
		return nil, err
	}
	src := &source{
		fetch:   rangecache.ReaderAtFetcher(bytes.NewReader(data), cfg.size),
		size:    cfg.size,
		id:      fmt.Sprintf("synthetic-%s-%d-%d", cfg.pattern, cfg.size, cfg.seed),
		cleanup: func() {},
	}
	src.token = src.id

	// File mode reads through a real filesystem, so the synthetic bytes
	// need a home on disk.
	if cfg.mode == "file" {
		dir, cleanup, err := setupTempDir(cfg)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, "data.bin"), data, 0o644); err != nil {
			cleanup()
			return nil, err
		}
		backend, err := aferofs.New(afero.NewBasePathFs(afero.NewOsFs(), dir))
		if err != nil {
			cleanup()
			return nil, err
		}
		src.backend = backend
		src.name = "data.bin"
		src.cleanup = cleanup
	}
	return src, nil
}

func makeData(size int64, pattern string, seed int64) ([]byte, error) {
	content := make([]byte, size)
	switch pattern {
	case "random":
		rng := rand.New(rand.NewSource(seed))
		rng.Read(content)
	case "compressible":
		// Byte value shifts every 4 KiB so block compression has runs to
		// work with while offsets stay identifiable.
		for j := range content {
			content[j] = byte('a' + (j/4096)%26)
		}
	default:
		return nil, fmt.Errorf("unknown pattern: %s", pattern)
	}
	return content, nil
}

func setupTempDir(cfg config) (string, func(), error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, func() {}, os.MkdirAll(cfg.tempDir, 0o755)
	}
	dir, err := os.MkdirTemp("", "rangeprof-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if !cfg.keepTemp {
			os.RemoveAll(dir)
		}
	}
	return dir, cleanup, nil
}

func parseFlags() config {
	var cfg config
	var bps string
	flag.StringVar(&cfg.mode, "mode", "fetch", "mode: fetch (strategy level), file (through a buffered file), warm (fill a block store)")
	flag.StringVar(&cfg.cache, "cache", "readahead", "cache strategy: none, mmap, bytes, readahead, block, first, all, parts")
	flag.Int64Var(&cfg.blockSize, "block-size", rangecache.DefaultBlockSize, "fetch granularity in bytes")
	flag.Int64Var(&cfg.size, "size", 64<<20, "synthetic source size in bytes")
	flag.StringVar(&cfg.path, "path", "", "profile a local file instead of synthetic data")
	flag.StringVar(&cfg.pattern, "pattern", "compressible", "synthetic data pattern: compressible or random")
	flag.StringVar(&cfg.workloadFile, "workload", "", "HuJSON file of byte ranges to replay")
	flag.Int64Var(&cfg.readSize, "read-size", 64<<10, "bytes per generated read")
	flag.BoolVar(&cfg.readRandom, "read-random", true, "randomize generated read offsets")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of reads to run (overrides duration when > 0)")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "how long to keep generating reads")
	flag.Int64Var(&cfg.seed, "seed", 1, "random seed")
	flag.DurationVar(&cfg.latency, "latency", 0, "simulated per-fetch backend latency")
	flag.StringVar(&bps, "bps", "", "simulated backend bandwidth (e.g. 10MBps)")
	flag.StringVar(&cfg.storeDir, "store", "", "wrap the source in a persistent block store at this directory")
	flag.BoolVar(&cfg.storeCompress, "store-compress", false, "compress stored blocks")
	flag.IntVar(&cfg.warmWorkers, "warm-workers", 0, "warm mode fetch workers, 0 or less for one per CPU")
	flag.StringVar(&cfg.tempDir, "temp-dir", "", "directory for synthetic file data")
	flag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write execution trace to file")
	flag.Parse()
	if bps != "" {
		parsed, err := parseBytesPerSecond(bps)
		if err != nil {
			log.Fatalf("bps: %v", err)
		}
		cfg.bps = parsed
	}
	return cfg
}
