package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tailscale/hujson"

	"github.com/meigma/rangecache"
)

// workload is a recorded read sequence. The file format is HuJSON, so
// captured workloads can carry comments and trailing commas:
//
//	{
//	    // parquet footer, then two row groups
//	    "reads": [
//	        {"start": 67100000, "end": 67108864},
//	        {"start": 0, "end": 4194304},
//	        {"start": 4194304, "end": 8388608},
//	    ],
//	    "repeat": 3,
//	}
type workload struct {
	Reads  []span `json:"reads"`
	Repeat int    `json:"repeat"`
}

// span is one half-open byte range.
type span struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func loadWorkload(path string) (*workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("workload %s: %w", path, err)
	}
	var wl workload
	if err := json.Unmarshal(standardized, &wl); err != nil {
		return nil, fmt.Errorf("workload %s: %w", path, err)
	}
	if len(wl.Reads) == 0 {
		return nil, fmt.Errorf("workload %s: no reads", path)
	}
	for i, sp := range wl.Reads {
		if sp.Start < 0 || sp.End < sp.Start {
			return nil, fmt.Errorf("workload %s: read %d has invalid range [%d, %d)", path, i, sp.Start, sp.End)
		}
	}
	return &wl, nil
}

// countingFetcher tallies calls and bytes that reach the origin. Warm mode
// fetches from several goroutines, hence the atomics.
type countingFetcher struct {
	fetch rangecache.Fetcher
	calls atomic.Int64
	bytes atomic.Int64
}

func (c *countingFetcher) Fetch(start, end int64) ([]byte, error) {
	c.calls.Add(1)
	data, err := c.fetch(start, end)
	c.bytes.Add(int64(len(data)))
	return data, err
}

// throttleFetcher delays every fetch by latency and paces cumulative
// delivery to bytesPerSecond, approximating a remote origin over a slow
// link.
func throttleFetcher(fetch rangecache.Fetcher, latency time.Duration, bytesPerSecond int64) rangecache.Fetcher {
	var mu sync.Mutex
	var delivered int64
	start := time.Now()
	return func(s, e int64) ([]byte, error) {
		if latency > 0 {
			time.Sleep(latency)
		}
		data, err := fetch(s, e)
		if bytesPerSecond > 0 && len(data) > 0 {
			mu.Lock()
			delivered += int64(len(data))
			expected := time.Duration(float64(delivered) / float64(bytesPerSecond) * float64(time.Second))
			mu.Unlock()
			if elapsed := time.Since(start); expected > elapsed {
				time.Sleep(expected - elapsed)
			}
		}
		return data, err
	}
}

func parseBytesPerSecond(value string) (int64, error) {
	text := strings.TrimSpace(value)
	text = strings.TrimSuffix(text, "Bps")
	text = strings.TrimSuffix(text, "bps")
	text = strings.TrimSuffix(text, "/s")
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}

	lower := strings.ToLower(text)
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(lower, "kb"):
		multiplier = 1024
		text = text[:len(text)-2]
	case strings.HasSuffix(lower, "k"):
		multiplier = 1024
		text = text[:len(text)-1]
	case strings.HasSuffix(lower, "mb"):
		multiplier = 1024 * 1024
		text = text[:len(text)-2]
	case strings.HasSuffix(lower, "m"):
		multiplier = 1024 * 1024
		text = text[:len(text)-1]
	case strings.HasSuffix(lower, "gb"):
		multiplier = 1024 * 1024 * 1024
		text = text[:len(text)-2]
	case strings.HasSuffix(lower, "g"):
		multiplier = 1024 * 1024 * 1024
		text = text[:len(text)-1]
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}
	raw, err := strconv.ParseInt(text, 10, 64)
	if err != nil || raw <= 0 {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}
	return raw * multiplier, nil
}
