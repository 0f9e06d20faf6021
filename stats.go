package rangecache

import "fmt"

// Stats counts cache effectiveness for a single strategy instance.
type Stats struct {
	// Hits is the number of lookups served entirely from cached bytes.
	// Block-oriented strategies count per block, not per request.
	Hits int64

	// Misses is the number of lookups that needed at least one backend call.
	Misses int64

	// BytesRequested is the total number of bytes asked of the backend,
	// including read-ahead beyond what callers consumed.
	BytesRequested int64
}

// HitRatio returns the fraction of lookups served from cache, or 0 when
// nothing has been requested yet.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s Stats) String() string {
	return fmt.Sprintf("%d hits, %d misses, %d bytes requested", s.Hits, s.Misses, s.BytesRequested)
}
