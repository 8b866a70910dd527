package gateway

import (
	"math"
	"sort"
	"sync"
)

// ring is a fixed-capacity circular buffer. Not safe for concurrent use.
type ring[T any] struct {
	buf  []T
	pos  int // next write position
	full bool
}

func newRing[T any](capacity int) ring[T] {
	return ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.buf[r.pos] = v
	r.pos = (r.pos + 1) % len(r.buf)
	if r.pos == 0 {
		r.full = true
	}
}

func (r *ring[T]) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.pos
}

// ordered returns the contents oldest first.
func (r *ring[T]) ordered() []T {
	out := make([]T, 0, r.len())
	if r.full {
		out = append(out, r.buf[r.pos:]...)
	}
	return append(out, r.buf[:r.pos]...)
}

// ReplayEntry is one broadcast envelope kept for replay.
type ReplayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent envelopes of one channel for gap
// backfill. Safe for concurrent use.
type ReplayBuffer struct {
	mu sync.RWMutex
	r  ring[ReplayEntry]
}

// NewReplayBuffer creates a replay buffer; capacity <= 0 uses 500.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayCapacity
	}
	return &ReplayBuffer{r: newRing[ReplayEntry](capacity)}
}

// Push stores a copy of data under seq, evicting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	rb.mu.Lock()
	rb.r.push(ReplayEntry{Seq: seq, Data: cp})
	rb.mu.Unlock()
}

// Range returns the entries with seq in [fromSeq, toSeq], in seq order.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []ReplayEntry {
	rb.mu.RLock()
	all := rb.r.ordered()
	rb.mu.RUnlock()

	var out []ReplayEntry
	for _, e := range all {
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.r.len()
}

// LatencyTracker keeps the last N latency samples (ms) and reports
// percentiles over them. Safe for concurrent use.
type LatencyTracker struct {
	mu sync.Mutex
	r  ring[float64]
}

// NewLatencyTracker creates a tracker; capacity <= 0 uses 10000.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{r: newRing[float64](capacity)}
}

// Record adds a sample in milliseconds.
func (lt *LatencyTracker) Record(ms float64) {
	lt.mu.Lock()
	lt.r.push(ms)
	lt.mu.Unlock()
}

// Count returns the number of retained samples.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.r.len()
}

// Percentiles returns p50, p95 and p99. All zero without samples.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	sorted := lt.r.ordered()
	lt.mu.Unlock()
	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(sorted)
	return percentile(sorted, 0.50), percentile(sorted, 0.95), percentile(sorted, 0.99)
}

// percentile interpolates the p-th quantile (0..1) of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	if lower+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}
