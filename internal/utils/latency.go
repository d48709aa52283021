package utils

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

const defaultLatencySamples = 512

// LatencyTracker keeps the most recent duration samples in a fixed ring and
// answers empirical quantile queries over them.
type LatencyTracker struct {
	mu    sync.Mutex
	ring  []float64
	next  int
	size  int
	total int64
}

// NewLatencyTracker creates a tracker retaining up to capacity samples.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = defaultLatencySamples
	}
	return &LatencyTracker{ring: make([]float64, capacity)}
}

// Observe records a duration, overwriting the oldest sample once the ring is full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring[l.next] = float64(d)
	l.next = (l.next + 1) % len(l.ring)
	if l.size < len(l.ring) {
		l.size++
	}
	l.total++
}

// Count returns the number of retained samples.
func (l *LatencyTracker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Total returns the number of samples ever observed.
func (l *LatencyTracker) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Percentile returns the p-th percentile (0-100) of the retained samples, or
// zero when nothing was observed.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	sorted := l.sorted()
	if len(sorted) == 0 {
		return 0
	}
	q := p / 100
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	return time.Duration(stat.Quantile(q, stat.Empirical, sorted, nil))
}

func (l *LatencyTracker) sorted() []float64 {
	l.mu.Lock()
	out := append([]float64(nil), l.ring[:l.size]...)
	l.mu.Unlock()
	sort.Float64s(out)
	return out
}

// Millis converts a duration to fractional milliseconds for reporting.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
