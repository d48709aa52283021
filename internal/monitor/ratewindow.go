package monitor

import (
	"sync"
	"time"
)

// rateWindow counts events per minute in a fixed ring of buckets.
type rateWindow struct {
	mu      sync.Mutex
	buckets []int64
	minutes []int64
}

func newRateWindow(size int) *rateWindow {
	if size <= 0 {
		size = 60
	}
	return &rateWindow{buckets: make([]int64, size), minutes: make([]int64, size)}
}

func (w *rateWindow) add(now time.Time) {
	minute := now.Unix() / 60
	idx := int(minute % int64(len(w.buckets)))
	w.mu.Lock()
	if w.minutes[idx] != minute {
		w.minutes[idx] = minute
		w.buckets[idx] = 0
	}
	w.buckets[idx]++
	w.mu.Unlock()
}

// perMinute returns the mean per-minute count over the last span minutes,
// including the current one.
func (w *rateWindow) perMinute(now time.Time, span int) float64 {
	if span <= 0 || span > len(w.buckets) {
		span = len(w.buckets)
	}
	current := now.Unix() / 60
	var total int64
	w.mu.Lock()
	for i := 0; i < span; i++ {
		minute := current - int64(i)
		idx := int(((minute % int64(len(w.buckets))) + int64(len(w.buckets))) % int64(len(w.buckets)))
		if w.minutes[idx] == minute {
			total += w.buckets[idx]
		}
	}
	w.mu.Unlock()
	return float64(total) / float64(span)
}
