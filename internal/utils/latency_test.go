package utils

import (
	"sync"
	"testing"
	"time"
)

func TestLatencyTrackerPercentiles(t *testing.T) {
	tracker := NewLatencyTracker(100)
	if tracker.Percentile(95) != 0 {
		t.Fatalf("empty tracker should report zero")
	}
	for i := 100; i >= 1; i-- {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}

	cases := []struct {
		p    float64
		want time.Duration
	}{
		{-5, time.Millisecond},
		{50, 50 * time.Millisecond},
		{95, 95 * time.Millisecond},
		{100, 100 * time.Millisecond},
		{250, 100 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := tracker.Percentile(tc.p); got != tc.want {
			t.Fatalf("p%v: expected %v, got %v", tc.p, tc.want, got)
		}
	}
}

func TestLatencyTrackerOverwritesOldestSamples(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 1; i <= 10; i++ {
		tracker.Observe(time.Duration(i) * time.Second)
	}
	if tracker.Count() != 3 || tracker.Total() != 10 {
		t.Fatalf("expected 3 retained of 10, got %d of %d", tracker.Count(), tracker.Total())
	}
	if got := tracker.Percentile(0); got != 8*time.Second {
		t.Fatalf("expected oldest retained sample 8s, got %v", got)
	}
	if got := Millis(1500 * time.Microsecond); got != 1.5 {
		t.Fatalf("expected 1.5ms, got %v", got)
	}
}

func TestLatencyTrackerConcurrentObserve(t *testing.T) {
	tracker := NewLatencyTracker(0)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tracker.Observe(time.Millisecond)
				_ = tracker.Percentile(99)
			}
		}()
	}
	wg.Wait()
	if tracker.Total() != 800 || tracker.Count() != defaultLatencySamples {
		t.Fatalf("unexpected counts total=%d retained=%d", tracker.Total(), tracker.Count())
	}
}
