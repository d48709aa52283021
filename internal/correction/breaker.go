package correction

import (
	"sync"
	"time"

	"github.com/miradorstack/mirador-heal/internal/models"
)

const (
	// DefaultBreakerThreshold is the consecutive failure count that must be
	// exceeded before a breaker opens.
	DefaultBreakerThreshold = 5
	// DefaultBreakerCooldown is how long an open breaker fast-fails.
	DefaultBreakerCooldown = time.Minute
)

// CircuitBreaker guards correction attempts for one resource key.
type CircuitBreaker struct {
	mu        sync.Mutex
	key       string
	state     models.BreakerState
	failures  int
	openedAt  time.Time
	threshold int
	cooldown  time.Duration
	// trial is set while the single half-open attempt is in flight.
	trial bool
}

func newCircuitBreaker(key string, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	return &CircuitBreaker{key: key, state: models.BreakerClosed, threshold: threshold, cooldown: cooldown}
}

// Allow reports whether an attempt may proceed. An open breaker whose cooldown
// elapsed moves to half-open and admits exactly one trial.
func (b *CircuitBreaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case models.BreakerOpen:
		if now.Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = models.BreakerHalfOpen
		b.trial = true
		return true
	case models.BreakerHalfOpen:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = models.BreakerClosed
	b.failures = 0
	b.trial = false
	b.openedAt = time.Time{}
}

// Release returns an unused half-open trial so the next Allow admits it again.
func (b *CircuitBreaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == models.BreakerHalfOpen {
		b.trial = false
	}
}

// RecordFailure counts a failed correction. It reports whether the breaker opened.
func (b *CircuitBreaker) RecordFailure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == models.BreakerHalfOpen || b.failures > b.threshold {
		opened := b.state != models.BreakerOpen
		b.state = models.BreakerOpen
		b.openedAt = now
		b.trial = false
		return opened
	}
	return false
}

// Status returns a snapshot of the breaker.
func (b *CircuitBreaker) Status() models.BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return models.BreakerStatus{
		Key:                 b.key,
		State:               b.state,
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
		Cooldown:            b.cooldown,
	}
}
