// Package correction selects and runs remediation strategies for captured
// errors, guarded by per-resource circuit breakers.
package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/miradorstack/mirador-heal/internal/metrics"
	"github.com/miradorstack/mirador-heal/internal/models"
)

var (
	// ErrNoStrategy reports that no registered strategy applies to a record.
	ErrNoStrategy = errors.New("no applicable correction strategy")
	// ErrCircuitOpen reports that the breaker for a resource is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// RecordUpdater persists partial record updates; storage satisfies it.
type RecordUpdater interface {
	Update(ctx context.Context, id string, update models.RecordUpdate) (models.ErrorRecord, error)
}

// RecordUpdaterFunc adapts a function into a RecordUpdater.
type RecordUpdaterFunc func(ctx context.Context, id string, update models.RecordUpdate) (models.ErrorRecord, error)

// Update implements RecordUpdater.
func (f RecordUpdaterFunc) Update(ctx context.Context, id string, update models.RecordUpdate) (models.ErrorRecord, error) {
	return f(ctx, id, update)
}

// RetryPolicy controls how often a strategy is retried and how long to wait
// between attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns three attempts with 1s exponential backoff capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	return p
}

// Backoff returns BaseDelay*2^attempt capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Options configures an Engine.
type Options struct {
	Retry            RetryPolicy
	BreakerThreshold int
	BreakerCooldown  time.Duration
	// AttemptTimeout bounds a single strategy execution. Zero means no bound.
	AttemptTimeout time.Duration
	Updater        RecordUpdater
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Engine runs correction strategies.
type Engine struct {
	logger  *slog.Logger
	builtin *builtins

	mu             sync.RWMutex
	updater        RecordUpdater
	strategies     []registration
	retry          RetryPolicy
	attemptTimeout time.Duration

	breakersMu       sync.RWMutex
	breakers         map[string]*CircuitBreaker
	breakerThreshold int
	breakerCooldown  time.Duration

	statsMu sync.Mutex
	stats   models.CorrectionStats

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine constructs an engine with the built-in strategies registered.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:           logger,
		updater:          opts.Updater,
		retry:            opts.Retry.normalized(),
		attemptTimeout:   opts.AttemptTimeout,
		breakers:         make(map[string]*CircuitBreaker),
		breakerThreshold: opts.BreakerThreshold,
		breakerCooldown:  opts.BreakerCooldown,
		stats:            models.CorrectionStats{ByStrategy: make(map[string]models.StrategyRun)},
		now:              time.Now,
		sleep:            sleepContext,
	}
	e.builtin = newBuiltins(opts.HTTPClient, func() time.Time { return e.now() })
	for _, s := range e.builtin.strategies() {
		e.strategies = append(e.strategies, registration{strategy: s})
	}
	return e
}

// RegisterStrategy adds a custom strategy. It wins over built-ins of equal or
// lower confidence for its declared types.
func (e *Engine) RegisterStrategy(s Strategy) error {
	if err := s.validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.strategies {
		if existing.strategy.Name == s.Name {
			return fmt.Errorf("strategy %s already registered", s.Name)
		}
	}
	e.strategies = append(e.strategies, registration{strategy: s, custom: true})
	return nil
}

// RegisterPinger attaches a connection used by database-reconnect for records
// whose resource key matches.
func (e *Engine) RegisterPinger(resourceKey string, p Pinger) {
	e.builtin.mu.Lock()
	defer e.builtin.mu.Unlock()
	e.builtin.pingers[resourceKey] = p
}

// Throttled reports whether performance-throttle asked producers of the
// resource to back off.
func (e *Engine) Throttled(resourceKey string) bool {
	return e.builtin.throttled(resourceKey)
}

// SetUpdater replaces the sink for attempt and resolution updates.
func (e *Engine) SetUpdater(u RecordUpdater) {
	e.mu.Lock()
	e.updater = u
	e.mu.Unlock()
}

// ConfigureRetry replaces the retry policy.
func (e *Engine) ConfigureRetry(p RetryPolicy) {
	e.mu.Lock()
	e.retry = p.normalized()
	e.mu.Unlock()
}

// SetAttemptTimeout replaces the per-attempt timeout.
func (e *Engine) SetAttemptTimeout(d time.Duration) {
	e.mu.Lock()
	e.attemptTimeout = d
	e.mu.Unlock()
}

// Select returns the strategy that would handle the record.
func (e *Engine) Select(record models.ErrorRecord) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var (
		best  registration
		found bool
	)
	for _, reg := range e.strategies {
		if !reg.strategy.appliesTo(record) {
			continue
		}
		if !found || better(reg, best) {
			best = reg
			found = true
		}
	}
	return best.strategy, found
}

// TryCorrect attempts to remediate the record. It returns nil when no
// strategy applies, the breaker for the record's resource is open, or ctx
// ended before the first attempt.
func (e *Engine) TryCorrect(ctx context.Context, record models.ErrorRecord) *models.CorrectionResult {
	result, err := e.Correct(ctx, record)
	if err != nil {
		return nil
	}
	return result
}

// Correct is TryCorrect with the skip reason surfaced as ErrNoStrategy,
// ErrCircuitOpen or the context error.
func (e *Engine) Correct(ctx context.Context, record models.ErrorRecord) (*models.CorrectionResult, error) {
	strategy, ok := e.Select(record)
	if !ok {
		return nil, ErrNoStrategy
	}

	key := ResourceKey(record)
	breaker := e.breaker(key)
	if !breaker.Allow(e.now()) {
		e.recordSkip(strategy.Name)
		e.logger.Info("correction skipped, circuit open",
			slog.String("resource", key),
			slog.String("strategy", strategy.Name),
			slog.String("record_id", record.ID))
		return nil, ErrCircuitOpen
	}

	e.mu.RLock()
	policy := e.retry
	attemptTimeout := e.attemptTimeout
	e.mu.RUnlock()

	started := e.now()
	var (
		result  models.CorrectionResult
		lastErr error
		ran     int
	)
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		ran++
		record.Attempts++
		attempts := record.Attempts
		e.update(ctx, record.ID, models.RecordUpdate{Attempts: &attempts})

		result, lastErr = e.execute(ctx, strategy, record, attemptTimeout)
		if lastErr == nil && result.Success {
			break
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("strategy %s reported failure: %s", strategy.Name, result.Message)
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}
		if err := e.sleep(ctx, policy.Backoff(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	if ran == 0 {
		// Nothing was tried, so the resource says nothing about its health.
		breaker.Release()
		e.logger.Debug("correction abandoned before first attempt",
			slog.String("record_id", record.ID),
			slog.String("strategy", strategy.Name),
			slog.Any("error", lastErr))
		return nil, lastErr
	}

	result.Strategy = strategy.Name
	result.Attempts = record.Attempts
	result.Duration = e.now().Sub(started)

	if lastErr == nil && result.Success {
		breaker.RecordSuccess()
		resolved := true
		method := models.ResolutionAuto
		details := strategy.Name
		e.update(ctx, record.ID, models.RecordUpdate{Resolved: &resolved, ResolutionMethod: &method, ResolutionDetails: &details})
		e.recordOutcome(strategy.Name, true)
		e.logger.Debug("correction applied",
			slog.String("record_id", record.ID),
			slog.String("strategy", strategy.Name),
			slog.Int("attempts", record.Attempts))
		return &result, nil
	}

	result.Success = false
	if lastErr != nil && result.Message == "" {
		result.Message = lastErr.Error()
	}
	if breaker.RecordFailure(e.now()) {
		e.logger.Warn("circuit breaker opened",
			slog.String("resource", key),
			slog.String("strategy", strategy.Name))
	}
	method := models.ResolutionPending
	e.update(ctx, record.ID, models.RecordUpdate{ResolutionMethod: &method})
	e.recordOutcome(strategy.Name, false)
	e.logger.Debug("correction failed",
		slog.String("record_id", record.ID),
		slog.String("strategy", strategy.Name),
		slog.Any("error", lastErr))
	return &result, nil
}

func (e *Engine) execute(ctx context.Context, s Strategy, record models.ErrorRecord, timeout time.Duration) (result models.CorrectionResult, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name, r)
		}
	}()
	return s.Execute(ctx, record.Clone())
}

func (e *Engine) update(ctx context.Context, id string, upd models.RecordUpdate) {
	e.mu.RLock()
	updater := e.updater
	e.mu.RUnlock()
	if updater == nil || id == "" {
		return
	}
	// Resolution must land even when the correction context is already done.
	if _, err := updater.Update(context.WithoutCancel(ctx), id, upd); err != nil {
		e.logger.Debug("record update after correction failed",
			slog.String("record_id", id),
			slog.Any("error", err))
	}
}

func (e *Engine) breaker(key string) *CircuitBreaker {
	e.breakersMu.RLock()
	b, ok := e.breakers[key]
	e.breakersMu.RUnlock()
	if ok {
		return b
	}
	e.breakersMu.Lock()
	defer e.breakersMu.Unlock()
	if b, ok = e.breakers[key]; ok {
		return b
	}
	b = newCircuitBreaker(key, e.breakerThreshold, e.breakerCooldown)
	e.breakers[key] = b
	return b
}

// CircuitBreakerStatus returns every breaker keyed by resource.
func (e *Engine) CircuitBreakerStatus() map[string]models.BreakerStatus {
	e.breakersMu.RLock()
	defer e.breakersMu.RUnlock()
	out := make(map[string]models.BreakerStatus, len(e.breakers))
	for key, b := range e.breakers {
		out[key] = b.Status()
	}
	return out
}

// OpenBreakers returns the keys of open breakers, sorted.
func (e *Engine) OpenBreakers() []string {
	var keys []string
	for key, status := range e.CircuitBreakerStatus() {
		if status.State == models.BreakerOpen {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Stats returns a copy of the correction counters.
func (e *Engine) Stats() models.CorrectionStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	out := e.stats
	out.ByStrategy = make(map[string]models.StrategyRun, len(e.stats.ByStrategy))
	for k, v := range e.stats.ByStrategy {
		out.ByStrategy[k] = v
	}
	return out
}

func (e *Engine) recordOutcome(strategy string, success bool) {
	e.statsMu.Lock()
	e.stats.Total++
	run := e.stats.ByStrategy[strategy]
	outcome := metrics.OutcomeFailure
	if success {
		e.stats.Succeeded++
		run.Succeeded++
		outcome = metrics.OutcomeSuccess
	} else {
		e.stats.Failed++
		run.Failed++
	}
	e.stats.ByStrategy[strategy] = run
	e.statsMu.Unlock()

	metrics.ObserveCorrection(strategy, outcome)
	metrics.SetOpenBreakers(len(e.OpenBreakers()))
}

func (e *Engine) recordSkip(strategy string) {
	e.statsMu.Lock()
	e.stats.Skipped++
	e.statsMu.Unlock()
	metrics.ObserveCorrection(strategy, metrics.OutcomeSkipped)
}

// ResourceKey identifies the resource a record's breaker guards.
func ResourceKey(record models.ErrorRecord) string {
	for _, key := range []string{"service", "endpoint", "resource", "host"} {
		if v := record.MetadataString(key); v != "" {
			return v
		}
	}
	return string(record.Type) + ":" + record.Fingerprint
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
