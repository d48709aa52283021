// Package monitor wires capture, buffering, storage, analysis, correction and
// alerting into one explicitly constructed pipeline.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/miradorstack/mirador-heal/internal/cache"
	"github.com/miradorstack/mirador-heal/internal/correction"
	"github.com/miradorstack/mirador-heal/internal/metrics"
	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/notify"
	"github.com/miradorstack/mirador-heal/internal/patterns"
	"github.com/miradorstack/mirador-heal/internal/signature"
	"github.com/miradorstack/mirador-heal/internal/storage"
	"github.com/miradorstack/mirador-heal/internal/utils"
)

// ErrInvalidInput is returned for structurally invalid capture requests.
var ErrInvalidInput = errors.New("invalid capture input")

const (
	alertWindow          = 5 * time.Minute
	rateSpanMinutes      = 5
	selfReportsPerMinute = 5
	topPatternLimit      = 5
	defaultCleanupEvery  = time.Hour
)

// Deps are the collaborators of an Orchestrator. Nil fields get defaults.
type Deps struct {
	Store     *storage.Store
	Analyzer  *patterns.Analyzer
	Corrector *correction.Engine
	Notifier  notify.Notifier
	Cache     cache.Claims
	Logger    *slog.Logger

	// AlertCooldown suppresses repeated alerts for one fingerprint. Zero disables suppression.
	AlertCooldown time.Duration
	// CorrectionTimeout bounds each correction attempt.
	CorrectionTimeout time.Duration
	CleanupInterval   time.Duration
}

// CaptureInput describes an error signal. Type and Severity are inferred from
// the message when empty.
type CaptureInput struct {
	Message    string
	Type       models.ErrorType
	Severity   models.Severity
	StackTrace string
	Context    models.ErrorContext
	Metadata   map[string]any
}

// Orchestrator is the error telemetry pipeline.
type Orchestrator struct {
	logger        *slog.Logger
	store         *storage.Store
	analyzer      *patterns.Analyzer
	corrector     *correction.Engine
	notifier      notify.Notifier
	cache         cache.Claims
	alertCooldown time.Duration
	cleanupEvery  time.Duration
	flushLatency  *utils.LatencyTracker

	cfgMu  sync.RWMutex
	cfg    models.MonitoringConfig
	ignore []ignoreMatcher

	bufMu    sync.Mutex
	buffer   []models.ErrorRecord
	inflight []models.ErrorRecord
	flushMu  sync.Mutex

	analysisMu sync.RWMutex
	analysis   models.AnalysisResult

	listenersMu  sync.RWMutex
	listeners    map[uint64]Listener
	nextListener uint64

	rate        *rateWindow
	captured    atomic.Int64
	selfReports *rate.Limiter

	runMu      sync.Mutex
	rootCtx    context.Context
	rootCancel context.CancelFunc
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	stopped    bool
	wg         sync.WaitGroup

	now    func() time.Time
	random func() float64
}

// New builds an orchestrator. The correction engine is pointed at the
// orchestrator so attempt and resolution updates reach buffered records too.
func New(cfg models.MonitoringConfig, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, utils.NewAppError("monitor.New", "invalid monitoring config", err)
	}
	ignore, err := compileIgnore(cfg.IgnoredPatterns)
	if err != nil {
		return nil, utils.NewAppError("monitor.New", "invalid ignore list", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil {
		deps.Store = storage.NewStore(storage.Options{
			MaxRecords:    cfg.Storage.MaxRecords,
			RetentionDays: cfg.Storage.RetentionDays,
			Logger:        logger,
		})
	} else {
		deps.Store.SetLimits(cfg.Storage.MaxRecords, cfg.Storage.RetentionDays)
	}
	if deps.Analyzer == nil {
		deps.Analyzer = patterns.NewAnalyzer(logger, nil)
	}
	if deps.Corrector == nil {
		deps.Corrector = correction.NewEngine(correction.Options{Logger: logger})
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop{}
	}
	if deps.Cache == nil {
		deps.Cache = cache.NoopClaims{}
	}
	if deps.CleanupInterval <= 0 {
		deps.CleanupInterval = defaultCleanupEvery
	}
	logger = logger.With(slog.String(componentKey, monitorComponent))

	rootCtx, rootCancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		logger:        logger,
		store:         deps.Store,
		analyzer:      deps.Analyzer,
		corrector:     deps.Corrector,
		notifier:      deps.Notifier,
		cache:         deps.Cache,
		alertCooldown: deps.AlertCooldown,
		cleanupEvery:  deps.CleanupInterval,
		flushLatency:  utils.NewLatencyTracker(256),
		cfg:           cfg,
		ignore:        ignore,
		listeners:     make(map[uint64]Listener),
		rate:          newRateWindow(60),
		selfReports:   rate.NewLimiter(rate.Every(time.Minute/selfReportsPerMinute), selfReportsPerMinute),
		rootCtx:       rootCtx,
		rootCancel:    rootCancel,
		now:           time.Now,
		random:        rand.Float64,
	}
	o.corrector.SetUpdater(o)
	if deps.CorrectionTimeout > 0 {
		o.corrector.SetAttemptTimeout(deps.CorrectionTimeout)
	}
	return o, nil
}

// Config returns the active monitoring configuration.
func (o *Orchestrator) Config() models.MonitoringConfig {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	cfg := o.cfg
	cfg.IgnoredPatterns = append([]string(nil), o.cfg.IgnoredPatterns...)
	return cfg
}

// SetConfig validates and installs a new configuration.
func (o *Orchestrator) SetConfig(cfg models.MonitoringConfig) error {
	if err := cfg.Validate(); err != nil {
		return utils.NewAppError("monitor.SetConfig", "invalid monitoring config", err)
	}
	ignore, err := compileIgnore(cfg.IgnoredPatterns)
	if err != nil {
		return utils.NewAppError("monitor.SetConfig", "invalid ignore list", err)
	}
	o.cfgMu.Lock()
	o.cfg = cfg
	o.ignore = ignore
	o.cfgMu.Unlock()
	o.store.SetLimits(cfg.Storage.MaxRecords, cfg.Storage.RetentionDays)
	o.logger.Info("monitoring config updated",
		slog.Bool("enabled", cfg.Enabled),
		slog.Float64("sample_rate", cfg.SampleRate),
		slog.Int("batch_size", cfg.Performance.BatchSize))
	return nil
}

// SetSensitivity applies a sensitivity preset to the active configuration.
func (o *Orchestrator) SetSensitivity(level models.Sensitivity) error {
	cfg, err := level.Apply(o.Config())
	if err != nil {
		return utils.NewAppError("monitor.SetSensitivity", "unknown level", err)
	}
	return o.SetConfig(cfg)
}

func (o *Orchestrator) snapshotConfig() (models.MonitoringConfig, []ignoreMatcher) {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg, o.ignore
}

// Capture records an error signal. It returns nil without error when the
// signal is filtered, monitoring is disabled, or the signal is below high
// severity and its resource is being throttled by a correction.
func (o *Orchestrator) Capture(ctx context.Context, in CaptureInput) (*models.ErrorRecord, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, utils.NewAppError("monitor.Capture", "message is required", ErrInvalidInput)
	}
	cfg, ignore := o.snapshotConfig()
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.SampleRate < 1 && o.random() >= cfg.SampleRate {
		metrics.ObserveDrop("sampled")
		return nil, nil
	}
	if ignored(ignore, in.Message) {
		metrics.ObserveDrop("ignored")
		return nil, nil
	}

	record := o.buildRecord(in)
	if record.Severity.Rank() < models.SeverityHigh.Rank() && o.corrector.Throttled(correction.ResourceKey(record)) {
		metrics.ObserveDrop("throttled")
		return nil, nil
	}
	o.bufMu.Lock()
	o.buffer = append(o.buffer, record)
	buffered := len(o.buffer)
	o.bufMu.Unlock()

	o.captured.Add(1)
	o.rate.add(record.Timestamp)
	metrics.ObserveCapture(string(record.Type), string(record.Severity))
	o.logger.Debug("error captured",
		slog.String("record_id", record.ID),
		slog.String("type", string(record.Type)),
		slog.String("severity", string(record.Severity)),
		slog.String("fingerprint", record.Fingerprint))

	out := record.Clone()
	o.emit(Event{Kind: EventCaptured, Time: record.Timestamp, Record: &out})

	if buffered >= cfg.Performance.BatchSize || record.Severity == models.SeverityCritical {
		o.goAsync(func(ctx context.Context) {
			_ = o.Flush(ctx)
		})
	}
	o.goAsync(func(ctx context.Context) {
		o.correct(ctx, record)
	})
	o.goAsync(func(ctx context.Context) {
		o.checkAlerts(ctx, record)
	})

	result := record.Clone()
	return &result, nil
}

func (o *Orchestrator) buildRecord(in CaptureInput) models.ErrorRecord {
	inferredType, inferredSeverity := Classify(in.Message)
	if !in.Type.Valid() {
		in.Type = inferredType
	}
	if !in.Severity.Valid() {
		in.Severity = inferredSeverity
	}
	var metadata map[string]any
	if len(in.Metadata) > 0 {
		metadata = models.NormalizeMetadata(in.Metadata)
	}
	return models.ErrorRecord{
		ID:          newRecordID(),
		Timestamp:   o.now().UTC(),
		Type:        in.Type,
		Severity:    in.Severity,
		Message:     in.Message,
		StackTrace:  in.StackTrace,
		Context:     in.Context,
		Metadata:    metadata,
		Fingerprint: signature.Fingerprint(in.Type, in.Message, in.StackTrace),
	}
}

func newRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func isInternal(rec models.ErrorRecord) bool {
	v, _ := rec.Metadata["internal"].(bool)
	return v
}

func (o *Orchestrator) goAsync(fn func(ctx context.Context)) {
	o.runMu.Lock()
	if o.stopped {
		o.runMu.Unlock()
		return
	}
	ctx := o.rootCtx
	o.wg.Add(1)
	o.runMu.Unlock()

	go func() {
		defer o.wg.Done()
		fn(ctx)
	}()
}

func (o *Orchestrator) correct(ctx context.Context, record models.ErrorRecord) {
	if isInternal(record) {
		return
	}
	result := o.corrector.TryCorrect(ctx, record)
	if result == nil || !result.Success {
		return
	}
	resolved, ok := o.Get(record.ID)
	if !ok {
		resolved = record
	}
	o.emit(Event{Kind: EventResolved, Record: &resolved, Correction: result})
}

// Update applies a partial update to a buffered or stored record. It makes
// the orchestrator the correction engine's RecordUpdater.
func (o *Orchestrator) Update(ctx context.Context, id string, upd models.RecordUpdate) (models.ErrorRecord, error) {
	if rec, ok := o.updateBuffered(id, upd); ok {
		return rec, nil
	}
	rec, err := o.store.Update(ctx, id, upd)
	if !errors.Is(err, storage.ErrNotFound) {
		return rec, err
	}
	// The record may sit in a flush that is still running.
	o.flushMu.Lock()
	defer o.flushMu.Unlock()
	if rec, ok := o.updateBuffered(id, upd); ok {
		return rec, nil
	}
	return o.store.Update(ctx, id, upd)
}

func (o *Orchestrator) updateBuffered(id string, upd models.RecordUpdate) (models.ErrorRecord, bool) {
	o.bufMu.Lock()
	defer o.bufMu.Unlock()
	for i := range o.buffer {
		if o.buffer[i].ID == id {
			upd.Apply(&o.buffer[i])
			return o.buffer[i].Clone(), true
		}
	}
	return models.ErrorRecord{}, false
}

// Resolve marks a record resolved with the given method.
func (o *Orchestrator) Resolve(ctx context.Context, id string, method models.ResolutionMethod, details string) (models.ErrorRecord, error) {
	switch method {
	case models.ResolutionAuto, models.ResolutionManual, models.ResolutionIgnored:
	default:
		return models.ErrorRecord{}, utils.NewAppError("monitor.Resolve", fmt.Sprintf("unsupported resolution method %q", method), ErrInvalidInput)
	}
	resolved := true
	rec, err := o.Update(ctx, id, models.RecordUpdate{
		Resolved:          &resolved,
		ResolutionMethod:  &method,
		ResolutionDetails: &details,
	})
	if err != nil {
		return rec, err
	}
	o.releaseAlert(ctx, rec)
	o.emit(Event{Kind: EventResolved, Record: &rec})
	return rec, nil
}

// Flush moves buffered records into storage and runs pattern analysis over
// them. On failure the batch is put back at the front of the buffer.
func (o *Orchestrator) Flush(ctx context.Context) error {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	o.bufMu.Lock()
	batch := o.buffer
	o.buffer = nil
	o.inflight = batch
	o.bufMu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	cfg, _ := o.snapshotConfig()
	flushCtx := ctx
	if cfg.Performance.FlushTimeout > 0 {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(ctx, cfg.Performance.FlushTimeout)
		defer cancel()
	}

	started := time.Now()
	err := o.store.StoreMany(flushCtx, batch)
	elapsed := time.Since(started)
	metrics.ObserveFlush(elapsed, err != nil)
	o.flushLatency.Observe(elapsed)

	if err != nil {
		o.requeue(batch, cfg.Storage.MaxRecords)
		o.logger.Warn("flush failed, records re-queued",
			slog.Int("records", len(batch)),
			slog.Any("error", err))
		if ctx.Err() == nil {
			o.reportFlushFailure(err)
		}
		o.emit(Event{Kind: EventFlush, Err: err})
		return utils.NewAppError("monitor.Flush", "store batch", err)
	}

	o.bufMu.Lock()
	o.inflight = nil
	o.bufMu.Unlock()

	result := o.analyzer.Analyze(ctx, batch)
	o.setAnalysis(result)
	o.logger.Debug("buffer flushed",
		slog.Int("records", len(batch)),
		slog.Int("patterns", len(result.Patterns)),
		slog.Int("new_patterns", len(result.NewPatterns)),
		slog.Duration("elapsed", elapsed))
	o.emit(Event{Kind: EventFlush, Flushed: len(batch)})

	if err := o.notifier.SendBatch(ctx, notify.Batch{Records: batch, Patterns: result.NewPatterns}); err != nil {
		o.logger.Warn("batch notification failed", slog.Any("error", err))
	}
	return nil
}

func (o *Orchestrator) requeue(batch []models.ErrorRecord, limit int) {
	o.bufMu.Lock()
	defer o.bufMu.Unlock()
	o.inflight = nil
	merged := make([]models.ErrorRecord, 0, len(batch)+len(o.buffer))
	merged = append(merged, batch...)
	merged = append(merged, o.buffer...)
	if limit > 0 && len(merged) > limit {
		dropped := len(merged) - limit
		merged = merged[dropped:]
		for i := 0; i < dropped; i++ {
			metrics.ObserveDrop("overflow")
		}
	}
	o.buffer = merged
}

// reportFlushFailure buffers one internal record describing the failure,
// at most selfReportsPerMinute times a minute on average.
func (o *Orchestrator) reportFlushFailure(cause error) {
	now := o.now()
	if !o.selfReports.AllowN(now, 1) {
		return
	}
	message := "error telemetry flush failed: " + cause.Error()
	record := models.ErrorRecord{
		ID:          newRecordID(),
		Timestamp:   now.UTC(),
		Type:        models.ErrorTypeRuntime,
		Severity:    models.SeverityHigh,
		Message:     message,
		Metadata:    map[string]any{"internal": true},
		Fingerprint: signature.Fingerprint(models.ErrorTypeRuntime, message, ""),
	}
	o.bufMu.Lock()
	o.buffer = append(o.buffer, record)
	o.bufMu.Unlock()
	o.captured.Add(1)
	o.rate.add(now)
	metrics.ObserveCapture(string(record.Type), string(record.Severity))
	out := record.Clone()
	o.emit(Event{Kind: EventCaptured, Record: &out})
}

// pending returns buffered and in-flight records that storage does not hold yet.
func (o *Orchestrator) pending() []models.ErrorRecord {
	o.bufMu.Lock()
	out := make([]models.ErrorRecord, 0, len(o.inflight)+len(o.buffer))
	for _, rec := range o.inflight {
		out = append(out, rec.Clone())
	}
	for _, rec := range o.buffer {
		out = append(out, rec.Clone())
	}
	o.bufMu.Unlock()

	filtered := out[:0]
	for _, rec := range out {
		if _, stored := o.store.Get(rec.ID); !stored {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

// Buffered returns the number of records waiting for the next flush.
func (o *Orchestrator) Buffered() int {
	o.bufMu.Lock()
	defer o.bufMu.Unlock()
	return len(o.buffer)
}

// Get returns a record by id from the buffer or storage.
func (o *Orchestrator) Get(id string) (models.ErrorRecord, bool) {
	if rec, ok := o.store.Get(id); ok {
		return rec, true
	}
	for _, rec := range o.pending() {
		if rec.ID == id {
			return rec, true
		}
	}
	return models.ErrorRecord{}, false
}

// Stats summarises stored and buffered records.
func (o *Orchestrator) Stats() models.MonitoringStats {
	storeStats := o.store.Stats()
	byType, bySeverity := o.store.Counts()
	stats := models.MonitoringStats{
		Total:      storeStats.Total,
		Resolved:   storeStats.Resolved,
		Unresolved: storeStats.Unresolved,
		ByType:     byType,
		BySeverity: bySeverity,
		SizeBytes:  storeStats.SizeBytes,
		ErrorRate:  o.rate.perMinute(o.now(), rateSpanMinutes),
		Captured:   o.captured.Load(),
		FlushP95Ms: utils.Millis(o.flushLatency.Percentile(95)),
	}
	for _, rec := range o.pending() {
		stats.Total++
		stats.Buffered++
		stats.ByType[rec.Type]++
		stats.BySeverity[rec.Severity]++
		if rec.Resolved {
			stats.Resolved++
		} else {
			stats.Unresolved++
		}
	}
	top := o.analyzer.Patterns()
	if len(top) > topPatternLimit {
		top = top[:topPatternLimit]
	}
	stats.TopPatterns = top
	return stats
}

// Recent returns records from the last minutes, newest first, including
// records that have not been flushed yet.
func (o *Orchestrator) Recent(minutes int) []models.ErrorRecord {
	if minutes <= 0 {
		minutes = 60
	}
	return o.Query(models.QueryFilter{Start: o.now().Add(-time.Duration(minutes) * time.Minute)})
}

// Query searches stored and buffered records.
func (o *Orchestrator) Query(filter models.QueryFilter) []models.ErrorRecord {
	var extra []models.ErrorRecord
	for _, rec := range o.pending() {
		if storage.Matches(rec, filter) {
			extra = append(extra, rec)
		}
	}
	if len(extra) == 0 {
		return o.store.Query(filter)
	}
	unpaged := filter
	unpaged.Offset, unpaged.Limit = 0, 0
	all := append(o.store.Query(unpaged), extra...)
	return storage.SortAndPage(all, filter)
}

// Reanalyze folds every stored record into the pattern registry. It is meant
// to run once after records were restored from persistence.
func (o *Orchestrator) Reanalyze(ctx context.Context) models.AnalysisResult {
	records := o.store.Export()
	result := o.analyzer.Analyze(ctx, records)
	o.setAnalysis(result)
	o.logger.Info("stored records analysed",
		slog.Int("records", len(records)),
		slog.Int("patterns", len(result.Patterns)))
	return result
}

func (o *Orchestrator) setAnalysis(result models.AnalysisResult) {
	metrics.SetPatternsTracked(len(result.Patterns))
	o.analysisMu.Lock()
	o.analysis = result
	o.analysisMu.Unlock()
}

// Analysis returns the result of the most recent analysis pass: trending
// patterns, predictions and recommendations alongside patterns and clusters.
func (o *Orchestrator) Analysis() models.AnalysisResult {
	o.analysisMu.RLock()
	defer o.analysisMu.RUnlock()
	return o.analysis
}

// Patterns returns every tracked pattern, most frequent first.
func (o *Orchestrator) Patterns() []models.ErrorPattern {
	return o.analyzer.Patterns()
}

// Clusters returns clusters over the tracked patterns.
func (o *Orchestrator) Clusters() []models.PatternCluster {
	return o.analyzer.Clusters()
}

// RootCause explains a tracked pattern.
func (o *Orchestrator) RootCause(sig string) (string, bool) {
	return o.analyzer.Explain(sig)
}

// PatternRecords returns the stored and buffered records of one pattern, oldest first.
func (o *Orchestrator) PatternRecords(sig string) []models.ErrorRecord {
	out := o.store.ByFingerprint(sig)
	for _, rec := range o.pending() {
		if rec.Fingerprint == sig {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// CorrelateWithEvents correlates stored error volume with external events.
func (o *Orchestrator) CorrelateWithEvents(events []models.ExternalEvent) []models.EventCorrelation {
	records := append(o.store.Export(), o.pending()...)
	return patterns.CorrelateWithEvents(records, events)
}

// CircuitBreakers returns correction breaker state keyed by resource.
func (o *Orchestrator) CircuitBreakers() map[string]models.BreakerStatus {
	return o.corrector.CircuitBreakerStatus()
}

// CorrectionStats returns correction counters.
func (o *Orchestrator) CorrectionStats() models.CorrectionStats {
	return o.corrector.Stats()
}

// Start runs periodic flushing and retention cleanup until ctx ends or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.stopped {
		return errors.New("orchestrator stopped")
	}
	if o.loopCancel != nil {
		return errors.New("orchestrator already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	o.loopCancel = cancel
	o.loopDone = make(chan struct{})
	go o.run(loopCtx, o.loopDone)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	cfg, _ := o.snapshotConfig()
	flushTimer := time.NewTimer(cfg.Performance.FlushInterval)
	defer flushTimer.Stop()
	cleanup := time.NewTicker(o.cleanupEvery)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushTimer.C:
			if err := o.Flush(ctx); err != nil && ctx.Err() == nil {
				o.logger.Debug("periodic flush failed", slog.Any("error", err))
			}
			cfg, _ = o.snapshotConfig()
			flushTimer.Reset(cfg.Performance.FlushInterval)
		case <-cleanup.C:
			if removed := o.store.Cleanup(ctx); removed > 0 {
				o.logger.Info("retention cleanup", slog.Int("removed", removed))
			}
		}
	}
}

// Stop halts background work, cancels in-flight corrections and flushes
// whatever is still buffered.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.runMu.Lock()
	if o.stopped {
		o.runMu.Unlock()
		return nil
	}
	o.stopped = true
	cancel, done := o.loopCancel, o.loopDone
	o.runMu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	o.rootCancel()
	waited := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	return o.Flush(ctx)
}
