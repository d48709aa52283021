// Package patterns aggregates error records into patterns and derives
// clusters, trends, predictions and root-cause explanations from them.
package patterns

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/signature"
)

const (
	// MinOccurrences is the count below which a pattern is considered noise.
	MinOccurrences = 3
	// MaxExamples bounds the example records retained per pattern.
	MaxExamples = 5

	staleAfter          = 7 * 24 * time.Hour
	similarityThreshold = 0.7
	trendWindow         = time.Hour
	trendFactor         = 2.0
	maxRecentSamples    = 2048
)

// Analyzer is the stateful pattern registry.
type Analyzer struct {
	mu       sync.Mutex
	patterns map[string]*patternState
	fixes    *FixRules
	logger   *slog.Logger
	now      func() time.Time
}

type patternState struct {
	pattern   models.ErrorPattern
	users     map[string]struct{}
	workflows map[string]struct{}
	// recent holds occurrence times inside the trend window.
	recent []time.Time
}

// NewAnalyzer constructs an Analyzer. A nil rule set falls back to the built-in fixes.
func NewAnalyzer(logger *slog.Logger, fixes *FixRules) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if fixes == nil {
		fixes = DefaultFixRules()
	}
	return &Analyzer{
		patterns: make(map[string]*patternState),
		fixes:    fixes,
		logger:   logger,
		now:      time.Now,
	}
}

// Analyze folds a batch of records into the registry and returns the derived views.
func (a *Analyzer) Analyze(ctx context.Context, records []models.ErrorRecord) models.AnalysisResult {
	now := a.now()

	a.mu.Lock()
	var created []string
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if a.observeLocked(rec, now) {
			created = append(created, signatureFor(rec))
		}
	}
	removed := a.collectGarbageLocked(now)
	snapshot := a.snapshotLocked()
	newPatterns := make([]models.ErrorPattern, 0, len(created))
	for _, sig := range created {
		if st, ok := a.patterns[sig]; ok {
			newPatterns = append(newPatterns, st.snapshot())
		}
	}
	a.mu.Unlock()

	if removed > 0 {
		a.logger.Debug("pattern gc", slog.Int("removed", removed))
	}

	clusters := Cluster(snapshot)
	a.linkRelated(clusters)
	trending := a.Trending(now)
	result := models.AnalysisResult{
		Patterns:    snapshot,
		NewPatterns: newPatterns,
		Clusters:    clusters,
		Trending:    trending,
		Predictions: Predict(snapshot, now),
	}
	result.Recommendations = Recommend(clusters, trending, snapshot)
	return result
}

func signatureFor(rec models.ErrorRecord) string {
	if rec.Fingerprint != "" {
		return rec.Fingerprint
	}
	return signature.Of(rec)
}

// observeLocked applies the update rule and reports whether a pattern was created.
func (a *Analyzer) observeLocked(rec models.ErrorRecord, now time.Time) bool {
	sig := signatureFor(rec)
	st, ok := a.patterns[sig]
	if !ok {
		template := signature.Template(rec.Message)
		fix, autoFix := a.fixes.Match(template, rec.Type)
		st = &patternState{
			pattern: models.ErrorPattern{
				Signature:        sig,
				PatternTemplate:  template,
				FirstSeen:        rec.Timestamp,
				LastSeen:         rec.Timestamp,
				Severity:         rec.Severity,
				Type:             rec.Type,
				SuggestedFix:     fix,
				AutoFixAvailable: autoFix,
			},
			users:     make(map[string]struct{}),
			workflows: make(map[string]struct{}),
		}
		a.patterns[sig] = st
	}

	p := &st.pattern
	p.Count++
	if rec.Timestamp.After(p.LastSeen) {
		p.LastSeen = rec.Timestamp
	}
	if rec.Timestamp.Before(p.FirstSeen) {
		p.FirstSeen = rec.Timestamp
	}
	if rec.Severity.Rank() > p.Severity.Rank() {
		p.Severity = rec.Severity
	}
	if rec.Context.UserID != "" {
		st.users[rec.Context.UserID] = struct{}{}
	}
	if rec.Context.WorkflowID != "" {
		st.workflows[rec.Context.WorkflowID] = struct{}{}
	}
	if len(p.Examples) < MaxExamples {
		p.Examples = append(p.Examples, rec.Clone())
	}
	p.Confidence = confidence(p.Count, len(st.users)+len(st.workflows))

	cutoff := now.Add(-trendWindow)
	if !rec.Timestamp.Before(cutoff) {
		st.recent = append(st.recent, rec.Timestamp)
	}
	st.pruneRecent(cutoff)
	return !ok
}

func (st *patternState) pruneRecent(cutoff time.Time) {
	kept := st.recent[:0]
	for _, ts := range st.recent {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) > maxRecentSamples {
		kept = kept[len(kept)-maxRecentSamples:]
	}
	st.recent = kept
}

// confidence grows with occurrences and is dampened when the pattern is
// spread over many unrelated users or workflows.
func confidence(count, spread int) float64 {
	base := clamp(float64(count)/10.0, 0, 1)
	if spread > count/2+1 {
		base *= 0.8
	}
	return clamp(base, 0, 1)
}

func (a *Analyzer) collectGarbageLocked(now time.Time) int {
	removed := 0
	for sig, st := range a.patterns {
		if st.pattern.Count < MinOccurrences && now.Sub(st.pattern.LastSeen) > staleAfter {
			delete(a.patterns, sig)
			removed++
		}
	}
	return removed
}

func (a *Analyzer) snapshotLocked() []models.ErrorPattern {
	out := make([]models.ErrorPattern, 0, len(a.patterns))
	for _, st := range a.patterns {
		out = append(out, st.snapshot())
	}
	sortPatterns(out)
	return out
}

func (st *patternState) snapshot() models.ErrorPattern {
	p := st.pattern
	p.AffectedUsers = sortedKeys(st.users)
	p.AffectedWorkflows = sortedKeys(st.workflows)
	p.Examples = make([]models.ErrorRecord, len(st.pattern.Examples))
	for i, ex := range st.pattern.Examples {
		p.Examples[i] = ex.Clone()
	}
	p.Metadata.RelatedPatterns = append([]string(nil), st.pattern.Metadata.RelatedPatterns...)
	return p
}

func (a *Analyzer) linkRelated(clusters []models.PatternCluster) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, cluster := range clusters {
		for _, member := range cluster.Patterns {
			st, ok := a.patterns[member.Signature]
			if !ok {
				continue
			}
			related := make([]string, 0, len(cluster.Patterns)-1)
			for _, other := range cluster.Patterns {
				if other.Signature != member.Signature {
					related = append(related, other.Signature)
				}
			}
			st.pattern.Metadata.RelatedPatterns = related
		}
	}
}

// Patterns returns every tracked pattern, most frequent first.
func (a *Analyzer) Patterns() []models.ErrorPattern {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Pattern returns the pattern with the given signature.
func (a *Analyzer) Pattern(sig string) (models.ErrorPattern, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.patterns[sig]
	if !ok {
		return models.ErrorPattern{}, false
	}
	return st.snapshot(), true
}

// Clusters recomputes clusters over the current registry.
func (a *Analyzer) Clusters() []models.PatternCluster {
	return Cluster(a.Patterns())
}

// Explain computes and stores the root cause of a tracked pattern.
func (a *Analyzer) Explain(sig string) (string, bool) {
	p, ok := a.Pattern(sig)
	if !ok {
		return "", false
	}
	cause := FindRootCause(p)
	a.mu.Lock()
	if st, ok := a.patterns[sig]; ok {
		st.pattern.Metadata.RootCause = cause
	}
	a.mu.Unlock()
	return cause, true
}

// Len returns the number of tracked patterns.
func (a *Analyzer) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.patterns)
}

func sortPatterns(patterns []models.ErrorPattern) {
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Signature < patterns[j].Signature
	})
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
