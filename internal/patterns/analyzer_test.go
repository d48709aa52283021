package patterns

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/signature"
)

func newTestAnalyzer(now time.Time) *Analyzer {
	a := NewAnalyzer(nil, nil)
	a.now = func() time.Time { return now }
	return a
}

func record(msg string, ts time.Time, errType models.ErrorType, severity models.Severity) models.ErrorRecord {
	rec := models.ErrorRecord{
		ID:        fmt.Sprintf("%s-%d", msg, ts.UnixNano()),
		Timestamp: ts,
		Type:      errType,
		Severity:  severity,
		Message:   msg,
	}
	rec.Fingerprint = signature.Of(rec)
	return rec
}

func repeat(msg string, n int, start time.Time, step time.Duration) []models.ErrorRecord {
	out := make([]models.ErrorRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, record(msg, start.Add(time.Duration(i)*step), models.ErrorTypeDatabase, models.SeverityHigh))
	}
	return out
}

func TestAnalyzeUpdatesPatternStatistics(t *testing.T) {
	now := time.Now()
	a := newTestAnalyzer(now)

	var batch []models.ErrorRecord
	for i := 0; i < 7; i++ {
		rec := record(fmt.Sprintf("fetch failed for order %d", i), now.Add(time.Duration(i-10)*time.Minute), models.ErrorTypeNetwork, models.SeverityMedium)
		rec.Context.UserID = fmt.Sprintf("user-%d", i%2)
		rec.Context.WorkflowID = "wf-1"
		if i == 3 {
			rec.Severity = models.SeverityCritical
		}
		batch = append(batch, rec)
	}

	result := a.Analyze(context.Background(), batch)
	if len(result.Patterns) != 1 {
		t.Fatalf("expected one pattern, got %d", len(result.Patterns))
	}
	if len(result.NewPatterns) != 1 {
		t.Fatalf("expected the pattern to be reported as new")
	}
	p := result.Patterns[0]
	if p.Count != 7 {
		t.Fatalf("expected count 7, got %d", p.Count)
	}
	if len(p.Examples) != MaxExamples {
		t.Fatalf("expected %d examples, got %d", MaxExamples, len(p.Examples))
	}
	if p.Examples[0].ID != batch[0].ID {
		t.Fatalf("expected oldest examples to be kept")
	}
	if len(p.AffectedUsers) != 2 || len(p.AffectedWorkflows) != 1 {
		t.Fatalf("unexpected affected sets users=%v workflows=%v", p.AffectedUsers, p.AffectedWorkflows)
	}
	if p.Severity != models.SeverityCritical {
		t.Fatalf("expected max severity critical, got %s", p.Severity)
	}
	if !p.LastSeen.Equal(batch[6].Timestamp) || !p.FirstSeen.Equal(batch[0].Timestamp) {
		t.Fatalf("unexpected first/last seen")
	}
	if p.SuggestedFix == "" || !p.AutoFixAvailable {
		t.Fatalf("expected network fix suggestion, got %q", p.SuggestedFix)
	}
	if p.PatternTemplate != "fetch failed for order <num>" {
		t.Fatalf("unexpected template %q", p.PatternTemplate)
	}

	again := a.Analyze(context.Background(), batch[:1])
	if again.Patterns[0].Count != 8 || len(again.NewPatterns) != 0 {
		t.Fatalf("expected count to keep increasing without a new pattern")
	}
}

func TestAnalyzeCollectsStalePatterns(t *testing.T) {
	now := time.Now()
	a := newTestAnalyzer(now)
	old := now.Add(-8 * 24 * time.Hour)

	batch := []models.ErrorRecord{record("rare glitch", old, models.ErrorTypeRuntime, models.SeverityLow)}
	batch = append(batch, repeat("frequent glitch", 3, old, time.Minute)...)
	a.Analyze(context.Background(), batch)

	if a.Len() != 1 {
		t.Fatalf("expected only the established pattern to survive, got %d", a.Len())
	}
	if _, ok := a.Pattern(signature.Of(batch[1])); !ok {
		t.Fatalf("expected frequent pattern to be retained")
	}
}

func TestClusteringThreshold(t *testing.T) {
	now := time.Now()
	a := newTestAnalyzer(now)

	batch := repeat("database connection timeout on 1", 3, now.Add(-30*time.Minute), time.Minute)
	batch = append(batch, repeat("database connection timeout on shard 2", 3, now.Add(-20*time.Minute), time.Minute)...)
	batch = append(batch, repeat("payment gateway rejected card", 3, now.Add(-10*time.Minute), time.Minute)...)

	result := a.Analyze(context.Background(), batch)
	if len(result.Clusters) != 1 {
		t.Fatalf("expected exactly one cluster, got %d", len(result.Clusters))
	}
	cluster := result.Clusters[0]
	if len(cluster.Patterns) != 2 {
		t.Fatalf("expected two patterns in cluster, got %d", len(cluster.Patterns))
	}
	for _, p := range cluster.Patterns {
		if strings.Contains(p.PatternTemplate, "payment") {
			t.Fatalf("dissimilar pattern must not cluster")
		}
	}
	if cluster.Size != 6 {
		t.Fatalf("expected cluster size 6, got %d", cluster.Size)
	}
	if cluster.Commonality < 0.7 {
		t.Fatalf("expected commonality >= 0.7, got %f", cluster.Commonality)
	}
	if p, _ := a.Pattern(cluster.Centroid); len(p.Metadata.RelatedPatterns) != 1 {
		t.Fatalf("expected centroid to be linked to its sibling")
	}
}

func TestClusterIgnoresInfrequentPatterns(t *testing.T) {
	patterns := []models.ErrorPattern{
		{Signature: "a", PatternTemplate: "disk full on node <num>", Count: 2},
		{Signature: "b", PatternTemplate: "disk full on node <num> again", Count: 5},
	}
	if clusters := Cluster(patterns); len(clusters) != 0 {
		t.Fatalf("expected no clusters when one member is below the minimum")
	}
}

func TestTrendingAndPredictions(t *testing.T) {
	now := time.Now()
	a := newTestAnalyzer(now)

	batch := repeat("cache miss storm", 10, now.Add(-10*time.Hour), 50*time.Minute)
	batch = append(batch, repeat("cache miss storm", 6, now.Add(-30*time.Minute), 5*time.Minute)...)
	batch = append(batch, repeat("steady drip", 10, now.Add(-10*time.Hour), time.Hour)...)

	result := a.Analyze(context.Background(), batch)
	if len(result.Trending) != 1 {
		t.Fatalf("expected one trending pattern, got %d", len(result.Trending))
	}
	if result.Trending[0].Pattern.PatternTemplate != "cache miss storm" {
		t.Fatalf("unexpected trending pattern %q", result.Trending[0].Pattern.PatternTemplate)
	}
	if result.Trending[0].Ratio <= 2 {
		t.Fatalf("expected ratio > 2, got %f", result.Trending[0].Ratio)
	}

	found := false
	for _, pred := range result.Predictions {
		if pred.PatternTemplate == "cache miss storm" {
			found = true
			if pred.ExpectedOccurrences < 1 || pred.Probability <= 0 || pred.Probability > 1 {
				t.Fatalf("unexpected prediction %+v", pred)
			}
		}
	}
	if !found {
		t.Fatalf("expected a prediction for the frequent pattern")
	}

	hasTrendRec := false
	for _, rec := range result.Recommendations {
		if strings.Contains(rec, "trending") {
			hasTrendRec = true
		}
	}
	if !hasTrendRec {
		t.Fatalf("expected a trending recommendation, got %v", result.Recommendations)
	}
}

func TestPredictSkipsRarePatterns(t *testing.T) {
	now := time.Now()
	patterns := []models.ErrorPattern{
		{Signature: "a", Count: 3, FirstSeen: now.Add(-10 * time.Minute)},
		{Signature: "b", Count: 3, FirstSeen: now.Add(-72 * time.Hour)},
		{Signature: "c", Count: 2, FirstSeen: now.Add(-time.Minute)},
	}
	preds := Predict(patterns, now)
	if len(preds) != 1 || preds[0].Signature != "a" {
		t.Fatalf("unexpected predictions %+v", preds)
	}
	if preds[0].Probability != 0.3 {
		t.Fatalf("expected probability 0.3, got %f", preds[0].Probability)
	}
}

func TestRecommendCitesCriticalPatterns(t *testing.T) {
	patterns := []models.ErrorPattern{
		{Signature: "x", PatternTemplate: "token signature invalid", Count: 4, Severity: models.SeverityCritical, SuggestedFix: "Rotate keys"},
		{Signature: "y", PatternTemplate: "minor", Count: 9, Severity: models.SeverityLow},
	}
	recs := Recommend(nil, nil, patterns)
	if len(recs) != 1 {
		t.Fatalf("expected one recommendation, got %v", recs)
	}
	if !strings.Contains(recs[0], "4 times") || !strings.Contains(recs[0], "Rotate keys") {
		t.Fatalf("recommendation should cite count and fix: %s", recs[0])
	}
}

func TestLoadFixRulesPrependsFileRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixes.yaml")
	if err := os.WriteFile(path, []byte(`rules:
  - id: quota
    keywords: ["quota exceeded"]
    types: ["performance"]
    fix: "Request a higher quota"
    autoFix: false
  - id: broken
    keywords: []
`), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadFixRules(path, nil)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if rules.Len() != len(defaultRules())+1 {
		t.Fatalf("expected incomplete rule to be skipped, got %d rules", rules.Len())
	}
	if fix, _ := rules.Match("Quota exceeded for tenant <num>", models.ErrorTypePerformance); fix != "Request a higher quota" {
		t.Fatalf("unexpected fix %q", fix)
	}
	if fix, _ := rules.Match("Quota exceeded for tenant <num>", models.ErrorTypeNetwork); fix != "" {
		t.Fatalf("type constraint should exclude network, got %q", fix)
	}
	if fix, auto := rules.Match("fetch failed", models.ErrorTypeNetwork); fix == "" || !auto {
		t.Fatalf("expected built-in network rule")
	}

	missing, err := LoadFixRules(filepath.Join(dir, "absent.yaml"), nil)
	if err != nil || missing.Len() != len(defaultRules()) {
		t.Fatalf("expected defaults for a missing file, err=%v", err)
	}
}

func TestShippedFixRulesLoad(t *testing.T) {
	rules, err := LoadFixRules(filepath.Join("..", "..", "configs", "rules", "fixes.yaml"), nil)
	if err != nil {
		t.Fatalf("load shipped rules: %v", err)
	}
	if rules.Len() != len(defaultRules())+3 {
		t.Fatalf("expected 3 shipped rules ahead of defaults, got %d total", rules.Len())
	}
	if fix, _ := rules.Match("pq: sorry, too many clients already", models.ErrorTypeDatabase); !strings.Contains(fix, "connection pool") {
		t.Fatalf("unexpected fix %q", fix)
	}
}
