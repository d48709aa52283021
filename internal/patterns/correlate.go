package patterns

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/miradorstack/mirador-heal/internal/models"
)

const (
	correlationWindow    = 5 * time.Minute
	correlationThreshold = 0.5
	significanceLevel    = 0.05
	// maxCorrelationWindows is one week of five-minute windows.
	maxCorrelationWindows = 7 * 24 * 12
)

// CorrelateWithEvents buckets records and external events into five-minute
// windows and reports event types whose per-window counts correlate with
// error volume (|r| > 0.5, p < 0.05). Windows cover the span of the records,
// at most the latest maxCorrelationWindows of it; events outside are ignored.
func CorrelateWithEvents(records []models.ErrorRecord, events []models.ExternalEvent) []models.EventCorrelation {
	if len(records) == 0 || len(events) == 0 {
		return nil
	}

	start, end := records[0].Timestamp, records[0].Timestamp
	for _, r := range records {
		if r.Timestamp.Before(start) {
			start = r.Timestamp
		}
		if r.Timestamp.After(end) {
			end = r.Timestamp
		}
	}
	start = start.Truncate(correlationWindow)
	if earliest := end.Truncate(correlationWindow).Add(-(maxCorrelationWindows - 1) * correlationWindow); start.Before(earliest) {
		start = earliest
	}
	n := int(end.Sub(start)/correlationWindow) + 1
	if n < 3 {
		return nil
	}

	bucket := func(ts time.Time) (int, bool) {
		if ts.Before(start) || ts.After(end) {
			return 0, false
		}
		return int(ts.Sub(start) / correlationWindow), true
	}
	errorCounts := make([]float64, n)
	for _, r := range records {
		if i, ok := bucket(r.Timestamp); ok {
			errorCounts[i]++
		}
	}
	eventCounts := make(map[string][]float64)
	for _, e := range events {
		i, ok := bucket(e.Timestamp)
		if !ok {
			continue
		}
		counts, seen := eventCounts[e.Type]
		if !seen {
			counts = make([]float64, n)
			eventCounts[e.Type] = counts
		}
		counts[i]++
	}

	out := make([]models.EventCorrelation, 0)
	for eventType, counts := range eventCounts {
		r := stat.Correlation(counts, errorCounts, nil)
		if math.IsNaN(r) || math.Abs(r) <= correlationThreshold {
			continue
		}
		p := correlationPValue(r, n)
		if p >= significanceLevel {
			continue
		}
		out = append(out, models.EventCorrelation{
			EventType:   eventType,
			Coefficient: r,
			PValue:      p,
			Windows:     n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return math.Abs(out[i].Coefficient) > math.Abs(out[j].Coefficient)
	})
	return out
}

// correlationPValue is the two-tailed p-value of t = r·√((n−2)/(1−r²)).
func correlationPValue(r float64, n int) float64 {
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * (1 - dist.CDF(math.Abs(t)))
}
