package patterns

import (
	"sort"
	"time"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// Trending flags patterns whose occurrence rate over the last hour exceeds
// twice their lifetime average rate. Every occurrence inside the window is
// counted, not only the retained examples.
func (a *Analyzer) Trending(now time.Time) []models.TrendingPattern {
	a.mu.Lock()
	cutoff := now.Add(-trendWindow)
	recent := make(map[string]int, len(a.patterns))
	patterns := make([]models.ErrorPattern, 0, len(a.patterns))
	for sig, st := range a.patterns {
		st.pruneRecent(cutoff)
		recent[sig] = len(st.recent)
		patterns = append(patterns, st.snapshot())
	}
	a.mu.Unlock()

	out := make([]models.TrendingPattern, 0)
	for _, p := range patterns {
		n := recent[p.Signature]
		if n == 0 {
			continue
		}
		recentRate := float64(n) / trendWindow.Hours()
		lifetimeRate := float64(p.Count) / lifetimeHours(p, now)
		if recentRate <= trendFactor*lifetimeRate {
			continue
		}
		out = append(out, models.TrendingPattern{
			Pattern:      p,
			RecentRate:   recentRate,
			LifetimeRate: lifetimeRate,
			Ratio:        recentRate / lifetimeRate,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ratio > out[j].Ratio })
	return out
}

// lifetimeHours is the age of a pattern, floored at the trend window so a
// pattern born inside the window is never reported as trending against itself.
func lifetimeHours(p models.ErrorPattern, now time.Time) float64 {
	lifetime := now.Sub(p.FirstSeen)
	if lifetime < trendWindow {
		lifetime = trendWindow
	}
	return lifetime.Hours()
}

// Predict extrapolates each established pattern's lifetime frequency over the
// next hour, emitting predictions expected to occur at least once.
func Predict(patterns []models.ErrorPattern, now time.Time) []models.Prediction {
	out := make([]models.Prediction, 0)
	for _, p := range patterns {
		if p.Count < MinOccurrences {
			continue
		}
		expected := float64(p.Count) / lifetimeHours(p, now) * trendWindow.Hours()
		if expected < 1 {
			continue
		}
		out = append(out, models.Prediction{
			Signature:           p.Signature,
			PatternTemplate:     p.PatternTemplate,
			ExpectedOccurrences: expected,
			Probability:         clamp(expected/10, 0, 1),
			Window:              trendWindow,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpectedOccurrences > out[j].ExpectedOccurrences
	})
	return out
}
