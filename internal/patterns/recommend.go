package patterns

import (
	"fmt"

	"github.com/miradorstack/mirador-heal/internal/models"
)

const recommendationLimit = 3

// Recommend produces operator-facing advice from the largest clusters, the
// fastest trending patterns and every established critical pattern.
func Recommend(clusters []models.PatternCluster, trending []models.TrendingPattern, patterns []models.ErrorPattern) []string {
	recs := make([]string, 0)

	for i, cluster := range clusters {
		if i == recommendationLimit {
			break
		}
		centroid := centroidPattern(cluster)
		recs = appendUnique(recs, withFix(fmt.Sprintf(
			"%d related patterns around %q account for %d occurrences",
			len(cluster.Patterns), centroid.PatternTemplate, cluster.Size,
		), centroid.SuggestedFix))
	}

	for i, trend := range trending {
		if i == recommendationLimit {
			break
		}
		recs = appendUnique(recs, withFix(fmt.Sprintf(
			"%q is trending: %d occurrences, %.1fx its usual rate",
			trend.Pattern.PatternTemplate, trend.Pattern.Count, trend.Ratio,
		), trend.Pattern.SuggestedFix))
	}

	for _, p := range patterns {
		if p.Severity != models.SeverityCritical || p.Count < MinOccurrences {
			continue
		}
		recs = appendUnique(recs, withFix(fmt.Sprintf(
			"critical pattern %q occurred %d times",
			p.PatternTemplate, p.Count,
		), p.SuggestedFix))
	}
	return recs
}

func centroidPattern(cluster models.PatternCluster) models.ErrorPattern {
	for _, p := range cluster.Patterns {
		if p.Signature == cluster.Centroid {
			return p
		}
	}
	return cluster.Patterns[0]
}

func withFix(text, fix string) string {
	if fix == "" {
		return text
	}
	return text + "; suggested fix: " + fix
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
