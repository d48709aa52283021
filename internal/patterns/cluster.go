package patterns

import (
	"sort"

	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/signature"
)

// Cluster groups patterns with at least MinOccurrences whose template word
// sets have a Jaccard similarity of at least 0.7. Only groups of two or more
// patterns are returned, largest first.
func Cluster(patterns []models.ErrorPattern) []models.PatternCluster {
	candidates := make([]models.ErrorPattern, 0, len(patterns))
	for _, p := range patterns {
		if p.Count >= MinOccurrences {
			candidates = append(candidates, p)
		}
	}
	sortPatterns(candidates)

	tokens := make([]map[string]struct{}, len(candidates))
	for i, p := range candidates {
		tokens[i] = signature.Tokens(p.PatternTemplate)
	}

	visited := make([]bool, len(candidates))
	clusters := make([]models.PatternCluster, 0)
	for i := range candidates {
		if visited[i] {
			continue
		}
		visited[i] = true
		members := []int{i}
		for j := i + 1; j < len(candidates); j++ {
			if visited[j] {
				continue
			}
			if signature.Jaccard(tokens[i], tokens[j]) >= similarityThreshold {
				visited[j] = true
				members = append(members, j)
			}
		}
		if len(members) < 2 {
			continue
		}
		clusters = append(clusters, buildCluster(candidates, tokens, members))
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Size > clusters[j].Size
	})
	return clusters
}

func buildCluster(candidates []models.ErrorPattern, tokens []map[string]struct{}, members []int) models.PatternCluster {
	cluster := models.PatternCluster{Patterns: make([]models.ErrorPattern, 0, len(members))}
	sums := make([]float64, len(members))
	total := 0.0
	pairs := 0
	for a := 0; a < len(members); a++ {
		cluster.Patterns = append(cluster.Patterns, candidates[members[a]])
		cluster.Size += candidates[members[a]].Count
		for b := a + 1; b < len(members); b++ {
			sim := signature.Jaccard(tokens[members[a]], tokens[members[b]])
			sums[a] += sim
			sums[b] += sim
			total += sim
			pairs++
		}
	}

	best := 0
	for k := 1; k < len(sums); k++ {
		if sums[k] > sums[best] {
			best = k
		}
	}
	cluster.Centroid = cluster.Patterns[best].Signature
	if pairs > 0 {
		cluster.Commonality = total / float64(pairs)
	}
	return cluster
}
