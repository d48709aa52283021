package patterns

import (
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-heal/internal/models"
)

const (
	noCommonFactor     = "no obvious common factor"
	hourBucketDominant = 0.7
)

// FindRootCause explains a pattern from the commonalities of its examples:
// shared stack frames, a single workflow, a single user or a dominant
// hour-of-day.
func FindRootCause(p models.ErrorPattern) string {
	examples := p.Examples
	if len(examples) < 2 {
		return noCommonFactor
	}

	var notes []string
	if frames := commonStackLines(examples); len(frames) > 0 {
		notes = append(notes, "common stack frames: "+strings.Join(frames, " | "))
	}
	if id, ok := sharedValue(examples, func(r models.ErrorRecord) string { return r.Context.WorkflowID }); ok {
		notes = append(notes, fmt.Sprintf("all occurrences in workflow %s", id))
	}
	if id, ok := sharedValue(examples, func(r models.ErrorRecord) string { return r.Context.UserID }); ok {
		notes = append(notes, fmt.Sprintf("all occurrences for user %s", id))
	}
	if hour, share, ok := dominantHour(examples); ok {
		notes = append(notes, fmt.Sprintf("%.0f%% of occurrences around %02d:00 UTC", share*100, hour))
	}

	if len(notes) == 0 {
		return noCommonFactor
	}
	return strings.Join(notes, "; ")
}

func commonStackLines(examples []models.ErrorRecord) []string {
	var common []string
	for i, ex := range examples {
		if strings.TrimSpace(ex.StackTrace) == "" {
			return nil
		}
		lines := stackLines(ex.StackTrace)
		if i == 0 {
			common = lines
			continue
		}
		present := make(map[string]struct{}, len(lines))
		for _, l := range lines {
			present[l] = struct{}{}
		}
		kept := common[:0]
		for _, l := range common {
			if _, ok := present[l]; ok {
				kept = append(kept, l)
			}
		}
		common = kept
		if len(common) == 0 {
			return nil
		}
	}
	return common
}

func stackLines(stack string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

func sharedValue(examples []models.ErrorRecord, field func(models.ErrorRecord) string) (string, bool) {
	first := field(examples[0])
	if first == "" {
		return "", false
	}
	for _, ex := range examples[1:] {
		if field(ex) != first {
			return "", false
		}
	}
	return first, true
}

func dominantHour(examples []models.ErrorRecord) (int, float64, bool) {
	var buckets [24]int
	for _, ex := range examples {
		buckets[ex.Timestamp.UTC().Hour()]++
	}
	best := 0
	for h := 1; h < 24; h++ {
		if buckets[h] > buckets[best] {
			best = h
		}
	}
	share := float64(buckets[best]) / float64(len(examples))
	return best, share, share >= hourBucketDominant
}
