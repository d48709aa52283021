package monitor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/miradorstack/mirador-heal/internal/models"
)

type keywordRule[T any] struct {
	value    T
	keywords []string
}

var typeRules = []keywordRule[models.ErrorType]{
	{models.ErrorTypeNetwork, []string{"network", "fetch", "connection refused", "econnrefused", "dns", "socket"}},
	{models.ErrorTypeSecurity, []string{"unauthorized", "forbidden", "csrf", "token", "permission denied"}},
	{models.ErrorTypePerformance, []string{"timeout", "timed out", "slow", "deadline exceeded"}},
	{models.ErrorTypeValidation, []string{"validation", "invalid", "required"}},
	{models.ErrorTypeDatabase, []string{"database", "sql", "query", "deadlock", "constraint"}},
	{models.ErrorTypeRuntime, []string{"typeerror", "undefined", "null", "nil pointer", "panic", "index out of range"}},
}

var severityRules = []keywordRule[models.Severity]{
	{models.SeverityCritical, []string{"critical", "fatal", "security"}},
	{models.SeverityHigh, []string{"error", "failed", "exception", "panic"}},
	{models.SeverityMedium, []string{"warning", "deprecated"}},
}

// Classify infers type and severity from the message. Unmatched messages are
// unknown/low.
func Classify(message string) (models.ErrorType, models.Severity) {
	lower := strings.ToLower(message)
	return match(lower, typeRules, models.ErrorTypeUnknown), match(lower, severityRules, models.SeverityLow)
}

func match[T any](lower string, rules []keywordRule[T], fallback T) T {
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.value
			}
		}
	}
	return fallback
}

// ignoreMatcher is either a literal substring or a compiled expression.
type ignoreMatcher struct {
	literal string
	re      *regexp.Regexp
}

func (m ignoreMatcher) matches(message string) bool {
	if m.re != nil {
		return m.re.MatchString(message)
	}
	return strings.Contains(message, m.literal)
}

// compileIgnore turns configured entries into matchers. Entries written as
// /expr/ or re:expr are regular expressions; anything else is a substring.
func compileIgnore(entries []string) ([]ignoreMatcher, error) {
	out := make([]ignoreMatcher, 0, len(entries))
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		expr, isRegexp := regexpBody(entry)
		if !isRegexp {
			out = append(out, ignoreMatcher{literal: entry})
			continue
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("ignored pattern %q: %w", entry, err)
		}
		out = append(out, ignoreMatcher{re: re})
	}
	return out, nil
}

func regexpBody(entry string) (string, bool) {
	if strings.HasPrefix(entry, "re:") {
		return strings.TrimPrefix(entry, "re:"), true
	}
	if len(entry) >= 2 && strings.HasPrefix(entry, "/") && strings.HasSuffix(entry, "/") {
		return entry[1 : len(entry)-1], true
	}
	return "", false
}

func ignored(matchers []ignoreMatcher, message string) bool {
	for _, m := range matchers {
		if m.matches(message) {
			return true
		}
	}
	return false
}
