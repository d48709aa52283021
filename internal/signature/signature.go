// Package signature derives deduplication keys and human readable templates
// from raw error messages.
package signature

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/miradorstack/mirador-heal/internal/models"
)

const (
	urlPlaceholder    = "<url>"
	uuidPlaceholder   = "<uuid>"
	numberPlaceholder = "<num>"
)

var (
	urlPattern    = regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^\s"'<>]+`)
	uuidPattern   = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	numberPattern = regexp.MustCompile(`\d+`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// Template generalises variable content (URLs, UUIDs, digit runs) while keeping
// the message readable.
func Template(message string) string {
	out := urlPattern.ReplaceAllString(message, urlPlaceholder)
	out = uuidPattern.ReplaceAllString(out, uuidPlaceholder)
	out = numberPattern.ReplaceAllString(out, numberPlaceholder)
	out = spacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Normalize returns the case-folded template used for identity comparisons.
// Compatibility forms (full-width digits, ligatures) are unified first so they
// generalise like their ASCII counterparts.
func Normalize(message string) string {
	return cases.Fold().String(Template(norm.NFKC.String(message)))
}

// FirstStackLine returns the first non-empty line of a stack trace.
func FirstStackLine(stack string) string {
	for _, line := range strings.Split(stack, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// Fingerprint hashes the error type, normalised message and first stack line
// into a short key. Messages differing only in numbers, UUIDs or URLs share a
// fingerprint.
func Fingerprint(errType models.ErrorType, message, stack string) string {
	var b strings.Builder
	b.WriteString(string(errType))
	b.WriteByte('|')
	b.WriteString(Normalize(message))
	b.WriteByte('|')
	b.WriteString(Normalize(FirstStackLine(stack)))
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// Of returns the pattern signature of a record. Pattern identity uses the same
// inputs as the fingerprint so the two keys always agree.
func Of(record models.ErrorRecord) string {
	return Fingerprint(record.Type, record.Message, record.StackTrace)
}

// Tokens splits a template into a lower-cased word set.
func Tokens(template string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(template), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return false
		case r == '<' || r == '>' || r == '_' || r == '-':
			return false
		}
		return r < 0x80
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b| for two token sets.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
