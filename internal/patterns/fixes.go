package patterns

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// FixRules maps message keywords to suggested remedies.
type FixRules struct {
	rules []FixRule
}

// FixRule is a single keyword → remedy entry.
type FixRule struct {
	ID       string             `yaml:"id"`
	Keywords []string           `yaml:"keywords"`
	Types    []models.ErrorType `yaml:"types"`
	Fix      string             `yaml:"fix"`
	AutoFix  bool               `yaml:"autoFix"`
}

// FixRuleFile is the YAML root structure.
type FixRuleFile struct {
	Rules []FixRule `yaml:"rules"`
}

// DefaultFixRules returns the built-in remedy table.
func DefaultFixRules() *FixRules {
	return &FixRules{rules: defaultRules()}
}

func defaultRules() []FixRule {
	return []FixRule{
		{ID: "network", Keywords: []string{"network", "fetch"}, Fix: "Retry the request with exponential backoff", AutoFix: true},
		{ID: "timeout", Keywords: []string{"timeout", "timed out"}, Fix: "Raise the timeout threshold or optimise the slow operation", AutoFix: true},
		{ID: "rate-limit", Keywords: []string{"rate limit", "too many requests"}, Fix: "Throttle outgoing requests to stay under the rate limit", AutoFix: true},
		{ID: "memory", Keywords: []string{"memory", "heap"}, Fix: "Review memory allocation and release unused resources"},
		{ID: "null-guard", Keywords: []string{"undefined", "null", "nil pointer"}, Fix: "Add guards before dereferencing possibly missing values"},
		{ID: "validation", Keywords: []string{"validation", "invalid"}, Fix: "Improve input checks before processing", AutoFix: true},
	}
}

// LoadFixRules reads extra rules from path and places them ahead of the
// built-in table. A missing or empty path yields the built-in table.
func LoadFixRules(path string, logger *slog.Logger) (*FixRules, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return DefaultFixRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("fix rule file not found, using built-in rules", slog.String("path", path))
			return DefaultFixRules(), nil
		}
		return nil, err
	}
	var file FixRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse fix rules: %w", err)
	}
	rules := make([]FixRule, 0, len(file.Rules)+len(defaultRules()))
	for _, rule := range file.Rules {
		if rule.Fix == "" || len(rule.Keywords) == 0 {
			logger.Warn("skipping incomplete fix rule", slog.String("id", rule.ID))
			continue
		}
		rules = append(rules, rule)
	}
	rules = append(rules, defaultRules()...)
	return &FixRules{rules: rules}, nil
}

// Match returns the first remedy whose keywords appear in the template and
// whose type constraint (if any) includes errType.
func (f *FixRules) Match(template string, errType models.ErrorType) (string, bool) {
	if f == nil {
		return "", false
	}
	text := strings.ToLower(template)
	for _, rule := range f.rules {
		if len(rule.Types) > 0 && !containsType(rule.Types, errType) {
			continue
		}
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return rule.Fix, rule.AutoFix
			}
		}
	}
	return "", false
}

// Len returns the number of rules.
func (f *FixRules) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rules)
}

func containsType(types []models.ErrorType, t models.ErrorType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
