package correction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// ExecuteFunc performs a remediation for a record.
type ExecuteFunc func(ctx context.Context, record models.ErrorRecord) (models.CorrectionResult, error)

// Strategy is a registered remediation.
type Strategy struct {
	Name              string
	ApplicableTypes   []models.ErrorType
	Confidence        float64
	EstimatedDuration time.Duration
	Execute           ExecuteFunc
	// CanHandle optionally narrows applicability beyond the error type.
	CanHandle func(record models.ErrorRecord) bool
}

func (s Strategy) validate() error {
	if s.Name == "" {
		return errors.New("strategy name cannot be empty")
	}
	if s.Execute == nil {
		return fmt.Errorf("strategy %s: execute func cannot be nil", s.Name)
	}
	if len(s.ApplicableTypes) == 0 {
		return fmt.Errorf("strategy %s: at least one error type is required", s.Name)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("strategy %s: confidence must be within [0,1], got %f", s.Name, s.Confidence)
	}
	return nil
}

func (s Strategy) appliesTo(record models.ErrorRecord) bool {
	for _, t := range s.ApplicableTypes {
		if t == record.Type {
			return s.CanHandle == nil || s.CanHandle(record)
		}
	}
	return false
}

type registration struct {
	strategy Strategy
	custom   bool
}

// better reports whether candidate should replace current. Higher confidence
// wins; on a tie a custom strategy beats a built-in, otherwise the earlier
// registration is kept.
func better(candidate, current registration) bool {
	if candidate.strategy.Confidence != current.strategy.Confidence {
		return candidate.strategy.Confidence > current.strategy.Confidence
	}
	return candidate.custom && !current.custom
}
