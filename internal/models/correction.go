package models

import "time"

// CorrectionResult is the outcome of one correction run.
type CorrectionResult struct {
	Success  bool          `json:"success"`
	Strategy string        `json:"strategy"`
	Method   string        `json:"method"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
}

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerStatus is a point-in-time view of one circuit breaker.
type BreakerStatus struct {
	Key                 string        `json:"key"`
	State               BreakerState  `json:"state"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	OpenedAt            time.Time     `json:"openedAt,omitempty"`
	Cooldown            time.Duration `json:"cooldown"`
}

// CorrectionStats summarises correction activity.
type CorrectionStats struct {
	Total      int                    `json:"total"`
	Succeeded  int                    `json:"succeeded"`
	Failed     int                    `json:"failed"`
	Skipped    int                    `json:"skipped"`
	ByStrategy map[string]StrategyRun `json:"byStrategy"`
}

// StrategyRun counts outcomes for one strategy.
type StrategyRun struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
