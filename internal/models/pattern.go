package models

import "time"

// ErrorPattern aggregates records sharing a pattern signature.
type ErrorPattern struct {
	Signature         string          `json:"signature"`
	PatternTemplate   string          `json:"patternTemplate"`
	Count             int             `json:"count"`
	FirstSeen         time.Time       `json:"firstSeen"`
	LastSeen          time.Time       `json:"lastSeen"`
	AffectedUsers     []string        `json:"affectedUsers,omitempty"`
	AffectedWorkflows []string        `json:"affectedWorkflows,omitempty"`
	Examples          []ErrorRecord   `json:"examples,omitempty"`
	Confidence        float64         `json:"confidence"`
	Severity          Severity        `json:"severity"`
	Type              ErrorType       `json:"type"`
	AutoFixAvailable  bool            `json:"autoFixAvailable"`
	SuggestedFix      string          `json:"suggestedFix,omitempty"`
	Metadata          PatternMetadata `json:"metadata"`
}

// PatternMetadata holds derived explanations for a pattern.
type PatternMetadata struct {
	RootCause       string   `json:"rootCause,omitempty"`
	RelatedPatterns []string `json:"relatedPatterns,omitempty"`
}

// PatternCluster groups textually similar patterns.
type PatternCluster struct {
	Patterns    []ErrorPattern `json:"patterns"`
	Centroid    string         `json:"centroid"`
	Size        int            `json:"size"`
	Commonality float64        `json:"commonality"`
}

// TrendingPattern flags a pattern whose recent rate outpaces its lifetime rate.
type TrendingPattern struct {
	Pattern      ErrorPattern `json:"pattern"`
	RecentRate   float64      `json:"recentRate"`
	LifetimeRate float64      `json:"lifetimeRate"`
	Ratio        float64      `json:"ratio"`
}

// Prediction estimates how often a pattern will recur over the next window.
type Prediction struct {
	Signature           string        `json:"signature"`
	PatternTemplate     string        `json:"patternTemplate"`
	ExpectedOccurrences float64       `json:"expectedOccurrences"`
	Probability         float64       `json:"probability"`
	Window              time.Duration `json:"window"`
}

// AnalysisResult is the output of a single analysis pass.
type AnalysisResult struct {
	Patterns        []ErrorPattern    `json:"patterns"`
	NewPatterns     []ErrorPattern    `json:"newPatterns,omitempty"`
	Clusters        []PatternCluster  `json:"clusters"`
	Trending        []TrendingPattern `json:"trending"`
	Predictions     []Prediction      `json:"predictions"`
	Recommendations []string          `json:"recommendations"`
}

// ExternalEvent is an event from outside the pipeline (deploys, config pushes, traffic spikes).
type ExternalEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// EventCorrelation reports a statistically notable link between an event type and error volume.
type EventCorrelation struct {
	EventType   string  `json:"eventType"`
	Coefficient float64 `json:"coefficient"`
	PValue      float64 `json:"pValue"`
	Windows     int     `json:"windows"`
}
