package models

import "time"

// SortField selects the ordering applied by storage queries.
type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortBySeverity  SortField = "severity"
	SortByType      SortField = "type"
)

// QueryFilter bounds a storage query. Zero values mean "no constraint".
type QueryFilter struct {
	Start      time.Time
	End        time.Time
	Type       ErrorType
	Severity   Severity
	WorkflowID string
	UserID     string
	Resolved   *bool
	SortBy     SortField
	// SortAsc flips the default descending order.
	SortAsc bool
	Offset  int
	Limit   int
}

// RecordUpdate carries a partial update; nil fields are left untouched.
type RecordUpdate struct {
	Type              *ErrorType
	Severity          *Severity
	Resolved          *bool
	ResolutionMethod  *ResolutionMethod
	ResolutionDetails *string
	Attempts          *int
	Metadata          map[string]any
}

// Apply merges the update into rec and reports whether an indexed field
// (type, severity or resolved) changed.
func (u RecordUpdate) Apply(rec *ErrorRecord) bool {
	changed := false
	if u.Type != nil && *u.Type != rec.Type {
		rec.Type = *u.Type
		changed = true
	}
	if u.Severity != nil && *u.Severity != rec.Severity {
		rec.Severity = *u.Severity
		changed = true
	}
	if u.Resolved != nil && *u.Resolved != rec.Resolved {
		rec.Resolved = *u.Resolved
		changed = true
	}
	if u.ResolutionMethod != nil {
		rec.ResolutionMethod = *u.ResolutionMethod
	}
	if u.ResolutionDetails != nil {
		rec.ResolutionDetails = *u.ResolutionDetails
	}
	if u.Attempts != nil {
		rec.Attempts = *u.Attempts
	}
	if len(u.Metadata) > 0 {
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]any, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			rec.Metadata[k] = v
		}
	}
	return changed
}

// StoreStats summarises storage contents.
type StoreStats struct {
	Total      int   `json:"total"`
	Resolved   int   `json:"resolved"`
	Unresolved int   `json:"unresolved"`
	SizeBytes  int64 `json:"sizeBytes"`
}

// MonitoringStats is the operator-facing summary returned by the orchestrator.
type MonitoringStats struct {
	Total       int               `json:"total"`
	Resolved    int               `json:"resolved"`
	Unresolved  int               `json:"unresolved"`
	Buffered    int               `json:"buffered"`
	ByType      map[ErrorType]int `json:"byType"`
	BySeverity  map[Severity]int  `json:"bySeverity"`
	ErrorRate   float64           `json:"errorRatePerMinute"`
	TopPatterns []ErrorPattern    `json:"topPatterns"`
	SizeBytes   int64             `json:"sizeBytes"`
	Captured    int64             `json:"captured"`
	// FlushP95Ms is the p95 duration of recent buffer flushes.
	FlushP95Ms float64 `json:"flushP95Ms"`
	// CaptureP95Ms is the p95 latency of captures served over gRPC.
	CaptureP95Ms float64 `json:"captureP95Ms,omitempty"`
}
