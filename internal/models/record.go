package models

import (
	"encoding/json"
	"math"
	"time"
)

// ErrorType classifies the subsystem or failure family an error belongs to.
type ErrorType string

const (
	ErrorTypeRuntime     ErrorType = "runtime"
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeSecurity    ErrorType = "security"
	ErrorTypePerformance ErrorType = "performance"
	ErrorTypeDatabase    ErrorType = "database"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// ErrorTypes lists every recognised error type in a stable order.
var ErrorTypes = []ErrorType{
	ErrorTypeRuntime,
	ErrorTypeNetwork,
	ErrorTypeValidation,
	ErrorTypeSecurity,
	ErrorTypePerformance,
	ErrorTypeDatabase,
	ErrorTypeUnknown,
}

// Valid reports whether t is one of the recognised error types.
func (t ErrorType) Valid() bool {
	for _, known := range ErrorTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists severities from least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a recognised severity.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Environment is the deployment stage a record originated from.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

// ResolutionMethod records how a record was resolved.
type ResolutionMethod string

const (
	ResolutionAuto    ResolutionMethod = "auto"
	ResolutionManual  ResolutionMethod = "manual"
	ResolutionIgnored ResolutionMethod = "ignored"
	ResolutionPending ResolutionMethod = "pending"
)

// ErrorContext carries optional producer context.
type ErrorContext struct {
	UserID      string      `json:"userId,omitempty"`
	WorkflowID  string      `json:"workflowId,omitempty"`
	NodeID      string      `json:"nodeId,omitempty"`
	ExecutionID string      `json:"executionId,omitempty"`
	OriginURL   string      `json:"originUrl,omitempty"`
	Environment Environment `json:"environment,omitempty"`
	Version     string      `json:"version,omitempty"`
}

// ErrorRecord is one observed fault.
type ErrorRecord struct {
	ID                string           `json:"id"`
	Timestamp         time.Time        `json:"timestamp"`
	Type              ErrorType        `json:"type"`
	Severity          Severity         `json:"severity"`
	Message           string           `json:"message"`
	StackTrace        string           `json:"stackTrace,omitempty"`
	Context           ErrorContext     `json:"context"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
	Resolved          bool             `json:"resolved"`
	ResolutionMethod  ResolutionMethod `json:"resolutionMethod,omitempty"`
	ResolutionDetails string           `json:"resolutionDetails,omitempty"`
	Attempts          int              `json:"attempts"`
	Fingerprint       string           `json:"fingerprint"`
}

// Clone returns a deep copy so callers never share the metadata map.
func (r ErrorRecord) Clone() ErrorRecord {
	out := r
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// NormalizeMetadata returns a copy of m with numbers in one canonical form:
// integral values become int64 and the rest float64, including inside nested
// maps and lists. Records keep this form across JSON round trips.
func NormalizeMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return normalizeFloat(f)
		}
		return x.String()
	case float64:
		return normalizeFloat(x)
	case float32:
		return normalizeFloat(float64(x))
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x)
		}
		return float64(x)
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
		return float64(x)
	case map[string]any:
		return NormalizeMetadata(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// normalizeFloat maps integral floats inside ±2^53 to int64, the range in
// which JSON numbers convert without loss.
func normalizeFloat(f float64) any {
	const exact = 1 << 53
	if f == math.Trunc(f) && f >= -exact && f <= exact {
		return int64(f)
	}
	return f
}

// MetadataString returns the metadata value for key when it is a non-empty string.
func (r ErrorRecord) MetadataString(key string) string {
	if r.Metadata == nil {
		return ""
	}
	if v, ok := r.Metadata[key].(string); ok {
		return v
	}
	return ""
}
