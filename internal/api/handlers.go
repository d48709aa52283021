package api

import (
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/monitor"
)

// DefaultRecentMinutes is used when a recent-records request names no window.
const DefaultRecentMinutes = 60

// CaptureRequest is the wire shape of a capture call on both transports.
type CaptureRequest struct {
	Message    string              `json:"message"`
	Type       models.ErrorType    `json:"type,omitempty"`
	Severity   models.Severity     `json:"severity,omitempty"`
	StackTrace string              `json:"stackTrace,omitempty"`
	Context    models.ErrorContext `json:"context"`
	Metadata   map[string]any      `json:"metadata,omitempty"`
}

// ToInput validates the request and converts it for the orchestrator.
func (r CaptureRequest) ToInput() (monitor.CaptureInput, error) {
	if r.Message == "" {
		return monitor.CaptureInput{}, fmt.Errorf("message is required")
	}
	if r.Type != "" && !r.Type.Valid() {
		return monitor.CaptureInput{}, fmt.Errorf("unknown error type %q", r.Type)
	}
	if r.Severity != "" && !r.Severity.Valid() {
		return monitor.CaptureInput{}, fmt.Errorf("unknown severity %q", r.Severity)
	}
	return monitor.CaptureInput{
		Message:    r.Message,
		Type:       r.Type,
		Severity:   r.Severity,
		StackTrace: r.StackTrace,
		Context:    r.Context,
		Metadata:   r.Metadata,
	}, nil
}

// ResolveRequest is the body of a resolve call.
type ResolveRequest struct {
	Method  models.ResolutionMethod `json:"method"`
	Details string                  `json:"details,omitempty"`
}

// FromProtoCaptureRequest decodes a capture Struct.
func FromProtoCaptureRequest(req *structpb.Struct) (monitor.CaptureInput, error) {
	if req == nil {
		return monitor.CaptureInput{}, fmt.Errorf("request cannot be nil")
	}
	var decoded CaptureRequest
	if err := fromStruct(req, &decoded); err != nil {
		return monitor.CaptureInput{}, err
	}
	return decoded.ToInput()
}

// FromProtoRecentRequest extracts the minutes window, defaulting when absent.
func FromProtoRecentRequest(req *structpb.Struct) (int, error) {
	if req == nil {
		return DefaultRecentMinutes, nil
	}
	v, ok := req.GetFields()["minutes"]
	if !ok {
		return DefaultRecentMinutes, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("minutes must be a number")
	}
	if n.NumberValue <= 0 || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("minutes must be a positive integer")
	}
	return int(n.NumberValue), nil
}

// ToProtoCaptureResponse reports whether a record was kept and, if so, the record.
func ToProtoCaptureResponse(rec *models.ErrorRecord) (*structpb.Struct, error) {
	if rec == nil {
		return structpb.NewStruct(map[string]any{"captured": false})
	}
	record, err := toValue(rec)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"captured": structpb.NewBoolValue(true),
		"record":   record,
	}}, nil
}

// ToProtoStats converts monitoring statistics.
func ToProtoStats(stats models.MonitoringStats) (*structpb.Struct, error) {
	return toStruct(stats)
}

// ToProtoRecords wraps a record list under "records".
func ToProtoRecords(records []models.ErrorRecord) (*structpb.Struct, error) {
	if records == nil {
		records = []models.ErrorRecord{}
	}
	return toStruct(map[string]any{"records": records, "count": len(records)})
}

// ToProtoPatterns wraps patterns under "patterns".
func ToProtoPatterns(patterns []models.ErrorPattern) (*structpb.Struct, error) {
	if patterns == nil {
		patterns = []models.ErrorPattern{}
	}
	return toStruct(map[string]any{"patterns": patterns, "count": len(patterns)})
}

// ToProtoBreakers converts breaker state plus correction counters.
func ToProtoBreakers(breakers map[string]models.BreakerStatus, stats models.CorrectionStats) (*structpb.Struct, error) {
	if breakers == nil {
		breakers = map[string]models.BreakerStatus{}
	}
	return toStruct(map[string]any{"breakers": breakers, "corrections": stats})
}

// ToProtoAnalysis converts the derived views of an analysis pass.
func ToProtoAnalysis(result models.AnalysisResult) (*structpb.Struct, error) {
	return toStruct(map[string]any{
		"trending":        nonNilSlice(result.Trending),
		"predictions":     nonNilSlice(result.Predictions),
		"recommendations": nonNilSlice(result.Recommendations),
		"newPatterns":     nonNilSlice(result.NewPatterns),
	})
}

func toValue(v any) (*structpb.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return structpb.NewValue(generic)
}

func toStruct(v any) (*structpb.Struct, error) {
	value, err := toValue(v)
	if err != nil {
		return nil, err
	}
	s := value.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("payload is not an object")
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, out any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("encode struct: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	return nil
}
