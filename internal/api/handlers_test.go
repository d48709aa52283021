package api

import (
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-heal/internal/models"
)

func TestFromProtoCaptureRequest(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{
		"message":  "timeout talking to ledger",
		"type":     "network",
		"severity": "high",
		"context":  map[string]any{"userId": "u-1", "environment": "production"},
		"metadata": map[string]any{"url": "https://ledger.internal/health"},
	})
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}

	in, err := FromProtoCaptureRequest(req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if in.Type != models.ErrorTypeNetwork || in.Severity != models.SeverityHigh {
		t.Fatalf("unexpected classification: %s/%s", in.Type, in.Severity)
	}
	if in.Context.UserID != "u-1" || in.Context.Environment != models.Environment("production") {
		t.Fatalf("context not decoded: %+v", in.Context)
	}
	if in.Metadata["url"] != "https://ledger.internal/health" {
		t.Fatalf("metadata not decoded: %v", in.Metadata)
	}
}

func TestFromProtoCaptureRequestRejectsNil(t *testing.T) {
	if _, err := FromProtoCaptureRequest(nil); err == nil {
		t.Fatalf("expected error for nil request")
	}
}

func TestFromProtoRecentRequest(t *testing.T) {
	fractional, _ := structpb.NewStruct(map[string]any{"minutes": 1.5})
	if _, err := FromProtoRecentRequest(fractional); err == nil {
		t.Fatalf("expected error for fractional minutes")
	}
	text, _ := structpb.NewStruct(map[string]any{"minutes": "ten"})
	if _, err := FromProtoRecentRequest(text); err == nil {
		t.Fatalf("expected error for string minutes")
	}
	empty, _ := structpb.NewStruct(map[string]any{})
	if got, err := FromProtoRecentRequest(empty); err != nil || got != DefaultRecentMinutes {
		t.Fatalf("expected default, got %d err=%v", got, err)
	}
}

func TestToProtoRecords(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out, err := ToProtoRecords([]models.ErrorRecord{{ID: "r1", Timestamp: ts, Message: "boom", Type: models.ErrorTypeRuntime}})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	records := out.GetFields()["records"].GetListValue().GetValues()
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	fields := records[0].GetStructValue().GetFields()
	if fields["timestamp"].GetStringValue() != "2024-03-01T12:00:00Z" {
		t.Fatalf("timestamp not RFC 3339: %v", fields["timestamp"])
	}

	empty, err := ToProtoRecords(nil)
	if err != nil {
		t.Fatalf("convert empty: %v", err)
	}
	if empty.GetFields()["records"].GetListValue() == nil {
		t.Fatalf("expected empty list, not null")
	}
}
