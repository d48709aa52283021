package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/miradorstack/mirador-heal/internal/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		message  string
		wantType models.ErrorType
		wantSev  models.Severity
	}{
		{"Failed to fetch /api/orders", models.ErrorTypeNetwork, models.SeverityHigh},
		{"Unauthorized: token expired", models.ErrorTypeSecurity, models.SeverityLow},
		{"request timeout after 30s", models.ErrorTypePerformance, models.SeverityLow},
		{"field email is required", models.ErrorTypeValidation, models.SeverityLow},
		{"deadlock detected while running query", models.ErrorTypeDatabase, models.SeverityLow},
		{"TypeError: cannot read property of undefined", models.ErrorTypeRuntime, models.SeverityHigh},
		{"fatal: disk corrupted", models.ErrorTypeUnknown, models.SeverityCritical},
		{"deprecated flag used", models.ErrorTypeUnknown, models.SeverityMedium},
		{"something odd", models.ErrorTypeUnknown, models.SeverityLow},
	}
	for _, tc := range cases {
		gotType, gotSev := Classify(tc.message)
		if gotType != tc.wantType || gotSev != tc.wantSev {
			t.Fatalf("%q: got %s/%s want %s/%s", tc.message, gotType, gotSev, tc.wantType, tc.wantSev)
		}
	}
}

func TestRateWindow(t *testing.T) {
	w := newRateWindow(10)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		w.add(base)
	}
	for i := 0; i < 4; i++ {
		w.add(base.Add(time.Minute))
	}
	if got := w.perMinute(base.Add(time.Minute), 2); got != 5 {
		t.Fatalf("expected 5/min, got %v", got)
	}
	// Eleven minutes later the ring has wrapped over the second bucket.
	w.add(base.Add(11 * time.Minute))
	if got := w.perMinute(base.Add(11*time.Minute), 10); got != 0.1 {
		t.Fatalf("expected stale buckets ignored, got %v", got)
	}
}

func TestFlushFailureReportsAreRateLimited(t *testing.T) {
	o := newTestOrchestrator(t, testConfig(), Deps{})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	for i := 0; i < selfReportsPerMinute+3; i++ {
		o.reportFlushFailure(errors.New("disk full"))
	}
	if got := o.Buffered(); got != selfReportsPerMinute {
		t.Fatalf("expected a burst of %d reports, got %d", selfReportsPerMinute, got)
	}

	now = now.Add(time.Minute / selfReportsPerMinute)
	o.reportFlushFailure(errors.New("disk full"))
	o.reportFlushFailure(errors.New("disk full"))
	if got := o.Buffered(); got != selfReportsPerMinute+1 {
		t.Fatalf("expected one report to refill, got %d", got)
	}
}

func TestLogCaptureHandler(t *testing.T) {
	cfg := testConfig()
	cfg.CaptureConsoleErrors = true
	o := newTestOrchestrator(t, cfg, Deps{})
	logger := slog.New(NewLogCaptureHandler(slog.NewTextHandler(io.Discard, nil), o))

	logger.Info("just chatter")
	logger.Error("invoice export crashed", slog.Int("invoice", 42))
	logger.With(slog.String(componentKey, monitorComponent)).Error("pipeline internal failure")

	recent := o.Recent(5)
	if len(recent) != 1 {
		t.Fatalf("expected one captured log record, got %d", len(recent))
	}
	if recent[0].Message != "invoice export crashed" || recent[0].MetadataString("source") != "log" || recent[0].MetadataString("invoice") != "42" {
		t.Fatalf("unexpected record %+v", recent[0])
	}

	cfg.CaptureConsoleErrors = false
	if err := o.SetConfig(cfg); err != nil {
		t.Fatalf("set config: %v", err)
	}
	logger.ErrorContext(context.Background(), "second crash")
	if got := len(o.Recent(5)); got != 1 {
		t.Fatalf("capture should stop when disabled, got %d", got)
	}
}
