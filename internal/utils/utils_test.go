package utils

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseTimeParam(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := ParseTimeParam("2024-03-01T14:00:00.250+02:00", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 3, 1, 12, 0, 0, 250_000_000, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got, err := ParseTimeParam(" 90m ", now); err != nil || !got.Equal(now.Add(-90*time.Minute)) {
		t.Fatalf("relative bound: got %v err=%v", got, err)
	}
	for _, bad := range []string{"", "yesterday", "-5m", "0s"} {
		if _, err := ParseTimeParam(bad, now); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestDurationMinutesIsOrderIndependent(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	if got := DurationMinutes(end, start); got != 1.5 {
		t.Fatalf("expected 1.5, got %v", got)
	}
}

func TestNewLoggerToHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn", true)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected log output: %q", out)
	}
	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Fatalf("unknown level should default to info")
	}
}

func TestAppErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := NewAppError("storage.Save", "persist batch", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause")
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Op != "storage.Save" {
		t.Fatalf("expected AppError, got %T", err)
	}
	if err.Error() != "storage.Save: persist batch: disk full" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestOpOfFindsOrigin(t *testing.T) {
	inner := NewAppError("storage.Save", "", errors.New("disk full"))
	outer := NewAppError("monitor.Flush", "store batch", inner)
	if got := OpOf(outer); got != "storage.Save" {
		t.Fatalf("expected innermost op, got %q", got)
	}
	if inner.Error() != "storage.Save: disk full" {
		t.Fatalf("empty message should be omitted, got %q", inner.Error())
	}
	if OpOf(errors.New("plain")) != "" || OpOf(nil) != "" {
		t.Fatalf("errors without an AppError have no op")
	}
}
