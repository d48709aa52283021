package monitor

import (
	"context"
	"log/slog"
)

const (
	componentKey     = "component"
	monitorComponent = "monitor"
)

// LogCaptureHandler forwards to another slog.Handler and, when
// CaptureConsoleErrors is on, captures Error records as error signals.
// Loggers carrying component=monitor are never captured.
type LogCaptureHandler struct {
	next     slog.Handler
	o        *Orchestrator
	internal bool
	attrs    []slog.Attr
}

// NewLogCaptureHandler wraps next.
func NewLogCaptureHandler(next slog.Handler, o *Orchestrator) *LogCaptureHandler {
	return &LogCaptureHandler{next: next, o: o}
}

// Enabled implements slog.Handler.
func (h *LogCaptureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelError || h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *LogCaptureHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError && !h.internal && h.o != nil {
		if cfg, _ := h.o.snapshotConfig(); cfg.CaptureConsoleErrors {
			metadata := map[string]any{"source": "log"}
			for _, a := range h.attrs {
				metadata[a.Key] = a.Value.String()
			}
			r.Attrs(func(a slog.Attr) bool {
				metadata[a.Key] = a.Value.String()
				return true
			})
			_, _ = h.o.Capture(ctx, CaptureInput{Message: r.Message, Metadata: metadata})
		}
	}
	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *LogCaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	internal := h.internal
	for _, a := range attrs {
		if a.Key == componentKey && a.Value.String() == monitorComponent {
			internal = true
		}
	}
	return &LogCaptureHandler{
		next:     h.next.WithAttrs(attrs),
		o:        h.o,
		internal: internal,
		attrs:    append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

// WithGroup implements slog.Handler.
func (h *LogCaptureHandler) WithGroup(name string) slog.Handler {
	return &LogCaptureHandler{next: h.next.WithGroup(name), o: h.o, internal: h.internal, attrs: h.attrs}
}
