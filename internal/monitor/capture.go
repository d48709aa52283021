package monitor

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// NetworkFailure describes a failed outbound request.
type NetworkFailure struct {
	URL        string
	Method     string
	StatusCode int
	Message    string
}

// CaptureNetworkError records a network failure. Server errors and failures
// without a status are high severity; other statuses are medium.
func (o *Orchestrator) CaptureNetworkError(ctx context.Context, f NetworkFailure, ectx models.ErrorContext) (*models.ErrorRecord, error) {
	severity := models.SeverityMedium
	if f.StatusCode == 0 || f.StatusCode >= 500 {
		severity = models.SeverityHigh
	}
	message := f.Message
	if message == "" {
		if f.StatusCode == 0 {
			message = fmt.Sprintf("network request failed: %s %s", f.Method, f.URL)
		} else {
			message = fmt.Sprintf("network request failed: %s %s returned %d", f.Method, f.URL, f.StatusCode)
		}
	}
	metadata := map[string]any{"url": f.URL}
	if f.Method != "" {
		metadata["method"] = f.Method
	}
	if f.StatusCode != 0 {
		metadata["statusCode"] = f.StatusCode
	}
	return o.Capture(ctx, CaptureInput{
		Message:  message,
		Type:     models.ErrorTypeNetwork,
		Severity: severity,
		Context:  ectx,
		Metadata: metadata,
	})
}

// CaptureValidationError records rejected input at low severity.
func (o *Orchestrator) CaptureValidationError(ctx context.Context, field, message string, value any, ectx models.ErrorContext) (*models.ErrorRecord, error) {
	metadata := map[string]any{"field": field}
	if value != nil {
		metadata["value"] = value
	}
	return o.Capture(ctx, CaptureInput{
		Message:  message,
		Type:     models.ErrorTypeValidation,
		Severity: models.SeverityLow,
		Context:  ectx,
		Metadata: metadata,
	})
}

// CaptureSecurityError records a security event at critical severity.
func (o *Orchestrator) CaptureSecurityError(ctx context.Context, message string, details map[string]any, ectx models.ErrorContext) (*models.ErrorRecord, error) {
	return o.Capture(ctx, CaptureInput{
		Message:  message,
		Type:     models.ErrorTypeSecurity,
		Severity: models.SeverityCritical,
		Context:  ectx,
		Metadata: details,
	})
}

// CapturePerformanceError records a breached threshold. Values above twice
// the threshold are high severity.
func (o *Orchestrator) CapturePerformanceError(ctx context.Context, metric string, value, threshold float64, ectx models.ErrorContext) (*models.ErrorRecord, error) {
	severity := models.SeverityMedium
	if value > 2*threshold {
		severity = models.SeverityHigh
	}
	return o.Capture(ctx, CaptureInput{
		Message:  fmt.Sprintf("performance threshold exceeded: %s = %.2f (threshold %.2f)", metric, value, threshold),
		Type:     models.ErrorTypePerformance,
		Severity: severity,
		Context:  ectx,
		Metadata: map[string]any{"metric": metric, "value": value, "threshold": threshold},
	})
}

// CaptureFailure records a Go error, classifying it from its message.
func (o *Orchestrator) CaptureFailure(ctx context.Context, err error, ectx models.ErrorContext) (*models.ErrorRecord, error) {
	if err == nil {
		return nil, nil
	}
	return o.Capture(ctx, CaptureInput{
		Message:  err.Error(),
		Context:  ectx,
		Metadata: map[string]any{"goType": fmt.Sprintf("%T", err)},
	})
}

// RecoverAndCapture must be deferred directly. It recovers a panic and records
// it as a critical runtime error when unhandled failure capture is enabled;
// otherwise the panic continues.
func (o *Orchestrator) RecoverAndCapture(ctx context.Context, ectx models.ErrorContext) {
	r := recover()
	if r == nil {
		return
	}
	if !o.CapturePanic(ctx, r, ectx, nil) {
		panic(r)
	}
}

// CapturePanic records an already recovered panic value. It reports false,
// recording nothing, when unhandled failure capture is disabled.
func (o *Orchestrator) CapturePanic(ctx context.Context, recovered any, ectx models.ErrorContext, metadata map[string]any) bool {
	cfg, _ := o.snapshotConfig()
	if !cfg.CaptureUnhandledFailures {
		return false
	}
	meta := map[string]any{"source": "panic"}
	for k, v := range metadata {
		meta[k] = v
	}
	_, _ = o.Capture(ctx, CaptureInput{
		Message:    fmt.Sprintf("panic: %v", recovered),
		Type:       models.ErrorTypeRuntime,
		Severity:   models.SeverityCritical,
		StackTrace: string(debug.Stack()),
		Context:    ectx,
		Metadata:   meta,
	})
	return true
}
