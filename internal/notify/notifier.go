// Package notify delivers flush batches and alerts to external collaborators.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// Batch is sent after every successful flush.
type Batch struct {
	Records  []models.ErrorRecord  `json:"records"`
	Patterns []models.ErrorPattern `json:"patterns"`
}

// Alert is sent when a record crosses an alerting threshold.
type Alert struct {
	Record         models.ErrorRecord   `json:"record"`
	RelatedRecords []models.ErrorRecord `json:"relatedRecords"`
}

// Notifier is the outbound contract. Delivery is fire-and-forget; callers log
// returned errors and move on.
type Notifier interface {
	SendBatch(ctx context.Context, batch Batch) error
	SendAlert(ctx context.Context, alert Alert) error
}

// Noop discards everything.
type Noop struct{}

// SendBatch implements Notifier.
func (Noop) SendBatch(context.Context, Batch) error { return nil }

// SendAlert implements Notifier.
func (Noop) SendAlert(context.Context, Alert) error { return nil }

// LogNotifier writes batches and alerts to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendBatch implements Notifier.
func (n *LogNotifier) SendBatch(_ context.Context, batch Batch) error {
	n.logger.Debug("error batch flushed",
		slog.Int("records", len(batch.Records)),
		slog.Int("patterns", len(batch.Patterns)))
	return nil
}

// SendAlert implements Notifier.
func (n *LogNotifier) SendAlert(_ context.Context, alert Alert) error {
	n.logger.Warn("error alert",
		slog.String("record_id", alert.Record.ID),
		slog.String("type", string(alert.Record.Type)),
		slog.String("severity", string(alert.Record.Severity)),
		slog.String("message", alert.Record.Message),
		slog.Int("related", len(alert.RelatedRecords)))
	return nil
}

// Multi fans out to every notifier and joins their errors.
type Multi []Notifier

// SendBatch implements Notifier.
func (m Multi) SendBatch(ctx context.Context, batch Batch) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.SendBatch(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendAlert implements Notifier.
func (m Multi) SendAlert(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.SendAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
