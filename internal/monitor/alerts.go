package monitor

import (
	"context"
	"log/slog"

	"github.com/miradorstack/mirador-heal/internal/cache"
	"github.com/miradorstack/mirador-heal/internal/metrics"
	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/notify"
)

func (o *Orchestrator) checkAlerts(ctx context.Context, record models.ErrorRecord) {
	cfg, _ := o.snapshotConfig()
	thresholds := cfg.SeverityThresholds

	var related []models.ErrorRecord
	switch {
	case record.Severity == models.SeverityCritical && thresholds.AlertOnCritical:
		recent := o.recentCritical()
		if len(recent) < thresholds.CriticalCountBeforeAlert {
			return
		}
		for _, rec := range recent {
			if rec.ID != record.ID {
				related = append(related, rec)
			}
		}
	case record.Severity == models.SeverityHigh && thresholds.AlertOnHigh:
	default:
		return
	}

	if !o.claimAlert(ctx, record) {
		holder, _, _ := o.cache.Holder(ctx, cache.AlertKey(record.Fingerprint))
		o.logger.Debug("alert suppressed",
			slog.String("record_id", record.ID),
			slog.String("fingerprint", record.Fingerprint),
			slog.String("alerted_by", holder))
		return
	}

	metrics.ObserveAlert(string(record.Severity))
	out := record.Clone()
	o.emit(Event{Kind: EventAlert, Record: &out})
	if err := o.notifier.SendAlert(ctx, notify.Alert{Record: out, RelatedRecords: related}); err != nil {
		o.logger.Warn("alert notification failed",
			slog.String("record_id", record.ID),
			slog.Any("error", err))
	}
}

// recentCritical returns critical records from the alert window, stored or not.
func (o *Orchestrator) recentCritical() []models.ErrorRecord {
	return o.Query(models.QueryFilter{
		Start:    o.now().Add(-alertWindow),
		Severity: models.SeverityCritical,
	})
}

// claimAlert reports whether this fingerprint may alert now. Cache failures
// fail open.
func (o *Orchestrator) claimAlert(ctx context.Context, record models.ErrorRecord) bool {
	if o.alertCooldown <= 0 {
		return true
	}
	ok, err := o.cache.Claim(ctx, cache.AlertKey(record.Fingerprint), record.ID, o.alertCooldown)
	if err != nil {
		o.logger.Warn("alert suppression cache unavailable", slog.Any("error", err))
		return true
	}
	return ok
}

// releaseAlert lifts suppression for a fingerprint once the record that
// alerted for it is resolved, so a recurrence alerts again.
func (o *Orchestrator) releaseAlert(ctx context.Context, record models.ErrorRecord) {
	key := cache.AlertKey(record.Fingerprint)
	holder, held, err := o.cache.Holder(ctx, key)
	if err != nil || !held || holder != record.ID {
		return
	}
	if err := o.cache.Release(ctx, key); err != nil {
		o.logger.Warn("alert claim release failed", slog.String("fingerprint", record.Fingerprint), slog.Any("error", err))
	}
}
