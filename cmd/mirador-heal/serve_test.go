package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/miradorstack/mirador-heal/internal/config"
	"github.com/miradorstack/mirador-heal/internal/correction"
	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/storage"
)

func TestNewCorrectorReconnectsRecordDatabase(t *testing.T) {
	persister, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "heal.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer persister.Close()

	rec := models.ErrorRecord{
		ID:       "db-locked",
		Type:     models.ErrorTypeDatabase,
		Severity: models.SeverityHigh,
		Message:  "database is locked",
		Metadata: map[string]any{"resource": storage.ResourceName},
	}

	result, err := newCorrector(config.Default(), persister, nil).Correct(context.Background(), rec)
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if !result.Success || result.Strategy != "database-reconnect" {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, err := newCorrector(config.Default(), nil, nil).Correct(context.Background(), rec); !errors.Is(err, correction.ErrNoStrategy) {
		t.Fatalf("expected no strategy without a record database, got %v", err)
	}
}
