package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Monitoring.SampleRate != 1 || cfg.Monitoring.Storage.MaxRecords != 10000 {
		t.Fatalf("unexpected monitoring defaults %+v", cfg.Monitoring)
	}
	if cfg.Monitoring.Performance.BatchSize != 50 || cfg.Monitoring.Performance.FlushInterval != 5*time.Second {
		t.Fatalf("unexpected performance defaults %+v", cfg.Monitoring.Performance)
	}
	if cfg.Monitoring.SeverityThresholds.CriticalCountBeforeAlert != 3 {
		t.Fatalf("unexpected alert threshold %d", cfg.Monitoring.SeverityThresholds.CriticalCountBeforeAlert)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heal.yaml")
	if err := os.WriteFile(path, []byte(`server:
  address: ":6000"
monitoring:
  sampleRate: 0.25
  ignoredPatterns: ["ResizeObserver", "/^chunk \\d+ failed$/"]
  performance:
    batchSize: 10
    flushInterval: 2s
  unknownField: ignored
correction:
  breakerCooldown: 90s
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MIRADOR_HEAL_WEBHOOK_URL", "http://hooks.local")
	t.Setenv("MIRADOR_HEAL_RETENTION_DAYS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":6000" {
		t.Fatalf("expected address override, got %s", cfg.Server.Address)
	}
	if cfg.Monitoring.SampleRate != 0.25 || len(cfg.Monitoring.IgnoredPatterns) != 2 {
		t.Fatalf("unexpected monitoring %+v", cfg.Monitoring)
	}
	if cfg.Monitoring.Performance.FlushInterval != 2*time.Second || cfg.Monitoring.Performance.BatchSize != 10 {
		t.Fatalf("unexpected performance %+v", cfg.Monitoring.Performance)
	}
	if cfg.Monitoring.Storage.MaxRecords != 10000 {
		t.Fatalf("defaults should survive partial sections, got %d", cfg.Monitoring.Storage.MaxRecords)
	}
	if cfg.Correction.BreakerCooldown != 90*time.Second {
		t.Fatalf("unexpected cooldown %s", cfg.Correction.BreakerCooldown)
	}
	if cfg.Notify.WebhookURL != "http://hooks.local" || cfg.Monitoring.Storage.RetentionDays != 7 {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Notify, cfg.Monitoring.Storage)
	}
}

func TestLoadRejectsInvalidSampleRate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heal.yaml")
	if err := os.WriteFile(path, []byte("monitoring:\n  sampleRate: 1.5\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestShippedConfigLoads(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load(filepath.Join("..", "..", "configs", "heal.yaml"))
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}
	if len(cfg.Monitoring.IgnoredPatterns) != 3 {
		t.Fatalf("expected 3 ignore entries, got %v", cfg.Monitoring.IgnoredPatterns)
	}
	if cfg.Storage.SQLitePath == "" || cfg.Correction.BreakerCooldown != time.Minute {
		t.Fatalf("unexpected storage/correction settings: %+v %+v", cfg.Storage, cfg.Correction)
	}
	if cfg.Notify.AlertCooldown != 5*time.Minute {
		t.Fatalf("unexpected alert cooldown %v", cfg.Notify.AlertCooldown)
	}
}
