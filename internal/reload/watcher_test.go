package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/miradorstack/mirador-heal/internal/models"
)

type targetFunc func(models.MonitoringConfig) error

func (f targetFunc) SetConfig(cfg models.MonitoringConfig) error { return f(cfg) }

func TestWatcherAppliesChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heal.yaml")
	if err := os.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	applied := make(chan models.MonitoringConfig, 4)
	load := func(p string) (models.MonitoringConfig, error) {
		data, err := os.ReadFile(p)
		if err != nil {
			return models.MonitoringConfig{}, err
		}
		if string(data) == "broken" {
			return models.MonitoringConfig{}, errors.New("parse error")
		}
		cfg := models.DefaultMonitoringConfig()
		cfg.IgnoredPatterns = []string{string(data)}
		return cfg, nil
	}
	w, err := NewWatcher(path, 20*time.Millisecond, load, targetFunc(func(cfg models.MonitoringConfig) error {
		applied <- cfg
		return nil
	}), nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("broken"), 0644); err != nil {
		t.Fatalf("write broken: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("v2"), 0644); err != nil {
		t.Fatalf("write v2: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-applied:
			if cfg.IgnoredPatterns[0] == "broken" {
				t.Fatalf("rejected config must not be applied")
			}
			if cfg.IgnoredPatterns[0] == "v2" {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for reload")
		}
	}
}

func TestIsConfigEvent(t *testing.T) {
	w, err := NewWatcher("/etc/heal/config.yaml", 0, func(string) (models.MonitoringConfig, error) {
		return models.MonitoringConfig{}, nil
	}, targetFunc(func(models.MonitoringConfig) error { return nil }), nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if !w.isConfigEvent(fsnotify.Event{Name: "/etc/heal/config.yaml"}) {
		t.Fatalf("expected direct match")
	}
	if !w.isConfigEvent(fsnotify.Event{Name: "/etc/heal/..data"}) {
		t.Fatalf("expected configmap symlink match")
	}
	if w.isConfigEvent(fsnotify.Event{Name: "/etc/heal/other.yaml"}) {
		t.Fatalf("unexpected match for sibling file")
	}
}

func TestNewWatcherValidates(t *testing.T) {
	if _, err := NewWatcher("", 0, nil, nil, nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
