// Package reload applies configuration file changes to a running pipeline.
package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// Loader reads the monitoring section from the config file.
type Loader func(path string) (models.MonitoringConfig, error)

// Target receives reloaded configuration; the orchestrator satisfies it.
type Target interface {
	SetConfig(cfg models.MonitoringConfig) error
}

// Watcher watches a config file and pushes valid changes to a Target.
type Watcher struct {
	path     string
	debounce time.Duration
	load     Loader
	target   Target
	logger   *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	running bool
	done    chan struct{}
}

// NewWatcher constructs a watcher. It does not touch the filesystem until Start.
func NewWatcher(path string, debounce time.Duration, load Loader, target Target, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path cannot be empty")
	}
	if load == nil || target == nil {
		return nil, errors.New("loader and target are required")
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, debounce: debounce, load: load, target: target, logger: logger}, nil
}

// Start begins watching. The directory is watched rather than the file so
// atomic rename updates are seen.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("watcher already running")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}
	w.fsw = fsw
	w.running = true
	w.done = make(chan struct{})
	go w.loop(ctx, fsw, w.done)
	return nil
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	fsw, done := w.fsw, w.done
	w.mu.Unlock()

	err := fsw.Close()
	<-done
	return err
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.isConfigEvent(event) || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", slog.Any("error", err))
		case <-timerCh:
			timerCh = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected", slog.String("path", w.path), slog.Any("error", err))
		return
	}
	if err := w.target.SetConfig(cfg); err != nil {
		w.logger.Warn("config reload not applied", slog.String("path", w.path), slog.Any("error", err))
		return
	}
	w.logger.Info("config reloaded", slog.String("path", w.path))
}

// isConfigEvent matches the file itself and the ..data symlink swap used by
// Kubernetes ConfigMaps.
func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	eventPath := filepath.Clean(event.Name)
	configPath := filepath.Clean(w.path)
	if eventPath == configPath {
		return true
	}
	return filepath.Base(eventPath) == "..data" && filepath.Dir(eventPath) == filepath.Dir(configPath)
}
