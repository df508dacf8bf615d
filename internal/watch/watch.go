// Package watch turns edits of the project document into debounced export
// cycles.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"autoexport/internal/changes"
	"autoexport/internal/deferred"
	"autoexport/internal/observability"
)

const defaultDebounce = 250 * time.Millisecond

// Config wires a Watcher. Path and OnChange are required.
type Config struct {
	// Path is the project document to watch.
	Path     string
	Tracker  *changes.Tracker
	Deferred *deferred.Scheduler
	Debounce time.Duration
	// OnChange runs on the deferred scheduler after events settle.
	OnChange func()
	Logger   observability.Logger
}

// Watcher listens on the directory holding the project document, since
// editors often save by replacing the file.
type Watcher struct {
	cfg  Config
	file string
	log  observability.Logger
	fsw  *fsnotify.Watcher
}

// New starts listening on cfg.Path's directory.
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("watch: path required")
	}
	if cfg.OnChange == nil {
		return nil, errors.New("watch: change callback required")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = changes.NewTracker()
	}
	if cfg.Deferred == nil {
		cfg.Deferred = deferred.New()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{cfg: cfg, file: abs, log: observability.OrNop(cfg.Logger), fsw: fsw}, nil
}

// Run dispatches events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

// handle schedules a cycle for a relevant event. It reports whether one was
// scheduled.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.file {
		return false
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if !w.cfg.Tracker.Notify(time.Now()) {
		w.log.Debug("change recorded while exporting", "path", ev.Name)
		return false
	}
	return w.cfg.Deferred.ScheduleOnce(deferred.ExportCycle, w.cfg.Debounce, w.cfg.OnChange)
}

// Close stops listening.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
