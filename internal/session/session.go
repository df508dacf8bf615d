// Package session runs complete export cycles the way the host operator
// does: it pauses change listening, loads and saves the settings, diffs the
// scene snapshot, runs the orchestrator and schedules listening to resume.
package session

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"time"

	"autoexport/internal/blob"
	"autoexport/internal/blueprint"
	"autoexport/internal/changes"
	"autoexport/internal/deferred"
	"autoexport/internal/export"
	"autoexport/internal/observability"
	"autoexport/internal/scene"
	"autoexport/internal/settings"
	"autoexport/pkg/domain"
)

// PlaceholderKey is written to the output store while an externally
// triggered cycle runs, so consumers can wait before reloading.
const PlaceholderKey = ".autoexport_pending"

const (
	defaultReenableDelay = 100 * time.Millisecond
	defaultCleanupDelay  = time.Second
)

// Config wires a Session. Texts and Orchestrator are required.
type Config struct {
	Texts        changes.BlobStore
	Orchestrator *export.Orchestrator
	Tracker      *changes.Tracker
	Deferred     *deferred.Scheduler
	// Output receives the placeholder file; optional.
	Output blob.Store
	// Env applies AUTOEXPORT_* settings overrides.
	Env    bool
	Logger observability.Logger
	// OnPending runs on the deferred scheduler when edits arrived or a run
	// was turned away while a cycle was in flight.
	OnPending func()

	ReenableDelay time.Duration
	CleanupDelay  time.Duration
}

// Session is the single writer of the snapshot, settings and registry
// blobs. It runs one cycle at a time.
type Session struct {
	cfg      Config
	log      observability.Logger
	settings *settings.Manager
	running  atomic.Bool
	rerun    atomic.Bool
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Session, error) {
	if cfg.Texts == nil {
		return nil, errors.New("session: text store required")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("session: orchestrator required")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = changes.NewTracker()
	}
	if cfg.Deferred == nil {
		cfg.Deferred = deferred.New()
	}
	if cfg.ReenableDelay <= 0 {
		cfg.ReenableDelay = defaultReenableDelay
	}
	if cfg.CleanupDelay <= 0 {
		cfg.CleanupDelay = defaultCleanupDelay
	}
	log := observability.OrNop(cfg.Logger)
	return &Session{
		cfg:      cfg,
		log:      log,
		settings: settings.NewManager(cfg.Texts, settings.Options{Logger: log, Env: cfg.Env}),
	}, nil
}

// Tracker returns the change tracker the session pauses around cycles.
func (s *Session) Tracker() *changes.Tracker { return s.cfg.Tracker }

// Result describes one cycle.
type Result struct {
	// Skipped is set when auto_export is disabled.
	Skipped       bool
	Settings      settings.Settings
	ConfigChanged bool
	Changes       domain.ChangeSet
	Report        export.Report
}

// RunOptions tunes a single cycle.
type RunOptions struct {
	// External marks a cycle triggered from outside the watcher; it writes
	// the placeholder file for the duration of the cycle.
	External bool
}

// Run executes one cycle against host. A call made while another cycle
// runs returns export.ErrExportInProgress without touching any blob, and
// OnPending fires once the running cycle is done.
func (s *Session) Run(ctx context.Context, host *scene.Project, opts RunOptions) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.rerun.Store(true)
		return Result{}, export.ErrExportInProgress
	}
	defer s.running.Store(false)

	tracker := s.cfg.Tracker
	tracker.Disable()
	// the edit that triggered this cycle is part of it
	tracker.TakeDirty()
	defer s.cfg.Deferred.ScheduleOnce(deferred.EnableChangeDetection, s.cfg.ReenableDelay, s.resume)

	loaded, err := s.settings.Load(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := s.settings.Save(ctx, loaded.Stored); err != nil {
		return Result{}, err
	}
	res := Result{Settings: loaded.Settings}
	if !loaded.Engine.AutoExport {
		s.log.Info("auto export disabled, skipping")
		res.Skipped = true
		return res, nil
	}

	res.Changes, err = s.detectChanges(ctx, host)
	if err != nil {
		return res, err
	}
	changed, err := s.settings.Changed(ctx)
	if err != nil {
		return res, err
	}
	res.ConfigChanged = changed || len(loaded.Recovered) > 0

	registry := s.cfg.Orchestrator.Registry()
	if registry.Len() == 0 {
		if err := registry.Load(ctx, s.cfg.Texts); err != nil {
			var corrupt domain.CorruptConfigurationError
			if !errors.As(err, &corrupt) {
				return res, err
			}
			s.log.Warn("discarded corrupt blueprint registry", "error", err)
		}
	}

	if opts.External {
		s.writePlaceholder(ctx)
	}
	res.Report, err = s.cfg.Orchestrator.Run(ctx, export.RunInput{
		Host:          host,
		ProjectDir:    host.Dir(),
		ProjectName:   host.Name,
		Settings:      loaded.Settings,
		Changes:       res.Changes,
		ConfigChanged: res.ConfigChanged,
	})
	if opts.External {
		s.cfg.Deferred.ScheduleOnce(deferred.CleanupPlaceholder, s.cfg.CleanupDelay, s.removePlaceholder)
	}
	if res.Report.Graph != nil {
		s.saveRegistry(ctx, registry)
	}
	return res, err
}

// resume re-enables change detection and hands pending work to OnPending.
func (s *Session) resume() {
	s.cfg.Tracker.Enable()
	dirty := s.cfg.Tracker.TakeDirty()
	rerun := s.rerun.Swap(false)
	if (dirty || rerun) && s.cfg.OnPending != nil {
		s.log.Debug("changes pending after export", "edited", dirty, "rejected_run", rerun)
		s.cfg.Deferred.ScheduleOnce(deferred.ExportCycle, 0, s.cfg.OnPending)
	}
}

func (s *Session) saveRegistry(ctx context.Context, registry *blueprint.Registry) {
	if err := registry.Save(ctx, s.cfg.Texts); err != nil {
		s.log.Warn("save blueprint registry", "error", err)
	}
}

// detectChanges diffs the current scene against the stored snapshot and
// stores the current one. Without a previous snapshot nothing has changed.
func (s *Session) detectChanges(ctx context.Context, host *scene.Project) (domain.ChangeSet, error) {
	current := changes.Capture(host)
	previous, ok, err := changes.LoadPrevious(ctx, s.cfg.Texts)
	var corrupt domain.CorruptConfigurationError
	switch {
	case errors.As(err, &corrupt):
		s.log.Warn("discarded corrupt scene snapshot", "error", err)
	case err != nil:
		return nil, err
	}
	if err := changes.Save(ctx, s.cfg.Texts, current); err != nil {
		return nil, err
	}
	if !ok {
		return domain.ChangeSet{}, nil
	}
	cs := changes.Diff(previous, current)
	if !cs.Empty() {
		s.log.Debug("scene changes detected", "scenes", len(cs))
	}
	return cs, nil
}

func (s *Session) writePlaceholder(ctx context.Context) {
	if s.cfg.Output == nil {
		return
	}
	s.cfg.Deferred.Cancel(deferred.CleanupPlaceholder)
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.cfg.Output.Put(ctx, PlaceholderKey, bytes.NewReader([]byte(stamp)), blob.PutOptions{
		ContentType: "text/plain",
		Overwrite:   true,
	})
	if err != nil {
		s.log.Warn("write export placeholder", "error", err)
	}
}

func (s *Session) removePlaceholder() {
	if s.cfg.Output == nil {
		return
	}
	if _, err := s.cfg.Output.Delete(context.Background(), PlaceholderKey); err != nil {
		s.log.Warn("remove export placeholder", "error", err)
	}
}

// Close runs a pending placeholder cleanup immediately and stops the
// deferred scheduler.
func (s *Session) Close() error {
	if s.cfg.Deferred.Cancel(deferred.CleanupPlaceholder) {
		s.removePlaceholder()
	}
	s.cfg.Deferred.Stop()
	return nil
}

