package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autoexport/internal/blob"
	"autoexport/internal/blueprint"
	"autoexport/internal/changes"
	"autoexport/internal/deferred"
	"autoexport/internal/export"
	"autoexport/internal/layout"
	"autoexport/internal/observability"
	"autoexport/internal/persistence"
	"autoexport/internal/scene"
	"autoexport/internal/session"
	"autoexport/internal/settings"
	watchpkg "autoexport/internal/watch"
)

// app holds the wired components for one project.
type app struct {
	cfg      Config
	log      *slog.Logger
	project  *scene.Project
	texts    persistence.TextStore
	out      blob.Store
	loaded   settings.Loaded
	layout   layout.Layout
	registry *prometheus.Registry
	tracker  *changes.Tracker
	deferred *deferred.Scheduler
	session  *session.Session
	// followLayout is set when the output store sits at the assets
	// directory and must move with it; assetsRoot is where it is now.
	followLayout bool
	assetsRoot   string
	// onPending reruns the watch loop's cycle; nil outside watch mode.
	onPending func()
}

func openApp(ctx context.Context, cfg Config, projectPath string, stderr io.Writer) (*app, error) {
	logger := observability.NewLogger(stderr, cfg.Log.Format, cfg.Log.Level)
	project, err := scene.Load(projectPath)
	if err != nil {
		return nil, err
	}
	storeCfg := cfg.Store
	if (storeCfg.Driver == "" || storeCfg.Driver == string(persistence.DriverSQLite)) && storeCfg.Path == "" {
		storeCfg.Path = filepath.Join(project.Dir(), ".autoexport.db")
	}
	texts, err := persistence.Open(ctx, storeCfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger, project: project, texts: texts}

	a.loaded, err = settings.NewManager(texts, settings.Options{Logger: logger, Env: true}).Load(ctx)
	if err != nil {
		_ = texts.Close()
		return nil, err
	}
	a.layout, err = layout.Resolve(project.Dir(), a.loaded.Engine.LayoutOptions(), a.loaded.Exporter.ExportFormat, project.Name)
	if err != nil {
		_ = texts.Close()
		return nil, err
	}
	a.out, err = blob.Open(ctx, cfg.Blob, a.layout.Assets)
	if err != nil {
		_ = texts.Close()
		return nil, err
	}
	a.followLayout = (cfg.Blob.Driver == "" || cfg.Blob.Driver == string(blob.DriverFilesystem)) && cfg.Blob.FSRoot == ""
	a.assetsRoot = a.layout.Assets

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewPrometheusRecorder(a.registry)
	metrics := observability.Multi{prom, observability.NewExpvarRecorder("")}
	var tracer observability.Tracer
	if cfg.Log.Trace {
		tracer = observability.NewJSONTracer(stderr)
	}

	a.tracker = changes.NewTracker()
	a.deferred = deferred.New()
	orch, err := export.NewOrchestrator(export.Config{
		Exporter:  export.NewManifestExporter(a.out),
		Store:     a.out,
		Registry:  blueprint.NewRegistry(),
		Tracker:   a.tracker,
		Annotator: export.PropertyAnnotator{},
		Notifier:  export.LogNotifier{Logger: logger},
		Counter:   prom,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
		OnLayout:  a.followAssets,
	})
	if err != nil {
		_ = texts.Close()
		return nil, err
	}
	a.session, err = session.New(session.Config{
		Texts:        texts,
		Orchestrator: orch,
		Tracker:      a.tracker,
		Deferred:     a.deferred,
		Output:       a.out,
		Env:          true,
		Logger:       logger,
		OnPending: func() {
			if a.onPending != nil {
				a.onPending()
			}
		},
	})
	if err != nil {
		_ = texts.Close()
		return nil, err
	}
	return a, nil
}

// followAssets moves a default filesystem output store along when the
// settings point the assets directory somewhere else.
func (a *app) followAssets(lay layout.Layout) error {
	if !a.followLayout || lay.Assets == a.assetsRoot {
		return nil
	}
	if _, err := blob.Retarget(a.out, lay.Assets); err != nil {
		return err
	}
	a.log.Info("output moved to new assets directory", "from", a.assetsRoot, "to", lay.Assets)
	a.assetsRoot = lay.Assets
	return nil
}

func (a *app) Close() {
	_ = a.session.Close()
	if err := a.texts.Close(); err != nil {
		a.log.Warn("close store", "error", err)
	}
}

func (a *app) metricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	return &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// cycle runs one export against a freshly loaded project.
func (a *app) cycle(ctx context.Context, external bool, stdout io.Writer) error {
	project, err := scene.Load(a.project.Path)
	if err != nil {
		return err
	}
	res, err := a.session.Run(ctx, project, session.RunOptions{External: external})
	if errors.Is(err, export.ErrExportInProgress) {
		return err
	}
	if werr := writeJSON(stdout, summarize(res, err)); werr != nil {
		return werr
	}
	return err
}

func watch(ctx context.Context, cfg Config, projectPath string, stdout, stderr io.Writer) error {
	a, err := openApp(ctx, cfg, projectPath, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Metrics.Addr != "" {
		srv := a.metricsServer()
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	run := func() {
		err := a.cycle(ctx, false, stdout)
		switch {
		case errors.Is(err, export.ErrExportInProgress):
			a.log.Debug("export already in progress, queued")
		case err != nil:
			a.log.Error("export cycle", "error", err)
		}
	}
	a.onPending = run
	run()

	w, err := watchpkg.New(watchpkg.Config{
		Path:     a.project.Path,
		Tracker:  a.tracker,
		Deferred: a.deferred,
		Debounce: cfg.Watch.Debounce,
		OnChange: run,
		Logger:   a.log,
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", a.project.Path, err)
	}
	defer w.Close()
	a.log.Info("watching project", "path", a.project.Path, "assets", a.layout.Assets)
	return w.Run(ctx)
}
