package export

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"autoexport/internal/blob"
	"autoexport/internal/blueprint"
	"autoexport/internal/changes"
	"autoexport/internal/layout"
	"autoexport/internal/observability"
	"autoexport/internal/schedule"
	"autoexport/internal/scene"
	"autoexport/internal/settings"
	"autoexport/pkg/domain"
)

// Config wires an Orchestrator. Exporter and Registry are required.
type Config struct {
	Exporter Exporter
	// Store answers whether an output file already exists. Without it no
	// target is considered missing.
	Store     blob.Store
	Registry  *blueprint.Registry
	Tracker   *changes.Tracker
	Annotator SceneAnnotator
	Notifier  Notifier
	Counter   ExportCounter
	Logger    observability.Logger
	Metrics   observability.MetricsRecorder
	Tracer    observability.Tracer
	Now       func() time.Time
	// OnLayout sees the resolved output layout before anything is written,
	// so the caller can point its output store at it.
	OnLayout func(layout.Layout) error
}

// Orchestrator runs export cycles one at a time.
type Orchestrator struct {
	cfg     Config
	log     observability.Logger
	running atomic.Bool
}

// NewOrchestrator validates cfg and returns an Orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Exporter == nil {
		return nil, errors.New("export: exporter required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("export: registry required")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = changes.NewTracker()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{Logger: cfg.Logger}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{cfg: cfg, log: observability.OrNop(cfg.Logger)}, nil
}

// RunInput is the per-cycle input.
type RunInput struct {
	Host Host
	// ProjectDir anchors a relative project_root_path; ProjectName names the
	// materials library.
	ProjectDir    string
	ProjectName   string
	Settings      settings.Settings
	Changes       domain.ChangeSet
	ConfigChanged bool
}

// Report summarises a cycle. Records keep every target, including those
// still queued when a failure stopped the cycle.
type Report struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Layout     layout.Layout
	Graph      *blueprint.Graph
	Targets    schedule.Targets
	Records    []*ExportRecord
	Err        error
}

// Exported returns the targets written successfully.
func (r Report) Exported() []Target {
	var out []Target
	for _, rec := range r.Records {
		if rec.Status == ExportStatusSucceeded {
			out = append(out, rec.Target)
		}
	}
	return out
}

// Registry returns the cross-cycle blueprint registry.
func (o *Orchestrator) Registry() *blueprint.Registry { return o.cfg.Registry }

// Running reports whether a cycle is in flight.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// Run executes one export cycle. A concurrent call is rejected with
// ErrExportInProgress. Any failure is logged, notified once and returned as
// a domain.ExportFailure; targets already written are kept.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (report Report, err error) {
	if !o.running.CompareAndSwap(false, true) {
		return Report{}, ErrExportInProgress
	}
	defer o.running.Store(false)
	if in.Host == nil {
		return Report{}, errors.New("export: host required")
	}

	report = Report{ID: uuid.NewString(), StartedAt: o.cfg.Now()}
	c := &cycle{o: o, in: in, report: &report}
	c.main, c.library = scene.Split(in.Host, in.Settings.Engine.MainSceneNames, in.Settings.Engine.LibrarySceneNames)

	ctx, span := observability.TracerOrNop(o.cfg.Tracer).Start(ctx, "export_cycle")
	defer func() {
		if in.Settings.Engine.ExportSceneSettings && o.cfg.Annotator != nil {
			o.cfg.Annotator.Remove(ctx, in.Host, c.main)
		}
		if err != nil {
			err = o.fail(ctx, err)
		}
		report.Err = err
		report.FinishedAt = o.cfg.Now()
		span.End(err)
		observability.MetricsOrNop(o.cfg.Metrics).Observe(ctx, "export_cycle", err == nil, report.FinishedAt.Sub(report.StartedAt))
	}()

	err = c.run(ctx)
	return report, err
}

// fail is the single error handler of a cycle.
func (o *Orchestrator) fail(ctx context.Context, err error) error {
	var failure domain.ExportFailure
	if !errors.As(err, &failure) {
		failure = domain.ExportFailure{Step: "cycle", Err: err}
		err = failure
	}
	o.log.Error("auto export failed", "step", failure.Step, "target", failure.Target, "error", failure.Err)
	o.cfg.Notifier.Notify(ctx, fmt.Sprintf("Failure during auto_export: %v", err))
	return err
}

type cycle struct {
	o       *Orchestrator
	in      RunInput
	report  *Report
	main    []*scene.Scene
	library []*scene.Scene
	layout  layout.Layout
	graph   *blueprint.Graph
	// previousOwners is the registry's object ownership before this cycle.
	previousOwners map[string]string
}

func (c *cycle) run(ctx context.Context) error {
	cfg := c.o.cfg
	eng := c.in.Settings.Engine
	host := c.in.Host

	lay, err := layout.Resolve(c.in.ProjectDir, eng.LayoutOptions(), c.in.Settings.Exporter.ExportFormat, c.in.ProjectName)
	if err != nil {
		return domain.ExportFailure{Step: "layout", Err: err}
	}
	c.layout = lay
	c.report.Layout = lay
	if cfg.OnLayout != nil {
		if err := cfg.OnLayout(lay); err != nil {
			return domain.ExportFailure{Step: "layout", Err: err}
		}
	}

	err = observability.Observe(ctx, cfg.Tracer, cfg.Metrics, "scan", func(context.Context) error {
		g, err := blueprint.Scan(host, c.main, c.library, blueprint.ScanConfig{ExportMarkedAssets: eng.ExportMarkedAssets})
		c.graph = g
		return err
	})
	if err != nil {
		return domain.ExportFailure{Step: "scan", Err: err}
	}
	c.report.Graph = c.graph

	if err := blueprint.InjectExportPaths(c.graph, host, lay.BlueprintFile); err != nil {
		return domain.ExportFailure{Step: "inject_export_paths", Err: err}
	}
	c.previousOwners = cfg.Registry.Owners()
	cfg.Registry.UpsertAll(c.graph)

	if eng.ExportSceneSettings && cfg.Annotator != nil {
		if err := cfg.Annotator.Upsert(ctx, host, c.main); err != nil {
			return domain.ExportFailure{Step: "scene_settings", Err: err}
		}
	}

	if !eng.ExportBlueprints {
		return c.levelsOnly(ctx)
	}
	return c.full(ctx)
}

// levelsOnly exports every level without blueprint information.
func (c *cycle) levelsOnly(ctx context.Context) error {
	var records []*ExportRecord
	for _, s := range c.main {
		records = append(records, c.enqueue(c.levelTarget(s.Name)))
	}
	c.o.cfg.Tracker.StartExports(len(records))
	for i, level := range c.main {
		if err := c.export(ctx, records[i], func(job Job) error {
			job.Graph = nil
			return c.o.cfg.Exporter.ExportLevel(ctx, job, level)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *cycle) full(ctx context.Context) (err error) {
	cfg := c.o.cfg
	eng := c.in.Settings.Engine
	host := c.in.Host

	var presence schedule.Presence
	if cfg.Store != nil {
		presence = schedule.StorePresence{Store: cfg.Store}
	}
	var targets schedule.Targets
	err = observability.Observe(ctx, cfg.Tracer, cfg.Metrics, "schedule", func(ctx context.Context) error {
		var err error
		targets, err = schedule.ComputeTargets(ctx, schedule.Input{
			Changes:       c.in.Changes,
			ConfigChanged: c.in.ConfigChanged,
			Graph:         c.graph,
			MainScenes:    c.main,
			Options: schedule.Options{
				ChangeDetection:        eng.ChangeDetection,
				ExportMaterialsLibrary: eng.ExportMaterialsLibrary,
				DefaultCombine:         eng.CombineMode,
			},
			Layout:         c.layout,
			Presence:       presence,
			PreviousOwners: c.previousOwners,
		})
		return err
	})
	if err != nil {
		return domain.ExportFailure{Step: "schedule", Err: err}
	}
	c.report.Targets = targets
	c.o.log.Info("export targets computed",
		"blueprints", domain.BlueprintNames(targets.Blueprints),
		"levels", targets.Levels,
		"full", targets.Full)

	exportLibrary := !eng.ChangeDetection || c.in.ConfigChanged || len(targets.Blueprints) > 0

	var materialsRec *ExportRecord
	if eng.ExportMaterialsLibrary {
		materialsRec = c.enqueue(Target{Kind: KindMaterials, Name: c.layout.Project, Key: c.layout.MaterialsKey(), Path: c.layout.MaterialsFile()})
	}
	levelRecs := make([]*ExportRecord, len(targets.Levels))
	for i, name := range targets.Levels {
		levelRecs[i] = c.enqueue(c.levelTarget(name))
	}
	var blueprintRecs []*ExportRecord
	if exportLibrary {
		for _, bp := range targets.Blueprints {
			blueprintRecs = append(blueprintRecs, c.enqueue(Target{
				Kind: KindBlueprint, Name: bp.Name,
				Key: c.layout.BlueprintKey(bp.Name), Path: c.layout.BlueprintFile(bp.Name),
			}))
		}
	}

	if eng.ExportMaterialsLibrary {
		defer clearMaterialInfo(host, c.graph, c.library)
	}
	cfg.Tracker.StartExports(targets.Count(eng.ExportMaterialsLibrary))

	if materialsRec != nil {
		used := usedMaterials(host, c.graph, c.library)
		if err := c.export(ctx, materialsRec, func(job Job) error {
			return cfg.Exporter.ExportMaterials(ctx, job, used)
		}); err != nil {
			return err
		}
		if err := injectMaterialInfo(host, c.graph, c.library, c.layout.MaterialsKey()); err != nil {
			return domain.ExportFailure{Step: "material_info", Err: err}
		}
	}

	active, selection := host.ActiveScene(), host.Selection()
	defer func() {
		if active != "" {
			if rerr := host.SetActiveScene(active); rerr != nil && err == nil {
				err = domain.ExportFailure{Step: "restore", Err: rerr}
			}
		}
		host.Select(selection)
	}()

	for i, name := range targets.Levels {
		level, ok := host.Scene(name)
		if !ok {
			return domain.ExportFailure{Step: KindLevel, Target: name, Err: fmt.Errorf("scene %q not found", name)}
		}
		if err := c.exportLevel(ctx, levelRecs[i], level); err != nil {
			return err
		}
	}

	for i, bp := range targets.Blueprints {
		if !exportLibrary {
			break
		}
		if err := c.export(ctx, blueprintRecs[i], func(job Job) error {
			c.selectBlueprint(bp)
			return cfg.Exporter.ExportBlueprint(ctx, job, bp)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *cycle) exportLevel(ctx context.Context, rec *ExportRecord, level *scene.Scene) error {
	host := c.in.Host
	assets := blueprint.AssetsForScene(c.graph, level.Name, c.layout.BlueprintKey)
	encoded, err := blueprint.EncodeAssets(assets)
	if err != nil {
		return domain.ExportFailure{Step: KindLevel, Target: level.Name, Err: err}
	}
	if err := host.SetSceneProperty(level.Name, blueprint.AssetsProperty, encoded); err != nil {
		return domain.ExportFailure{Step: KindLevel, Target: level.Name, Err: err}
	}
	defer host.DeleteSceneProperty(level.Name, blueprint.AssetsProperty)
	return c.export(ctx, rec, func(job Job) error {
		if err := host.SetActiveScene(level.Name); err != nil {
			return err
		}
		return c.o.cfg.Exporter.ExportLevel(ctx, job, level)
	})
}

// selectBlueprint selects the blueprint's objects, as the host's exporter
// works on the selection.
func (c *cycle) selectBlueprint(bp *domain.Blueprint) {
	c.in.Host.Select(bp.Objects)
}

func (c *cycle) levelTarget(name string) Target {
	return Target{Kind: KindLevel, Name: name, Key: c.layout.LevelKey(name), Path: c.layout.LevelFile(name)}
}

func (c *cycle) enqueue(t Target) *ExportRecord {
	rec := newRecord(t, c.o.cfg.Now())
	c.report.Records = append(c.report.Records, rec)
	return rec
}

// export runs one target, tracking its record, progress and metrics.
func (c *cycle) export(ctx context.Context, rec *ExportRecord, fn func(Job) error) error {
	cfg := c.o.cfg
	job := Job{
		Target:         rec.Target,
		Inventory:      c.in.Host,
		Graph:          c.graph,
		Layout:         c.layout,
		Format:         c.in.Settings.Exporter.ExportFormat,
		DefaultCombine: c.in.Settings.Engine.CombineMode,
	}
	rec.start(cfg.Now())
	c.o.log.Debug("exporting", "kind", rec.Target.Kind, "name", rec.Target.Name, "key", rec.Target.Key)
	err := observability.Observe(ctx, cfg.Tracer, cfg.Metrics, "export_"+rec.Target.Kind, func(context.Context) error {
		return fn(job)
	})
	rec.finish(err, cfg.Now())
	if cfg.Counter != nil {
		cfg.Counter.CountExport(rec.Target.Kind, err == nil)
	}
	cfg.Tracker.ExportFinished()
	if err != nil {
		return domain.ExportFailure{Step: rec.Target.Kind, Target: rec.Target.Name, Err: err}
	}
	return nil
}
