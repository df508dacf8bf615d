package session_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoexport/internal/blob"
	"autoexport/internal/blueprint"
	"autoexport/internal/changes"
	"autoexport/internal/export"
	"autoexport/internal/infra/persistence/memory"
	"autoexport/internal/scene"
	"autoexport/internal/scene/scenetest"
	"autoexport/internal/session"
	"autoexport/internal/settings"
	"autoexport/pkg/domain"
)

type harness struct {
	texts   *memory.Store
	output  blob.Store
	session *session.Session
	host    *scene.Project
}

type harnessOptions struct {
	// texts and output are shared with an earlier harness when set.
	texts    *memory.Store
	output   blob.Store
	host     *scene.Project
	exporter func(blob.Store) export.Exporter
	config   func(*session.Config)
}

func newHarness(t *testing.T, mutate func(*session.Config)) *harness {
	t.Helper()
	return buildHarness(t, harnessOptions{config: mutate})
}

func buildHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	h := &harness{texts: opts.texts, output: opts.output, host: opts.host}
	if h.texts == nil {
		h.texts = memory.NewStore()
	}
	if h.output == nil {
		h.output = blob.NewMemory()
	}
	if h.host == nil {
		h.host = scenetest.Door(t, domain.CombineUnset)
	}
	var exp export.Exporter = export.NewManifestExporter(h.output)
	if opts.exporter != nil {
		exp = opts.exporter(h.output)
	}
	orch, err := export.NewOrchestrator(export.Config{
		Exporter: exp,
		Store:    h.output,
		Registry: blueprint.NewRegistry(),
	})
	require.NoError(t, err)
	cfg := session.Config{
		Texts:         h.texts,
		Orchestrator:  orch,
		Output:        h.output,
		ReenableDelay: 10 * time.Millisecond,
		CleanupDelay:  time.Hour,
	}
	if opts.config != nil {
		opts.config(&cfg)
	}
	h.session, err = session.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.session.Close() })
	return h
}

// levelHook runs onLevel before every level export.
type levelHook struct {
	export.Exporter
	onLevel func()
}

func (e levelHook) ExportLevel(ctx context.Context, job export.Job, level *scene.Scene) error {
	e.onLevel()
	return e.Exporter.ExportLevel(ctx, job, level)
}

func TestNewRequiresStores(t *testing.T) {
	_, err := session.New(session.Config{})
	require.Error(t, err)
}

func TestFirstAndSecondCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	res, err := h.session.Run(ctx, h.host, session.RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.ConfigChanged, "no previous settings")
	assert.Empty(t, res.Changes)
	assert.Len(t, res.Report.Exported(), 3)

	_, ok, err := h.texts.Get(ctx, changes.SnapshotBlob)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = h.texts.Get(ctx, settings.EngineBlob+settings.PreviousSuffix)
	require.NoError(t, err)
	assert.True(t, ok)

	res, err = h.session.Run(ctx, h.host, session.RunOptions{})
	require.NoError(t, err)
	assert.False(t, res.ConfigChanged)
	assert.Empty(t, res.Changes)
	assert.Empty(t, res.Report.Records)
}

func TestMovedObjectReexportsMarkedBlueprint(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	door, _ := h.host.Collection("Door")
	door.AutoExport = true
	_, err := h.session.Run(ctx, h.host, session.RunOptions{})
	require.NoError(t, err)

	panel, _ := h.host.Object("Door_panel")
	panel.Transform.Location = domain.Vec3{0, 0, 1}
	res, err := h.session.Run(ctx, h.host, session.RunOptions{})
	require.NoError(t, err)
	require.True(t, res.Changes.Has("Library"))
	assert.Contains(t, res.Changes["Library"].Changed, "Door_panel")
	assert.Equal(t, []string{"Door"}, domain.BlueprintNames(res.Report.Targets.Blueprints))
	assert.Equal(t, []string{"Level1"}, res.Report.Targets.Levels)
}

func TestSettingsChangeForcesFullExport(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	_, err := h.session.Run(ctx, h.host, session.RunOptions{})
	require.NoError(t, err)

	require.NoError(t, h.texts.Put(ctx, settings.EngineBlob, `{"export_marked_assets": true}`))
	res, err := h.session.Run(ctx, h.host, session.RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.ConfigChanged)
	assert.True(t, res.Report.Targets.Full)
	assert.Len(t, res.Report.Exported(), 3)
}

func TestAutoExportDisabledSkips(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.texts.Put(ctx, settings.EngineBlob, `{"auto_export": false}`))

	res, err := h.session.Run(ctx, h.host, session.RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	_, ok, err := h.texts.Get(ctx, changes.SnapshotBlob)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCorruptSnapshotIsReplaced(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.texts.Put(ctx, changes.SnapshotBlob, "{broken"))

	res, err := h.session.Run(ctx, h.host, session.RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Changes)
	raw, ok, err := h.texts.Get(ctx, changes.SnapshotBlob)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = changes.Decode(raw)
	assert.NoError(t, err)
}

func TestTrackerReenabledAfterCycle(t *testing.T) {
	h := newHarness(t, nil)
	tracker := h.session.Tracker()
	_, err := h.session.Run(context.Background(), h.host, session.RunOptions{})
	require.NoError(t, err)
	require.Eventually(t, tracker.Enabled, time.Second, 5*time.Millisecond)
}

func TestExternalRunWritesPlaceholder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *session.Config) { c.CleanupDelay = 20 * time.Millisecond })
	_, err := h.session.Run(ctx, h.host, session.RunOptions{External: true})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		ok, err := blob.Exists(ctx, h.output, session.PlaceholderKey)
		return err == nil && !ok
	}, time.Second, 5*time.Millisecond)
}

func TestCloseRemovesPendingPlaceholder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	_, err := h.session.Run(ctx, h.host, session.RunOptions{External: true})
	require.NoError(t, err)
	ok, err := blob.Exists(ctx, h.output, session.PlaceholderKey)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, h.session.Close())
	ok, err = blob.Exists(ctx, h.output, session.PlaceholderKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnvOverridesAreNotPersisted(t *testing.T) {
	ctx := context.Background()
	t.Setenv("AUTOEXPORT_EXPORT_FORMAT", "GLTF_SEPARATE")
	withEnv := func(c *session.Config) { c.Env = true }
	h := newHarness(t, withEnv)

	res, err := h.session.Run(ctx, h.host, session.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, settings.FormatGLTFSeparate, res.Settings.Exporter.ExportFormat)
	assert.Equal(t, "levels/Level1.gltf", res.Report.Exported()[0].Key)
	raw, ok, err := h.texts.Get(ctx, settings.ExporterBlob)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, raw, settings.FormatGLTFSeparate)

	require.NoError(t, os.Unsetenv("AUTOEXPORT_EXPORT_FORMAT"))
	next := buildHarness(t, harnessOptions{texts: h.texts, output: h.output, config: withEnv})
	res, err = next.session.Run(ctx, next.host, session.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, settings.FormatGLB, res.Settings.Exporter.ExportFormat)
}

func TestEditDuringCycleSchedulesAnother(t *testing.T) {
	tracker := changes.NewTracker()
	var pending atomic.Int32
	var once sync.Once
	h := buildHarness(t, harnessOptions{
		exporter: func(out blob.Store) export.Exporter {
			return levelHook{Exporter: export.NewManifestExporter(out), onLevel: func() {
				once.Do(func() { tracker.Notify(time.Now()) })
			}}
		},
		config: func(c *session.Config) {
			c.Tracker = tracker
			c.OnPending = func() { pending.Add(1) }
		},
	})

	_, err := h.session.Run(context.Background(), h.host, session.RunOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return pending.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, tracker.Enabled())

	_, err = h.session.Run(context.Background(), h.host, session.RunOptions{})
	require.NoError(t, err)
	require.Eventually(t, tracker.Enabled, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), pending.Load(), "a quiet cycle schedules nothing")
}

func TestRejectedRunLeavesChangesPending(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var pending atomic.Int32
	h := buildHarness(t, harnessOptions{
		exporter: func(out blob.Store) export.Exporter {
			return levelHook{Exporter: export.NewManifestExporter(out), onLevel: func() {
				once.Do(func() {
					close(entered)
					<-release
				})
			}}
		},
		config: func(c *session.Config) { c.OnPending = func() { pending.Add(1) } },
	})

	errc := make(chan error, 1)
	go func() {
		_, err := h.session.Run(ctx, h.host, session.RunOptions{})
		errc <- err
	}()
	<-entered
	stored, ok, err := h.texts.Get(ctx, changes.SnapshotBlob)
	require.NoError(t, err)
	require.True(t, ok)

	edited := scenetest.Door(t, domain.CombineUnset)
	panel, _ := edited.Object("Door_panel")
	panel.Transform.Location = domain.Vec3{0, 0, 1}
	_, err = h.session.Run(ctx, edited, session.RunOptions{})
	require.ErrorIs(t, err, export.ErrExportInProgress)
	again, _, err := h.texts.Get(ctx, changes.SnapshotBlob)
	require.NoError(t, err)
	assert.Equal(t, stored, again, "a rejected run leaves the snapshot alone")

	close(release)
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "first run did not finish")
	}
	require.Eventually(t, func() bool { return pending.Load() == 1 }, time.Second, 5*time.Millisecond)

	res, err := h.session.Run(ctx, edited, session.RunOptions{})
	require.NoError(t, err)
	require.True(t, res.Changes.Has("Library"))
	assert.Contains(t, res.Changes["Library"].Changed, "Door_panel")
}

func TestRemovedObjectResolvesAcrossSessions(t *testing.T) {
	ctx := context.Background()
	doc := scenetest.DoorDocument(domain.CombineUnset)
	doc.Collections[0].Objects = append(doc.Collections[0].Objects, "Door_knocker")
	doc.Objects = append(doc.Objects, scene.ObjectDoc{Name: "Door_knocker", Materials: []string{"Brass"}})
	before := scenetest.Build(t, doc)
	markDoor(before)
	first := buildHarness(t, harnessOptions{host: before})
	_, err := first.session.Run(ctx, first.host, session.RunOptions{})
	require.NoError(t, err)
	_, ok, err := first.texts.Get(ctx, blueprint.RegistryBlob)
	require.NoError(t, err)
	require.True(t, ok)

	after := scenetest.Door(t, domain.CombineUnset)
	markDoor(after)
	next := buildHarness(t, harnessOptions{texts: first.texts, output: first.output, host: after})
	res, err := next.session.Run(ctx, next.host, session.RunOptions{})
	require.NoError(t, err)
	require.True(t, res.Changes.Has("Library"))
	assert.True(t, res.Changes["Library"].Removed.Has("Door_knocker"))
	assert.Equal(t, []string{"Door"}, domain.BlueprintNames(res.Report.Targets.Blueprints))
}

func markDoor(p *scene.Project) {
	door, _ := p.Collection("Door")
	door.AutoExport = true
}
