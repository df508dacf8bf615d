package changes_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoexport/internal/blueprint"
	"autoexport/internal/changes"
	"autoexport/internal/infra/persistence/memory"
	"autoexport/internal/scene"
	"autoexport/internal/scene/scenetest"
	"autoexport/pkg/domain"
)

func graphOf(t *testing.T, p *scene.Project) *blueprint.Graph {
	t.Helper()
	main, lib := scene.Split(p, nil, nil)
	g, err := blueprint.Scan(p, main, lib, blueprint.ScanConfig{})
	require.NoError(t, err)
	return g
}

func move(t *testing.T, p *scene.Project, object string, x float64) {
	t.Helper()
	obj, ok := p.Object(object)
	require.True(t, ok, object)
	obj.Transform.Location[0] = x
}

func TestCaptureCoversSceneTrees(t *testing.T) {
	p := scenetest.Door(t, domain.CombineUnset)
	snap := changes.Capture(p)

	assert.Equal(t, []string{"Level1", "Library"}, snap.Scenes())
	assert.Len(t, snap["Level1"], 2)
	assert.Equal(t, domain.Vec3{2, 0, 0}, snap["Level1"]["Door_inst"].Location)
	assert.Contains(t, snap["Library"], "Handle_mesh")
	assert.Contains(t, snap["Library"], "Handle_inst")
}

func TestDiffSymmetry(t *testing.T) {
	snap := changes.Capture(scenetest.Door(t, domain.CombineUnset))
	assert.True(t, changes.Diff(snap, snap).Empty())
	assert.True(t, changes.Diff(nil, nil).Empty())
}

func TestDiffAddedRemovedChanged(t *testing.T) {
	ident := domain.IdentityTransform
	moved := ident
	moved.Rotation = domain.Vec3{0, 0, 1e-12}
	previous := domain.Snapshot{
		"World": {"a": ident, "b": ident, "c": ident},
		"Quiet": {"q": ident},
		"Gone":  {"x": ident, "y": ident},
	}
	current := domain.Snapshot{
		"World": {"a": ident, "b": moved, "d": ident},
		"Quiet": {"q": ident},
		"New":   {"n": ident},
	}

	cs := changes.Diff(previous, current)

	require.Len(t, cs, 3)
	assert.False(t, cs.Has("Quiet"), "empty diffs are omitted")
	world := cs["World"]
	assert.Equal(t, []string{"d"}, world.Added.Sorted())
	assert.Equal(t, []string{"c"}, world.Removed.Sorted())
	assert.Equal(t, map[string]domain.Transform{"b": moved}, world.Changed, "no epsilon tolerance")
	assert.Equal(t, []string{"b", "c", "d"}, world.Names())
	assert.Equal(t, []string{"n"}, cs["New"].Added.Sorted())
	assert.Equal(t, []string{"x", "y"}, cs["Gone"].Removed.Sorted())
}

func TestResolveEmptyChangeSet(t *testing.T) {
	g := graphOf(t, scenetest.Door(t, domain.CombineUnset))
	assert.Empty(t, changes.ResolveToBlueprints(domain.ChangeSet{}, g, changes.ResolveOptions{DefaultMode: domain.CombineEmbed}))
}

func TestResolveBubblesThroughParents(t *testing.T) {
	p := scenetest.Door(t, domain.CombineUnset)
	g := graphOf(t, p)
	before := changes.Capture(p)
	move(t, p, "Door_panel", 5)

	cs := changes.Diff(before, changes.Capture(p))
	require.True(t, cs.Has("Library"))
	got := changes.ResolveToBlueprints(cs, g, changes.ResolveOptions{DefaultMode: domain.CombineEmbed})
	assert.Equal(t, []string{"Door"}, domain.BlueprintNames(got))
}

func TestResolveLevelPlacementIsNotABlueprintChange(t *testing.T) {
	p := scenetest.Door(t, domain.CombineUnset)
	g := graphOf(t, p)
	before := changes.Capture(p)
	move(t, p, "Door_inst", 9)

	cs := changes.Diff(before, changes.Capture(p))
	assert.Equal(t, []string{"Level1"}, sortedKeys(cs))
	assert.Empty(t, changes.ResolveToBlueprints(cs, g, changes.ResolveOptions{DefaultMode: domain.CombineEmbed}))
}

func TestResolvePropagatesToEmbeddingParents(t *testing.T) {
	p := scenetest.Door(t, domain.CombineUnset)
	g := graphOf(t, p)
	before := changes.Capture(p)
	move(t, p, "Handle_mesh", 1)
	cs := changes.Diff(before, changes.Capture(p))

	combined := changes.ResolveToBlueprints(cs, g, changes.ResolveOptions{DefaultMode: domain.CombineEmbed})
	assert.Equal(t, []string{"Door", "Handle"}, domain.BlueprintNames(combined))

	split := changes.ResolveToBlueprints(cs, g, changes.ResolveOptions{DefaultMode: domain.CombineSplit})
	assert.Equal(t, []string{"Handle"}, domain.BlueprintNames(split), "split placements reference the file instead of embedding it")

	again := changes.ResolveToBlueprints(cs, g, changes.ResolveOptions{DefaultMode: domain.CombineEmbed})
	assert.Equal(t, domain.BlueprintNames(combined), domain.BlueprintNames(again))
}

func TestResolveRemovedObjectThroughPreviousOwners(t *testing.T) {
	g := graphOf(t, scenetest.Door(t, domain.CombineUnset))
	cs := domain.ChangeSet{"Library": {
		Added:   domain.NewSet(),
		Removed: domain.NewSet("Door_knocker", "Statue_base"),
		Changed: map[string]domain.Transform{},
	}}
	assert.Empty(t, changes.ResolveToBlueprints(cs, g, changes.ResolveOptions{DefaultMode: domain.CombineEmbed}))

	got := changes.ResolveToBlueprints(cs, g, changes.ResolveOptions{
		DefaultMode: domain.CombineEmbed,
		// Statue is gone from the graph as well
		PreviousOwners: map[string]string{"Door_knocker": "Door", "Statue_base": "Statue"},
	})
	assert.Equal(t, []string{"Door"}, domain.BlueprintNames(got))
}

func TestResolveTerminatesOnParentCycle(t *testing.T) {
	g := &blueprint.Graph{
		PerName:       map[string]*domain.Blueprint{},
		FromObjects:   map[string]*domain.Blueprint{},
		ObjectParents: map[string]string{"a": "b", "b": "a"},
	}
	bp := &domain.Blueprint{Name: "B", Local: true}
	g.PerName["B"] = bp
	g.FromObjects["b"] = bp
	cs := domain.ChangeSet{"S": {Added: domain.NewSet("a"), Removed: domain.NewSet(), Changed: map[string]domain.Transform{}}}
	assert.Equal(t, []string{"B"}, domain.BlueprintNames(changes.ResolveToBlueprints(cs, g, changes.ResolveOptions{DefaultMode: domain.CombineEmbed})))
}

func TestResolveBoundsDeepChains(t *testing.T) {
	parents := map[string]string{}
	for i := 0; i < changes.MaxBubbleDepth+10; i++ {
		parents[name(i)] = name(i + 1)
	}
	top := name(changes.MaxBubbleDepth + 10)
	bp := &domain.Blueprint{Name: "Top", Local: true}
	g := &blueprint.Graph{
		PerName:       map[string]*domain.Blueprint{"Top": bp},
		FromObjects:   map[string]*domain.Blueprint{top: bp},
		ObjectParents: parents,
	}
	cs := domain.ChangeSet{"S": {Added: domain.NewSet(name(0)), Removed: domain.NewSet(), Changed: map[string]domain.Transform{}}}
	assert.Empty(t, changes.ResolveToBlueprints(cs, g, changes.ResolveOptions{DefaultMode: domain.CombineEmbed}))
}

func name(i int) string { return "o" + strings.Repeat("x", i) }

func sortedKeys(cs domain.ChangeSet) []string {
	s := domain.NewSet()
	for k := range cs {
		s.Add(k)
	}
	return s.Sorted()
}

func TestEncodeDecode(t *testing.T) {
	snap := changes.Capture(scenetest.Door(t, domain.CombineUnset))
	raw, err := changes.Encode(snap)
	require.NoError(t, err)
	assert.Contains(t, raw, "\n    \"Level1\": {")
	assert.Contains(t, raw, `"rotation_euler"`)

	back, err := changes.Decode(raw)
	require.NoError(t, err)
	assert.True(t, changes.Diff(snap, back).Empty())

	_, err = changes.Decode("{not json")
	assert.Error(t, err)
}

func TestLoadPreviousAndSave(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	_, ok, err := changes.LoadPrevious(ctx, store)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := domain.Snapshot{"World": {"a": domain.IdentityTransform}}
	require.NoError(t, changes.Save(ctx, store, snap))
	got, ok, err := changes.LoadPrevious(ctx, store)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)

	require.NoError(t, store.Put(ctx, changes.SnapshotBlob, "garbage"))
	_, ok, err = changes.LoadPrevious(ctx, store)
	assert.False(t, ok)
	var corrupt domain.CorruptConfigurationError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, changes.SnapshotBlob, corrupt.Blob)
	_, found, _ := store.Get(ctx, changes.SnapshotBlob)
	assert.False(t, found, "corrupt snapshot is discarded")
}

func TestTracker(t *testing.T) {
	tr := changes.NewTracker()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.True(t, tr.Enabled())
	assert.True(t, tr.Notify(now))
	assert.Equal(t, now, tr.LastEvent())

	assert.True(t, tr.TakeDirty())

	tr.Disable()
	assert.False(t, tr.Notify(now.Add(time.Second)), "not listening")
	assert.Equal(t, now.Add(time.Second), tr.LastEvent())
	assert.True(t, tr.TakeDirty(), "edits while disabled stay pending")
	assert.False(t, tr.TakeDirty())
	tr.Enable()
	assert.True(t, tr.Enabled())

	tr.StartExports(3)
	tr.ExportFinished()
	done, total := tr.Progress()
	assert.Equal(t, 1, done)
	assert.Equal(t, 3, total)
	for i := 0; i < 5; i++ {
		tr.ExportFinished()
	}
	done, _ = tr.Progress()
	assert.Equal(t, 3, done)
}
