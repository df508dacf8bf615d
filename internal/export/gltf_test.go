package export

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoexport/internal/blob"
	"autoexport/internal/blueprint"
	"autoexport/internal/layout"
	"autoexport/internal/scene"
	"autoexport/internal/scene/scenetest"
	"autoexport/pkg/domain"
)

func TestEulerToQuaternion(t *testing.T) {
	q := eulerToQuaternion(domain.Vec3{0, 0, math.Pi / 2})
	assert.InDelta(t, 0, q[0], 1e-12)
	assert.InDelta(t, 0, q[1], 1e-12)
	assert.InDelta(t, math.Sqrt2/2, q[2], 1e-12)
	assert.InDelta(t, math.Sqrt2/2, q[3], 1e-12)

	q = eulerToQuaternion(domain.Vec3{})
	assert.Equal(t, [4]float64{0, 0, 0, 1}, q)
}

func TestNewNode(t *testing.T) {
	n := newNode("a", domain.IdentityTransform)
	assert.Equal(t, [3]float64{}, n.Translation)
	assert.Equal(t, [4]float64{0, 0, 0, 1}, n.Rotation)
	assert.Equal(t, [3]float64{1, 1, 1}, n.Scale)

	n = newNode("b", domain.Transform{Location: domain.Vec3{1, 2, 3}})
	assert.Equal(t, [3]float64{1, 2, 3}, n.Translation)
	assert.Equal(t, [3]float64{1, 1, 1}, n.Scale, "zero scale is treated as unit")
}

func TestEncodeGLB(t *testing.T) {
	doc := &gltf.Document{
		Asset:  gltf.Asset{Version: "2.0"},
		Scene:  gltf.Index(0),
		Scenes: []*gltf.Scene{{Name: "x"}},
	}
	raw, err := encodeDocument(doc, true)
	require.NoError(t, err)
	require.Greater(t, len(raw), 20)
	assert.Equal(t, "glTF", string(raw[0:4]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(raw[4:8]))
	assert.Equal(t, uint32(len(raw)), binary.LittleEndian.Uint32(raw[8:12]))

	back, err := decodeDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, "x", back.Scenes[0].Name)

	_, err = decodeDocument(raw[:14])
	require.Error(t, err)
}

func TestInspectReadsSceneExtras(t *testing.T) {
	doc := &gltf.Document{
		Asset:  gltf.Asset{Version: "2.0"},
		Scene:  gltf.Index(0),
		Scenes: []*gltf.Scene{{Name: "Level1", Extras: map[string]any{"music": "calm"}}},
		Nodes:  []*gltf.Node{newNode("Ground", domain.IdentityTransform)},
	}
	raw, err := encodeDocument(doc, false)
	require.NoError(t, err)
	m, err := Inspect(raw)
	require.NoError(t, err)
	assert.Equal(t, "Level1", m.Scene)
	assert.Equal(t, []string{"Ground"}, m.Nodes)
	assert.Equal(t, "calm", m.Extras["music"])
}

func exportDoor(t *testing.T, mode domain.CombineMode, format string) (blob.Store, layout.Layout, *blueprint.Graph, *scene.Project) {
	t.Helper()
	p := scenetest.Door(t, mode)
	main, lib := scene.Split(p, nil, nil)
	g, err := blueprint.Scan(p, main, lib, blueprint.ScanConfig{})
	require.NoError(t, err)
	lay, err := layout.Resolve(t.TempDir(), layout.Options{Assets: "assets", Blueprints: "bp", Levels: "lv"}, format, p.Name)
	require.NoError(t, err)
	return blob.NewMemory(), lay, g, p
}

func inspectKey(t *testing.T, store blob.Store, key string) Manifest {
	t.Helper()
	_, rc, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	m, err := Inspect(raw)
	require.NoError(t, err)
	return m
}

func TestManifestExporterLevelSplitReferencesOnly(t *testing.T) {
	store, lay, g, p := exportDoor(t, domain.CombineSplit, "GLTF_SEPARATE")
	exp := NewManifestExporter(store)
	level, _ := p.Scene("Level1")
	job := Job{
		Target:         Target{Kind: KindLevel, Name: "Level1", Key: lay.LevelKey("Level1")},
		Inventory:      p,
		Graph:          g,
		Layout:         lay,
		Format:         "GLTF_SEPARATE",
		DefaultCombine: domain.CombineEmbed,
	}
	require.NoError(t, exp.ExportLevel(context.Background(), job, level))

	info, err := store.Head(context.Background(), "lv/Level1.gltf")
	require.NoError(t, err)
	assert.Equal(t, "model/gltf+json", info.ContentType)

	m := inspectKey(t, store, "lv/Level1.gltf")
	assert.Equal(t, []string{"Door_inst", "Ground"}, m.Nodes)
	assert.Equal(t, []string{"Grass"}, m.Materials)
}

func TestManifestExporterLevelEmbedsWithoutGraph(t *testing.T) {
	store, lay, _, p := exportDoor(t, domain.CombineUnset, "GLTF_SEPARATE")
	exp := NewManifestExporter(store)
	level, _ := p.Scene("Level1")
	job := Job{
		Target:         Target{Kind: KindLevel, Name: "Level1", Key: lay.LevelKey("Level1")},
		Inventory:      p,
		Layout:         lay,
		Format:         "GLTF_SEPARATE",
		DefaultCombine: domain.CombineEmbed,
	}
	require.NoError(t, exp.ExportLevel(context.Background(), job, level))

	m := inspectKey(t, store, "lv/Level1.gltf")
	assert.Equal(t, []string{"Door_inst", "Door_frame", "Door_panel", "Handle_inst", "Handle_mesh", "Ground"}, m.Nodes)
	assert.ElementsMatch(t, []string{"Wood", "Brass", "Grass"}, m.Materials)
}

func TestManifestExporterBlueprintEmbedsNested(t *testing.T) {
	store, lay, g, p := exportDoor(t, domain.CombineUnset, "GLB")
	exp := NewManifestExporter(store)
	door := g.PerName["Door"]
	job := Job{
		Target:         Target{Kind: KindBlueprint, Name: "Door", Key: lay.BlueprintKey("Door")},
		Inventory:      p,
		Graph:          g,
		Layout:         lay,
		Format:         "GLB",
		DefaultCombine: domain.CombineEmbed,
	}
	require.NoError(t, exp.ExportBlueprint(context.Background(), job, door))
	// writing twice overwrites
	require.NoError(t, exp.ExportBlueprint(context.Background(), job, door))

	m := inspectKey(t, store, "bp/Door.glb")
	assert.Equal(t, "Door", m.Scene)
	assert.Equal(t, []string{"Door", "Door_frame", "Door_panel", "Handle_inst", "Handle_mesh"}, m.Nodes)
	assert.Equal(t, "Door", m.Extras["blueprint"])
	assert.ElementsMatch(t, []string{"Wood", "Brass"}, m.Materials)
}

func TestManifestExporterMaterials(t *testing.T) {
	store, lay, g, p := exportDoor(t, domain.CombineUnset, "GLB")
	exp := NewManifestExporter(store)
	job := Job{
		Target:    Target{Kind: KindMaterials, Name: p.Name, Key: lay.MaterialsKey()},
		Inventory: p,
		Graph:     g,
		Layout:    lay,
		Format:    "GLB",
	}
	require.NoError(t, exp.ExportMaterials(context.Background(), job, []string{"Brass", "Wood"}))
	m := inspectKey(t, store, "castle_materials_library.glb")
	assert.Equal(t, []string{"Material_Brass", "Material_Wood"}, m.Nodes)
	assert.Equal(t, []string{"Brass", "Wood"}, m.Materials)
}

func TestManifestExporterMissingCollection(t *testing.T) {
	store, lay, _, p := exportDoor(t, domain.CombineUnset, "GLB")
	err := NewManifestExporter(store).ExportBlueprint(context.Background(), Job{Inventory: p, Layout: lay}, &domain.Blueprint{Name: "Nope"})
	var missing domain.MissingCollectionError
	require.ErrorAs(t, err, &missing)
}
