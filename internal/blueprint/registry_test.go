package blueprint_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoexport/internal/blueprint"
	"autoexport/internal/infra/persistence/memory"
	"autoexport/internal/scene/scenetest"
	"autoexport/pkg/domain"
)

func TestRegistryUpsert(t *testing.T) {
	r := blueprint.NewRegistry()
	r.Upsert(&domain.Blueprint{Name: "B"})
	r.Upsert(&domain.Blueprint{Name: "A"})
	r.Upsert(nil)
	replacement := &domain.Blueprint{Name: "B", Marked: true}
	r.Upsert(replacement)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"B", "A"}, domain.BlueprintNames(r.List()))
	got, ok := r.Get("B")
	require.True(t, ok)
	assert.Same(t, replacement, got)
	_, ok = r.Get("C")
	assert.False(t, ok)
}

func TestRegistryOwners(t *testing.T) {
	r := blueprint.NewRegistry()
	r.Upsert(&domain.Blueprint{Name: "Door", Objects: []string{"Door_frame", "Door_panel"}})
	r.Upsert(&domain.Blueprint{Name: "Handle", Objects: []string{"Handle_mesh"}, Instances: []domain.Instance{
		{Object: "Handle_inst", Collection: "Handle", Parent: "Door"},
		{Object: "Handle_spare", Collection: "Handle", Parent: "Level1"},
	}})
	assert.Equal(t, map[string]string{
		"Door_frame":  "Door",
		"Door_panel":  "Door",
		"Handle_inst": "Door",
		"Handle_mesh": "Handle",
	}, r.Owners(), "level placements belong to no blueprint")
}

func TestRegistrySaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := blueprint.NewRegistry()
	require.NoError(t, r.Load(ctx, store), "nothing saved yet")
	assert.Zero(t, r.Len())

	r.Upsert(&domain.Blueprint{Name: "Door", Local: true, Objects: []string{"Door_frame"}})
	r.Upsert(&domain.Blueprint{Name: "Arch", Objects: []string{"Arch_mesh"}})
	require.NoError(t, r.Save(ctx, store))

	restored := blueprint.NewRegistry()
	require.NoError(t, restored.Load(ctx, store))
	assert.Equal(t, []string{"Door", "Arch"}, domain.BlueprintNames(restored.List()))
	door, ok := restored.Get("Door")
	require.True(t, ok)
	assert.True(t, door.Local)
	assert.Equal(t, "Door", restored.Owners()["Door_frame"])
}

func TestRegistryLoadDiscardsCorruptBlob(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Put(ctx, blueprint.RegistryBlob, "{not a list"))

	err := blueprint.NewRegistry().Load(ctx, store)
	var corrupt domain.CorruptConfigurationError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, blueprint.RegistryBlob, corrupt.Blob)
	_, found, err := store.Get(ctx, blueprint.RegistryBlob)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInjectExportPathsAndAssets(t *testing.T) {
	p := scenetest.Door(t, domain.CombineUnset)
	g := scan(t, p, blueprint.ScanConfig{})
	pathFor := func(name string) string { return "/out/blueprints/" + name + ".glb" }

	require.NoError(t, blueprint.InjectExportPaths(g, p, pathFor))
	door, _ := g.Blueprint("Door")
	assert.Equal(t, "/out/blueprints/Door.glb", door.ExportPath)
	coll, _ := p.Collection("Door")
	assert.Equal(t, "/out/blueprints/Door.glb", coll.Properties[blueprint.ExportPathProperty])

	assets := blueprint.AssetsForScene(g, "Level1", pathFor)
	require.Len(t, assets, 1)
	raw, err := blueprint.EncodeAssets(assets)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, map[string]any{"name": "Door", "path": "/out/blueprints/Door.glb", "type": "MODEL", "internal": true}, decoded[0])

	empty, err := blueprint.EncodeAssets(blueprint.AssetsForScene(g, "Nope", pathFor))
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)
}
