// Package scenetest provides project fixtures shared by package tests.
package scenetest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"autoexport/internal/scene"
	"autoexport/pkg/domain"
)

// Build converts doc into a project, failing the test on error.
func Build(t testing.TB, doc scene.Document) *scene.Project {
	t.Helper()
	p, err := doc.Build()
	require.NoError(t, err, "build project")
	return p
}

// DoorDocument describes the canonical fixture: level "Level1" places the
// internal collection "Door", which nests "Handle". Neither is tagged.
// doorCombine sets the `_combine` override on the level placement ("" for none).
func DoorDocument(doorCombine domain.CombineMode) scene.Document {
	var props map[string]string
	if doorCombine != domain.CombineUnset {
		props = map[string]string{domain.CombineProperty: string(doorCombine)}
	}
	loc := domain.Vec3{2, 0, 0}
	return scene.Document{
		Name: "castle",
		Scenes: []scene.SceneDoc{
			{Name: "Level1", Kind: scene.KindMain, Objects: []string{"Door_inst", "Ground"}},
			{Name: "Library", Kind: scene.KindLibrary, Collections: []string{"Door", "Handle"}},
		},
		Collections: []scene.CollectionDoc{
			{Name: "Door", Objects: []string{"Door_frame", "Door_panel", "Handle_inst"}},
			{Name: "Handle", Objects: []string{"Handle_mesh"}},
		},
		Objects: []scene.ObjectDoc{
			{Name: "Door_inst", InstanceOf: "Door", Location: &loc, Properties: props},
			{Name: "Ground", Materials: []string{"Grass"}},
			{Name: "Door_frame", Materials: []string{"Wood"}},
			{Name: "Door_panel", Parent: "Door_frame", Materials: []string{"Wood"}},
			{Name: "Handle_inst", InstanceOf: "Handle", Parent: "Door_panel"},
			{Name: "Handle_mesh", Materials: []string{"Brass"}},
		},
	}
}

// Door builds DoorDocument.
func Door(t testing.TB, doorCombine domain.CombineMode) *scene.Project {
	t.Helper()
	return Build(t, DoorDocument(doorCombine))
}
