package blueprint

import (
	"encoding/json"
	"fmt"
)

// ExportPathProperty is the collection property receiving a blueprint's output path.
const ExportPathProperty = "export_path"

// AssetsProperty is the scene property listing the blueprints a level references.
const AssetsProperty = "assets"

// CollectionAnnotator writes custom properties on collections.
type CollectionAnnotator interface {
	SetCollectionProperty(collection, key, value string) error
}

// InjectExportPaths stores the resolved output path on every internal
// blueprint and on its source collection.
func InjectExportPaths(g *Graph, host CollectionAnnotator, pathFor func(name string) string) error {
	for _, bp := range g.Internal {
		bp.ExportPath = pathFor(bp.Name)
		if host == nil {
			continue
		}
		if err := host.SetCollectionProperty(bp.Name, ExportPathProperty, bp.ExportPath); err != nil {
			return fmt.Errorf("inject export path for %s: %w", bp.Name, err)
		}
	}
	return nil
}

// Asset is one entry of a level's assets list.
type Asset struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Internal bool   `json:"internal"`
}

// AssetsForScene lists the local blueprints a main scene places directly,
// sorted by name.
func AssetsForScene(g *Graph, sceneName string, pathFor func(name string) string) []Asset {
	out := []Asset{}
	for _, name := range g.LevelBlueprints(sceneName) {
		bp, ok := g.PerName[name]
		if !ok || !bp.Local {
			continue
		}
		out = append(out, Asset{Name: bp.Name, Path: pathFor(bp.Name), Type: "MODEL", Internal: true})
	}
	return out
}

// EncodeAssets renders an assets list as the JSON stored on the scene.
func EncodeAssets(assets []Asset) (string, error) {
	b, err := json.Marshal(assets)
	if err != nil {
		return "", fmt.Errorf("encode assets: %w", err)
	}
	return string(b), nil
}
