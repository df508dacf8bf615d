// Package layout resolves where exported files go. All paths derive from the
// project root; blob keys are expressed relative to the assets directory.
package layout

import (
	"path"
	"path/filepath"
	"strings"
)

// Options are the path settings of the engine configuration. Relative
// values are resolved against their parent: ProjectRoot against the project
// document's directory, Assets against ProjectRoot, the rest against Assets.
type Options struct {
	ProjectRoot string
	Assets      string
	Blueprints  string
	Levels      string
	Materials   string
}

// Layout is a resolved set of absolute output directories.
type Layout struct {
	Root       string
	Assets     string
	Blueprints string
	Levels     string
	Materials  string
	// Ext is the output file extension including the dot.
	Ext string
	// Project names the materials library file.
	Project string
}

// Extension maps the exporter's export_format to a file extension.
func Extension(format string) string {
	if strings.EqualFold(format, "GLB") {
		return ".glb"
	}
	return ".gltf"
}

// Resolve computes absolute directories from base (the project document's
// directory) and opts.
func Resolve(base string, opts Options, format, project string) (Layout, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return Layout{}, err
	}
	root := join(absBase, opts.ProjectRoot)
	assets := join(root, opts.Assets)
	return Layout{
		Root:       root,
		Assets:     assets,
		Blueprints: join(assets, opts.Blueprints),
		Levels:     join(assets, opts.Levels),
		Materials:  join(assets, opts.Materials),
		Ext:        Extension(format),
		Project:    project,
	}, nil
}

func join(parent, p string) string {
	if p == "" {
		return filepath.Clean(parent)
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(parent, p)
}

// BlueprintFile is the absolute output path of a blueprint.
func (l Layout) BlueprintFile(name string) string {
	return filepath.Join(l.Blueprints, name+l.Ext)
}

// LevelFile is the absolute output path of a main scene.
func (l Layout) LevelFile(scene string) string {
	return filepath.Join(l.Levels, scene+l.Ext)
}

// MaterialsFile is the absolute output path of the materials library.
func (l Layout) MaterialsFile() string {
	return filepath.Join(l.Materials, l.Project+"_materials_library"+l.Ext)
}

// BlueprintKey is the blob key of a blueprint's output.
func (l Layout) BlueprintKey(name string) string { return l.Key(l.BlueprintFile(name)) }

// LevelKey is the blob key of a main scene's output.
func (l Layout) LevelKey(scene string) string { return l.Key(l.LevelFile(scene)) }

// MaterialsKey is the blob key of the materials library.
func (l Layout) MaterialsKey() string { return l.Key(l.MaterialsFile()) }

// Key converts an absolute output path into a slash separated key relative
// to the assets directory. Paths outside the assets directory keep their
// base name only under an "external/" prefix so they never escape the store.
func (l Layout) Key(abs string) string {
	rel, err := filepath.Rel(l.Assets, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path.Join("external", filepath.Base(abs))
	}
	return filepath.ToSlash(rel)
}
