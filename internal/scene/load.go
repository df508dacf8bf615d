package scene

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"autoexport/pkg/domain"
)

// Document is the serialized form of a project accepted by Load and Parse.
type Document struct {
	Name        string          `json:"name" yaml:"name"`
	ActiveScene string          `json:"active_scene,omitempty" yaml:"active_scene,omitempty"`
	Selection   []string        `json:"selection,omitempty" yaml:"selection,omitempty"`
	Scenes      []SceneDoc      `json:"scenes" yaml:"scenes"`
	Collections []CollectionDoc `json:"collections" yaml:"collections"`
	Objects     []ObjectDoc     `json:"objects" yaml:"objects"`
}

// SceneDoc is the serialized form of a Scene.
type SceneDoc struct {
	Name        string            `json:"name" yaml:"name"`
	Kind        Kind              `json:"kind,omitempty" yaml:"kind,omitempty"`
	Objects     []string          `json:"objects,omitempty" yaml:"objects,omitempty"`
	Collections []string          `json:"collections,omitempty" yaml:"collections,omitempty"`
	Properties  map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// CollectionDoc is the serialized form of a Collection.
type CollectionDoc struct {
	Name       string            `json:"name" yaml:"name"`
	Objects    []string          `json:"objects,omitempty" yaml:"objects,omitempty"`
	Children   []string          `json:"children,omitempty" yaml:"children,omitempty"`
	AutoExport bool              `json:"auto_export,omitempty" yaml:"auto_export,omitempty"`
	Asset      bool              `json:"asset,omitempty" yaml:"asset,omitempty"`
	Library    string            `json:"library,omitempty" yaml:"library,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// ObjectDoc is the serialized form of an Object. Omitted transform
// components default to the identity.
type ObjectDoc struct {
	Name       string            `json:"name" yaml:"name"`
	Parent     string            `json:"parent,omitempty" yaml:"parent,omitempty"`
	InstanceOf string            `json:"instance_of,omitempty" yaml:"instance_of,omitempty"`
	Location   *domain.Vec3      `json:"location,omitempty" yaml:"location,omitempty"`
	Rotation   *domain.Vec3      `json:"rotation_euler,omitempty" yaml:"rotation_euler,omitempty"`
	Scale      *domain.Vec3      `json:"scale,omitempty" yaml:"scale,omitempty"`
	Materials  []string          `json:"materials,omitempty" yaml:"materials,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Load reads a project document from disk. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON.
func Load(path string) (*Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	p, err := Parse(raw, format)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	p.Path = path
	return p, nil
}

// Parse decodes a project document in the given format ("json" or "yaml").
func Parse(raw []byte, format string) (*Project, error) {
	var doc Document
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported project format %q", format)
	}
	return doc.Build()
}

// Build converts the document into an indexed Project.
func (d Document) Build() (*Project, error) {
	scenes := make([]*Scene, 0, len(d.Scenes))
	for _, s := range d.Scenes {
		scenes = append(scenes, &Scene{
			Name:        s.Name,
			Kind:        s.Kind,
			Objects:     append([]string(nil), s.Objects...),
			Collections: append([]string(nil), s.Collections...),
			Properties:  cloneProps(s.Properties),
		})
	}
	collections := make([]*Collection, 0, len(d.Collections))
	for _, c := range d.Collections {
		collections = append(collections, &Collection{
			Name:       c.Name,
			Objects:    append([]string(nil), c.Objects...),
			Children:   append([]string(nil), c.Children...),
			AutoExport: c.AutoExport,
			Asset:      c.Asset,
			Library:    c.Library,
			Properties: cloneProps(c.Properties),
		})
	}
	objects := make([]*Object, 0, len(d.Objects))
	for _, o := range d.Objects {
		if _, err := domain.ParseCombineMode(o.Properties[domain.CombineProperty]); err != nil {
			return nil, fmt.Errorf("object %q: %w", o.Name, err)
		}
		t := domain.IdentityTransform
		if o.Location != nil {
			t.Location = *o.Location
		}
		if o.Rotation != nil {
			t.Rotation = *o.Rotation
		}
		if o.Scale != nil {
			t.Scale = *o.Scale
		}
		objects = append(objects, &Object{
			Name:       o.Name,
			Parent:     o.Parent,
			InstanceOf: o.InstanceOf,
			Transform:  t,
			Materials:  append([]string(nil), o.Materials...),
			Properties: cloneProps(o.Properties),
		})
	}
	p, err := NewProject(d.Name, scenes, collections, objects)
	if err != nil {
		return nil, err
	}
	if d.ActiveScene != "" {
		if err := p.SetActiveScene(d.ActiveScene); err != nil {
			return nil, err
		}
	}
	p.Select(d.Selection)
	return p, nil
}

// Dir returns the directory holding the project document, or "." when the
// project was not loaded from disk.
func (p *Project) Dir() string {
	if p.Path == "" {
		return "."
	}
	return filepath.Dir(p.Path)
}

func cloneProps(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
