package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/qmuntal/gltf"

	"autoexport/internal/blob"
	"autoexport/internal/layout"
	"autoexport/internal/scene"
	"autoexport/pkg/domain"
)

// ManifestExporter writes glTF documents describing node names, transforms,
// blueprint references and custom properties. Placements whose effective
// combine mode is Combine embed the instanced blueprint's nodes.
type ManifestExporter struct {
	store     blob.Store
	generator string
}

var _ Exporter = (*ManifestExporter)(nil)

// NewManifestExporter writes into store, replacing existing files.
func NewManifestExporter(store blob.Store) *ManifestExporter {
	return &ManifestExporter{store: store, generator: "autoexport"}
}

// ExportLevel implements Exporter.
func (e *ManifestExporter) ExportLevel(ctx context.Context, job Job, level *scene.Scene) error {
	b := e.builder(job)
	roots := b.addObjects(job.Inventory.SceneObjects(level))
	b.scene(level.Name, roots, propsExtras(level.Properties))
	return e.write(ctx, job, b.doc)
}

// ExportBlueprint implements Exporter.
func (e *ManifestExporter) ExportBlueprint(ctx context.Context, job Job, bp *domain.Blueprint) error {
	coll, ok := job.Inventory.Collection(bp.Name)
	if !ok {
		return domain.MissingCollectionError{Collection: bp.Name, Parent: bp.Scene}
	}
	b := e.builder(job)
	b.embedding.Add(bp.Name)
	root := len(b.doc.Nodes)
	b.doc.Nodes = append(b.doc.Nodes, newNode(bp.Name, domain.IdentityTransform))
	children := b.addObjects(job.Inventory.AllObjects(coll))
	b.doc.Nodes[root].Children = children

	extras := propsExtras(coll.Properties)
	if extras == nil {
		extras = map[string]any{}
	}
	extras["blueprint"] = bp.Name
	extras["local"] = bp.Local
	if coll.Library != "" {
		extras["library"] = coll.Library
	}
	b.scene(bp.Name, []int{root}, extras)
	return e.write(ctx, job, b.doc)
}

// ExportMaterials implements Exporter. Each material gets one node.
func (e *ManifestExporter) ExportMaterials(ctx context.Context, job Job, materials []string) error {
	b := e.builder(job)
	roots := make([]int, 0, len(materials))
	for i, name := range materials {
		n := newNode("Material_"+name, domain.Transform{Location: domain.Vec3{float64(i) * 0.2, 0, 0}})
		n.Extras = map[string]any{"materials": []string{name}}
		b.material(name)
		roots = append(roots, len(b.doc.Nodes))
		b.doc.Nodes = append(b.doc.Nodes, n)
	}
	b.scene(job.Target.Name+"_materials_library", roots, nil)
	return e.write(ctx, job, b.doc)
}

func (e *ManifestExporter) builder(job Job) *docBuilder {
	return &docBuilder{
		doc:       &gltf.Document{Asset: gltf.Asset{Version: "2.0", Generator: e.generator}},
		job:       job,
		materials: make(map[string]int),
		embedding: domain.NewSet(),
	}
}

func (e *ManifestExporter) write(ctx context.Context, job Job, doc *gltf.Document) error {
	glb := layout.Extension(job.Format) == ".glb"
	raw, err := encodeDocument(doc, glb)
	if err != nil {
		return err
	}
	contentType := "model/gltf+json"
	if glb {
		contentType = "model/gltf-binary"
	}
	_, err = e.store.Put(ctx, job.Target.Key, bytes.NewReader(raw), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"kind": job.Target.Kind, "name": job.Target.Name},
		Overwrite:   true,
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", job.Target.Key, err)
	}
	return nil
}

type docBuilder struct {
	doc       *gltf.Document
	job       Job
	materials map[string]int
	// embedding holds the collections on the current embedding path.
	embedding domain.Set
}

// scene sets the document's single default scene. Extras are omitted
// when empty.
func (b *docBuilder) scene(name string, roots []int, extras map[string]any) {
	s := &gltf.Scene{Name: name, Nodes: roots}
	if len(extras) > 0 {
		s.Extras = extras
	}
	b.doc.Scenes = []*gltf.Scene{s}
	b.doc.Scene = gltf.Index(0)
}

// addObjects creates nodes for objs, nesting each under its parent when the
// parent is part of objs, and returns the indices of the remaining roots.
func (b *docBuilder) addObjects(objs []*scene.Object) []int {
	index := make(map[string]int, len(objs))
	for _, obj := range objs {
		index[obj.Name] = b.node(obj)
	}
	var roots []int
	for _, obj := range objs {
		if parent, ok := index[obj.Parent]; ok && obj.Parent != "" {
			b.doc.Nodes[parent].Children = append(b.doc.Nodes[parent].Children, index[obj.Name])
			continue
		}
		roots = append(roots, index[obj.Name])
	}
	return roots
}

func (b *docBuilder) node(obj *scene.Object) int {
	idx := len(b.doc.Nodes)
	n := newNode(obj.Name, obj.Transform)
	b.doc.Nodes = append(b.doc.Nodes, n)

	extras := propsExtras(obj.Properties)
	if len(obj.Materials) > 0 {
		extras = withExtra(extras, "materials", append([]string(nil), obj.Materials...))
		for _, m := range obj.Materials {
			b.material(m)
		}
	}
	if obj.IsInstance() {
		mode := obj.CombineOverride().Or(b.job.DefaultCombine)
		info := map[string]any{"name": obj.InstanceOf}
		g := b.job.Graph
		if g != nil {
			if bp, ok := g.PerName[obj.InstanceOf]; ok {
				info["path"] = b.job.Layout.BlueprintKey(bp.Name)
				info["local"] = bp.Local
			}
		}
		extras = withExtra(extras, "BlueprintInfo", info)
		extras[domain.CombineProperty] = string(mode)
		if mode == domain.CombineEmbed && !b.embedding.Has(obj.InstanceOf) {
			if coll, ok := b.job.Inventory.Collection(obj.InstanceOf); ok {
				b.embedding.Add(obj.InstanceOf)
				n.Children = b.addObjects(b.job.Inventory.AllObjects(coll))
				delete(b.embedding, obj.InstanceOf)
			}
		}
	}
	if extras != nil {
		n.Extras = extras
	}
	return idx
}

func (b *docBuilder) material(name string) {
	if _, ok := b.materials[name]; ok {
		return
	}
	b.materials[name] = len(b.doc.Materials)
	b.doc.Materials = append(b.doc.Materials, &gltf.Material{Name: name})
}

func propsExtras(props map[string]string) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func withExtra(extras map[string]any, key string, value any) map[string]any {
	if extras == nil {
		extras = map[string]any{}
	}
	extras[key] = value
	return extras
}
