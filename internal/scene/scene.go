// Package scene models the authoring data the export engine consumes: scenes,
// collections and objects, plus the small amount of host state (active scene,
// selection, custom properties) the orchestrator saves and restores.
package scene

import (
	"fmt"
	"sort"

	"autoexport/pkg/domain"
)

// Kind tags a scene as a level ("main") or as a reusable-asset library.
type Kind string

const (
	KindMain    Kind = "main"
	KindLibrary Kind = "library"
)

// Object is a node in a scene or collection. An object with a non-empty
// InstanceOf is an instance placeholder for that collection.
type Object struct {
	Name       string
	Parent     string
	InstanceOf string
	Transform  domain.Transform
	Materials  []string
	Properties map[string]string
}

// IsInstance reports whether the object places a collection instance.
func (o *Object) IsInstance() bool { return o.InstanceOf != "" }

// CombineOverride returns the placement's `_combine` property, unset when absent or invalid.
func (o *Object) CombineOverride() domain.CombineMode {
	mode, err := domain.ParseCombineMode(o.Properties[domain.CombineProperty])
	if err != nil {
		return domain.CombineUnset
	}
	return mode
}

// Collection groups objects and child collections. Library is set for
// collections linked from an external library file.
type Collection struct {
	Name       string
	Objects    []string
	Children   []string
	AutoExport bool
	Asset      bool
	Library    string
	Properties map[string]string
}

// Scene is a root of the authoring tree.
type Scene struct {
	Name        string
	Kind        Kind
	Objects     []string
	Collections []string
	Properties  map[string]string
}

// Inventory is the read side of the authoring data used by the graph builder.
type Inventory interface {
	Scenes() []*Scene
	Scene(name string) (*Scene, bool)
	Collections() []*Collection
	Collection(name string) (*Collection, bool)
	Object(name string) (*Object, bool)
	SceneObjects(scene *Scene) []*Object
	AllObjects(c *Collection) []*Object
	Uses(scene *Scene, collection string) bool
}

// Project is the in-memory authoring data store. It is not safe for
// concurrent mutation; the engine runs one cycle at a time.
type Project struct {
	Path string
	Name string

	scenes      []*Scene
	collections []*Collection
	objects     []*Object

	sceneByName      map[string]*Scene
	collectionByName map[string]*Collection
	objectByName     map[string]*Object

	activeScene string
	selection   []string
}

var _ Inventory = (*Project)(nil)

// NewProject indexes the supplied data. Names must be unique per kind.
func NewProject(name string, scenes []*Scene, collections []*Collection, objects []*Object) (*Project, error) {
	p := &Project{
		Name:             name,
		sceneByName:      make(map[string]*Scene, len(scenes)),
		collectionByName: make(map[string]*Collection, len(collections)),
		objectByName:     make(map[string]*Object, len(objects)),
	}
	for _, s := range scenes {
		if _, dup := p.sceneByName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate scene %q", s.Name)
		}
		p.sceneByName[s.Name] = s
		p.scenes = append(p.scenes, s)
	}
	for _, c := range collections {
		if _, dup := p.collectionByName[c.Name]; dup {
			return nil, fmt.Errorf("duplicate collection %q", c.Name)
		}
		p.collectionByName[c.Name] = c
		p.collections = append(p.collections, c)
	}
	for _, o := range objects {
		if _, dup := p.objectByName[o.Name]; dup {
			return nil, fmt.Errorf("duplicate object %q", o.Name)
		}
		p.objectByName[o.Name] = o
		p.objects = append(p.objects, o)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	sort.Slice(p.collections, func(i, j int) bool { return p.collections[i].Name < p.collections[j].Name })
	if len(p.scenes) > 0 {
		p.activeScene = p.scenes[0].Name
	}
	return p, nil
}

// validate checks structural references. Instance targets are resolved
// later by the graph builder, which reports them as MissingCollectionError.
func (p *Project) validate() error {
	for _, s := range p.scenes {
		for _, name := range s.Objects {
			if _, ok := p.objectByName[name]; !ok {
				return fmt.Errorf("scene %q: unknown object %q", s.Name, name)
			}
		}
		for _, name := range s.Collections {
			if _, ok := p.collectionByName[name]; !ok {
				return fmt.Errorf("scene %q: unknown collection %q", s.Name, name)
			}
		}
	}
	for _, c := range p.collections {
		for _, name := range c.Objects {
			if _, ok := p.objectByName[name]; !ok {
				return fmt.Errorf("collection %q: unknown object %q", c.Name, name)
			}
		}
		for _, name := range c.Children {
			if _, ok := p.collectionByName[name]; !ok {
				return fmt.Errorf("collection %q: unknown child collection %q", c.Name, name)
			}
		}
	}
	for _, o := range p.objects {
		if o.Parent == "" {
			continue
		}
		if _, ok := p.objectByName[o.Parent]; !ok {
			return fmt.Errorf("object %q: unknown parent %q", o.Name, o.Parent)
		}
	}
	return nil
}

// Scenes returns every scene in document order.
func (p *Project) Scenes() []*Scene { return append([]*Scene(nil), p.scenes...) }

// Scene looks up a scene by name.
func (p *Project) Scene(name string) (*Scene, bool) {
	s, ok := p.sceneByName[name]
	return s, ok
}

// Collections returns every collection sorted by name.
func (p *Project) Collections() []*Collection { return append([]*Collection(nil), p.collections...) }

// Collection looks up a collection by name.
func (p *Project) Collection(name string) (*Collection, bool) {
	c, ok := p.collectionByName[name]
	return c, ok
}

// Object looks up an object by name.
func (p *Project) Object(name string) (*Object, bool) {
	o, ok := p.objectByName[name]
	return o, ok
}

// Objects returns every object in document order.
func (p *Project) Objects() []*Object { return append([]*Object(nil), p.objects...) }

// SceneObjects returns the objects linked into the scene: its own objects
// and those of every collection reachable from it. Contents of instanced
// collections are not part of the scene.
func (p *Project) SceneObjects(s *Scene) []*Object {
	seen := make(map[string]struct{})
	var out []*Object
	add := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		if o, ok := p.objectByName[name]; ok {
			out = append(out, o)
		}
	}
	for _, name := range s.Objects {
		add(name)
	}
	for _, c := range p.tree(s.Collections) {
		for _, name := range c.Objects {
			add(name)
		}
	}
	return out
}

// AllObjects returns the objects of c and of its child collections, recursively.
func (p *Project) AllObjects(c *Collection) []*Object {
	seen := make(map[string]struct{})
	var out []*Object
	for _, coll := range p.tree([]string{c.Name}) {
		for _, name := range coll.Objects {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			if o, ok := p.objectByName[name]; ok {
				out = append(out, o)
			}
		}
	}
	return out
}

// Uses reports whether collection is linked into the scene's collection tree.
func (p *Project) Uses(s *Scene, collection string) bool {
	for _, c := range p.tree(s.Collections) {
		if c.Name == collection {
			return true
		}
	}
	return false
}

// tree walks collections depth-first from roots, visiting each once.
func (p *Project) tree(roots []string) []*Collection {
	seen := make(map[string]struct{})
	var out []*Collection
	var walk func(name string)
	walk = func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		c, ok := p.collectionByName[name]
		if !ok {
			return
		}
		out = append(out, c)
		for _, child := range c.Children {
			walk(child)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return out
}
