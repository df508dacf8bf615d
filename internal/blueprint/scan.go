package blueprint

import (
	"sort"

	"autoexport/internal/scene"
	"autoexport/pkg/domain"
)

// ScanConfig carries the options that influence blueprint discovery.
type ScanConfig struct {
	// ExportMarkedAssets turns asset-marked collections into blueprints.
	ExportMarkedAssets bool
}

type builder struct {
	inv     scene.Inventory
	library []*scene.Scene
	cfg     ScanConfig

	blueprints  map[string]*domain.Blueprint
	collections map[string]*scene.Collection
	internal    map[string][]domain.Instance
	external    map[string][]domain.Instance
	perLevel    map[string]map[string][]domain.Instance
	fromInst    map[string]string
	nestedIn    map[string][]domain.Instance
	parents     map[string]string
}

// Scan discovers every blueprint reachable from the main and library scenes.
//
// A library-owned collection becomes a local blueprint when it is tagged
// for export, asset-marked (with ExportMarkedAssets), or placed by a main
// scene. Collections placed by main scenes but owned by no library scene
// become external blueprints. Nested references are then closed over, so
// every collection reachable through placeholders gets a blueprint.
//
// A placeholder pointing at a collection absent from the inventory aborts
// the scan with domain.MissingCollectionError.
func Scan(inv scene.Inventory, mainScenes, libraryScenes []*scene.Scene, cfg ScanConfig) (*Graph, error) {
	b := &builder{
		inv:         inv,
		library:     libraryScenes,
		cfg:         cfg,
		blueprints:  make(map[string]*domain.Blueprint),
		collections: make(map[string]*scene.Collection),
		internal:    make(map[string][]domain.Instance),
		external:    make(map[string][]domain.Instance),
		perLevel:    make(map[string]map[string][]domain.Instance),
		fromInst:    make(map[string]string),
		nestedIn:    make(map[string][]domain.Instance),
		parents:     make(map[string]string),
	}
	if err := b.collectLevelInstances(mainScenes); err != nil {
		return nil, err
	}
	if err := b.collectLibraryBlueprints(); err != nil {
		return nil, err
	}
	if err := b.collectExternalBlueprints(); err != nil {
		return nil, err
	}
	if err := b.closeNested(); err != nil {
		return nil, err
	}
	for _, s := range append(append([]*scene.Scene(nil), mainScenes...), libraryScenes...) {
		b.recordParents(inv.SceneObjects(s))
	}
	return b.graph(), nil
}

func (b *builder) collectLevelInstances(mainScenes []*scene.Scene) error {
	for _, s := range mainScenes {
		for _, obj := range b.inv.SceneObjects(s) {
			if !obj.IsInstance() {
				continue
			}
			c, ok := b.inv.Collection(obj.InstanceOf)
			if !ok {
				return domain.MissingCollectionError{Collection: obj.InstanceOf, Parent: s.Name}
			}
			inst := placement(obj, s.Name)
			if b.ownedByLibrary(c.Name) {
				b.internal[c.Name] = append(b.internal[c.Name], inst)
			} else {
				b.external[c.Name] = append(b.external[c.Name], inst)
			}
			if b.perLevel[s.Name] == nil {
				b.perLevel[s.Name] = make(map[string][]domain.Instance)
			}
			b.perLevel[s.Name][c.Name] = append(b.perLevel[s.Name][c.Name], inst)
			b.fromInst[obj.Name] = c.Name
		}
	}
	return nil
}

func (b *builder) collectLibraryBlueprints() error {
	placedByLevels := make(map[string]bool, len(b.internal))
	for name := range b.internal {
		placedByLevels[name] = true
	}
	for _, c := range b.inv.Collections() {
		owner := b.owningScene(c.Name)
		if owner == "" {
			continue
		}
		marked := c.AutoExport || (b.cfg.ExportMarkedAssets && c.Asset)
		if !marked && !placedByLevels[c.Name] {
			continue
		}
		bp, err := b.add(c, true, owner)
		if err != nil {
			return err
		}
		bp.Marked = marked
	}
	return nil
}

func (b *builder) collectExternalBlueprints() error {
	names := make([]string, 0, len(b.external))
	for name := range b.external {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, seen := b.blueprints[name]; seen {
			continue
		}
		c, ok := b.inv.Collection(name)
		if !ok {
			return domain.MissingCollectionError{Collection: name, Parent: b.external[name][0].Parent}
		}
		bp, err := b.add(c, false, "")
		if err != nil {
			return err
		}
		bp.Marked = true
	}
	return nil
}

// closeNested synthesizes blueprints for nested references until no new
// name appears. visited guards against cyclic nesting.
func (b *builder) closeNested() error {
	queue := make([]string, 0, len(b.blueprints))
	for name := range b.blueprints {
		queue = append(queue, name)
	}
	sort.Strings(queue)
	visited := make(map[string]bool, len(queue))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true
		parent := b.blueprints[name]
		for _, nested := range parent.NestedBlueprints {
			if _, exists := b.blueprints[nested]; exists {
				continue
			}
			c, ok := b.inv.Collection(nested)
			if !ok {
				return domain.MissingCollectionError{Collection: nested, Parent: parent.Name}
			}
			owner := ""
			if parent.Local {
				owner = parent.Scene
			}
			if _, err := b.add(c, parent.Local, owner); err != nil {
				return err
			}
			queue = append(queue, nested)
		}
	}
	return nil
}

// add creates the blueprint for c and records the placements it contains.
func (b *builder) add(c *scene.Collection, local bool, owner string) (*domain.Blueprint, error) {
	bp := &domain.Blueprint{Name: c.Name, Local: local, Scene: owner}
	objects := domain.NewSet()
	nested := domain.NewSet()
	contents := b.inv.AllObjects(c)
	for _, obj := range contents {
		if !obj.IsInstance() {
			objects.Add(obj.Name)
			continue
		}
		if _, ok := b.inv.Collection(obj.InstanceOf); !ok {
			return nil, domain.MissingCollectionError{Collection: obj.InstanceOf, Parent: c.Name}
		}
		nested.Add(obj.InstanceOf)
		inst := placement(obj, c.Name)
		if local {
			b.internal[obj.InstanceOf] = append(b.internal[obj.InstanceOf], inst)
		} else {
			b.external[obj.InstanceOf] = append(b.external[obj.InstanceOf], inst)
		}
		b.nestedIn[obj.InstanceOf] = append(b.nestedIn[obj.InstanceOf], inst)
		b.fromInst[obj.Name] = obj.InstanceOf
	}
	bp.Objects = objects.Sorted()
	bp.NestedBlueprints = nested.Sorted()
	b.blueprints[c.Name] = bp
	b.collections[c.Name] = c
	b.recordParents(contents)
	return bp, nil
}

func (b *builder) recordParents(objs []*scene.Object) {
	for _, obj := range objs {
		if obj.Parent != "" {
			b.parents[obj.Name] = obj.Parent
		}
	}
}

func (b *builder) ownedByLibrary(collection string) bool {
	return b.owningScene(collection) != ""
}

// owningScene returns the first library scene using the collection.
func (b *builder) owningScene(collection string) string {
	for _, s := range b.library {
		if b.inv.Uses(s, collection) {
			return s.Name
		}
	}
	return ""
}

func (b *builder) graph() *Graph {
	g := &Graph{
		PerName:                     b.blueprints,
		FromObjects:                 make(map[string]*domain.Blueprint),
		PerScene:                    make(map[string][]string),
		InstancesPerMainScene:       b.perLevel,
		InternalCollectionInstances: b.internal,
		ExternalCollectionInstances: b.external,
		NameFromInstance:            b.fromInst,
		ObjectParents:               b.parents,
		NestedIn:                    b.nestedIn,
	}
	for _, bp := range b.blueprints {
		g.Blueprints = append(g.Blueprints, bp)
	}
	domain.SortBlueprints(g.Blueprints)
	for _, bp := range g.Blueprints {
		src := b.external
		if bp.Local {
			src = b.internal
		}
		bp.Instances = append([]domain.Instance(nil), src[bp.Name]...)

		g.Names = append(g.Names, bp.Name)
		for _, obj := range b.inv.AllObjects(b.collections[bp.Name]) {
			g.FromObjects[obj.Name] = bp
		}
		if bp.Local {
			g.Internal = append(g.Internal, bp)
			if bp.Scene != "" {
				g.PerScene[bp.Scene] = append(g.PerScene[bp.Scene], bp.Name)
			}
		} else {
			g.External = append(g.External, bp)
		}
	}
	return g
}

func placement(obj *scene.Object, parent string) domain.Instance {
	return domain.Instance{
		Object:     obj.Name,
		Collection: obj.InstanceOf,
		Parent:     parent,
		Transform:  obj.Transform,
		Combine:    obj.CombineOverride(),
	}
}
