// Package blueprint discovers reusable blueprints in the authoring data and
// builds the cross-indexed graph the change detector and the export
// scheduler consume. The graph is rebuilt from scratch every export cycle.
package blueprint

import "autoexport/pkg/domain"

// Graph is the result of one scan. PerName owns every *domain.Blueprint;
// all other indexes reference the same values.
type Graph struct {
	// Blueprints lists every blueprint sorted by name.
	Blueprints []*domain.Blueprint
	PerName    map[string]*domain.Blueprint
	Names      []string

	// FromObjects maps every object inside a blueprint's collection tree to
	// the blueprint owning it.
	FromObjects map[string]*domain.Blueprint

	Internal []*domain.Blueprint
	External []*domain.Blueprint

	// PerScene maps a library scene to the local blueprints it owns.
	PerScene map[string][]string

	// InstancesPerMainScene maps level -> collection -> placements.
	InstancesPerMainScene map[string]map[string][]domain.Instance

	InternalCollectionInstances map[string][]domain.Instance
	ExternalCollectionInstances map[string][]domain.Instance

	// NameFromInstance maps a placeholder object to the collection it places.
	NameFromInstance map[string]string

	// ObjectParents maps an object to its parent object.
	ObjectParents map[string]string

	// NestedIn maps a blueprint to the placements of it inside other blueprints.
	NestedIn map[string][]domain.Instance
}

// Blueprint looks up a blueprint by name.
func (g *Graph) Blueprint(name string) (*domain.Blueprint, bool) {
	bp, ok := g.PerName[name]
	return bp, ok
}

// OwnerOf returns the blueprint owning an object, if any.
func (g *Graph) OwnerOf(object string) (*domain.Blueprint, bool) {
	bp, ok := g.FromObjects[object]
	return bp, ok
}

// InternalInstances returns the internal placements of a blueprint.
func (g *Graph) InternalInstances(name string) []domain.Instance {
	return g.InternalCollectionInstances[name]
}

// SplitForced reports whether an internal placement of the blueprint
// requests a separate export, falling back to def for placements without
// an override.
func (g *Graph) SplitForced(name string, def domain.CombineMode) bool {
	for _, inst := range g.InternalCollectionInstances[name] {
		if inst.EffectiveMode(def) == domain.CombineSplit {
			return true
		}
	}
	return false
}

// LevelBlueprints returns the names of collections placed directly in a
// main scene, sorted.
func (g *Graph) LevelBlueprints(sceneName string) []string {
	set := domain.NewSet()
	for name := range g.InstancesPerMainScene[sceneName] {
		set.Add(name)
	}
	return set.Sorted()
}
