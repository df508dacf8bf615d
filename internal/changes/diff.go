package changes

import (
	"autoexport/internal/blueprint"
	"autoexport/pkg/domain"
)

// MaxBubbleDepth bounds the parent-chain walk of a changed object.
const MaxBubbleDepth = 64

// Diff compares two snapshots scene by scene. Transforms are compared
// exactly. Scenes without differences are omitted; scenes only present in
// previous report all their objects as removed.
func Diff(previous, current domain.Snapshot) domain.ChangeSet {
	cs := make(domain.ChangeSet)
	for sceneName, cur := range current {
		prev := previous[sceneName]
		changes := domain.SceneChanges{
			Added:   domain.NewSet(),
			Removed: domain.NewSet(),
			Changed: make(map[string]domain.Transform),
		}
		for name, t := range cur {
			old, ok := prev[name]
			switch {
			case !ok:
				changes.Added.Add(name)
			case old != t:
				changes.Changed[name] = t
			}
		}
		for name := range prev {
			if _, ok := cur[name]; !ok {
				changes.Removed.Add(name)
			}
		}
		if !changes.Empty() {
			cs[sceneName] = changes
		}
	}
	for sceneName, prev := range previous {
		if _, ok := current[sceneName]; ok || len(prev) == 0 {
			continue
		}
		removed := domain.NewSet()
		for name := range prev {
			removed.Add(name)
		}
		cs[sceneName] = domain.SceneChanges{Added: domain.NewSet(), Removed: removed, Changed: map[string]domain.Transform{}}
	}
	return cs
}

// ResolveOptions tunes ResolveToBlueprints.
type ResolveOptions struct {
	// DefaultMode is collection_instances_combine_mode.
	DefaultMode domain.CombineMode
	// PreviousOwners maps object names to the blueprint that owned them in
	// the previous cycle. Removed objects are no longer in the graph and
	// resolve through it.
	PreviousOwners map[string]string
}

// ResolveToBlueprints maps every changed object to the blueprints owning it
// or one of its ancestors, then marks the parents that embed a changed
// blueprint through a placement whose effective mode is Combine. The result
// is sorted by name and free of duplicates.
func ResolveToBlueprints(cs domain.ChangeSet, g *blueprint.Graph, opts ResolveOptions) []*domain.Blueprint {
	changed := make(map[string]*domain.Blueprint)
	for _, sceneName := range sortedScenes(cs) {
		removed := cs[sceneName].Removed
		for _, name := range cs[sceneName].Names() {
			found := owners(g, name)
			if len(found) == 0 && removed.Has(name) {
				if bp, ok := g.PerName[opts.PreviousOwners[name]]; ok {
					found = append(found, bp)
				}
			}
			for _, bp := range found {
				changed[bp.Name] = bp
			}
		}
	}

	queue := make([]string, 0, len(changed))
	for name := range changed {
		queue = append(queue, name)
	}
	visited := domain.NewSet()
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited.Has(name) {
			continue
		}
		visited.Add(name)
		for _, inst := range g.NestedIn[name] {
			if inst.EffectiveMode(opts.DefaultMode) != domain.CombineEmbed {
				continue
			}
			parent, ok := g.PerName[inst.Parent]
			if !ok {
				continue
			}
			if _, seen := changed[parent.Name]; !seen {
				changed[parent.Name] = parent
			}
			queue = append(queue, parent.Name)
		}
	}

	out := make([]*domain.Blueprint, 0, len(changed))
	for _, bp := range changed {
		out = append(out, bp)
	}
	domain.SortBlueprints(out)
	return out
}

// owners walks object's parent chain and collects every owning blueprint.
func owners(g *blueprint.Graph, object string) []*domain.Blueprint {
	var out []*domain.Blueprint
	seen := domain.NewSet()
	cur := object
	for depth := 0; depth < MaxBubbleDepth && cur != "" && !seen.Has(cur); depth++ {
		seen.Add(cur)
		if bp, ok := g.FromObjects[cur]; ok {
			out = append(out, bp)
		}
		cur = g.ObjectParents[cur]
	}
	return out
}

func sortedScenes(cs domain.ChangeSet) []string {
	names := domain.NewSet()
	for name := range cs {
		names.Add(name)
	}
	return names.Sorted()
}
