// Package schedule decides which blueprints and levels an export cycle
// writes.
package schedule

import (
	"context"
	"fmt"

	"autoexport/internal/blob"
	"autoexport/internal/blueprint"
	"autoexport/internal/changes"
	"autoexport/internal/layout"
	"autoexport/internal/scene"
	"autoexport/pkg/domain"
)

// Presence answers whether an export file is already on disk.
type Presence interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// StorePresence checks presence against an output store.
type StorePresence struct {
	Store blob.Store
}

// Exists implements Presence.
func (p StorePresence) Exists(ctx context.Context, key string) (bool, error) {
	return blob.Exists(ctx, p.Store, key)
}

// Options are the configuration values the scheduler reads.
type Options struct {
	ChangeDetection        bool
	ExportMaterialsLibrary bool
	// DefaultCombine is collection_instances_combine_mode.
	DefaultCombine domain.CombineMode
}

// Input gathers everything ComputeTargets needs.
type Input struct {
	Changes       domain.ChangeSet
	ConfigChanged bool
	Graph         *blueprint.Graph
	MainScenes    []*scene.Scene
	Options       Options
	Layout        layout.Layout
	Presence      Presence
	// PreviousOwners maps object names to their blueprint in the previous
	// cycle, so removed objects still mark their blueprint.
	PreviousOwners map[string]string
}

// Targets is the outcome of one scheduling pass. Both lists are sorted by
// name.
type Targets struct {
	Blueprints []*domain.Blueprint
	Levels     []string
	// Full is set when every blueprint and level is exported unfiltered.
	Full bool
}

// Count is the number of exports the cycle runs, for progress reporting.
func (t Targets) Count(materials bool) int {
	return ExportCount(len(t.Blueprints), len(t.Levels), materials)
}

// ExportCount returns blueprints + levels, plus one for the materials library.
func ExportCount(blueprints, levels int, materials bool) int {
	n := blueprints + levels
	if materials {
		n++
	}
	return n
}

// ComputeTargets selects the blueprints and levels to export.
//
// With change detection off or a configuration change, everything is
// exported. Otherwise the blueprint set is the union of the changed
// blueprints that are marked or split-overridden, the blueprints whose
// file is missing, the split-overridden blueprints and the external
// blueprints.
func ComputeTargets(ctx context.Context, in Input) (Targets, error) {
	if in.Graph == nil {
		return Targets{}, fmt.Errorf("compute targets: nil graph")
	}
	full := !in.Options.ChangeDetection || in.ConfigChanged
	blueprints, err := blueprintTargets(ctx, in, full)
	if err != nil {
		return Targets{}, err
	}
	levels, err := levelTargets(ctx, in, full, blueprints)
	if err != nil {
		return Targets{}, err
	}
	return Targets{Blueprints: blueprints, Levels: levels, Full: full}, nil
}

func blueprintTargets(ctx context.Context, in Input, full bool) ([]*domain.Blueprint, error) {
	g := in.Graph
	if full {
		return append([]*domain.Blueprint(nil), g.Blueprints...), nil
	}
	def := in.Options.DefaultCombine
	selected := make(map[string]*domain.Blueprint)
	for _, bp := range changes.ResolveToBlueprints(in.Changes, g, changes.ResolveOptions{
		DefaultMode:    def,
		PreviousOwners: in.PreviousOwners,
	}) {
		if bp.Marked || g.SplitForced(bp.Name, def) {
			selected[bp.Name] = bp
		}
	}
	for _, bp := range g.Blueprints {
		if _, ok := selected[bp.Name]; ok {
			continue
		}
		if !bp.Local || g.SplitForced(bp.Name, def) {
			selected[bp.Name] = bp
			continue
		}
		if in.Presence == nil {
			continue
		}
		exists, err := in.Presence.Exists(ctx, in.Layout.BlueprintKey(bp.Name))
		if err != nil {
			return nil, fmt.Errorf("check blueprint %s: %w", bp.Name, err)
		}
		if !exists {
			selected[bp.Name] = bp
		}
	}
	out := make([]*domain.Blueprint, 0, len(selected))
	for _, bp := range selected {
		out = append(out, bp)
	}
	domain.SortBlueprints(out)
	return out, nil
}

// LevelsToExport selects main scenes: all of them on a full export,
// otherwise those that changed, lack an output file, or embed a local
// blueprint that is being exported.
func LevelsToExport(ctx context.Context, in Input, blueprints []*domain.Blueprint) ([]string, error) {
	full := !in.Options.ChangeDetection || in.ConfigChanged
	return levelTargets(ctx, in, full, blueprints)
}

func levelTargets(ctx context.Context, in Input, full bool, blueprints []*domain.Blueprint) ([]string, error) {
	out := domain.NewSet()
	exporting := domain.NewSet()
	for _, bp := range blueprints {
		// external blueprints export every cycle; they do not dirty levels
		if bp.Local {
			exporting.Add(bp.Name)
		}
	}
	for _, s := range in.MainScenes {
		if full || in.Changes.Has(s.Name) || embedsExported(in, s.Name, exporting) {
			out.Add(s.Name)
			continue
		}
		if in.Presence == nil {
			continue
		}
		exists, err := in.Presence.Exists(ctx, in.Layout.LevelKey(s.Name))
		if err != nil {
			return nil, fmt.Errorf("check level %s: %w", s.Name, err)
		}
		if !exists {
			out.Add(s.Name)
		}
	}
	return out.Sorted(), nil
}

func embedsExported(in Input, sceneName string, exporting domain.Set) bool {
	if in.Graph == nil {
		return false
	}
	for collection, placements := range in.Graph.InstancesPerMainScene[sceneName] {
		if !exporting.Has(collection) {
			continue
		}
		for _, inst := range placements {
			if inst.EffectiveMode(in.Options.DefaultCombine) == domain.CombineEmbed {
				return true
			}
		}
	}
	return false
}
