package domain

import (
	"fmt"
	"sort"
)

// CombineMode controls whether an instanced blueprint is folded into the
// export of its parent or emitted as its own file.
type CombineMode string

const (
	// CombineUnset means the placement carries no override and the configured
	// default applies.
	CombineUnset CombineMode = ""
	// CombineEmbed folds the instanced content into the parent's export.
	CombineEmbed CombineMode = "Combine"
	// CombineSplit emits the instanced blueprint as a separate file.
	CombineSplit CombineMode = "Split"
)

// CombineProperty is the per-instance property carrying a CombineMode override.
const CombineProperty = "_combine"

// ParseCombineMode validates a raw override value. Empty input yields CombineUnset.
func ParseCombineMode(raw string) (CombineMode, error) {
	switch CombineMode(raw) {
	case CombineUnset, CombineEmbed, CombineSplit:
		return CombineMode(raw), nil
	default:
		return CombineUnset, fmt.Errorf("invalid combine mode %q", raw)
	}
}

// Or returns m unless it is unset, in which case fallback is returned.
func (m CombineMode) Or(fallback CombineMode) CombineMode {
	if m == CombineUnset {
		return fallback
	}
	return m
}

// Instance is a placement of a blueprint inside a scene or inside another
// blueprint's collection. It is owned by the placing scene or collection and
// only referenced by the instantiated Blueprint.
type Instance struct {
	Object     string      `json:"object"`
	Collection string      `json:"collection"`
	Parent     string      `json:"parent"`
	Transform  Transform   `json:"transform"`
	Combine    CombineMode `json:"_combine,omitempty"`
}

// EffectiveMode resolves the placement's combine mode against the configured default.
func (i Instance) EffectiveMode(fallback CombineMode) CombineMode {
	return i.Combine.Or(fallback)
}

// Blueprint is a named, reusable unit of scene content exported as its own
// interchange file. Name is the identity across every index.
type Blueprint struct {
	Name             string     `json:"name"`
	Local            bool       `json:"local"`
	Marked           bool       `json:"marked"`
	Objects          []string   `json:"objects"`
	NestedBlueprints []string   `json:"nested_blueprints"`
	Instances        []Instance `json:"instances,omitempty"`
	Scene            string     `json:"scene,omitempty"`
	ExportPath       string     `json:"export_path,omitempty"`
}

// HasSplitInstance reports whether any placement forces a separate export.
func (b *Blueprint) HasSplitInstance(fallback CombineMode) bool {
	for _, inst := range b.Instances {
		if inst.EffectiveMode(fallback) == CombineSplit {
			return true
		}
	}
	return false
}

// SortBlueprints orders blueprints by name in place.
func SortBlueprints(bps []*Blueprint) {
	sort.Slice(bps, func(i, j int) bool { return bps[i].Name < bps[j].Name })
}

// BlueprintNames returns the names of bps in their current order.
func BlueprintNames(bps []*Blueprint) []string {
	out := make([]string, len(bps))
	for i, bp := range bps {
		out[i] = bp.Name
	}
	return out
}
