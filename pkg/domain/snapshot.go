package domain

import (
	"encoding/json"
	"sort"
)

// Vec3 is a three component vector as stored by the snapshotter.
type Vec3 [3]float64

// Transform is the flat per-object record captured in a Snapshot.
type Transform struct {
	Location Vec3 `json:"location" yaml:"location"`
	Rotation Vec3 `json:"rotation_euler" yaml:"rotation_euler"`
	Scale    Vec3 `json:"scale" yaml:"scale"`
}

// IdentityTransform has zero location/rotation and unit scale.
var IdentityTransform = Transform{Scale: Vec3{1, 1, 1}}

// Snapshot maps scene name to object name to the object's transform.
// Snapshots are immutable once captured.
type Snapshot map[string]map[string]Transform

// Set is an unordered set of names. It encodes as a sorted JSON array.
type Set map[string]struct{}

// NewSet builds a set from names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Add inserts name.
func (s Set) Add(name string) { s[name] = struct{}{} }

// Has reports membership.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON implements json.Marshaler.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Set) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	*s = NewSet(names...)
	return nil
}

// SceneChanges is the per-scene diff between two snapshots.
type SceneChanges struct {
	Added   Set                  `json:"added"`
	Removed Set                  `json:"removed"`
	Changed map[string]Transform `json:"changed"`
}

// Empty reports whether nothing was added, removed or changed.
func (c SceneChanges) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// Names returns added, removed and changed object names together, sorted.
func (c SceneChanges) Names() []string {
	all := make(Set, len(c.Added)+len(c.Removed)+len(c.Changed))
	for n := range c.Added {
		all.Add(n)
	}
	for n := range c.Removed {
		all.Add(n)
	}
	for n := range c.Changed {
		all.Add(n)
	}
	return all.Sorted()
}

// ChangeSet maps scene name to its non-empty SceneChanges.
type ChangeSet map[string]SceneChanges

// Empty reports whether no scene changed.
func (cs ChangeSet) Empty() bool { return len(cs) == 0 }

// Has reports whether the scene appears in the change set.
func (cs ChangeSet) Has(scene string) bool {
	_, ok := cs[scene]
	return ok
}

// Scenes returns the names of the changed scenes, sorted.
func (cs ChangeSet) Scenes() []string {
	out := make([]string, 0, len(cs))
	for name := range cs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
