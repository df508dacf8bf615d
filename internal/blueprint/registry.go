package blueprint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"autoexport/pkg/domain"
)

// RegistryBlob is the text blob the registry is persisted in between runs.
const RegistryBlob = ".autoexport_blueprints"

// Registry is the cross-cycle list of known blueprints, keyed by name.
// The orchestrator is its only writer; other readers should only consult it
// between export cycles.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]*domain.Blueprint
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*domain.Blueprint)}
}

// Upsert replaces the blueprint with the same name, or appends it.
func (r *Registry) Upsert(bp *domain.Blueprint) {
	if bp == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[bp.Name]; !exists {
		r.order = append(r.order, bp.Name)
	}
	r.byName[bp.Name] = bp
}

// UpsertAll upserts every blueprint of the graph in name order.
func (r *Registry) UpsertAll(g *Graph) {
	for _, bp := range g.Blueprints {
		r.Upsert(bp)
	}
}

// Get returns the registered blueprint with the given name.
func (r *Registry) Get(name string) (*domain.Blueprint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bp, ok := r.byName[name]
	return bp, ok
}

// List returns the registered blueprints in insertion order.
func (r *Registry) List() []*domain.Blueprint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Blueprint, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered blueprints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Owners maps every registered object name to the blueprint containing
// it. Placements count as objects of the blueprint they are placed in.
func (r *Registry) Owners() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string)
	for _, name := range r.order {
		bp := r.byName[name]
		for _, obj := range bp.Objects {
			out[obj] = name
		}
		for _, inst := range bp.Instances {
			if _, ok := r.byName[inst.Parent]; ok {
				out[inst.Object] = inst.Parent
			}
		}
	}
	return out
}

// TextStore is the blob persistence the registry is saved to.
type TextStore interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Put(ctx context.Context, name, payload string) error
	Delete(ctx context.Context, name string) error
}

// Load upserts the blueprints saved in store. An undecodable blob is
// deleted and reported as a domain.CorruptConfigurationError.
func (r *Registry) Load(ctx context.Context, store TextStore) error {
	raw, ok, err := store.Get(ctx, RegistryBlob)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	if !ok {
		return nil
	}
	var saved []*domain.Blueprint
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		if delErr := store.Delete(ctx, RegistryBlob); delErr != nil {
			return fmt.Errorf("discard corrupt registry: %w", delErr)
		}
		return domain.CorruptConfigurationError{Blob: RegistryBlob, Err: err}
	}
	for _, bp := range saved {
		r.Upsert(bp)
	}
	return nil
}

// Save writes the registered blueprints to store in insertion order.
func (r *Registry) Save(ctx context.Context, store TextStore) error {
	raw, err := json.Marshal(r.List())
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := store.Put(ctx, RegistryBlob, string(raw)); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}
