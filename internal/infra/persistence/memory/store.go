// Package memory keeps text blobs in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
)

// Store is a map-backed text blob store.
type Store struct {
	mu    sync.RWMutex
	blobs map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{blobs: make(map[string]string)} }

func (s *Store) Get(_ context.Context, name string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.blobs[name]
	return v, ok, nil
}

func (s *Store) Put(_ context.Context, name, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = payload
	return nil
}

func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, name)
	return nil
}

// Names lists stored blob names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Close() error { return nil }
