// Package changes captures per-object transform snapshots, diffs them
// across export cycles and resolves the differences to blueprints.
package changes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"autoexport/internal/scene"
	"autoexport/pkg/domain"
)

// SnapshotBlob is the text blob holding the previous cycle's snapshot.
const SnapshotBlob = ".scene_serialized"

// Capture records the transform of every object linked into every scene.
func Capture(inv scene.Inventory) domain.Snapshot {
	snap := make(domain.Snapshot)
	for _, s := range inv.Scenes() {
		objects := make(map[string]domain.Transform)
		for _, obj := range inv.SceneObjects(s) {
			objects[obj.Name] = obj.Transform
		}
		snap[s.Name] = objects
	}
	return snap
}

// Encode renders a snapshot as indented JSON.
func Encode(s domain.Snapshot) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.String(), nil
}

// Decode parses a snapshot produced by Encode.
func Decode(raw string) (domain.Snapshot, error) {
	var s domain.Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s == nil {
		s = make(domain.Snapshot)
	}
	return s, nil
}

// BlobStore is the subset of persistence.TextStore the snapshot needs.
type BlobStore interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Put(ctx context.Context, name, payload string) error
	Delete(ctx context.Context, name string) error
}

// LoadPrevious returns the stored snapshot. ok is false when none exists.
// An undecodable blob is deleted and reported as absent along with the
// decode error so the caller can warn.
func LoadPrevious(ctx context.Context, store BlobStore) (snap domain.Snapshot, ok bool, err error) {
	raw, found, err := store.Get(ctx, SnapshotBlob)
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	snap, decErr := Decode(raw)
	if decErr != nil {
		if delErr := store.Delete(ctx, SnapshotBlob); delErr != nil {
			return nil, false, fmt.Errorf("discard corrupt snapshot: %w", delErr)
		}
		return nil, false, domain.CorruptConfigurationError{Blob: SnapshotBlob, Err: decErr}
	}
	return snap, true, nil
}

// Save overwrites the stored snapshot.
func Save(ctx context.Context, store BlobStore, snap domain.Snapshot) error {
	raw, err := Encode(snap)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, SnapshotBlob, raw); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
