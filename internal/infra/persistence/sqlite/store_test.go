package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := store.Put(ctx, ".gltf_auto_export_settings", `{"auto_export":true}`); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, ".gltf_auto_export_settings", `{"auto_export":false}`); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	if reopened.Path() != path {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
	got, ok, err := reopened.Get(ctx, ".gltf_auto_export_settings")
	if err != nil || !ok || got != `{"auto_export":false}` {
		t.Fatalf("get: %q %v %v", got, ok, err)
	}
	var rows int
	if err := reopened.DB().QueryRow(`SELECT COUNT(*) FROM blobs`).Scan(&rows); err != nil || rows != 1 {
		t.Fatalf("expected one row, got %d (%v)", rows, err)
	}
	if err := reopened.Delete(ctx, ".gltf_auto_export_settings"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := reopened.Get(ctx, ".gltf_auto_export_settings"); err != nil || ok {
		t.Fatalf("expected missing after delete: %v %v", ok, err)
	}
	if err := reopened.Delete(ctx, "never-written"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}
