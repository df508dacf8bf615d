package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"autoexport/internal/infra/persistence/postgres/testutil"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, _ string) (*sql.DB, error) {
		if driverName != "pgx" {
			t.Fatalf("unexpected driver %s", driverName)
		}
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)

	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS blobs") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected blobs table DDL, got %v", conn.Execs)
	}

	if _, ok, err := store.Get(ctx, ".scene_serialized"); err != nil || ok {
		t.Fatalf("expected missing blob: %v %v", ok, err)
	}
	if err := store.Put(ctx, ".scene_serialized", `{"a":1}`); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, ".scene_serialized", `{"a":2}`); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, ok, err := store.Get(ctx, ".scene_serialized")
	if err != nil || !ok || got != `{"a":2}` {
		t.Fatalf("get: %q %v %v", got, ok, err)
	}
	if n := len(conn.Tables["blobs"]); n != 1 {
		t.Fatalf("expected upsert to keep one row, got %d", n)
	}
	if err := store.Delete(ctx, ".scene_serialized"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, ".scene_serialized"); ok {
		t.Fatalf("expected blob deleted")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStoreFailures(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)

	conn.FailCommit = true
	if err := store.Put(ctx, "k", "v"); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
	conn.FailCommit = false
	conn.FailBegin = true
	if err := store.Put(ctx, "k", "v"); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailBegin = false
	conn.FailExec = true
	if err := store.Delete(ctx, "k"); err == nil {
		t.Fatalf("expected delete failure")
	}
	conn.FailExec = false
	conn.RowsErr = errors.New("rows broke")
	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatalf("expected rows error")
	}
}

func TestNewStoreErrors(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://example"); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping failure, got %v", err)
	}
	conn.FailPing = false
	conn.FailExec = true
	if _, err := NewStore(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "ensure blobs table") {
		t.Fatalf("expected ddl failure, got %v", err)
	}

	restoreErr := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("no driver") })
	defer restoreErr()
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected open failure")
	}
}
