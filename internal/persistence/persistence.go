// Package persistence stores the engine's opaque text blobs: the scene
// snapshot and the settings objects with their previous-cycle shadows.
package persistence

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"

	"autoexport/internal/infra/persistence/memory"
	"autoexport/internal/infra/persistence/postgres"
	"autoexport/internal/infra/persistence/sqlite"
)

// TextStore is a flat name -> payload store. Get reports ok=false for
// absent names; Delete of an absent name is not an error.
type TextStore interface {
	Get(ctx context.Context, name string) (payload string, ok bool, err error)
	Put(ctx context.Context, name, payload string) error
	Delete(ctx context.Context, name string) error
	Close() error
}

// Driver selects a TextStore implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config selects and configures a TextStore.
type Config struct {
	Driver string `env:"AUTOEXPORT_STORE_DRIVER" toml:"driver"`
	// Path is the SQLite database file. Relative paths are resolved by the caller.
	Path string `env:"AUTOEXPORT_STORE_PATH" toml:"path"`
	DSN  string `env:"AUTOEXPORT_STORE_DSN" toml:"dsn"`
}

// ApplyEnv overlays AUTOEXPORT_STORE_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse store env: %w", err)
	}
	return nil
}

// Open constructs the TextStore selected by cfg. An empty driver means sqlite.
func Open(ctx context.Context, cfg Config) (TextStore, error) {
	switch Driver(cfg.Driver) {
	case "", DriverSQLite:
		return sqlite.NewStore(cfg.Path)
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.DSN)
	case DriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %s", cfg.Driver)
	}
}
