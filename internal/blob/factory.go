package blob

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config selects and configures an output store.
//
//	AUTOEXPORT_BLOB_DRIVER: fs|s3|memory (default fs)
//	AUTOEXPORT_BLOB_FS_ROOT: directory root when driver=fs (default: the
//	    project's assets directory, supplied by the caller)
//	AUTOEXPORT_BLOB_S3_*: see S3Config
type Config struct {
	Driver string   `env:"AUTOEXPORT_BLOB_DRIVER" toml:"driver"`
	FSRoot string   `env:"AUTOEXPORT_BLOB_FS_ROOT" toml:"fs_root"`
	S3     S3Config `toml:"s3"`
}

// ApplyEnv overlays environment variables onto cfg. Unset variables keep
// the values already present.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse blob env: %w", err)
	}
	return nil
}

// Open constructs the Store selected by cfg. defaultRoot is used by the
// filesystem driver when cfg.FSRoot is empty.
func Open(ctx context.Context, cfg Config, defaultRoot string) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := cfg.FSRoot
		if root == "" {
			root = defaultRoot
		}
		return NewFilesystem(root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
