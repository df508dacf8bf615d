// Package core defines the storage abstraction that receives exported
// interchange files and answers presence checks for the scheduler.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete output store implementation.
type Driver string

const (
	// DriverFilesystem writes exports below a local directory (default).
	DriverFilesystem Driver = "fs"
	// DriverS3 writes exports to an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps exports in process memory (tests, dry runs).
	DriverMemory Driver = "memory"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
	// Overwrite replaces an existing object. Without it Put is create-only.
	Overwrite bool
}

// Info describes a stored export.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the output sink of the export orchestrator. Keys are slash
// separated paths relative to the project's assets directory.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	// ErrNotFound is returned (wrapped) by Get and Head for absent keys.
	ErrNotFound = errors.New("blobstore: not found")
	// ErrExists is returned (wrapped) by a create-only Put on an existing key.
	ErrExists = errors.New("blobstore: already exists")
)

// Exists reports whether key is present. Lookup failures other than
// ErrNotFound are returned.
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
