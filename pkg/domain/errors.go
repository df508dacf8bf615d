package domain

import "fmt"

// MissingCollectionError reports a reference to a collection that does not
// exist in the authoring data. It aborts the current scan.
type MissingCollectionError struct {
	Collection string
	Parent     string
}

func (e MissingCollectionError) Error() string {
	return fmt.Sprintf("collection %q referenced by %q not found", e.Collection, e.Parent)
}

// CorruptConfigurationError reports a settings blob that failed to parse.
// Callers recover by discarding the blob.
type CorruptConfigurationError struct {
	Blob string
	Err  error
}

func (e CorruptConfigurationError) Error() string {
	return fmt.Sprintf("settings %s corrupt: %v", e.Blob, e.Err)
}

func (e CorruptConfigurationError) Unwrap() error { return e.Err }

// ExportFailure wraps an error raised while writing a single export target.
type ExportFailure struct {
	Step   string
	Target string
	Err    error
}

func (e ExportFailure) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("export %s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("export %s %q failed: %v", e.Step, e.Target, e.Err)
}

func (e ExportFailure) Unwrap() error { return e.Err }
