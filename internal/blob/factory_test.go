package blob

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()

	fsStore, err := Open(ctx, Config{}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, fsStore.Driver())

	mem, err := Open(ctx, Config{Driver: "memory"}, "")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, mem.Driver())

	_, err = Open(ctx, Config{Driver: "s3"}, "")
	require.Error(t, err, "bucket is required")

	_, err = Open(ctx, Config{Driver: "ftp"}, "")
	require.ErrorContains(t, err, "unknown blob driver")
}

func TestRetarget(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	root := filepath.Join(t.TempDir(), "assets")
	moved, err := Retarget(fsStore, root)
	require.NoError(t, err)
	assert.True(t, moved)
	_, err = fsStore.Put(ctx, "levels/World.glb", bytes.NewReader([]byte("x")), PutOptions{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "levels", "World.glb"))

	moved, err = Retarget(NewMemory(), root)
	require.NoError(t, err)
	assert.False(t, moved, "memory stores have no location")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("AUTOEXPORT_BLOB_DRIVER", "s3")
	t.Setenv("AUTOEXPORT_BLOB_S3_BUCKET", "exports")
	t.Setenv("AUTOEXPORT_BLOB_S3_PATH_STYLE", "true")

	cfg := Config{FSRoot: "keep"}
	require.NoError(t, ApplyEnv(&cfg))
	assert.Equal(t, "s3", cfg.Driver)
	assert.Equal(t, "keep", cfg.FSRoot)
	assert.Equal(t, "exports", cfg.S3.Bucket)
	assert.True(t, cfg.S3.PathStyle)
}

func TestExistsAcrossDrivers(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	for _, s := range []Store{NewMemory(), NewMockS3ForTests(), fsStore} {
		ok, err := Exists(ctx, s, "levels/World.glb")
		require.NoError(t, err, s.Driver())
		assert.False(t, ok, s.Driver())

		_, err = s.Put(ctx, "levels/World.glb", bytes.NewReader([]byte("glb")), PutOptions{})
		require.NoError(t, err, s.Driver())
		ok, err = Exists(ctx, s, "levels/World.glb")
		require.NoError(t, err, s.Driver())
		assert.True(t, ok, s.Driver())

		_, err = s.Put(ctx, "levels/World.glb", bytes.NewReader([]byte("again")), PutOptions{})
		assert.ErrorIs(t, err, ErrExists, s.Driver())
	}
}
