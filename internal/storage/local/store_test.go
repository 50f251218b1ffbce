// Package local_test tests the local filesystem store.
package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scribblehub-fetch/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "cache")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPath(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	got, err := store.Path("/my-novel/wp-content/uploads/cover.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "my-novel", "wp-content", "uploads", "cover.jpg"), got)

	_, err = store.Path("../escape.txt")
	assert.ErrorContains(t, err, "path traversal")

	_, err = store.Path("")
	assert.Error(t, err)

	_, err = store.Path("a/../..")
	assert.ErrorContains(t, err, "path traversal")
}

func TestPathRelativeRoot(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	store, err := local.New(local.Config{BaseDir: "."})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(store.BaseDir()))

	got, err := store.Path("my-novel/images/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.BaseDir(), "my-novel", "images", "a.jpg"), got)

	made, err := store.MkdirAll("my-novel")
	require.NoError(t, err)
	assert.DirExists(t, made)
	assert.DirExists(t, filepath.Join(dir, "my-novel"))
}

func TestPathFilesystemRoot(t *testing.T) {
	root := string(filepath.Separator)
	if vol := filepath.VolumeName(os.TempDir()); vol != "" {
		root = vol + root
	}
	store, err := local.New(local.Config{BaseDir: root})
	require.NoError(t, err)

	got, err := store.Path("out.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "out.json"), got)
	assert.Equal(t, root, store.BaseDir())
}

func TestPutAndExists(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := store.Exists("a/b/object.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	data := []byte("nested hello")
	full, n, err := store.Put(ctx, "a/b/object.txt", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, filepath.Join(dir, "a", "b", "object.txt"), full)

	// #nosec G304 -- test reads from the controlled temp directory.
	readData, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, data, readData)

	ok, err = store.Exists("a/b/object.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := os.ReadDir(filepath.Join(dir, "a", "b"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".part"), "temp file left behind: %s", e.Name())
	}
}

func TestMkdirAll(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	full, err := store.MkdirAll("my-novel")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "my-novel"), full)
	assert.DirExists(t, full)

	// Idempotent.
	_, err = store.MkdirAll("my-novel")
	require.NoError(t, err)
}

func TestPutCanceledLeavesNoFile(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = store.Put(ctx, "x/y.bin", bytes.NewReader([]byte("data")))
	require.ErrorIs(t, err, context.Canceled)

	ok, err := store.Exists("x/y.bin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock(t *testing.T) {
	dir := t.TempDir()
	first, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	second, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	fl, err := first.Lock()
	require.NoError(t, err)

	_, err = second.Lock()
	require.ErrorIs(t, err, local.ErrLocked)

	require.NoError(t, fl.Unlock())
	fl2, err := second.Lock()
	require.NoError(t, err)
	require.NoError(t, fl2.Unlock())
}
