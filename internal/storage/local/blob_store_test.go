// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docresolver/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "papers", "2024")
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

func TestPutObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	t.Run("ValidPut", func(t *testing.T) {
		data := []byte("%PDF-1.4 hello")
		path, err := store.PutObject(context.Background(), "paper.pdf", "application/pdf", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tempDir, "paper.pdf"), path)

		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, data, readData)
	})

	t.Run("Overwrite", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "dup.pdf", "application/pdf", bytes.NewReader([]byte("one")))
		require.NoError(t, err)
		path, err := store.PutObject(context.Background(), "dup.pdf", "application/pdf", bytes.NewReader([]byte("two")))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "two", string(readData))
	})

	t.Run("NestedPath", func(t *testing.T) {
		path, err := store.PutObject(context.Background(), "a/b/c/object.pdf", "application/pdf", bytes.NewReader([]byte("nested")))
		require.NoError(t, err)
		assert.FileExists(t, path)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "application/pdf", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.pdf", "application/pdf", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})

	t.Run("ReaderError", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "broken.pdf", "application/pdf", failingReader{})
		assert.Error(t, err)
		assert.NoFileExists(t, filepath.Join(tempDir, "broken.pdf"))
	})
}

func TestWriteFileAtomic(t *testing.T) {
	t.Run("WritesAndLeavesNoTemp", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "out.pdf")
		require.NoError(t, local.WriteFileAtomic(target, []byte("content"), 0o600))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "out.pdf", entries[0].Name())

		info, err := os.Stat(target)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "nope", "out.pdf")
		assert.Error(t, local.WriteFileAtomic(target, []byte("content"), 0o600))
	})

	t.Run("RenameFailureCleansUp", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "taken")
		require.NoError(t, os.Mkdir(target, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(target, "child"), []byte("x"), 0o600))

		require.Error(t, local.WriteFileAtomic(target, []byte("content"), 0o600))
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1, "temp file must be removed on failure")
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }
