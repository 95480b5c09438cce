// Package local_test tests the local filesystem archive.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ai-news-scraper/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "raw", "pages")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
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

	t.Run("WritesPage", func(t *testing.T) {
		path := "aibase/101.html"
		uri, err := store.PutObject(context.Background(), path, "text/html", strings.NewReader("<html></html>"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, path), uri)

		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(tempDir, path))
		require.NoError(t, err)
		assert.Equal(t, "<html></html>", string(got))
	})

	t.Run("Overwrites", func(t *testing.T) {
		path := "smolai/25-01-01.html"
		_, err := store.PutObject(context.Background(), path, "text/html", strings.NewReader("v1"))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), path, "text/html", strings.NewReader("v2"))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(tempDir, path))
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "text/html", strings.NewReader("data"))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.html", "text/html", strings.NewReader("data"))
		assert.Error(t, err)
	})
}
