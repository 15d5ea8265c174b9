package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulashvilimindia/batumi.work/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "archive")
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

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("WritesArchivePath", func(t *testing.T) {
		path := "jobsge/101/abc.html"
		uri, err := store.PutObject(ctx, path, "text/html", strings.NewReader("<html>101</html>"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(dir, path), uri)

		// #nosec G304 -- test reads from its own temp directory.
		got, err := os.ReadFile(filepath.Join(dir, path))
		require.NoError(t, err)
		assert.Equal(t, "<html>101</html>", string(got))
	})

	t.Run("ExistingObjectIsKept", func(t *testing.T) {
		path := "hrge/5001/def.html"
		_, err := store.PutObject(ctx, path, "text/html", strings.NewReader("first"))
		require.NoError(t, err)
		_, err = store.PutObject(ctx, path, "text/html", strings.NewReader("second"))
		require.NoError(t, err)

		// #nosec G304 -- test reads from its own temp directory.
		got, err := os.ReadFile(filepath.Join(dir, path))
		require.NoError(t, err)
		assert.Equal(t, "first", string(got))
	})

	t.Run("NoTempFilesLeft", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Join(dir, "jobsge", "101"))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "abc.html", entries[0].Name())
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, " ", "text/html", strings.NewReader("x"))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../outside.html", "text/html", strings.NewReader("x"))
		assert.ErrorContains(t, err, "escapes")
	})
}
