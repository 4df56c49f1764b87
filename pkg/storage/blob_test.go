package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemBlobStore_PutGetDelete(t *testing.T) {
	store, err := NewFilesystemBlobStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key := "cases/c1/documents/d1/v1"

	require.NoError(t, store.Put(ctx, key, strings.NewReader("hello"), "text/plain"))

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrBlobNotFound)

	// Deleting twice is fine
	assert.NoError(t, store.Delete(ctx, key))
}

func TestFilesystemBlobStore_RejectsTraversal(t *testing.T) {
	store, err := NewFilesystemBlobStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "../outside", strings.NewReader("x"), "text/plain")
	assert.Error(t, err)

	_, err = store.Get(context.Background(), "")
	assert.Error(t, err)
}

func TestNewFilesystemBlobStore_RequiresRoot(t *testing.T) {
	_, err := NewFilesystemBlobStore("")
	assert.Error(t, err)
}

func TestNewBlobStore_UnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlobBackend = "tape"
	_, err := NewBlobStore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewBlobStore_Filesystem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilesystemRoot = t.TempDir()
	store, err := NewBlobStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &FilesystemBlobStore{}, store)
}
