package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/common"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	key := "jobs/j-1/outputs/ocr_123.txt"
	require.NoError(t, store.Put(ctx, key, []byte("recognized text")))

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("recognized text"), data)
}

func TestLocalStoreLayoutMirrorsKeys(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)

	require.NoError(t, store.Put(context.Background(), "jobs/j-1/outputs/j-1-report.pdf", []byte("%PDF")))

	_, err := os.Stat(filepath.Join(root, "jobs", "j-1", "outputs", "j-1-report.pdf"))
	assert.NoError(t, err)
}

func TestLocalStoreGetMissing(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	_, err := store.Get(context.Background(), "jobs/absent/input.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorePutOverwrites(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "jobs/j-1/outputs/j-1-report.pdf", []byte("v1")))
	require.NoError(t, store.Put(ctx, "jobs/j-1/outputs/j-1-report.pdf", []byte("v2")))

	data, err := store.Get(ctx, "jobs/j-1/outputs/j-1-report.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestLocalStoreDelete(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "jobs/j-1/input.pdf", []byte("data")))
	require.NoError(t, store.Delete(ctx, "jobs/j-1/input.pdf"))
	require.NoError(t, store.Delete(ctx, "jobs/j-1/input.pdf"), "deleting a missing blob is not an error")

	_, err := store.Get(ctx, "jobs/j-1/input.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsAbsoluteKeys(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	err := store.Put(context.Background(), "/etc/passwd", []byte("nope"))
	assert.Error(t, err)
}

func TestNewStorePrefersLocalDir(t *testing.T) {
	config := common.DefaultConfig()
	config.Storage.LocalDir = t.TempDir()
	config.Storage.S3Bucket = "ignored-bucket"

	store, err := NewStore(config, arbor.NewLogger())
	require.NoError(t, err)
	_, ok := store.(*LocalStore)
	assert.True(t, ok)
}
