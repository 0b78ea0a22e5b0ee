package blobstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_PutDownloadDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "ownerA/doc1.txt", strings.NewReader("A cat sat."), "text/plain"))

	data, err := store.Download(ctx, "ownerA/doc1.txt")
	require.NoError(t, err)
	assert.Equal(t, "A cat sat.", string(data))

	require.NoError(t, store.Put(ctx, "ownerA/doc1.txt", strings.NewReader("replaced"), "text/plain"))
	data, err = store.Download(ctx, "ownerA/doc1.txt")
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))

	require.NoError(t, store.Delete(ctx, "ownerA/doc1.txt"))
	require.NoError(t, store.Delete(ctx, "ownerA/doc1.txt"))

	_, err = store.Download(ctx, "ownerA/doc1.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_RejectsEscapingLocators(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, locator := range []string{"../secret", "/etc/passwd", "a/../../b"} {
		_, err := store.Download(context.Background(), locator)
		assert.Error(t, err, locator)
		assert.NotErrorIs(t, err, ErrNotFound, locator)
	}
}

func TestNew_Drivers(t *testing.T) {
	s, err := New(Config{Driver: "local", Directory: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	s, err = New(Config{Driver: "gcs", Bucket: "docs"})
	require.NoError(t, err)
	assert.IsType(t, &GCS{}, s)

	_, err = New(Config{Driver: "gcs"})
	assert.Error(t, err)

	_, err = New(Config{Driver: "s3"})
	assert.Error(t, err)
}
