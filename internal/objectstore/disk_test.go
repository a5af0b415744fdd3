package objectstore

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskStore_PutGetDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	etag, err := store.Put(ctx, "ab/cd/abcd1234.pdf", bytes.NewReader([]byte("hello world")), PutOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, etag)

	r, attrs, err := store.Get(ctx, "ab/cd/abcd1234.pdf")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
	require.Equal(t, int64(len("hello world")), attrs.Size)

	exists, err := store.Exists(ctx, "ab/cd/abcd1234.pdf")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, store.Delete(ctx, "ab/cd/abcd1234.pdf"))
	require.NoError(t, store.Delete(ctx, "ab/cd/abcd1234.pdf"))

	_, _, err = store.Get(ctx, "ab/cd/abcd1234.pdf")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDiskStore_RejectsPathTraversal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(ctx, "../escape.txt", bytes.NewReader(nil), PutOptions{})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestDiskStore_List(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()

	store, err := NewDiskStore(root)
	require.NoError(t, err)

	_, err = store.Put(ctx, "ab/cd/one.pdf", bytes.NewReader([]byte("1")), PutOptions{})
	require.NoError(t, err)
	_, err = store.Put(ctx, "ab/ef/two.pdf", bytes.NewReader([]byte("22")), PutOptions{})
	require.NoError(t, err)

	result, err := store.List(ctx, ListOptions{Prefix: "ab"})
	require.NoError(t, err)
	require.Len(t, result.Objects, 2)

	require.FileExists(t, filepath.Join(root, "ab", "cd", "one.pdf"))
}
