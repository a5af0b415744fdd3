package contentstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorageKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ab/cd/abcdef.pdf", StorageKey("abcdef", "pdf"))
	require.Equal(t, "ab/cd/abcdef.pdf", StorageKey("abcdef", ".pdf"))
	require.Equal(t, "ab/cd/abcdef", StorageKey("abcdef", ""))
}

func TestHashFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sample.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	checksum, size, err := hashFile(path)
	require.NoError(t, err)
	require.Len(t, checksum, 64)
	require.Equal(t, int64(len("hello world")), size)
}

func TestHashFile_MissingTempFile(t *testing.T) {
	t.Parallel()

	_, _, err := hashFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorIs(t, err, ErrTempFileMissing)
}
