package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("uploads/req-1/doc.pdf", []byte("%PDF-1.4 payload"))
	require.NoError(t, err)
	require.Equal(t, "uploads/req-1/doc.pdf", name)
	require.True(t, store.Exists(name))

	file, err := store.Open(name)
	require.NoError(t, err)
	defer file.Close()

	data := make([]byte, 16)
	n, _ := file.Read(data)
	require.Equal(t, "%PDF-1.4 payload", string(data[:n]))
}

func TestLocalStorageRejectsAbsolutePaths(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("db password"), 0o600))

	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(outside)
	require.ErrorIs(t, err, ErrPathOutsideStorage)
	require.False(t, store.Exists(outside))

	_, err = store.Save(outside, []byte("overwrite"))
	require.ErrorIs(t, err, ErrPathOutsideStorage)

	contents, err := os.ReadFile(outside)
	require.NoError(t, err)
	require.Equal(t, "db password", string(contents))
}

func TestLocalStorageRejectsParentTraversal(t *testing.T) {
	parent := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("db password"), 0o600))

	base := filepath.Join(parent, "documents")
	store, err := NewLocalStorage(base)
	require.NoError(t, err)

	for _, name := range []string{
		"../secret.txt",
		"..",
		"uploads/../../secret.txt",
		"",
	} {
		_, err := store.Open(name)
		require.ErrorIs(t, err, ErrPathOutsideStorage, "open %q", name)
		require.False(t, store.Exists(name), "exists %q", name)
		require.Empty(t, store.Path(name), "path %q", name)
	}

	require.ErrorIs(t, store.Delete("../secret.txt"), ErrPathOutsideStorage)
	_, err = os.Stat(filepath.Join(parent, "secret.txt"))
	require.NoError(t, err)
}

func TestLocalStorageResolvesInteriorDotDot(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	// Cleans to uploads/doc.pdf, still under the base dir.
	name, err := store.Save("uploads/req-1/../doc.pdf", []byte("ok"))
	require.NoError(t, err)
	require.Equal(t, "uploads/req-1/../doc.pdf", name)
	require.True(t, store.Exists("uploads/doc.pdf"))
}
