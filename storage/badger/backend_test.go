package badger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/chronicle/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_PathIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := OpenBackend(path, false)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	assert.False(t, backend.IsClosed())
	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.WithTx(func(tx *badger.Txn) error { return nil }, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestPointIndexKeys(t *testing.T) {
	key := makePointIndexKey("revolutions", "3.12", "abc")
	id, err := pointIDFromIndexKey(key)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	corpus := makePartialPointIndexKey("revolutions", "")
	source := makePartialPointIndexKey("revolutions", "3.12")
	assert.True(t, len(source) > len(corpus))
	assert.Equal(t, corpus, source[:len(corpus)])

	// A corpus whose name extends another must not share its prefix.
	other := makePointIndexKey("revolutions2", "1.1", "abc")
	assert.NotEqual(t, corpus, other[:len(corpus)])

	_, err = pointIDFromIndexKey([]byte("point:abc"))
	assert.Error(t, err)
}
