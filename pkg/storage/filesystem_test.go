package storage

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.SaveStream("2026/10/proof.png", bytes.NewReader([]byte("png-bytes")))
	require.NoError(t, err)
	require.Equal(t, "2026/10/proof.png", name)

	file, err := store.Open(name)
	require.NoError(t, err)
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	require.Equal(t, "png-bytes", string(data))

	require.NoError(t, store.Delete(name))
	require.NoError(t, store.Delete(name))
	_, err = store.Open(name)
	require.Error(t, err)
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("../outside.png", bytes.NewReader([]byte("x")))
	require.Error(t, err)
	_, err = store.SaveStream("/etc/passwd", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}
