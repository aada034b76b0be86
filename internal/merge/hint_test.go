package merge

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinZh0A/bitkv/internal/record"
)

func TestHintFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000000001.hint")

	want := []HintEntry{
		{Key: []byte("alpha"), Sequence: 1 << 20, Pointer: record.LogPointer{FileID: 1, Offset: 0, Size: 21}},
		{Key: []byte("beta"), Sequence: 2 << 20, Pointer: record.LogPointer{FileID: 1, Offset: 21, Size: 20}},
		{Key: []byte{0x00, 0xff}, Sequence: 3<<20 | 7, Pointer: record.LogPointer{FileID: 2, Offset: 1 << 33, Size: 4096}},
	}

	w, err := CreateHintFile(path)
	require.NoError(t, err)
	for _, e := range want {
		require.NoError(t, w.Append(e))
	}
	require.NoError(t, w.Close())

	got, err := LoadHint(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadHintEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000000002.hint")

	w, err := CreateHintFile(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := LoadHint(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMarkerRoundTrip(t *testing.T) {
	dir := t.TempDir()

	_, present, err := ReadMarker(dir)
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, WriteMarker(dir, 42))

	id, present, err := ReadMarker(dir)
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, uint32(42), id)

	require.NoError(t, RemoveMarker(dir))
	_, present, err = ReadMarker(dir)
	require.NoError(t, err)
	assert.False(t, present)

	// Removing an already-absent marker is not an error.
	assert.NoError(t, RemoveMarker(dir))
}
