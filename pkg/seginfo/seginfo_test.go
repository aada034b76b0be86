package seginfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileNames(t *testing.T) {
	assert.Equal(t, "000000001.data", DataFileName(1))
	assert.Equal(t, "000000042.hint", HintFileName(42))
	assert.Equal(t, "4294967295.data", DataFileName(1<<32-1))
}

func TestParseFileID(t *testing.T) {
	id, err := ParseFileID("000000007.data")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), id)

	id, err = ParseFileID("/var/lib/bitkv/000000123.hint")
	require.NoError(t, err)
	assert.Equal(t, uint32(123), id)

	_, err = ParseFileID("not-a-segment.data")
	assert.Error(t, err)
}

func TestNamesSortWithIDs(t *testing.T) {
	// Zero padding keeps lexicographic and numeric order aligned.
	assert.Less(t, DataFileName(9), DataFileName(10))
	assert.Less(t, DataFileName(99), DataFileName(100))
}

func TestListDataFileIDs(t *testing.T) {
	dir := t.TempDir()

	for _, id := range []uint32{10, 2, 7} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, DataFileName(id)), nil, 0644))
	}
	// Hint files and unrelated files are not data segments.
	require.NoError(t, os.WriteFile(filepath.Join(dir, HintFileName(2)), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flock"), nil, 0644))

	ids, err := ListDataFileIDs(dir)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 7, 10}, ids)

	hintIDs, err := ListHintFileIDs(dir)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2}, hintIDs)
}

func TestListDataFileIDsEmptyDir(t *testing.T) {
	ids, err := ListDataFileIDs(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
