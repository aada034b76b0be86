package engine_test

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinZh0A/bitkv/internal/record"
	errs "github.com/KevinZh0A/bitkv/pkg/errors"
	"github.com/KevinZh0A/bitkv/pkg/seginfo"
)

func TestBatchCommitAtomicVisibility(t *testing.T) {
	e := openEngine(t, testOptions(t))
	defer e.Close()

	b := e.NewBatch()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Put([]byte(fmt.Sprintf("batch-%d", i)), []byte(fmt.Sprintf("v%d", i))))
	}
	assert.Equal(t, 10, b.Len())

	// Nothing is visible before commit.
	for i := 0; i < 10; i++ {
		_, err := e.Get([]byte(fmt.Sprintf("batch-%d", i)))
		assert.ErrorIs(t, err, errs.ErrKeyNotFound)
	}

	require.NoError(t, b.Commit())

	for i := 0; i < 10; i++ {
		v, err := e.Get([]byte(fmt.Sprintf("batch-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("v%d", i)), v)
	}
}

func TestBatchCrashBeforeCommitMarker(t *testing.T) {
	opts := testOptions(t)

	e := openEngine(t, opts)
	require.NoError(t, e.Put([]byte("base"), []byte("kept")))

	b := e.NewBatch()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Put([]byte(fmt.Sprintf("batch-%d", i)), []byte("lost")))
	}
	require.NoError(t, b.Commit())
	require.NoError(t, e.Close())

	// Simulate a crash between appending the batch entries and writing the
	// commit marker: chop the final BatchCommit record off the log.
	truncateLastCommitMarker(t, filepath.Join(opts.DataDir, seginfo.DataFileName(1)))

	e = openEngine(t, opts)
	defer e.Close()

	v, err := e.Get([]byte("base"))
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), v)

	for i := 0; i < 10; i++ {
		_, err := e.Get([]byte(fmt.Sprintf("batch-%d", i)))
		assert.ErrorIs(t, err, errs.ErrKeyNotFound, "batch-%d must not survive", i)
	}
	assert.Equal(t, 1, e.Stats().KeyNum)
}

// truncateLastCommitMarker removes the final BatchCommit record from the
// segment at path, leaving its group's entries stranded without a marker.
func truncateLastCommitMarker(t *testing.T, path string) {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	r := bytes.NewReader(data)
	var offset int64
	lastCommit := int64(-1)
	for {
		rec, n, err := record.Decode(r, filepath.Base(path), int(offset))
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if rec.Type == record.BatchCommit {
			lastCommit = offset
		}
		offset += int64(n)
	}
	require.GreaterOrEqual(t, lastCommit, int64(0), "no commit marker found in %s", path)
	require.NoError(t, os.Truncate(path, lastCommit))
}

func TestBatchLastWriteWinsThroughEngine(t *testing.T) {
	e := openEngine(t, testOptions(t))
	defer e.Close()

	b := e.NewBatch()
	require.NoError(t, b.Put([]byte("k"), []byte("v1")))
	require.NoError(t, b.Put([]byte("k"), []byte("v2")))
	require.NoError(t, b.Commit())

	v, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)
	assert.Equal(t, 1, e.Stats().KeyNum)
}

func TestBatchDelete(t *testing.T) {
	e := openEngine(t, testOptions(t))
	defer e.Close()

	require.NoError(t, e.Put([]byte("doomed"), []byte("v")))

	b := e.NewBatch()
	require.NoError(t, b.Delete([]byte("doomed")))
	require.NoError(t, b.Put([]byte("fresh"), []byte("v")))
	require.NoError(t, b.Commit())

	_, err := e.Get([]byte("doomed"))
	assert.ErrorIs(t, err, errs.ErrKeyNotFound)

	v, err := e.Get([]byte("fresh"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestBatchMixedAcrossReopen(t *testing.T) {
	opts := testOptions(t)

	e := openEngine(t, opts)
	require.NoError(t, e.Put([]byte("old"), []byte("v")))

	b := e.NewBatch()
	require.NoError(t, b.Put([]byte("new"), []byte("v")))
	require.NoError(t, b.Delete([]byte("old")))
	require.NoError(t, b.Commit())
	require.NoError(t, e.Close())

	e = openEngine(t, opts)
	defer e.Close()

	_, err := e.Get([]byte("old"))
	assert.ErrorIs(t, err, errs.ErrKeyNotFound)
	v, err := e.Get([]byte("new"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestBatchEmptyCommitFails(t *testing.T) {
	e := openEngine(t, testOptions(t))
	defer e.Close()

	b := e.NewBatch()
	assert.ErrorIs(t, b.Commit(), errs.ErrEmptyBatch)
}

func TestBatchCannotBeReusedAfterCommit(t *testing.T) {
	e := openEngine(t, testOptions(t))
	defer e.Close()

	b := e.NewBatch()
	require.NoError(t, b.Put([]byte("k"), []byte("v")))
	require.NoError(t, b.Commit())

	assert.ErrorIs(t, b.Put([]byte("k2"), []byte("v")), errs.ErrBatchCommitted)
	assert.ErrorIs(t, b.Delete([]byte("k")), errs.ErrBatchCommitted)
	assert.ErrorIs(t, b.Commit(), errs.ErrBatchCommitted)
}

func TestBatchMaxEntries(t *testing.T) {
	opts := testOptions(t)
	opts.MaxBatchNum = 3

	e := openEngine(t, opts)
	defer e.Close()

	b := e.NewBatch()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v")))
	}
	assert.ErrorIs(t, b.Put([]byte("overflow"), []byte("v")), errs.ErrExceedMaxBatchNum)

	require.NoError(t, b.Commit())
	assert.Equal(t, 3, e.Stats().KeyNum)
}

func TestBatchEmptyKeyRejected(t *testing.T) {
	e := openEngine(t, testOptions(t))
	defer e.Close()

	b := e.NewBatch()
	assert.ErrorIs(t, b.Put(nil, []byte("v")), errs.ErrEmptyKey)
	assert.ErrorIs(t, b.Delete(nil), errs.ErrEmptyKey)
}
