package engine_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/KevinZh0A/bitkv/pkg/errors"
	"github.com/KevinZh0A/bitkv/pkg/seginfo"
)

func TestMergeCompactsAndPreservesSemantics(t *testing.T) {
	opts := testOptions(t)
	opts.DataFileMergeRatio = 0.2

	value := make([]byte, 128)
	e := openEngine(t, opts)

	// Write every key twice so roughly half the log is superseded.
	for round := 0; round < 2; round++ {
		for i := 0; i < 1000; i++ {
			copy(value, fmt.Sprintf("round-%d-key-%04d", round, i))
			require.NoError(t, e.Put([]byte(fmt.Sprintf("key-%04d", i)), value))
		}
	}

	before := e.Stats()
	require.Greater(t, before.ReclaimableBytes, uint64(0))

	require.NoError(t, e.Merge())

	after := e.Stats()
	assert.LessOrEqual(t, after.DiskSize, before.DiskSize*6/10,
		"merge should reclaim the superseded half of the log")
	assert.Equal(t, uint64(0), after.ReclaimableBytes)
	assert.Equal(t, 1000, after.KeyNum)

	expect := func() {
		for i := 0; i < 1000; i++ {
			v, err := e.Get([]byte(fmt.Sprintf("key-%04d", i)))
			require.NoError(t, err, "key-%04d", i)
			want := make([]byte, 128)
			copy(want, fmt.Sprintf("round-1-key-%04d", i))
			assert.Equal(t, want, v)
		}
	}
	expect()

	// Hint files accompany the compacted segments.
	hints, err := filepath.Glob(filepath.Join(opts.DataDir, "*"+seginfo.HintSuffix))
	require.NoError(t, err)
	assert.NotEmpty(t, hints)

	// Survives a restart: replay loads the compacted segments via hints.
	require.NoError(t, e.Close())
	e = openEngine(t, opts)
	defer e.Close()
	expect()
	assert.Equal(t, 1000, e.Stats().KeyNum)
}

func TestMergeDropsDeletedKeys(t *testing.T) {
	opts := testOptions(t)
	opts.DataFileMergeRatio = 0.1

	e := openEngine(t, opts)
	for i := 0; i < 100; i++ {
		require.NoError(t, e.Put([]byte(fmt.Sprintf("key-%03d", i)), []byte("payload-payload-payload")))
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, e.Delete([]byte(fmt.Sprintf("key-%03d", i))))
	}

	require.NoError(t, e.Merge())
	assert.Equal(t, 50, e.Stats().KeyNum)

	require.NoError(t, e.Close())
	e = openEngine(t, opts)
	defer e.Close()

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		if i < 50 {
			_, err := e.Get(key)
			assert.ErrorIs(t, err, errs.ErrKeyNotFound, "key-%03d should stay deleted", i)
		} else {
			v, err := e.Get(key)
			require.NoError(t, err)
			assert.Equal(t, []byte("payload-payload-payload"), v)
		}
	}
}

func TestMergeSkippedBelowRatio(t *testing.T) {
	opts := testOptions(t)
	opts.DataFileMergeRatio = 0.9

	e := openEngine(t, opts)
	defer e.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Put([]byte(fmt.Sprintf("k%d", i)), []byte("value")))
	}

	before := e.Stats()
	require.NoError(t, e.Merge())
	after := e.Stats()

	// Nothing moved: same segments, same footprint.
	assert.Equal(t, before.DataFileNum, after.DataFileNum)
	assert.Equal(t, before.DiskSize, after.DiskSize)
}

func TestMergeAfterWritesKeepsNewData(t *testing.T) {
	opts := testOptions(t)
	opts.DataFileMergeRatio = 0.1

	e := openEngine(t, opts)
	defer e.Close()

	require.NoError(t, e.Put([]byte("a"), []byte("v1")))
	require.NoError(t, e.Put([]byte("a"), []byte("v2")))
	require.NoError(t, e.Put([]byte("b"), []byte("v1")))

	require.NoError(t, e.Merge())

	// Post-merge writes land in the fresh active segment and win over the
	// compacted history.
	require.NoError(t, e.Put([]byte("a"), []byte("v3")))

	v, err := e.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v3"), v)

	v, err = e.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)
}

func TestStagingDirWithoutMarkerDiscardedOnOpen(t *testing.T) {
	opts := testOptions(t)

	stagingDir := filepath.Clean(opts.DataDir) + "-merge"
	require.NoError(t, os.MkdirAll(stagingDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(stagingDir, seginfo.DataFileName(1)), []byte("junk"), 0644))

	e := openEngine(t, opts)
	defer e.Close()

	_, err := os.Stat(stagingDir)
	assert.True(t, os.IsNotExist(err), "incomplete staging directory must be discarded")

	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	v, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestRepeatedMerges(t *testing.T) {
	opts := testOptions(t)
	opts.DataFileMergeRatio = 0.1

	e := openEngine(t, opts)
	defer e.Close()

	for round := 0; round < 3; round++ {
		for i := 0; i < 50; i++ {
			require.NoError(t, e.Put([]byte(fmt.Sprintf("k%02d", i)), []byte(fmt.Sprintf("round-%d", round))))
		}
		require.NoError(t, e.Merge())
	}

	for i := 0; i < 50; i++ {
		v, err := e.Get([]byte(fmt.Sprintf("k%02d", i)))
		require.NoError(t, err)
		assert.Equal(t, []byte("round-2"), v)
	}
}
