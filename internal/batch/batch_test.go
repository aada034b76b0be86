package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/KevinZh0A/bitkv/pkg/errors"
)

func TestBufferLastWriteWins(t *testing.T) {
	buf := NewBuffer(10)

	require.NoError(t, buf.Put([]byte("k"), []byte("v1")))
	require.NoError(t, buf.Put([]byte("k"), []byte("v2")))
	require.NoError(t, buf.Delete([]byte("gone")))

	assert.Equal(t, 2, buf.Len())

	entries := buf.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("k"), entries[0].Key)
	assert.Equal(t, []byte("v2"), entries[0].Value)
	assert.False(t, entries[0].Tombstone)
	assert.Equal(t, []byte("gone"), entries[1].Key)
	assert.True(t, entries[1].Tombstone)
}

func TestBufferPutThenDeleteSameKey(t *testing.T) {
	buf := NewBuffer(10)

	require.NoError(t, buf.Put([]byte("k"), []byte("v")))
	require.NoError(t, buf.Delete([]byte("k")))

	entries := buf.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Tombstone)
}

func TestBufferCap(t *testing.T) {
	buf := NewBuffer(2)

	require.NoError(t, buf.Put([]byte("a"), nil))
	require.NoError(t, buf.Put([]byte("b"), nil))

	// Rewriting a buffered key doesn't consume a slot.
	require.NoError(t, buf.Put([]byte("a"), []byte("again")))

	err := buf.Put([]byte("c"), nil)
	assert.ErrorIs(t, err, errs.ErrExceedMaxBatchNum)
	assert.Equal(t, 2, buf.Len())
}

func TestBufferPreservesFirstTouchOrder(t *testing.T) {
	buf := NewBuffer(10)
	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, buf.Put([]byte(k), nil))
	}
	require.NoError(t, buf.Put([]byte("c"), []byte("rewritten")))

	entries := buf.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []byte("c"), entries[0].Key)
	assert.Equal(t, []byte("rewritten"), entries[0].Value)
	assert.Equal(t, []byte("a"), entries[1].Key)
	assert.Equal(t, []byte("b"), entries[2].Key)
}
