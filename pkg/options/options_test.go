package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinZh0A/bitkv/pkg/errors"
)

func TestDefaults(t *testing.T) {
	opts := NewDefaultOptions()

	assert.Equal(t, DefaultDataDir, opts.DataDir)
	assert.Equal(t, DefaultDataFileSize, opts.DataFileSize)
	assert.False(t, opts.SyncWrites)
	assert.Equal(t, DefaultBytesPerSync, opts.BytesPerSync)
	assert.Equal(t, IndexTypeBTree, opts.IndexType)
	assert.False(t, opts.MmapAtStartup)
	assert.Equal(t, DefaultDataFileMergeRatio, opts.DataFileMergeRatio)
	assert.Equal(t, DefaultMaxBatchNum, opts.MaxBatchNum)

	require.NoError(t, opts.Validate())
}

func TestOptionFuncs(t *testing.T) {
	opts := NewDefaultOptions()

	for _, apply := range []OptionFunc{
		WithDataDir("/tmp/bitkv-test"),
		WithDataFileSize(2 * MinDataFileSize),
		WithSyncWrites(true),
		WithBytesPerSync(4096),
		WithIndexType(IndexTypeSkipList),
		WithMmapAtStartup(true),
		WithDataFileMergeRatio(0.75),
		WithMaxBatchNum(128),
	} {
		apply(&opts)
	}

	assert.Equal(t, "/tmp/bitkv-test", opts.DataDir)
	assert.Equal(t, 2*MinDataFileSize, opts.DataFileSize)
	assert.True(t, opts.SyncWrites)
	assert.Equal(t, int64(4096), opts.BytesPerSync)
	assert.Equal(t, IndexTypeSkipList, opts.IndexType)
	assert.True(t, opts.MmapAtStartup)
	assert.Equal(t, 0.75, opts.DataFileMergeRatio)
	assert.Equal(t, 128, opts.MaxBatchNum)
	require.NoError(t, opts.Validate())
}

func TestOptionFuncsIgnoreOutOfRangeValues(t *testing.T) {
	opts := NewDefaultOptions()

	WithDataDir("   ")(&opts)
	WithDataFileSize(100)(&opts) // below MinDataFileSize
	WithDataFileMergeRatio(1.5)(&opts)
	WithMaxBatchNum(0)(&opts)
	WithBytesPerSync(-1)(&opts)

	assert.Equal(t, DefaultDataDir, opts.DataDir)
	assert.Equal(t, DefaultDataFileSize, opts.DataFileSize)
	assert.Equal(t, DefaultDataFileMergeRatio, opts.DataFileMergeRatio)
	assert.Equal(t, DefaultMaxBatchNum, opts.MaxBatchNum)
	assert.Equal(t, DefaultBytesPerSync, opts.BytesPerSync)
}

func TestValidateRejectsInvalidCombinations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"empty dir", func(o *Options) { o.DataDir = " " }},
		{"file size too small", func(o *Options) { o.DataFileSize = 1 }},
		{"file size too large", func(o *Options) { o.DataFileSize = MaxDataFileSize + 1 }},
		{"unknown index type", func(o *Options) { o.IndexType = "LSM" }},
		{"merge ratio zero", func(o *Options) { o.DataFileMergeRatio = 0 }},
		{"merge ratio above one", func(o *Options) { o.DataFileMergeRatio = 1.1 }},
		{"max batch num zero", func(o *Options) { o.MaxBatchNum = 0 }},
		{"max batch num above limit", func(o *Options) { o.MaxBatchNum = MaxBatchNumLimit + 1 }},
		{"negative bytes per sync", func(o *Options) { o.BytesPerSync = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewDefaultOptions()
			tt.mutate(&opts)

			err := opts.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
			assert.ErrorIs(t, err, errors.ErrInvalidOption)
		})
	}
}
