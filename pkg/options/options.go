// Package options provides data structures and functions for configuring
// the bitkv database. It defines the parameters that control bitkv's
// storage behavior, durability, index implementation, and maintenance
// operations.
package options

import (
	"strings"

	"github.com/KevinZh0A/bitkv/pkg/errors"
)

// IndexType selects which keydir implementation an Engine uses.
type IndexType string

const (
	// IndexTypeBTree is the default in-memory ordered-map keydir.
	IndexTypeBTree IndexType = "BTree"

	// IndexTypeSkipList is the skiplist-backed ordered keydir. Its reads are
	// not lock-free: they share the read side of an RWMutex.
	IndexTypeSkipList IndexType = "SkipList"

	// IndexTypeBPlusTree is the persistent on-disk keydir, for working sets
	// too large to hold entirely in RAM.
	IndexTypeBPlusTree IndexType = "BPlusTree"
)

// Options defines the configuration parameters for a bitkv Engine. It
// provides control over storage layout, durability, index selection, and
// merge behavior.
type Options struct {
	// DataDir is the directory root bitkv owns. Required.
	//
	// Default: "/var/lib/bitkv"
	DataDir string `json:"dataDir"`

	// DataFileSize is the threshold, in bytes, at which the active segment
	// rotates to a new file.
	//
	// Default: 256MB; Minimum: 1MB; Maximum: 4GB.
	DataFileSize int64 `json:"dataFileSize"`

	// SyncWrites, if true, fsyncs the active segment after every write.
	//
	// Default: false.
	SyncWrites bool `json:"syncWrites"`

	// BytesPerSync, if greater than zero, fsyncs the active segment whenever
	// this many un-synced bytes have accumulated, independent of
	// SyncWrites.
	//
	// Default: 0 (disabled).
	BytesPerSync int64 `json:"bytesPerSync"`

	// IndexType selects the keydir implementation.
	//
	// Default: IndexTypeBTree.
	IndexType IndexType `json:"indexType"`

	// MmapAtStartup, if true, uses mmap'd reads during replay instead of
	// buffered file reads.
	//
	// Default: false.
	MmapAtStartup bool `json:"mmapAtStartup"`

	// DataFileMergeRatio is the minimum reclaimable/total disk-byte ratio
	// at which an explicit Merge call proceeds; below it Merge is a no-op.
	// No merge is started automatically.
	//
	// Default: 0.5.
	DataFileMergeRatio float64 `json:"dataFileMergeRatio"`

	// MaxBatchNum caps the number of entries a single Batch may accumulate.
	//
	// Default: 10000.
	MaxBatchNum int `json:"maxBatchNum"`
}

// OptionFunc is a function type that modifies bitkv's configuration.
type OptionFunc func(*Options)

// WithDefaultOptions resets every field to bitkv's baseline configuration.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		*o = NewDefaultOptions()
	}
}

// WithDataDir sets the primary data directory.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// WithDataFileSize sets the active-segment rotation threshold.
func WithDataFileSize(size int64) OptionFunc {
	return func(o *Options) {
		if size >= MinDataFileSize && size <= MaxDataFileSize {
			o.DataFileSize = size
		}
	}
}

// WithSyncWrites toggles fsync-after-every-write durability.
func WithSyncWrites(sync bool) OptionFunc {
	return func(o *Options) {
		o.SyncWrites = sync
	}
}

// WithBytesPerSync sets the accumulated-bytes fsync threshold.
func WithBytesPerSync(n int64) OptionFunc {
	return func(o *Options) {
		if n >= 0 {
			o.BytesPerSync = n
		}
	}
}

// WithIndexType selects the keydir implementation.
func WithIndexType(t IndexType) OptionFunc {
	return func(o *Options) {
		o.IndexType = t
	}
}

// WithMmapAtStartup toggles mmap'd replay reads.
func WithMmapAtStartup(enabled bool) OptionFunc {
	return func(o *Options) {
		o.MmapAtStartup = enabled
	}
}

// WithDataFileMergeRatio sets the ratio below which Merge is a no-op.
func WithDataFileMergeRatio(ratio float64) OptionFunc {
	return func(o *Options) {
		if ratio > 0 && ratio <= 1 {
			o.DataFileMergeRatio = ratio
		}
	}
}

// WithMaxBatchNum sets the per-batch entry cap.
func WithMaxBatchNum(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 && n <= MaxBatchNumLimit {
			o.MaxBatchNum = n
		}
	}
}

// Validate checks that the configuration is internally consistent,
// returning ErrInvalidOption-wrapped detail on the first violation found.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.DataDir) == "" {
		return errors.NewRequiredFieldError("DataDir")
	}

	if o.DataFileSize < MinDataFileSize || o.DataFileSize > MaxDataFileSize {
		return errors.NewFieldRangeError("DataFileSize", o.DataFileSize, MinDataFileSize, MaxDataFileSize)
	}

	switch o.IndexType {
	case IndexTypeBTree, IndexTypeSkipList, IndexTypeBPlusTree:
	default:
		return errors.NewValidationError(
			errors.ErrInvalidOption, errors.ErrorCodeInvalidInput, "unknown index type",
		).WithField("IndexType").WithRule("enum").WithProvided(o.IndexType)
	}

	if o.DataFileMergeRatio <= 0 || o.DataFileMergeRatio > 1 {
		return errors.NewFieldRangeError("DataFileMergeRatio", o.DataFileMergeRatio, 0, 1)
	}

	if o.MaxBatchNum <= 0 || o.MaxBatchNum > MaxBatchNumLimit {
		return errors.NewFieldRangeError("MaxBatchNum", o.MaxBatchNum, 1, MaxBatchNumLimit)
	}

	if o.BytesPerSync < 0 {
		return errors.NewFieldRangeError("BytesPerSync", o.BytesPerSync, 0, nil)
	}

	return nil
}
