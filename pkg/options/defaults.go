package options

const (
	// DefaultDataDir is the directory bitkv uses when the caller doesn't
	// supply one explicitly.
	DefaultDataDir = "/var/lib/bitkv"

	// MinDataFileSize is the smallest permitted active-segment rotation
	// threshold (1MB) — small enough for tests, large enough to keep the
	// file count sane in production.
	MinDataFileSize int64 = 1 * 1024 * 1024

	// MaxDataFileSize is the largest permitted active-segment rotation
	// threshold (4GB), matching the file_id/offset width budget.
	MaxDataFileSize int64 = 4 * 1024 * 1024 * 1024

	// DefaultDataFileSize is the default active-segment rotation threshold
	// (256MB).
	DefaultDataFileSize int64 = 256 * 1024 * 1024

	// DefaultDataFileMergeRatio is the fraction of reclaimable-to-total disk
	// bytes at or above which an explicit Merge call proceeds.
	DefaultDataFileMergeRatio float64 = 0.5

	// DefaultMaxBatchNum caps the number of entries a single Batch may
	// accumulate before Commit.
	DefaultMaxBatchNum = 10_000

	// MaxBatchNumLimit is the hard ceiling on MaxBatchNum, kept within the
	// width of the per-group component of the engine's sequence numbering:
	// a group of n entries uses positions 0..n (the last for its commit
	// marker), and all of them fit in 20 bits.
	MaxBatchNumLimit = 1<<20 - 2

	// DefaultBytesPerSync is the default un-synced-byte threshold; 0 means
	// "only sync_writes / explicit Sync() trigger an fsync".
	DefaultBytesPerSync int64 = 0
)

// defaultOptions holds the baseline configuration used by NewDefaultOptions
// and by WithDefaultOptions.
var defaultOptions = Options{
	DataDir:            DefaultDataDir,
	DataFileSize:       DefaultDataFileSize,
	SyncWrites:         false,
	BytesPerSync:       DefaultBytesPerSync,
	IndexType:          IndexTypeBTree,
	MmapAtStartup:      false,
	DataFileMergeRatio: DefaultDataFileMergeRatio,
	MaxBatchNum:        DefaultMaxBatchNum,
}

// NewDefaultOptions returns a copy of bitkv's baseline configuration.
func NewDefaultOptions() Options {
	return defaultOptions
}
