package errors

import stdErrors "errors"

// Sentinel errors for the conditions callers are expected to check with
// errors.Is rather than by inspecting a structured error type. These cover
// the "input errors" and "concurrency errors" categories of the error
// taxonomy; durability and corruption failures carry richer context and are
// constructed through StorageError/IndexError instead.
var (
	// ErrEmptyKey is returned when Put/Get/Delete is called with a
	// zero-length key.
	ErrEmptyKey = stdErrors.New("bitkv: key must not be empty")

	// ErrKeyNotFound is returned when Get finds no live entry in the keydir.
	// Deleting an absent key is not an error.
	ErrKeyNotFound = stdErrors.New("bitkv: key not found")

	// ErrInvalidOption is returned when Open is called with a combination of
	// options that cannot be satisfied.
	ErrInvalidOption = stdErrors.New("bitkv: invalid option")

	// ErrExceedMaxBatchNum is returned when a batch accumulates more entries
	// than its configured limit.
	ErrExceedMaxBatchNum = stdErrors.New("bitkv: batch exceeds max entry count")

	// ErrEmptyBatch is returned when Commit is called on a batch with no
	// buffered entries.
	ErrEmptyBatch = stdErrors.New("bitkv: batch has no pending entries")

	// ErrDatabaseInUse is returned when Open cannot acquire the directory
	// lock because another instance already holds it.
	ErrDatabaseInUse = stdErrors.New("bitkv: database directory is already in use")

	// ErrMergeInProgress is returned when Merge is called while another
	// merge is already running.
	ErrMergeInProgress = stdErrors.New("bitkv: merge already in progress")

	// ErrDatabaseDirNotExist is returned when the configured data directory
	// cannot be found or created.
	ErrDatabaseDirNotExist = stdErrors.New("bitkv: database directory does not exist")

	// ErrMergeMarkerMissing is returned when a staging directory's
	// merge-finished marker exists but cannot be read. A staging directory
	// with no marker at all is discarded without an error.
	ErrMergeMarkerMissing = stdErrors.New("bitkv: merge marker file missing")

	// ErrEngineClosed is returned when an operation is attempted on a
	// closed Engine.
	ErrEngineClosed = stdErrors.New("bitkv: engine is closed")

	// ErrBatchCommitted is returned when Put/Delete/Commit is called again
	// on a batch that has already committed.
	ErrBatchCommitted = stdErrors.New("bitkv: batch already committed")

	// ErrUnsupported is returned by IOHandle implementations that cannot
	// perform the requested operation, e.g. Write on a read-only mmap view.
	ErrUnsupported = stdErrors.New("bitkv: operation not supported by this handle")

	// ErrIterSkip is returned by Iterator.Next when the key at the current
	// snapshot position has been deleted since the snapshot was taken. It is
	// not a failure: callers should treat it as "advance and try again".
	ErrIterSkip = stdErrors.New("bitkv: key deleted since iterator snapshot")

	// ErrIterClosed is returned by Iterator.Next after Close has been
	// called.
	ErrIterClosed = stdErrors.New("bitkv: iterator is closed")
)
