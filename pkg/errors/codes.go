package errors

// ErrorCode represents a standardized way to categorize different types of errors.
type ErrorCode string

// Base error codes represent the fundamental categories of failures that can
// occur across any software system. These codes provide the foundation layer
// of error classification.
const (
	// ErrorCodeIO represents failures in input/output operations across any
	// system boundary. This includes file system operations like reading or
	// writing segment files, network operations when communicating with remote
	// systems, and device I/O when accessing storage hardware.
	ErrorCodeIO ErrorCode = "IO_ERROR"

	// ErrorCodeInvalidInput represents client-side errors where the provided
	// data doesn't meet the system's requirements or constraints. This maps
	// to HTTP 400-series errors and indicates problems with the request itself
	// rather than system failures.
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrorCodeInternal represents unexpected system failures that don't fit
	// into other categories. These are the equivalent of HTTP 500 errors and
	// indicate bugs, assertion failures, or other programming errors that
	// shouldn't occur during normal operation.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Storage-specific error codes extend the base error taxonomy to handle the
// unique failure modes that occur in persistent storage systems. These codes
// represent problems that are specific to the storage layer of the engine,
// particularly segment file management and data persistence.
const (
	// ErrorCodePermissionDenied indicates insufficient permissions to access a resource.
	// This is distinct from generic IO errors because it has a specific resolution path:
	// the user needs to adjust file/directory permissions or run with elevated privileges.
	ErrorCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// ErrorCodeDiskFull indicates that the storage device has run out of space.
	// This requires specific handling like cleanup operations or alerting administrators.
	ErrorCodeDiskFull ErrorCode = "DISK_FULL"

	// ErrorCodeFilesystemReadonly indicates that the filesystem is mounted read-only.
	// This requires administrative intervention to remount the filesystem with write permissions.
	ErrorCodeFilesystemReadonly ErrorCode = "FILESYSTEM_READONLY"
)

// Index-specific error codes cover inconsistencies between the keydir and
// the segments it points into.
const (
	// ErrorCodeIndexInvalidSegmentID indicates a keydir entry pointing at a
	// segment file that no longer exists, usually a sign of a missed merge
	// epilogue update.
	ErrorCodeIndexInvalidSegmentID ErrorCode = "INDEX_INVALID_SEGMENT_ID"
)

// Corruption error codes cover failures detected while decoding records from
// the log: truncated reads, checksum mismatches, and unrecognized record
// types.
const (
	// ErrorCodeInvalidCRC indicates a decoded record's checksum does not
	// match its payload.
	ErrorCodeInvalidCRC ErrorCode = "INVALID_CRC"

	// ErrorCodeUnexpectedEOF indicates a record header or payload was
	// truncated mid-read.
	ErrorCodeUnexpectedEOF ErrorCode = "UNEXPECTED_EOF"

	// ErrorCodeUnknownRecordType indicates a record's type tag does not match
	// any of Normal, Tombstone, or BatchCommit.
	ErrorCodeUnknownRecordType ErrorCode = "UNKNOWN_RECORD_TYPE"
)

// Structural error codes cover problems with the on-disk layout itself,
// independent of any single record or key.
const (
	// ErrorCodeDatabaseDirNotExist indicates the configured data directory
	// does not exist and could not be created.
	ErrorCodeDatabaseDirNotExist ErrorCode = "DATABASE_DIR_NOT_EXIST"

	// ErrorCodeMergeMarkerMissing indicates a staging directory's
	// merge-finished marker exists but could not be read.
	ErrorCodeMergeMarkerMissing ErrorCode = "MERGE_MARKER_MISSING"
)
