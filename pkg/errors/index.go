package errors

// IndexError provides specialized error handling for keydir-related
// operations. This structure extends the base error system with
// index-specific context while properly supporting method chaining through
// all base error methods.
type IndexError struct {
	// Embed the base error to inherit all standard error functionality
	// including error chaining, structured details, and error codes.
	*baseError

	// Identifies which key was being processed when the error occurred.
	// This is particularly valuable for debugging because it tells you exactly
	// which piece of data was involved in the failed operation.
	key string

	// Indicates which segment's file_id was involved in the error, if
	// applicable. This helps correlate index errors with specific segment
	// files and can guide recovery operations or merge decisions.
	fileID uint32

	// Describes what index operation was being performed when the
	// error occurred (e.g., "Get", "Put", "Delete"). This context
	// helps understand the system state and user actions that led to the error.
	operation string
}

// NewIndexError creates a new index-specific error with the provided context.
// This constructor follows the same pattern as other error types in the system,
// taking a causing error, error code, and descriptive message.
func NewIndexError(err error, code ErrorCode, msg string) *IndexError {
	return &IndexError{
		baseError: NewBaseError(err, code, msg),
	}
}

// WithDetail adds contextual information while maintaining the IndexError type.
func (ie *IndexError) WithDetail(key string, value any) *IndexError {
	ie.baseError.WithDetail(key, value)
	return ie
}

// Index-specific methods that add domain-specific context to the error.
// These methods enable comprehensive error reporting for index operations
// while maintaining the fluent interface pattern for readable error construction.

// WithKey records which key was being processed when the error occurred.
// This information proves invaluable for debugging because it enables
// reproduction of the error by attempting the same operation on the same key.
func (ie *IndexError) WithKey(key string) *IndexError {
	ie.key = key
	return ie
}

// WithFileID captures which segment was involved in the error.
// This information provides a direct link between index errors and
// the underlying storage system, facilitating cross-layer debugging.
func (ie *IndexError) WithFileID(fileID uint32) *IndexError {
	ie.fileID = fileID
	return ie
}

// WithOperation records what index operation was being performed.
// This context helps understand the system state and operation sequence
// that led to the error condition, enabling more effective debugging.
func (ie *IndexError) WithOperation(operation string) *IndexError {
	ie.operation = operation
	return ie
}

// Getter methods provide access to the IndexError-specific context.
// These methods enable error handling code to make informed decisions
// based on the specific context captured during error creation.

// Key returns the key that was being processed when the error occurred.
func (ie *IndexError) Key() string {
	return ie.key
}

// FileID returns the segment file_id associated with the error.
func (ie *IndexError) FileID() uint32 {
	return ie.fileID
}

// Operation returns the name of the operation that was being performed.
func (ie *IndexError) Operation() string {
	return ie.operation
}

// NewUnknownSegmentError reports a keydir entry whose pointer references a
// segment the engine holds no open handle for. A healthy engine never
// produces one: every pointer the keydir hands out targets either the
// active file or an open immutable segment, so this surfacing means the
// index and the segment set have diverged.
func NewUnknownSegmentError(key []byte, fileID uint32, offset uint64) *IndexError {
	return NewIndexError(nil, ErrorCodeIndexInvalidSegmentID, "keydir entry references a segment that is not open").
		WithKey(string(key)).
		WithFileID(fileID).
		WithOperation("Get").
		WithDetail("offset", offset)
}
