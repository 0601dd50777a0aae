package dirhash

import "errors"

// --- Exported Error Variables ---
// Terminal Error events and HashTree wrap one of these; check with errors.Is.
// Filesystem causes (fs.ErrNotExist, fs.ErrPermission) stay in the chain.

var (
	// ErrEnumeration indicates the root is missing or not a directory, or a
	// subdirectory could not be read. Always fatal; no Started event is emitted.
	ErrEnumeration = errors.New("failed to enumerate files")

	// ErrRead indicates a file could not be opened or read while hashing. The file
	// may have vanished after enumeration or be unreadable.
	ErrRead = errors.New("failed to read file")

	// ErrTooLarge indicates a file exceeded Options.MaxFileSize.
	ErrTooLarge = errors.New("file exceeds size limit")

	// ErrCancelled is returned by HashTree when the run ended without a terminal
	// event because the context was cancelled.
	ErrCancelled = errors.New("hashing cancelled")

	// ErrTimeout wraps context.DeadlineExceeded when the run's deadline expired.
	ErrTimeout = errors.New("hashing timed out")

	// ErrConfigValidation indicates the Options failed validation.
	ErrConfigValidation = errors.New("invalid configuration options provided")

	// ErrUnsupportedAlgorithm indicates an unknown Algorithm was requested.
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
)
