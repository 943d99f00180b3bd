package container

import "errors"

// Error taxonomy (SPEC_FULL.md §7). Components wrap these with
// fmt.Errorf("...: %w", err) so callers can still errors.Is/errors.As
// against the underlying kind.
var (
	// ErrIoFailure is a filesystem read/write error.
	ErrIoFailure = errors.New("io failure")

	// ErrFormatUnsupported means the container or codec was not recognized.
	ErrFormatUnsupported = errors.New("format unsupported")

	// ErrContainerCorrupt means the magic was fine but the structure is
	// invalid (truncation, chunk-size overflow).
	ErrContainerCorrupt = errors.New("container corrupt")

	// ErrRangeError is a bounds-checked read/write past the end of buffer.
	ErrRangeError = errors.New("range error")

	// ErrTooSmall means the file is shorter than the minimum container
	// header size.
	ErrTooSmall = errors.New("file too small")
)
