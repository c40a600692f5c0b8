package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrOffsetOverlap      = errors.New("tree offsets overlap")
	ErrOutOfBounds        = errors.New("tree extends beyond data section")
	ErrNegativeOffset     = errors.New("negative offset or size")
	ErrTooManyTrees       = errors.New("too many trees in file")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrInvalidTree        = errors.New("invalid tree")
)

// ValidationError provides detailed information about validation failures.
type ValidationError struct {
	Type    string // Type of error (e.g., "offset_overlap", "out_of_bounds")
	Tree    string // Primary tree involved
	Tree2   string // Secondary tree (for overlap errors)
	Details string // Additional details
	Err     error  // Sentinel matched by errors.Is
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tree2 != "" {
		return fmt.Sprintf("%s: trees %s and %s: %s", e.Type, e.Tree, e.Tree2, e.Details)
	}
	if e.Tree != "" {
		return fmt.Sprintf("%s: tree %s: %s", e.Type, e.Tree, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Unwrap returns the sentinel error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
