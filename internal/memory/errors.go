package memory

import "errors"

// Common errors.
var (
	ErrResourceExhausted = errors.New("memory space exhausted")
	ErrUnknownBlock      = errors.New("block was not allocated by this allocator")
	ErrInvalidBins       = errors.New("invalid bin configuration")
)
