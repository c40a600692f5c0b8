package memory

import "unsafe"

// Space identifies one of the two independently addressed memory spaces.
type Space int

// Supported memory spaces.
const (
	Host Space = iota
	Device
)

// String returns a human-readable space name.
func (s Space) String() string {
	switch s {
	case Host:
		return "host"
	case Device:
		return "device"
	default:
		return "unknown"
	}
}

// RawAllocator is the system allocator of one memory space.
// CachingAllocator only calls it on cache misses and evictions.
type RawAllocator interface {
	// Malloc returns a buffer of exactly bytes length for the given device.
	Malloc(device, bytes int) ([]byte, error)

	// Free releases a buffer previously returned by Malloc.
	Free(device int, buf []byte) error
}

// HostRaw allocates host memory from the Go heap.
type HostRaw struct{}

// Malloc returns an 8-byte aligned zeroed buffer.
func (HostRaw) Malloc(_, bytes int) ([]byte, error) {
	return AlignedBytes(bytes), nil
}

// Free drops the reference; the Go runtime reclaims it.
func (HostRaw) Free(int, []byte) error {
	return nil
}

// AlignedBytes allocates a byte slice backed by uint64 words so that any
// pointer-free element type can be viewed over it.
func AlignedBytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	words := make([]uint64, (n+7)/8)
	//nolint:gosec // unsafe.Slice over a live []uint64, length bounded by its size
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), n)
}
