package syncmem

import (
	"errors"
	"fmt"
	"unsafe"
)

// Array is a typed, fixed-length view over a SyncMem of n*sizeof(T) bytes.
// T must not contain pointers.
type Array[T any] struct {
	mem *SyncMem
	n   int
}

// NewArray creates an array of n elements bound to deviceID.
func NewArray[T any](alloc *Allocators, deviceID, n int) *Array[T] {
	var zero T
	return &Array[T]{
		mem: New(alloc, deviceID, n*int(unsafe.Sizeof(zero))),
		n:   n,
	}
}

// Len returns the element count.
func (a *Array[T]) Len() int {
	return a.n
}

// Mem returns the underlying buffer.
func (a *Array[T]) Mem() *SyncMem {
	return a.mem
}

// Head returns the space holding the authoritative copy.
func (a *Array[T]) Head() Head {
	return a.mem.Head()
}

// OwnerID returns the device the array is bound to.
func (a *Array[T]) OwnerID() int {
	return a.mem.OwnerID()
}

// HostData returns the host elements.
func (a *Array[T]) HostData() ([]T, error) {
	b, err := a.mem.HostData()
	if err != nil {
		return nil, err
	}
	return view[T](b, a.n), nil
}

// DeviceData returns the device elements; id must match the binding.
func (a *Array[T]) DeviceData(id int) ([]T, error) {
	b, err := a.mem.DeviceData(id)
	if err != nil {
		return nil, err
	}
	return view[T](b, a.n), nil
}

// ToHost synchronizes the host copy.
func (a *Array[T]) ToHost() error {
	return a.mem.ToHost()
}

// ToDevice synchronizes the device copy.
func (a *Array[T]) ToDevice(id int) error {
	return a.mem.ToDevice(id)
}

// SetHostData adopts src as the host copy. src is borrowed.
func (a *Array[T]) SetHostData(src []T) error {
	if len(src) < a.n {
		return fmt.Errorf("host slice of %d elements is shorter than %d", len(src), a.n)
	}
	return a.mem.SetHostData(bytesOf(src[:a.n]))
}

// SetDeviceData adopts src as the device copy of device id. src is borrowed.
func (a *Array[T]) SetDeviceData(id int, src []T) error {
	if len(src) < a.n {
		return fmt.Errorf("device slice of %d elements is shorter than %d", len(src), a.n)
	}
	return a.mem.SetDeviceData(id, bytesOf(src[:a.n]))
}

// CopyFrom copies host elements src into the device copy of device id.
func (a *Array[T]) CopyFrom(id int, src []T) error {
	if len(src) > a.n {
		return fmt.Errorf("copy of %d elements into array of %d", len(src), a.n)
	}
	dst, err := a.mem.DeviceData(id)
	if err != nil {
		return err
	}
	return a.mem.alloc.Transfer.HostToDevice(id, dst, bytesOf(src))
}

// Release frees the underlying buffer.
func (a *Array[T]) Release() error {
	return a.mem.Release()
}

// Multi holds one array per device, element i bound to device i.
type Multi[T any] []*Array[T]

// NewMulti creates nDevices arrays of n elements each.
func NewMulti[T any](alloc *Allocators, nDevices, n int) Multi[T] {
	m := make(Multi[T], nDevices)
	for i := range m {
		m[i] = NewArray[T](alloc, i, n)
	}
	return m
}

// Release frees every per-device array.
func (m Multi[T]) Release() error {
	var errs []error
	for _, a := range m {
		errs = append(errs, a.Release())
	}
	return errors.Join(errs...)
}

func view[T any](b []byte, n int) []T {
	if n == 0 || len(b) == 0 {
		return nil
	}
	//nolint:gosec // b is 8-byte aligned and holds exactly n*sizeof(T) bytes
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

func bytesOf[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	//nolint:gosec // reinterpreting pointer-free elements as bytes
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}
