// Package syncmem provides buffers mirrored between host and device memory.
//
// A SyncMem tracks which space holds the authoritative copy (its head) and
// allocates and copies lazily: asking for a space materializes it, brings it
// up to date and makes it the head, since the caller may write through the
// returned slice.
package syncmem

import (
	"errors"
	"fmt"

	"github.com/born-ml/boost/internal/memory"
)

// ErrDeviceBinding reports device-space access from a device other than the
// one the buffer is bound to.
var ErrDeviceBinding = errors.New("device binding violation")

// Head names the memory space holding the most recent data.
type Head int

// Head states.
const (
	Uninitialized Head = iota
	Host
	Device
)

// String returns a human-readable head name.
func (h Head) String() string {
	switch h {
	case Uninitialized:
		return "UNINITIALIZED"
	case Host:
		return "HOST"
	case Device:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// SyncMem is one logical buffer that may live in host and/or device memory.
// It is not safe for concurrent use.
type SyncMem struct {
	alloc    *Allocators
	size     int
	head     Head
	deviceID int

	host      []byte
	dev       []byte
	hostBlock *memory.Block
	devBlock  *memory.Block
	ownHost   bool
	ownDevice bool
}

// New creates a buffer of size bytes bound to deviceID. Nothing is allocated
// until a space is first accessed.
func New(alloc *Allocators, deviceID, size int) *SyncMem {
	return &SyncMem{
		alloc:    alloc,
		size:     size,
		head:     Uninitialized,
		deviceID: deviceID,
	}
}

// Size returns the buffer size in bytes.
func (m *SyncMem) Size() int {
	return m.size
}

// Head returns the space holding the authoritative copy.
func (m *SyncMem) Head() Head {
	return m.head
}

// OwnerID returns the device the buffer is bound to.
func (m *SyncMem) OwnerID() int {
	return m.deviceID
}

// HostData returns the host copy, synchronized from the device if needed.
// The slice is valid until the next accessor call or Release.
func (m *SyncMem) HostData() ([]byte, error) {
	if err := m.ToHost(); err != nil {
		return nil, err
	}
	return m.host, nil
}

// DeviceData returns the device copy, synchronized from the host if needed.
// id must be the device the buffer is bound to.
func (m *SyncMem) DeviceData(id int) ([]byte, error) {
	if err := m.ToDevice(id); err != nil {
		return nil, err
	}
	return m.dev, nil
}

// ToHost makes the host copy current and the head.
func (m *SyncMem) ToHost() error {
	if m.size == 0 {
		return nil
	}
	switch m.head {
	case Uninitialized:
		if err := m.mallocHost(); err != nil {
			return err
		}
		clear(m.host)
	case Device:
		if m.host == nil {
			if err := m.mallocHost(); err != nil {
				return err
			}
		}
		if err := m.alloc.Transfer.DeviceToHost(m.deviceID, m.host, m.dev); err != nil {
			return err
		}
	case Host:
	}
	m.head = Host
	return nil
}

// ToDevice makes the device copy current and the head.
func (m *SyncMem) ToDevice(id int) error {
	if err := m.checkBinding(id); err != nil {
		return err
	}
	if m.size == 0 {
		return nil
	}
	switch m.head {
	case Uninitialized:
		if err := m.mallocDevice(); err != nil {
			return err
		}
		clear(m.dev)
	case Host:
		if m.dev == nil {
			if err := m.mallocDevice(); err != nil {
				return err
			}
		}
		if err := m.alloc.Transfer.HostToDevice(m.deviceID, m.dev, m.host); err != nil {
			return err
		}
	case Device:
	}
	m.head = Device
	return nil
}

// SetHostData adopts buf as the host copy without copying. The buffer stays
// owned by the caller and is never freed here.
func (m *SyncMem) SetHostData(buf []byte) error {
	if len(buf) < m.size {
		return fmt.Errorf("host buffer of %d bytes is smaller than %d", len(buf), m.size)
	}
	if m.size == 0 {
		return nil
	}
	if err := m.freeHost(); err != nil {
		return err
	}
	m.host = buf[:m.size]
	m.ownHost = false
	m.head = Host
	return nil
}

// SetDeviceData adopts buf as the device copy of device id without copying.
// The buffer stays owned by the caller.
func (m *SyncMem) SetDeviceData(id int, buf []byte) error {
	if err := m.checkBinding(id); err != nil {
		return err
	}
	if len(buf) < m.size {
		return fmt.Errorf("device buffer of %d bytes is smaller than %d", len(buf), m.size)
	}
	if m.size == 0 {
		return nil
	}
	if err := m.freeDevice(); err != nil {
		return err
	}
	m.dev = buf[:m.size]
	m.ownDevice = false
	m.head = Device
	return nil
}

// Release returns owned memory to the allocators. Borrowed buffers are
// dropped, not freed.
func (m *SyncMem) Release() error {
	err := errors.Join(m.freeHost(), m.freeDevice())
	m.head = Uninitialized
	return err
}

func (m *SyncMem) checkBinding(id int) error {
	if id != m.deviceID {
		return fmt.Errorf("%w: buffer bound to device %d, accessed from device %d", ErrDeviceBinding, m.deviceID, id)
	}
	return nil
}

func (m *SyncMem) mallocHost() error {
	b, err := m.alloc.Host.Allocate(m.deviceID, memory.DefaultStream, m.size)
	if err != nil {
		return err
	}
	m.hostBlock = b
	m.host = b.Data()[:m.size]
	m.ownHost = true
	return nil
}

func (m *SyncMem) mallocDevice() error {
	b, err := m.alloc.Device.Allocate(m.deviceID, memory.DefaultStream, m.size)
	if err != nil {
		return err
	}
	m.devBlock = b
	m.dev = b.Data()[:m.size]
	m.ownDevice = true
	return nil
}

func (m *SyncMem) freeHost() error {
	var err error
	if m.ownHost {
		err = m.alloc.Host.Free(m.hostBlock)
	}
	m.host, m.hostBlock, m.ownHost = nil, nil, false
	return err
}

func (m *SyncMem) freeDevice() error {
	var err error
	if m.ownDevice {
		err = m.alloc.Device.Free(m.devBlock)
	}
	m.dev, m.devBlock, m.ownDevice = nil, nil, false
	return err
}
