// Package device provides the accelerator platform used by the boosting engine.
//
// Each device is an independently addressed memory space with a fixed capacity.
// Device memory is only reachable through explicit host<->device copies and
// device work is dispatched with one goroutine per device.
package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/born-ml/boost/internal/memory"
	"golang.org/x/sync/errgroup"
)

// Device is one accelerator with a fixed memory capacity.
type Device struct {
	ID       int
	Capacity int64

	mu   sync.Mutex
	used int64
}

// Used returns the bytes currently reserved on the device.
func (d *Device) Used() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used
}

// TransferStats counts bytes moved between host and devices.
type TransferStats struct {
	HostToDevice uint64
	DeviceToHost uint64
}

// Platform owns the set of devices of one process.
// It is the raw allocator of device space and performs host<->device copies.
type Platform struct {
	devices []*Device

	h2d atomic.Uint64
	d2h atomic.Uint64
}

// NewPlatform creates n devices with capacity bytes each.
func NewPlatform(n int, capacity int64) (*Platform, error) {
	if n <= 0 {
		return nil, fmt.Errorf("device count must be positive, got %d", n)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("device capacity must be positive, got %d", capacity)
	}
	p := &Platform{devices: make([]*Device, n)}
	for i := range p.devices {
		p.devices[i] = &Device{ID: i, Capacity: capacity}
	}
	return p, nil
}

// NumDevices returns the number of devices.
func (p *Platform) NumDevices() int {
	return len(p.devices)
}

// Device returns device id.
func (p *Platform) Device(id int) (*Device, error) {
	if id < 0 || id >= len(p.devices) {
		return nil, fmt.Errorf("device %d out of range [0, %d)", id, len(p.devices))
	}
	return p.devices[id], nil
}

// Malloc reserves bytes on device id.
func (p *Platform) Malloc(id, bytes int) ([]byte, error) {
	d, err := p.Device(id)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.used+int64(bytes) > d.Capacity {
		return nil, fmt.Errorf("%w: device %d needs %d bytes, %d of %d in use",
			memory.ErrResourceExhausted, id, bytes, d.used, d.Capacity)
	}
	d.used += int64(bytes)
	return memory.AlignedBytes(bytes), nil
}

// Free releases a buffer reserved by Malloc.
func (p *Platform) Free(id int, buf []byte) error {
	d, err := p.Device(id)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.used -= int64(len(buf))
	return nil
}

// HostToDevice copies src from host memory into device memory dst.
func (p *Platform) HostToDevice(id int, dst, src []byte) error {
	if _, err := p.Device(id); err != nil {
		return err
	}
	if len(dst) < len(src) {
		return fmt.Errorf("host to device: src (%d) > dst (%d)", len(src), len(dst))
	}
	n := copy(dst, src)
	p.h2d.Add(uint64(n))
	return nil
}

// DeviceToHost copies src from device memory into host memory dst.
func (p *Platform) DeviceToHost(id int, dst, src []byte) error {
	if _, err := p.Device(id); err != nil {
		return err
	}
	if len(dst) < len(src) {
		return fmt.Errorf("device to host: dst (%d) < src (%d)", len(dst), len(src))
	}
	n := copy(dst, src)
	p.d2h.Add(uint64(n))
	return nil
}

// Transfers returns the bytes copied so far in each direction.
func (p *Platform) Transfers() TransferStats {
	return TransferStats{
		HostToDevice: p.h2d.Load(),
		DeviceToHost: p.d2h.Load(),
	}
}

// ForEach runs fn once per device in parallel and waits for all of them.
// The first error cancels ctx for the remaining devices and is returned.
func ForEach(ctx context.Context, n int, fn func(ctx context.Context, id int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for id := range n {
		g.Go(func() error {
			if err := fn(ctx, id); err != nil {
				return fmt.Errorf("device %d: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
