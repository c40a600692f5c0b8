package syncmem

import (
	"errors"
	"fmt"

	"github.com/born-ml/boost/internal/device"
	"github.com/born-ml/boost/internal/memory"
)

// Transfer moves bytes between host memory and one device.
type Transfer interface {
	HostToDevice(device int, dst, src []byte) error
	DeviceToHost(device int, dst, src []byte) error
}

// Allocators is the process-scoped ownership context shared by every SyncMem:
// one caching allocator per memory space and the copy engine between them.
type Allocators struct {
	Host     *memory.CachingAllocator
	Device   *memory.CachingAllocator
	Transfer Transfer

	numDevices int
}

// NewAllocators builds host and device caching allocators over platform.
func NewAllocators(platform *device.Platform, cfg memory.Config) (*Allocators, error) {
	host, err := memory.NewCachingAllocator(memory.Host, memory.HostRaw{}, cfg)
	if err != nil {
		return nil, fmt.Errorf("host allocator: %w", err)
	}
	dev, err := memory.NewCachingAllocator(memory.Device, platform, cfg)
	if err != nil {
		return nil, fmt.Errorf("device allocator: %w", err)
	}
	return &Allocators{
		Host:       host,
		Device:     dev,
		Transfer:   platform,
		numDevices: platform.NumDevices(),
	}, nil
}

// NumDevices returns the number of devices served.
func (a *Allocators) NumDevices() int {
	return a.numDevices
}

// ClearCache releases every cached block of both spaces.
func (a *Allocators) ClearCache() error {
	return errors.Join(a.Host.FreeAllCached(), a.Device.FreeAllCached())
}

// Close tears both allocators down.
func (a *Allocators) Close() error {
	return errors.Join(a.Host.Close(), a.Device.Close())
}
