package syncmem

import (
	"sync"
	"testing"

	"github.com/born-ml/boost/internal/device"
	"github.com/born-ml/boost/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingRaw is an external allocation tracker.
type trackingRaw struct {
	mu    sync.Mutex
	live  map[*byte]int
	frees int
}

func newTrackingRaw() *trackingRaw {
	return &trackingRaw{live: make(map[*byte]int)}
}

func (r *trackingRaw) Malloc(_, bytes int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := memory.AlignedBytes(bytes)
	r.live[&buf[0]] = bytes
	return buf, nil
}

func (r *trackingRaw) Free(_ int, buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, &buf[0])
	r.frees++
	return nil
}

func newTestAllocators(t *testing.T, nDevices int) (*Allocators, *device.Platform) {
	t.Helper()
	p, err := device.NewPlatform(nDevices, 1<<20)
	require.NoError(t, err)
	a, err := NewAllocators(p, memory.Config{BinGrowth: 2, MinBin: 3, MaxBin: 20, MaxCachedBytes: 1 << 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, p
}

func TestSyncMem_LazyAllocation(t *testing.T) {
	a, _ := newTestAllocators(t, 1)
	m := New(a, 0, 16)

	assert.Equal(t, Uninitialized, m.Head())
	assert.Equal(t, 16, m.Size())
	assert.Zero(t, a.Host.Stats().LiveBlocks)
	assert.Zero(t, a.Device.Stats().LiveBlocks)

	host, err := m.HostData()
	require.NoError(t, err)
	assert.Len(t, host, 16)
	assert.Equal(t, make([]byte, 16), host)
	assert.Equal(t, Host, m.Head())
	assert.Equal(t, 1, a.Host.Stats().LiveBlocks)
	assert.Zero(t, a.Device.Stats().LiveBlocks)
}

func TestSyncMem_BlocksUseDefaultStream(t *testing.T) {
	a, _ := newTestAllocators(t, 2)
	m := New(a, 1, 24)
	require.NoError(t, m.ToHost())
	require.NoError(t, m.ToDevice(1))

	require.NotNil(t, m.hostBlock)
	require.NotNil(t, m.devBlock)
	assert.Equal(t, memory.DefaultStream, m.hostBlock.Stream)
	assert.Equal(t, memory.DefaultStream, m.devBlock.Stream)
	assert.Equal(t, 1, m.devBlock.Device)
	require.NoError(t, m.Release())
}

func TestSyncMem_UninitializedToDevice(t *testing.T) {
	a, p := newTestAllocators(t, 1)
	m := New(a, 0, 8)

	dev, err := m.DeviceData(0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), dev)
	assert.Equal(t, Device, m.Head())
	assert.Zero(t, p.Transfers().HostToDevice)
}

func TestSyncMem_Coherence(t *testing.T) {
	a, p := newTestAllocators(t, 1)
	m := New(a, 0, 4)

	host, err := m.HostData()
	require.NoError(t, err)
	copy(host, []byte{1, 2, 3, 4})

	dev, err := m.DeviceData(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, dev)
	assert.Equal(t, Device, m.Head())

	dev[0] = 9
	require.NoError(t, m.ToHost())
	require.NoError(t, m.ToDevice(0))
	require.NoError(t, m.ToHost())

	host, err = m.HostData()
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 2, 3, 4}, host)
	assert.Equal(t, Host, m.Head())

	tr := p.Transfers()
	assert.Equal(t, uint64(8), tr.HostToDevice)
	assert.Equal(t, uint64(8), tr.DeviceToHost)
}

func TestSyncMem_SameHeadDoesNotCopy(t *testing.T) {
	a, p := newTestAllocators(t, 1)
	m := New(a, 0, 4)

	require.NoError(t, m.ToDevice(0))
	require.NoError(t, m.ToDevice(0))
	_, err := m.DeviceData(0)
	require.NoError(t, err)
	assert.Equal(t, device.TransferStats{}, p.Transfers())
}

func TestSyncMem_ZeroSize(t *testing.T) {
	a, _ := newTestAllocators(t, 1)
	m := New(a, 0, 0)

	host, err := m.HostData()
	require.NoError(t, err)
	assert.Nil(t, host)
	dev, err := m.DeviceData(0)
	require.NoError(t, err)
	assert.Nil(t, dev)
	assert.Equal(t, Uninitialized, m.Head())
	assert.Zero(t, a.Host.Stats().Misses)
}

func TestSyncMem_DeviceBinding(t *testing.T) {
	a, _ := newTestAllocators(t, 2)
	m := New(a, 1, 8)
	assert.Equal(t, 1, m.OwnerID())

	_, err := m.DeviceData(0)
	assert.ErrorIs(t, err, ErrDeviceBinding)
	assert.ErrorIs(t, m.ToDevice(0), ErrDeviceBinding)
	assert.ErrorIs(t, m.SetDeviceData(0, make([]byte, 8)), ErrDeviceBinding)
	assert.Equal(t, Uninitialized, m.Head())

	_, err = m.DeviceData(1)
	assert.NoError(t, err)
}

func TestSyncMem_SetHostDataNotOwned(t *testing.T) {
	raw := newTrackingRaw()
	external, err := raw.Malloc(0, 8)
	require.NoError(t, err)
	copy(external, []byte{5, 6, 7, 8, 9, 10, 11, 12})

	a, _ := newTestAllocators(t, 1)
	m := New(a, 0, 8)
	_, err = m.HostData()
	require.NoError(t, err)
	require.Equal(t, 1, a.Host.Stats().LiveBlocks)

	require.NoError(t, m.SetHostData(external))
	assert.Equal(t, Host, m.Head())
	assert.Zero(t, a.Host.Stats().LiveBlocks, "owned host block returned on replace")

	dev, err := m.DeviceData(0)
	require.NoError(t, err)
	assert.Equal(t, external, dev)

	require.NoError(t, m.Release())
	assert.Zero(t, raw.frees)
	assert.Len(t, raw.live, 1)
	assert.Zero(t, a.Device.Stats().LiveBlocks)
}

func TestSyncMem_SetDeviceDataNotOwned(t *testing.T) {
	a, _ := newTestAllocators(t, 1)
	m := New(a, 0, 4)
	external := []byte{1, 1, 2, 3}

	require.NoError(t, m.SetDeviceData(0, external))
	assert.Equal(t, Device, m.Head())

	host, err := m.HostData()
	require.NoError(t, err)
	assert.Equal(t, external, host)

	host[3] = 5
	require.NoError(t, m.ToDevice(0))
	assert.Equal(t, byte(5), external[3], "write lands in the borrowed device buffer")

	require.NoError(t, m.Release())
	assert.Zero(t, a.Device.Stats().LiveBlocks)
	assert.Zero(t, a.Device.Stats().CachedBlocks)
}

func TestSyncMem_SetDataTooSmall(t *testing.T) {
	a, _ := newTestAllocators(t, 1)
	m := New(a, 0, 8)
	assert.Error(t, m.SetHostData(make([]byte, 4)))
	assert.Error(t, m.SetDeviceData(0, make([]byte, 4)))
}

func TestSyncMem_ReleaseReturnsBlocksToCache(t *testing.T) {
	a, _ := newTestAllocators(t, 1)
	m := New(a, 0, 32)
	require.NoError(t, m.ToHost())
	require.NoError(t, m.ToDevice(0))

	require.NoError(t, m.Release())
	assert.Equal(t, Uninitialized, m.Head())
	assert.Equal(t, 1, a.Host.Stats().CachedBlocks)
	assert.Equal(t, 1, a.Device.Stats().CachedBlocks)

	// A same-sized buffer reuses the cached blocks and starts zeroed.
	m2 := New(a, 0, 32)
	host, err := m2.HostData()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 32), host)
	assert.Equal(t, uint64(1), a.Host.Stats().Hits)
}

func TestAllocators_ClearCache(t *testing.T) {
	a, p := newTestAllocators(t, 1)
	m := New(a, 0, 64)
	require.NoError(t, m.ToDevice(0))
	require.NoError(t, m.Release())
	require.Equal(t, 1, a.Device.Stats().CachedBlocks)

	require.NoError(t, a.ClearCache())
	assert.Zero(t, a.Host.Stats().CachedBlocks)
	assert.Zero(t, a.Device.Stats().CachedBlocks)
	dev, err := p.Device(0)
	require.NoError(t, err)
	assert.Zero(t, dev.Used())
}

func TestHead_String(t *testing.T) {
	assert.Equal(t, "HOST", Host.String())
	assert.Equal(t, "DEVICE", Device.String())
	assert.Equal(t, "UNINITIALIZED", Uninitialized.String())
}
