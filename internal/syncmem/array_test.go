package syncmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	G, H float32
}

func TestArray_TypedView(t *testing.T) {
	a, _ := newTestAllocators(t, 1)
	arr := NewArray[pair](a, 0, 3)
	assert.Equal(t, 3, arr.Len())
	assert.Equal(t, 24, arr.Mem().Size())

	host, err := arr.HostData()
	require.NoError(t, err)
	require.Len(t, host, 3)
	host[1] = pair{G: 1.5, H: 2}

	dev, err := arr.DeviceData(0)
	require.NoError(t, err)
	assert.Equal(t, []pair{{}, {G: 1.5, H: 2}, {}}, dev)
}

func TestArray_CopyFrom(t *testing.T) {
	a, p := newTestAllocators(t, 2)
	arr := NewArray[float32](a, 1, 4)

	require.NoError(t, arr.CopyFrom(1, []float32{1, 2, 3}))
	assert.Equal(t, Device, arr.Head())
	assert.Equal(t, uint64(12), p.Transfers().HostToDevice)

	host, err := arr.HostData()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 0}, host)

	assert.Error(t, arr.CopyFrom(1, make([]float32, 5)))
	assert.ErrorIs(t, arr.CopyFrom(0, []float32{1}), ErrDeviceBinding)
}

func TestArray_SetHostData(t *testing.T) {
	a, _ := newTestAllocators(t, 1)
	arr := NewArray[int32](a, 0, 2)
	src := []int32{7, 8}

	require.NoError(t, arr.SetHostData(src))
	dev, err := arr.DeviceData(0)
	require.NoError(t, err)
	assert.Equal(t, src, dev)

	assert.Error(t, arr.SetHostData([]int32{1}))
	require.NoError(t, arr.Release())
	assert.Equal(t, []int32{7, 8}, src)
}

func TestArray_Empty(t *testing.T) {
	a, _ := newTestAllocators(t, 1)
	arr := NewArray[float32](a, 0, 0)
	host, err := arr.HostData()
	require.NoError(t, err)
	assert.Empty(t, host)
}

func TestMulti(t *testing.T) {
	a, _ := newTestAllocators(t, 3)
	m := NewMulti[float32](a, 3, 5)
	require.Len(t, m, 3)
	for i, arr := range m {
		assert.Equal(t, i, arr.OwnerID())
		require.NoError(t, arr.CopyFrom(i, []float32{float32(i)}))
	}
	require.NoError(t, m.Release())
	assert.Zero(t, a.Device.Stats().LiveBlocks)
}
