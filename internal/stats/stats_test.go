package stats

import (
	"testing"

	"github.com/born-ml/boost/internal/device"
	"github.com/born-ml/boost/internal/memory"
	"github.com/born-ml/boost/internal/syncmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGHPair_Arithmetic(t *testing.T) {
	a := GHPair{G: 1, H: 2}
	b := GHPair{G: -3, H: 1}
	assert.Equal(t, GHPair{G: -2, H: 3}, a.Add(b))
	assert.Equal(t, GHPair{G: 4, H: 1}, a.Sub(b))
	assert.Equal(t, GHPair{G: -2, H: 3}, Sum([]GHPair{a, b}))
	assert.InDelta(t, -1.0/3, a.Weight(1), 1e-6)
	assert.InDelta(t, 1.0/3, a.Score(1), 1e-6)
	assert.Zero(t, GHPair{G: 1}.Weight(0))
	assert.Equal(t, "1/2", a.String())
}

func TestInsStat_Reset(t *testing.T) {
	p, err := device.NewPlatform(1, 1<<20)
	require.NoError(t, err)
	alloc, err := syncmem.NewAllocators(p, memory.DefaultConfig())
	require.NoError(t, err)

	grads := syncmem.NewArray[GHPair](alloc, 0, 4)
	require.NoError(t, grads.CopyFrom(0, []GHPair{{G: 1}, {G: 2}, {G: 3}, {G: 4}}))
	yp := syncmem.NewArray[float32](alloc, 0, 4)

	s := NewInsStat(alloc, 0, 2, yp)
	nid, err := s.NID.HostData()
	require.NoError(t, err)
	nid[1] = 6

	require.NoError(t, s.Reset(0, 1, grads))
	gh, err := s.GH.HostData()
	require.NoError(t, err)
	assert.Equal(t, []GHPair{{G: 3}, {G: 4}}, gh)
	nid, err = s.NID.HostData()
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0}, nid)

	require.NoError(t, s.Release())
}
