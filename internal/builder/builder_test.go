package builder

import (
	"context"
	"math"
	"testing"

	"github.com/born-ml/boost/internal/dataset"
	"github.com/born-ml/boost/internal/device"
	"github.com/born-ml/boost/internal/memory"
	"github.com/born-ml/boost/internal/param"
	"github.com/born-ml/boost/internal/stats"
	"github.com/born-ml/boost/internal/syncmem"
	"github.com/born-ml/boost/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlloc(t *testing.T, n int) *syncmem.Allocators {
	t.Helper()
	platform, err := device.NewPlatform(n, 1<<20)
	require.NoError(t, err)
	alloc, err := syncmem.NewAllocators(platform, memory.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, alloc.Close()) })
	return alloc
}

func testData(t *testing.T) *dataset.DataSet {
	t.Helper()
	nan := float32(math.NaN())
	ds, err := dataset.FromDense([][]float32{
		{1, 5, 9},
		{2, nan, 7},
		{3, 4, nan},
		{0, 6, 8},
	}, []float32{2, 1, 0, -3})
	require.NoError(t, err)
	return ds
}

func testParam(nDevice, numClass int) param.GBMParam {
	p := param.Default()
	p.Depth = 2
	p.Lambda = 0
	p.Gamma = 0
	p.MinChildWeight = 0
	p.NDevice = nDevice
	p.NumClass = numClass
	return p
}

func gradients(t *testing.T, alloc *syncmem.Allocators, nDevice int, gh []stats.GHPair) syncmem.Multi[stats.GHPair] {
	t.Helper()
	m := syncmem.NewMulti[stats.GHPair](alloc, nDevice, len(gh))
	for id, a := range m {
		require.NoError(t, a.CopyFrom(id, gh))
	}
	t.Cleanup(func() { assert.NoError(t, m.Release()) })
	return m
}

var regressionGH = []stats.GHPair{{G: -2, H: 1}, {G: -1, H: 1}, {G: 0, H: 1}, {G: 3, H: 1}}

func build(t *testing.T, method string, nDevice int) ([]tree.Tree, TreeBuilder) {
	t.Helper()
	alloc := newAlloc(t, nDevice)
	b, err := Create(method, alloc)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, b.Release()) })
	require.NoError(t, b.Init(testData(t), testParam(nDevice, 1)))

	trees, err := b.BuildApproximate(context.Background(), gradients(t, alloc, nDevice, regressionGH))
	require.NoError(t, err)
	return trees, b
}

func TestCreate(t *testing.T) {
	alloc := newAlloc(t, 1)
	for _, m := range []string{"exact", "hist", "auto"} {
		b, err := Create(m, alloc)
		require.NoError(t, err, m)
		assert.NotNil(t, b)
	}
	_, err := Create("approx", alloc)
	require.ErrorIs(t, err, param.ErrConfiguration)
}

func TestInit_TooManyDevices(t *testing.T) {
	b, err := Create("exact", newAlloc(t, 1))
	require.NoError(t, err)
	err = b.Init(testData(t), testParam(2, 1))
	require.ErrorIs(t, err, param.ErrConfiguration)
}

func TestBuildApproximate(t *testing.T) {
	trees, b := build(t, "exact", 1)
	require.Len(t, trees, 1)

	root := trees[0].Nodes[0]
	assert.Equal(t, tree.Split, root.State)
	assert.Equal(t, int32(0), root.SplitFeature)
	assert.Equal(t, float32(1), root.SplitValue)
	assert.Equal(t, 3, trees[0].NumLeaves())

	yp, err := b.YPredict()[0].HostData()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, 0.5, 0.5, -3}, yp, 1e-6)
}

func TestBuildApproximate_DeviceCountInvariant(t *testing.T) {
	for _, method := range []string{"exact", "hist"} {
		t.Run(method, func(t *testing.T) {
			want, _ := build(t, method, 1)
			for _, n := range []int{2, 3} {
				got, b := build(t, method, n)
				assert.Equal(t, want, got, "%d devices", n)

				var first []float32
				for id, a := range b.YPredict() {
					yp, err := a.HostData()
					require.NoError(t, err)
					if id == 0 {
						first = append([]float32(nil), yp...)
						continue
					}
					assert.Equal(t, first, yp, "device %d", id)
				}
			}
		})
	}
}

func TestBuildApproximate_MultiClass(t *testing.T) {
	alloc := newAlloc(t, 2)
	b, err := Create("exact", alloc)
	require.NoError(t, err)
	defer func() { assert.NoError(t, b.Release()) }()
	require.NoError(t, b.Init(testData(t), testParam(2, 2)))

	// Class 1 mirrors class 0.
	gh := append([]stats.GHPair(nil), regressionGH...)
	for _, p := range regressionGH {
		gh = append(gh, stats.GHPair{G: -p.G, H: p.H})
	}
	trees, err := b.BuildApproximate(context.Background(), gradients(t, alloc, 2, gh))
	require.NoError(t, err)
	require.Len(t, trees, 2)

	yp, err := b.YPredict()[1].HostData()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, 0.5, 0.5, -3, -2, -0.5, -0.5, 3}, yp, 1e-6)
}

func TestBuildApproximate_Cancelled(t *testing.T) {
	alloc := newAlloc(t, 1)
	b, err := Create("exact", alloc)
	require.NoError(t, err)
	defer func() { assert.NoError(t, b.Release()) }()
	require.NoError(t, b.Init(testData(t), testParam(1, 1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.BuildApproximate(ctx, gradients(t, alloc, 1, regressionGH))
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildApproximate_GradientDevices(t *testing.T) {
	alloc := newAlloc(t, 2)
	b, err := Create("exact", alloc)
	require.NoError(t, err)
	defer func() { assert.NoError(t, b.Release()) }()
	require.NoError(t, b.Init(testData(t), testParam(2, 1)))

	_, err = b.BuildApproximate(context.Background(), gradients(t, alloc, 1, regressionGH))
	require.Error(t, err)
}

func TestBuildApproximate_ParallelTrees(t *testing.T) {
	alloc := newAlloc(t, 2)
	b, err := Create("exact", alloc)
	require.NoError(t, err)
	defer func() { assert.NoError(t, b.Release()) }()
	p := testParam(2, 1)
	p.NParallelTrees = 2
	require.NoError(t, b.Init(testData(t), p))

	trees, err := b.BuildApproximate(context.Background(), gradients(t, alloc, 2, regressionGH))
	require.NoError(t, err)
	require.Len(t, trees, 2)
	assert.Equal(t, trees[0], trees[1], "same gradients without bagging")
	assert.Equal(t, float32(-1.5), trees[0].Nodes[1].BaseWeight)

	// Two half-weight trees add up to the single-tree predictions.
	yp, err := b.YPredict()[1].HostData()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, 0.5, 0.5, -3}, yp, 1e-6)
}

func TestBuildApproximate_BaggingDeviceCountInvariant(t *testing.T) {
	run := func(nDevice int) ([]tree.Tree, []float32) {
		alloc := newAlloc(t, nDevice)
		b, err := Create("hist", alloc)
		require.NoError(t, err)
		t.Cleanup(func() { assert.NoError(t, b.Release()) })
		p := testParam(nDevice, 1)
		p.Bagging = true
		p.NParallelTrees = 3
		p.Seed = 11
		require.NoError(t, b.Init(testData(t), p))
		trees, err := b.BuildApproximate(context.Background(), gradients(t, alloc, nDevice, regressionGH))
		require.NoError(t, err)
		yp, err := b.YPredict()[0].HostData()
		require.NoError(t, err)
		return trees, append([]float32(nil), yp...)
	}

	want, wantYP := run(1)
	require.Len(t, want, 3)
	for _, tr := range want {
		// Bootstrap weights keep the total hessian at n.
		assert.Equal(t, float32(4), tr.Nodes[0].SumGH.H)
	}
	for _, n := range []int{2, 3} {
		got, gotYP := run(n)
		assert.Equal(t, want, got, "%d devices", n)
		assert.Equal(t, wantYP, gotYP, "%d devices", n)
	}
}
