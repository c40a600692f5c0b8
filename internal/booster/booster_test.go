package booster

import (
	"context"
	"math"
	"testing"

	"github.com/born-ml/boost/internal/dataset"
	"github.com/born-ml/boost/internal/device"
	"github.com/born-ml/boost/internal/memory"
	"github.com/born-ml/boost/internal/param"
	"github.com/born-ml/boost/internal/syncmem"
	"github.com/born-ml/boost/internal/tree"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlloc(t *testing.T, n int) (*syncmem.Allocators, *device.Platform) {
	t.Helper()
	platform, err := device.NewPlatform(n, 1<<20)
	require.NoError(t, err)
	alloc, err := syncmem.NewAllocators(platform, memory.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, alloc.Close()) })
	return alloc, platform
}

func testData(t *testing.T, y []float32) *dataset.DataSet {
	t.Helper()
	nan := float32(math.NaN())
	ds, err := dataset.FromDense([][]float32{
		{1, 5, 9},
		{2, nan, 7},
		{3, 4, nan},
		{0, 6, 8},
	}, y)
	require.NoError(t, err)
	return ds
}

func testParam(nDevice int) param.GBMParam {
	p := param.Default()
	p.Depth = 2
	p.Gamma = 0
	p.MinChildWeight = 0
	p.NDevice = nDevice
	p.TreeMethod = "exact"
	return p
}

func train(t *testing.T, p param.GBMParam, ds *dataset.DataSet, rounds int) ([][]tree.Tree, []float64) {
	t.Helper()
	alloc, _ := newAlloc(t, p.NDevice)
	b, err := New(ds, p, alloc)
	require.NoError(t, err)
	defer func() { assert.NoError(t, b.Release()) }()

	var model [][]tree.Tree
	var scores []float64
	for range rounds {
		score, err := b.Boost(context.Background(), &model)
		require.NoError(t, err)
		scores = append(scores, score)
	}
	return model, scores
}

func TestBoost_TwoDevices(t *testing.T) {
	ds := testData(t, []float32{2, 1, 0, -3})
	p := testParam(2)

	alloc, _ := newAlloc(t, 2)
	b, err := New(ds, p, alloc)
	require.NoError(t, err)
	defer func() { assert.NoError(t, b.Release()) }()
	assert.Equal(t, "rmse", b.MetricName())

	var model [][]tree.Tree
	first, err := b.Boost(context.Background(), &model)
	require.NoError(t, err)
	require.Len(t, model, 1)
	require.Len(t, model[0], 1)
	round1 := model[0][0].Clone()

	second, err := b.Boost(context.Background(), &model)
	require.NoError(t, err)
	require.Len(t, model, 2)
	assert.LessOrEqual(t, second, first)
	assert.Less(t, first, math.Sqrt(14.0/4), "first round improves on zero predictions")
	if diff := cmp.Diff(round1, model[0][0]); diff != "" {
		t.Errorf("round 1 tree changed (-before +after):\n%s", diff)
	}

	// Same model as a single device.
	single, _ := train(t, testParam(1), ds, 2)
	if diff := cmp.Diff(single, model); diff != "" {
		t.Errorf("device count changed the model (-1 device +2 devices):\n%s", diff)
	}

	yp, err := b.YPredict()
	require.NoError(t, err)
	var pred []float32
	for i := range ds.NInstances() {
		var sum float32
		for _, set := range model {
			sum += set[0].Predict(ds.Lookup(i))
		}
		pred = append(pred, sum)
	}
	assert.InDeltaSlice(t, pred, yp, 1e-5)
}

func TestBoost_MetricNonIncreasing(t *testing.T) {
	_, scores := train(t, testParam(2), testData(t, []float32{2, 1, 0, -3}), 5)
	for i := 1; i < len(scores); i++ {
		assert.LessOrEqual(t, scores[i], scores[i-1], "round %d", i+1)
	}
}

func TestBoost_Logistic(t *testing.T) {
	p := testParam(2)
	p.Objective = "binary:logistic"
	model, scores := train(t, p, testData(t, []float32{1, 0, 0, 1}), 1)
	require.Len(t, model, 1)
	assert.Zero(t, scores[0])
}

func TestBoost_Softprob(t *testing.T) {
	p := testParam(2)
	p.Objective = "multi:softprob"
	p.NumClass = 2
	model, scores := train(t, p, testData(t, []float32{1, 0, 0, 1}), 1)
	require.Len(t, model, 1)
	require.Len(t, model[0], 2)
	assert.Zero(t, scores[0])
}

func TestBoost_Hist(t *testing.T) {
	p := testParam(2)
	p.TreeMethod = "hist"
	ds := testData(t, []float32{2, 1, 0, -3})
	hist, histScores := train(t, p, ds, 2)

	// Every distinct value is a cut, so both methods see the same partitions.
	exact, exactScores := train(t, testParam(2), ds, 2)
	assert.InDeltaSlice(t, exactScores, histScores, 1e-9)
	for i := range exact {
		for j, n := range exact[i][0].Nodes {
			assert.Equal(t, n.SplitFeature, hist[i][0].Nodes[j].SplitFeature)
			assert.Equal(t, n.State, hist[i][0].Nodes[j].State)
		}
	}
}

func TestNew_ConfigurationFirst(t *testing.T) {
	tests := []struct {
		name  string
		apply func(p *param.GBMParam)
	}{
		{"objective", func(p *param.GBMParam) { p.Objective = "rank:pairwise" }},
		{"tree method", func(p *param.GBMParam) { p.TreeMethod = "approx" }},
		{"depth", func(p *param.GBMParam) { p.Depth = 0 }},
		{"num class", func(p *param.GBMParam) { p.NumClass = 3 }},
		{"devices", func(p *param.GBMParam) { p.NDevice = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc, platform := newAlloc(t, 2)
			p := testParam(2)
			tt.apply(&p)
			_, err := New(testData(t, []float32{2, 1, 0, -3}), p, alloc)
			require.ErrorIs(t, err, param.ErrConfiguration)
			for id := range platform.NumDevices() {
				dev, err := platform.Device(id)
				require.NoError(t, err)
				assert.Zero(t, dev.Used(), "device %d touched", id)
			}
		})
	}
}
