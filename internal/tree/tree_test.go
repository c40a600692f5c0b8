package tree

import (
	"bytes"
	"testing"

	"github.com/born-ml/boost/internal/stats"
	"github.com/stretchr/testify/assert"
)

// stump splits feature 1 at 2.0 with missing values going right.
func stump() Tree {
	nodes := make([]Node, NumNodes(1))
	nodes[0] = Node{Valid: true, State: Split, SplitFeature: 1, SplitValue: 2, DefaultRight: true, Gain: 3, SumGH: stats.GHPair{G: 1, H: 4}}
	nodes[1] = Node{Valid: true, State: Leaf, BaseWeight: -1, SumGH: stats.GHPair{H: 2}}
	nodes[2] = Node{Valid: true, State: Leaf, BaseWeight: 1, SumGH: stats.GHPair{H: 2}}
	return Tree{Nodes: nodes}
}

func TestLayout(t *testing.T) {
	assert.Equal(t, 1, NumNodes(0))
	assert.Equal(t, 7, NumNodes(2))
	s, e := LevelRange(2)
	assert.Equal(t, 3, s)
	assert.Equal(t, 7, e)
	assert.Equal(t, 5, Left(2))
	assert.Equal(t, 6, Right(2))
}

func TestPredict(t *testing.T) {
	tr := stump()
	value := func(v float32, ok bool) func(int32) (float32, bool) {
		return func(int32) (float32, bool) { return v, ok }
	}
	assert.Equal(t, float32(-1), tr.Predict(value(1, true)))
	assert.Equal(t, float32(1), tr.Predict(value(2, true)))
	assert.Equal(t, float32(1), tr.Predict(value(0, false)))
	assert.Zero(t, Tree{}.Predict(value(0, false)))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, stump().Validate())
	assert.NoError(t, Tree{}.Validate())

	short := stump()
	short.Nodes = short.Nodes[:2]
	assert.Error(t, short.Validate())

	deep := stump()
	deep.Nodes[2] = Node{Valid: true, State: Split, SplitFeature: 0}
	assert.Error(t, deep.Validate())

	noFeature := stump()
	noFeature.Nodes[0].SplitFeature = -1
	assert.Error(t, noFeature.Validate())
}

func TestClone(t *testing.T) {
	tr := stump()
	c := tr.Clone()
	c.Nodes[1].BaseWeight = 5
	assert.Equal(t, float32(-1), tr.Nodes[1].BaseWeight)
	assert.Equal(t, 2, tr.NumLeaves())
}

func TestDumpModel(t *testing.T) {
	var buf bytes.Buffer
	err := DumpModel(&buf, [][]Tree{{stump()}})
	assert.NoError(t, err)
	want := "booster[0]:\n" +
		"0:[f1<2] yes=1,no=2,missing=2,gain=3,cover=4\n" +
		"\t1:leaf=-1,cover=2\n" +
		"\t2:leaf=1,cover=2\n"
	assert.Equal(t, want, buf.String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "OPEN", Open.String())
	assert.Equal(t, "LEAF", Leaf.String())
	assert.Equal(t, "SPLIT", Split.String())
}
