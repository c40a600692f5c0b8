// Package tree defines the regression tree grown in each boosting round.
//
// Trees are stored as complete binary trees in level order: node i has children
// 2i+1 and 2i+2, and level d occupies ids [2^d-1, 2^(d+1)-1).
package tree

import (
	"fmt"
	"io"
	"strings"

	"github.com/born-ml/boost/internal/stats"
)

// State is the lifecycle of a node within one round.
type State uint8

// Node states. Leaf and Split are terminal.
const (
	Open State = iota
	Leaf
	Split
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Leaf:
		return "LEAF"
	case Split:
		return "SPLIT"
	default:
		return "UNKNOWN"
	}
}

// Node is one tree node. Only Split nodes carry a split condition; instances
// with value < SplitValue go left, missing values follow DefaultRight.
type Node struct {
	SumGH        stats.GHPair
	Gain         float32
	BaseWeight   float32
	SplitValue   float32
	SplitFeature int32
	SplitBid     uint8
	DefaultRight bool
	Valid        bool
	State        State
}

// NumNodes returns the node capacity of a tree of the given depth.
func NumNodes(depth int) int {
	return 1<<(depth+1) - 1
}

// LevelRange returns the node ids [start, end) of level d.
func LevelRange(d int) (start, end int) {
	return 1<<d - 1, 1<<(d+1) - 1
}

// Left returns the left child id of node i.
func Left(i int) int { return 2*i + 1 }

// Right returns the right child id of node i.
func Right(i int) int { return 2*i + 2 }

// Tree is a finished host-side tree.
type Tree struct {
	Nodes []Node
}

// Clone returns a deep copy of t.
func (t Tree) Clone() Tree {
	nodes := make([]Node, len(t.Nodes))
	copy(nodes, t.Nodes)
	return Tree{Nodes: nodes}
}

// NumLeaves counts valid leaf nodes.
func (t Tree) NumLeaves() int {
	n := 0
	for _, node := range t.Nodes {
		if node.Valid && node.State == Leaf {
			n++
		}
	}
	return n
}

// Validate checks that every split node has a feature and both children
// inside the node array, so Predict and Dump stay in bounds.
func (t Tree) Validate() error {
	for i, n := range t.Nodes {
		if n.State != Split {
			continue
		}
		if n.SplitFeature < 0 {
			return fmt.Errorf("node %d splits on feature %d", i, n.SplitFeature)
		}
		if Right(i) >= len(t.Nodes) {
			return fmt.Errorf("node %d has children beyond %d nodes", i, len(t.Nodes))
		}
	}
	return nil
}

// Predict walks from the root to a leaf and returns its weight. feature
// returns the value of a feature and whether it is present.
func (t Tree) Predict(feature func(fid int32) (float32, bool)) float32 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for t.Nodes[i].State == Split {
		n := t.Nodes[i]
		v, ok := feature(n.SplitFeature)
		right := n.DefaultRight
		if ok {
			right = v >= n.SplitValue
		}
		if right {
			i = Right(i)
		} else {
			i = Left(i)
		}
	}
	return t.Nodes[i].BaseWeight
}

// Dump writes a text rendering of t.
func (t Tree) Dump(w io.Writer) error {
	if len(t.Nodes) == 0 {
		return nil
	}
	return t.dump(w, 0, 0)
}

func (t Tree) dump(w io.Writer, i, depth int) error {
	n := t.Nodes[i]
	indent := strings.Repeat("\t", depth)
	if n.State != Split {
		_, err := fmt.Fprintf(w, "%s%d:leaf=%g,cover=%g\n", indent, i, n.BaseWeight, n.SumGH.H)
		return err
	}
	missing := Left(i)
	if n.DefaultRight {
		missing = Right(i)
	}
	if _, err := fmt.Fprintf(w, "%s%d:[f%d<%g] yes=%d,no=%d,missing=%d,gain=%g,cover=%g\n",
		indent, i, n.SplitFeature, n.SplitValue, Left(i), Right(i), missing, n.Gain, n.SumGH.H); err != nil {
		return err
	}
	if err := t.dump(w, Left(i), depth+1); err != nil {
		return err
	}
	return t.dump(w, Right(i), depth+1)
}

// DumpModel writes every tree of a boosted model, one block per tree.
func DumpModel(w io.Writer, model [][]Tree) error {
	k := 0
	for _, round := range model {
		for _, t := range round {
			if _, err := fmt.Fprintf(w, "booster[%d]:\n", k); err != nil {
				return err
			}
			if err := t.Dump(w); err != nil {
				return err
			}
			k++
		}
	}
	return nil
}
