// Package shard holds one device's share of the training state: a column
// subset of the dataset plus the per-instance statistics and the tree being
// grown, kept identical on every device.
package shard

import (
	"errors"
	"fmt"

	"github.com/born-ml/boost/internal/columns"
	"github.com/born-ml/boost/internal/parallel"
	"github.com/born-ml/boost/internal/param"
	"github.com/born-ml/boost/internal/split"
	"github.com/born-ml/boost/internal/stats"
	"github.com/born-ml/boost/internal/syncmem"
	"github.com/born-ml/boost/internal/tree"
)

// rtEps is the smallest gain that counts as an improvement.
const rtEps = 1e-6

// Shard is the training state of one device. It persists across rounds; its
// tree is reset at the start of every tree and grown level by level.
type Shard struct {
	Param      param.GBMParam
	Device     int
	Stats      *stats.InsStat
	Tree       *syncmem.Array[tree.Node]
	Columns    *columns.SparseColumns
	IgnoredSet *syncmem.Array[bool]
	Bag        *syncmem.Array[uint32] // bootstrap draw counts; empty without bagging
	SP         *syncmem.Array[split.Point]
	HasSplit   bool

	cuts     [][]float32 // per owned column; nil for exact search
	level    int         // next level to split
	par      parallel.Config
	colPar   parallel.Config
	nColumns int // global column count
}

// Options configures a new shard.
type Options struct {
	Param    param.GBMParam
	Device   int
	Columns  *columns.SparseColumns
	NColumns int                     // global column count
	YPredict *syncmem.Array[float32] // running predictions of this device
	Hist     bool                    // search histogram cuts instead of every value
	Parallel parallel.Config
}

// New creates a shard over a column subset bound to opts.Device. The shard
// owns opts.Columns from then on and releases them even when New fails.
func New(alloc *syncmem.Allocators, opts Options) (*Shard, error) {
	if opts.Columns.Device() != opts.Device {
		err := fmt.Errorf("%w: columns bound to device %d, shard on %d",
			syncmem.ErrDeviceBinding, opts.Columns.Device(), opts.Device)
		return nil, errors.Join(err, opts.Columns.Release())
	}
	if err := opts.Columns.SortByValue(); err != nil {
		return nil, errors.Join(fmt.Errorf("sort columns: %w", err), opts.Columns.Release())
	}
	bag := 0
	if opts.Param.Bagging {
		bag = opts.Columns.NRow
	}
	// Columns are coarse work items: one column per worker is worth it.
	colPar := opts.Parallel
	colPar.MinChunkSize = 1
	s := &Shard{
		Param:      opts.Param,
		Device:     opts.Device,
		Stats:      stats.NewInsStat(alloc, opts.Device, opts.Columns.NRow, opts.YPredict),
		Tree:       syncmem.NewArray[tree.Node](alloc, opts.Device, tree.NumNodes(opts.Param.Depth)),
		Columns:    opts.Columns,
		IgnoredSet: syncmem.NewArray[bool](alloc, opts.Device, opts.NColumns),
		Bag:        syncmem.NewArray[uint32](alloc, opts.Device, bag),
		SP:         syncmem.NewArray[split.Point](alloc, opts.Device, 1<<(opts.Param.Depth-1)),
		par:        opts.Parallel,
		colPar:     colPar,
		nColumns:   opts.NColumns,
	}
	if opts.Hist {
		if err := s.buildCuts(); err != nil {
			return nil, errors.Join(err, s.Release())
		}
	}
	return s, nil
}

// Level returns the next level to be split.
func (s *Shard) Level() int {
	return s.level
}

// Reset starts a new tree on the k-th gradient stream: every instance goes
// back to the root, which is the only open node.
func (s *Shard) Reset(k int, gradients *syncmem.Array[stats.GHPair]) error {
	if err := s.Stats.Reset(s.Device, k, gradients); err != nil {
		return err
	}
	gh, err := s.Stats.GH.DeviceData(s.Device)
	if err != nil {
		return err
	}
	nodes, err := s.Tree.DeviceData(s.Device)
	if err != nil {
		return err
	}
	clear(nodes)
	sum := stats.Sum(gh)
	nodes[0] = tree.Node{
		SumGH:        sum,
		BaseWeight:   sum.Weight(s.Param.Lambda),
		SplitFeature: -1,
		Valid:        true,
		State:        tree.Open,
	}
	s.level = 0
	s.HasSplit = false
	return nil
}

// LocalBest returns a host copy of this shard's proposals for the open level.
func (s *Shard) LocalBest() ([]split.Point, error) {
	sp, err := s.SP.HostData()
	if err != nil {
		return nil, err
	}
	start, end := tree.LevelRange(s.level)
	out := make([]split.Point, end-start)
	copy(out, sp)
	return out, nil
}

// UpdateTree applies the global winners of the open level: nodes with a usable
// split get two open children, every other open node becomes a leaf. Every
// shard must receive the same best slice.
func (s *Shard) UpdateTree(best []split.Point) error {
	start, end := tree.LevelRange(s.level)
	if len(best) != end-start {
		return fmt.Errorf("got %d split points for level %d of width %d", len(best), s.level, end-start)
	}
	if err := s.SP.CopyFrom(s.Device, best); err != nil {
		return err
	}
	sp, err := s.SP.DeviceData(s.Device)
	if err != nil {
		return err
	}
	nodes, err := s.Tree.DeviceData(s.Device)
	if err != nil {
		return err
	}

	lambda := s.Param.Lambda
	s.HasSplit = false
	for i := range end - start {
		nid := start + i
		n := &nodes[nid]
		if !n.Valid || n.State != tree.Open {
			continue
		}
		p := sp[i]
		if !s.usable(p) {
			n.State = tree.Leaf
			continue
		}
		n.State = tree.Split
		n.SplitFeature = p.SplitFeaID
		n.SplitValue = p.Fval
		n.SplitBid = p.SplitBid
		n.DefaultRight = p.DefaultRight
		n.Gain = p.Gain

		right := p.RchSumGH
		left := n.SumGH.Sub(right)
		nodes[tree.Left(nid)] = tree.Node{SumGH: left, BaseWeight: left.Weight(lambda), SplitFeature: -1, Valid: true, State: tree.Open}
		nodes[tree.Right(nid)] = tree.Node{SumGH: right, BaseWeight: right.Weight(lambda), SplitFeature: -1, Valid: true, State: tree.Open}
		s.HasSplit = true
	}
	s.level++
	return nil
}

// usable reports whether a global winner is worth applying.
func (s *Shard) usable(p split.Point) bool {
	return !p.IsSentinel() && p.Gain > rtEps && p.Gain > s.Param.Gamma
}

// owns reports whether the global feature id is one of this shard's columns.
func (s *Shard) owns(fea int32) bool {
	off := int32(s.Columns.ColumnOffset)
	return fea >= off && fea < off+int32(s.Columns.NColumn)
}

// RouteInstances computes the child of every instance whose node was just
// split on a feature owned by this shard. Other instances get -1 and keep their
// current node; overlaying the results of all shards gives the new assignment.
func (s *Shard) RouteInstances() ([]int32, error) {
	start, end := tree.LevelRange(s.level - 1)
	nodes, err := s.Tree.DeviceData(s.Device)
	if err != nil {
		return nil, err
	}
	nid, err := s.Stats.NID.DeviceData(s.Device)
	if err != nil {
		return nil, err
	}

	out := make([]int32, len(nid))
	for i := range out {
		out[i] = -1
	}
	var mine []int
	for id := start; id < end; id++ {
		if n := nodes[id]; n.Valid && n.State == tree.Split && s.owns(n.SplitFeature) {
			mine = append(mine, id)
		}
	}
	if len(mine) == 0 {
		return out, nil
	}

	// Missing values follow the default direction.
	for r, id := range nid {
		if int(id) < start || int(id) >= end {
			continue
		}
		n := nodes[id]
		if n.State != tree.Split || !s.owns(n.SplitFeature) {
			continue
		}
		if n.DefaultRight {
			out[r] = int32(tree.Right(int(id)))
		} else {
			out[r] = int32(tree.Left(int(id)))
		}
	}

	ptr, err := s.Columns.CSCColPtr.DeviceData(s.Device)
	if err != nil {
		return nil, err
	}
	val, err := s.Columns.CSCVal.DeviceData(s.Device)
	if err != nil {
		return nil, err
	}
	rowIdx, err := s.Columns.CSCRowIdx.DeviceData(s.Device)
	if err != nil {
		return nil, err
	}
	for _, id := range mine {
		n := nodes[id]
		c := int(n.SplitFeature) - s.Columns.ColumnOffset
		for k := ptr[c]; k < ptr[c+1]; k++ {
			r := rowIdx[k]
			if int(nid[r]) != id {
				continue
			}
			if val[k] < n.SplitValue {
				out[r] = int32(tree.Left(id))
			} else {
				out[r] = int32(tree.Right(id))
			}
		}
	}
	return out, nil
}

// SetNodeAssignment installs the merged instance->node assignment.
func (s *Shard) SetNodeAssignment(nid []int32) error {
	if len(nid) != s.Stats.NInstances {
		return fmt.Errorf("assignment of %d instances, want %d", len(nid), s.Stats.NInstances)
	}
	return s.Stats.NID.CopyFrom(s.Device, nid)
}

// FinalizeLeaves closes every remaining open node and scales leaf weights by
// the learning rate. With several trees per class and round, each tree
// contributes its share of the average.
func (s *Shard) FinalizeLeaves() error {
	nodes, err := s.Tree.DeviceData(s.Device)
	if err != nil {
		return err
	}
	scale := s.Param.LearningRate / float32(max(1, s.Param.NParallelTrees))
	for i := range nodes {
		n := &nodes[i]
		if !n.Valid || n.State == tree.Split {
			continue
		}
		n.State = tree.Leaf
		n.BaseWeight = n.SumGH.Weight(s.Param.Lambda) * scale
	}
	return nil
}

// PredictInTraining adds the leaf weight of every instance to the k-th class
// stream of the running predictions.
func (s *Shard) PredictInTraining(k int) error {
	nodes, err := s.Tree.DeviceData(s.Device)
	if err != nil {
		return err
	}
	nid, err := s.Stats.NID.DeviceData(s.Device)
	if err != nil {
		return err
	}
	yp, err := s.Stats.YPredict.DeviceData(s.Device)
	if err != nil {
		return err
	}
	n := s.Stats.NInstances
	out := yp[k*n : (k+1)*n]
	parallel.For(n, func(i int) {
		out[i] += nodes[nid[i]].BaseWeight
	}, s.par)
	return nil
}

// Snapshot returns a host copy of the current tree.
func (s *Shard) Snapshot() (tree.Tree, error) {
	nodes, err := s.Tree.HostData()
	if err != nil {
		return tree.Tree{}, err
	}
	return tree.Tree{Nodes: nodes}.Clone(), nil
}

// Release frees the shard's buffers, including its columns.
func (s *Shard) Release() error {
	return errors.Join(
		s.Stats.Release(),
		s.Tree.Release(),
		s.IgnoredSet.Release(),
		s.Bag.Release(),
		s.SP.Release(),
		s.Columns.Release(),
	)
}
