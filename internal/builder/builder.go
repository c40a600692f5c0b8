// Package builder grows n_parallel_trees trees per class per boosting round
// over the device shards.
//
// Every level runs in three steps: each shard proposes the best split per open
// node over its own columns, the proposals are reduced to one winner per node
// on the host, and the winners are broadcast back so every shard applies the
// same update. The shard owning a winning feature decides where instances go.
//
// Example usage:
//
//	b, err := builder.Create("hist", alloc)
//	if err != nil {
//	    return err
//	}
//	if err := b.Init(ds, p); err != nil {
//	    return err
//	}
//	trees, err := b.BuildApproximate(ctx, gradients)
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/born-ml/boost/internal/columns"
	"github.com/born-ml/boost/internal/dataset"
	"github.com/born-ml/boost/internal/device"
	"github.com/born-ml/boost/internal/parallel"
	"github.com/born-ml/boost/internal/param"
	"github.com/born-ml/boost/internal/shard"
	"github.com/born-ml/boost/internal/split"
	"github.com/born-ml/boost/internal/stats"
	"github.com/born-ml/boost/internal/syncmem"
	"github.com/born-ml/boost/internal/tree"
)

// TreeBuilder grows the trees of one boosting round.
type TreeBuilder interface {
	// Init shards the dataset over p.NDevice devices and allocates the
	// running predictions (num_class * n_instances per device, class-major).
	Init(ds *dataset.DataSet, p param.GBMParam) error

	// BuildApproximate grows num_class * n_parallel_trees trees from the
	// per-device gradients and adds their leaf weights to YPredict on every
	// device. Tree j of the result belongs to class j % num_class.
	BuildApproximate(ctx context.Context, gradients syncmem.Multi[stats.GHPair]) ([]tree.Tree, error)

	// YPredict returns the running predictions, one array per device.
	YPredict() syncmem.Multi[float32]

	// Release frees all device buffers owned by the builder.
	Release() error
}

// Create returns the builder for a tree method. "auto" selects "hist".
func Create(method string, alloc *syncmem.Allocators) (TreeBuilder, error) {
	switch method {
	case "exact":
		return &shardBuilder{alloc: alloc}, nil
	case "hist", "auto":
		return &shardBuilder{alloc: alloc, hist: true}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tree method %q", param.ErrConfiguration, method)
	}
}

type shardBuilder struct {
	alloc    *syncmem.Allocators
	hist     bool
	param    param.GBMParam
	shards   []*shard.Shard
	yPredict syncmem.Multi[float32]
	round    int
}

func (b *shardBuilder) Init(ds *dataset.DataSet, p param.GBMParam) error {
	if p.NDevice > b.alloc.NumDevices() {
		return fmt.Errorf("%w: n_device %d exceeds %d available devices",
			param.ErrConfiguration, p.NDevice, b.alloc.NumDevices())
	}
	b.param = p

	all, err := columns.FromDataset(b.alloc, ds)
	if err != nil {
		return fmt.Errorf("build columns: %w", err)
	}
	parts, err := all.ToMultiDevices(b.alloc, p.NDevice)
	if rerr := all.Release(); err == nil {
		err = rerr
	}
	if err != nil {
		return fmt.Errorf("partition columns: %w", err)
	}

	n := ds.NInstances()
	b.yPredict = syncmem.NewMulti[float32](b.alloc, p.NDevice, p.NumClass*n)
	b.shards = make([]*shard.Shard, p.NDevice)
	for id, cols := range parts {
		s, err := shard.New(b.alloc, shard.Options{
			Param:    p,
			Device:   id,
			Columns:  cols,
			NColumns: ds.NFeatures,
			YPredict: b.yPredict[id],
			Hist:     b.hist,
			Parallel: parallel.DefaultConfig(),
		})
		if err != nil {
			// Shards created so far go with Release; the rest are still ours.
			for _, rest := range parts[id+1:] {
				err = errors.Join(err, rest.Release())
			}
			return fmt.Errorf("shard %d: %w", id, err)
		}
		b.shards[id] = s
	}
	slog.Debug("tree builder ready", "devices", p.NDevice, "instances", n,
		"columns", ds.NFeatures, "hist", b.hist)
	return nil
}

func (b *shardBuilder) YPredict() syncmem.Multi[float32] {
	return b.yPredict
}

func (b *shardBuilder) BuildApproximate(ctx context.Context, gradients syncmem.Multi[stats.GHPair]) ([]tree.Tree, error) {
	if len(gradients) != len(b.shards) {
		return nil, fmt.Errorf("got gradients for %d devices, want %d", len(gradients), len(b.shards))
	}
	trees := make([]tree.Tree, 0, b.param.TreesPerRound())
	for t := range b.param.NParallelTrees {
		for k := range b.param.NumClass {
			tr, err := b.buildTree(ctx, k, t, gradients)
			if err != nil {
				return nil, fmt.Errorf("class %d tree %d: %w", k, t, err)
			}
			trees = append(trees, tr)
		}
	}
	b.round++
	return trees, nil
}

func (b *shardBuilder) buildTree(ctx context.Context, k, t int, gradients syncmem.Multi[stats.GHPair]) (tree.Tree, error) {
	err := b.each(ctx, func(s *shard.Shard) error {
		if err := s.Reset(k, gradients[s.Device]); err != nil {
			return err
		}
		if err := s.RowSampling(b.round, t); err != nil {
			return err
		}
		return s.ColumnSampling(b.round)
	})
	if err != nil {
		return tree.Tree{}, err
	}

	for level := range b.param.Depth {
		if err := ctx.Err(); err != nil {
			return tree.Tree{}, err
		}
		best, err := b.findSplit(ctx)
		if err != nil {
			return tree.Tree{}, fmt.Errorf("level %d: %w", level, err)
		}
		if err := b.each(ctx, func(s *shard.Shard) error { return s.UpdateTree(best) }); err != nil {
			return tree.Tree{}, fmt.Errorf("level %d: %w", level, err)
		}
		if !b.shards[0].HasSplit {
			slog.Debug("no split", "class", k, "level", level)
			break
		}
		if err := b.route(ctx); err != nil {
			return tree.Tree{}, fmt.Errorf("level %d: %w", level, err)
		}
	}

	err = b.each(ctx, func(s *shard.Shard) error {
		if err := s.FinalizeLeaves(); err != nil {
			return err
		}
		return s.PredictInTraining(k)
	})
	if err != nil {
		return tree.Tree{}, err
	}
	return b.shards[0].Snapshot()
}

// findSplit gathers the local proposals of every shard and reduces them.
func (b *shardBuilder) findSplit(ctx context.Context) ([]split.Point, error) {
	proposals := make([][]split.Point, len(b.shards))
	err := b.each(ctx, func(s *shard.Shard) error {
		if err := s.FindSplit(); err != nil {
			return err
		}
		local, err := s.LocalBest()
		proposals[s.Device] = local
		return err
	})
	if err != nil {
		return nil, err
	}
	return split.Reduce(proposals)
}

// route overlays the partial assignments of all shards onto the current one
// and broadcasts the result.
func (b *shardBuilder) route(ctx context.Context) error {
	parts := make([][]int32, len(b.shards))
	err := b.each(ctx, func(s *shard.Shard) error {
		part, err := s.RouteInstances()
		parts[s.Device] = part
		return err
	})
	if err != nil {
		return err
	}
	current, err := b.shards[0].Stats.NID.HostData()
	if err != nil {
		return err
	}
	merged := make([]int32, len(current))
	copy(merged, current)
	for _, part := range parts {
		for i, nid := range part {
			if nid >= 0 {
				merged[i] = nid
			}
		}
	}
	return b.each(ctx, func(s *shard.Shard) error { return s.SetNodeAssignment(merged) })
}

func (b *shardBuilder) each(ctx context.Context, fn func(s *shard.Shard) error) error {
	return device.ForEach(ctx, len(b.shards), func(_ context.Context, id int) error {
		return fn(b.shards[id])
	})
}

func (b *shardBuilder) Release() error {
	errs := make([]error, 0, len(b.shards)+1)
	for _, s := range b.shards {
		if s != nil {
			errs = append(errs, s.Release())
		}
	}
	errs = append(errs, b.yPredict.Release())
	b.shards, b.yPredict = nil, nil
	return errors.Join(errs...)
}
