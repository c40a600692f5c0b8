// Package booster runs gradient boosting rounds over the device shards.
package booster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/born-ml/boost/internal/builder"
	"github.com/born-ml/boost/internal/dataset"
	"github.com/born-ml/boost/internal/device"
	"github.com/born-ml/boost/internal/metric"
	"github.com/born-ml/boost/internal/objective"
	"github.com/born-ml/boost/internal/param"
	"github.com/born-ml/boost/internal/stats"
	"github.com/born-ml/boost/internal/syncmem"
	"github.com/born-ml/boost/internal/tree"
)

// Booster adds one set of num_class * n_parallel_trees trees per call to Boost.
type Booster struct {
	param     param.GBMParam
	alloc     *syncmem.Allocators
	builder   builder.TreeBuilder
	objective objective.Objective
	metric    metric.Metric
	gradients syncmem.Multi[stats.GHPair]
	y         syncmem.Multi[float32]
	nDevices  int
}

// New validates p, resolves the tree method, objective and metric, then shards
// ds over p.NDevice devices and replicates the labels to every device.
// Configuration errors are reported before any device memory is touched.
func New(ds *dataset.DataSet, p param.GBMParam, alloc *syncmem.Allocators) (*Booster, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	fb, err := builder.Create(p.TreeMethod, alloc)
	if err != nil {
		return nil, err
	}
	obj, err := objective.Create(p.Objective)
	if err != nil {
		return nil, err
	}
	if err := obj.Configure(p, ds.Y); err != nil {
		return nil, err
	}
	m, err := metric.Create(obj.DefaultMetricName())
	if err != nil {
		return nil, err
	}
	if err := m.Configure(p, ds.Y); err != nil {
		return nil, err
	}

	b := &Booster{
		param:     p,
		alloc:     alloc,
		builder:   fb,
		objective: obj,
		metric:    m,
		nDevices:  p.NDevice,
	}
	if err := fb.Init(ds, p); err != nil {
		return nil, errors.Join(err, fb.Release())
	}
	n := ds.NInstances()
	b.gradients = syncmem.NewMulti[stats.GHPair](alloc, b.nDevices, p.NumClass*n)
	b.y = syncmem.NewMulti[float32](alloc, b.nDevices, n)
	err = device.ForEach(context.Background(), b.nDevices, func(_ context.Context, id int) error {
		return b.y[id].CopyFrom(id, ds.Y)
	})
	if err != nil {
		return nil, errors.Join(err, b.Release())
	}
	return b, nil
}

// Boost runs one round: gradients on every device, the trees of every class, then
// the training metric on device 0. The new tree set is appended to model.
func (b *Booster) Boost(ctx context.Context, model *[][]tree.Tree) (float64, error) {
	yPredict := b.builder.YPredict()
	err := device.ForEach(ctx, b.nDevices, func(_ context.Context, id int) error {
		y, err := b.y[id].DeviceData(id)
		if err != nil {
			return err
		}
		yp, err := yPredict[id].DeviceData(id)
		if err != nil {
			return err
		}
		gh, err := b.gradients[id].DeviceData(id)
		if err != nil {
			return err
		}
		b.objective.GetGradient(y, yp, gh)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("gradients: %w", err)
	}

	trees, err := b.builder.BuildApproximate(ctx, b.gradients)
	if err != nil {
		return 0, fmt.Errorf("build trees: %w", err)
	}
	*model = append(*model, trees)

	yp, err := yPredict[0].HostData()
	if err != nil {
		return 0, err
	}
	score := b.metric.Score(yp)
	slog.Info("boost", "round", len(*model), b.metric.Name(), score)
	return score, nil
}

// MetricName returns the name of the training metric.
func (b *Booster) MetricName() string {
	return b.metric.Name()
}

// Objective returns the configured objective.
func (b *Booster) Objective() objective.Objective {
	return b.objective
}

// YPredict returns a host copy of the running predictions of device 0.
func (b *Booster) YPredict() ([]float32, error) {
	yp, err := b.builder.YPredict()[0].HostData()
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), yp...), nil
}

// Release frees every device buffer held by the booster.
func (b *Booster) Release() error {
	return errors.Join(b.builder.Release(), b.gradients.Release(), b.y.Release())
}
