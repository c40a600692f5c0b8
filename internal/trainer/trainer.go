// Package trainer drives whole training runs and predictions on top of the
// booster: it loads data, sets up devices and allocators, runs the rounds and
// persists the model.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/born-ml/boost/internal/booster"
	"github.com/born-ml/boost/internal/dataset"
	"github.com/born-ml/boost/internal/device"
	"github.com/born-ml/boost/internal/memory"
	"github.com/born-ml/boost/internal/objective"
	"github.com/born-ml/boost/internal/param"
	"github.com/born-ml/boost/internal/serialization"
	"github.com/born-ml/boost/internal/syncmem"
)

// Round is one entry of the training trace.
type Round struct {
	Index    int
	Metric   string
	Score    float64
	Duration time.Duration
}

// Result summarizes a training run.
type Result struct {
	Model       *serialization.Model
	Trace       []Round
	HostStats   memory.Stats
	DeviceStats memory.Stats
	Transfers   device.TransferStats
}

// Train runs p.NTrees rounds over ds.
func Train(ctx context.Context, ds *dataset.DataSet, p param.GBMParam) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	platform, err := device.NewPlatform(p.NDevice, p.DeviceMemory)
	if err != nil {
		return nil, err
	}
	alloc, err := syncmem.NewAllocators(platform, p.Allocator.MemoryConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", param.ErrConfiguration, err)
	}

	res, err := train(ctx, ds, p, alloc)
	if err == nil {
		res.HostStats = alloc.Host.Stats()
		res.DeviceStats = alloc.Device.Stats()
		res.Transfers = platform.Transfers()
	}
	if cerr := alloc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func train(ctx context.Context, ds *dataset.DataSet, p param.GBMParam, alloc *syncmem.Allocators) (res *Result, err error) {
	b, err := booster.New(ds, p, alloc)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, b.Release())
	}()

	slog.Info("training", "instances", ds.NInstances(), "features", ds.NFeatures, "nnz", ds.NNZ(),
		"devices", p.NDevice, "rounds", p.NTrees, "objective", p.Objective, "tree_method", p.TreeMethod)

	mp := p
	if ds.IndexBase != dataset.AutoBase {
		mp.IndexBase = ds.IndexBase
	}
	res = &Result{Model: &serialization.Model{Param: mp}}
	for i := range p.NTrees {
		start := time.Now()
		score, err := b.Boost(ctx, &res.Model.Trees)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", i+1, err)
		}
		res.Trace = append(res.Trace, Round{
			Index:    i + 1,
			Metric:   b.MetricName(),
			Score:    score,
			Duration: time.Since(start),
		})
	}
	return res, nil
}

// TrainFile loads the LibSVM file at p.Path, trains and saves the model to
// p.OutModelName when it is set.
func TrainFile(ctx context.Context, p param.GBMParam) (*Result, error) {
	ds, err := dataset.LoadLibSVMBase(p.Path, p.IndexBase)
	if err != nil {
		return nil, err
	}
	res, err := Train(ctx, ds, p)
	if err != nil {
		return nil, err
	}
	if p.OutModelName != "" {
		meta := map[string]string{}
		if n := len(res.Trace); n > 0 {
			last := res.Trace[n-1]
			meta[last.Metric] = fmt.Sprintf("%g", last.Score)
		}
		if err := serialization.Save(p.OutModelName, res.Model, meta); err != nil {
			return nil, fmt.Errorf("save model: %w", err)
		}
		slog.Info("model saved", "path", p.OutModelName)
	}
	return res, nil
}

// PredictRaw returns the summed leaf weights of every instance, class-major.
// Tree j of a round belongs to class j % num_class.
func PredictRaw(m *serialization.Model, ds *dataset.DataSet) []float32 {
	n, k := ds.NInstances(), m.Param.NumClass
	out := make([]float32, n*k)
	for i := range n {
		feature := ds.Lookup(i)
		for _, set := range m.Trees {
			for j, t := range set {
				out[(j%k)*n+i] += t.Predict(feature)
			}
		}
	}
	return out
}

// Predict returns the predictions of m on ds in the objective's output space.
func Predict(m *serialization.Model, ds *dataset.DataSet) ([]float32, error) {
	obj, err := objective.Create(m.Param.Objective)
	if err != nil {
		return nil, err
	}
	if err := obj.Configure(m.Param, nil); err != nil {
		return nil, err
	}
	return obj.PredTransform(PredictRaw(m, ds)), nil
}

// LoadData reads the LibSVM file at path numbered the way m's training file
// was. base applies only when m did not record a numbering.
func LoadData(m *serialization.Model, path string, base int) (*dataset.DataSet, error) {
	if m.Param.IndexBase != dataset.AutoBase {
		base = m.Param.IndexBase
	}
	return dataset.LoadLibSVMBase(path, base)
}

// PredictFile loads the model at p.InModelName and the data at p.Path.
func PredictFile(p param.GBMParam) ([]float32, error) {
	m, err := serialization.Load(p.InModelName)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	ds, err := LoadData(m, p.Path, p.IndexBase)
	if err != nil {
		return nil, err
	}
	return Predict(m, ds)
}
