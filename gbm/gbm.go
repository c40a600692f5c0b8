// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gbm

import (
	"context"
	"io"

	"github.com/born-ml/boost/internal/dataset"
	"github.com/born-ml/boost/internal/param"
	"github.com/born-ml/boost/internal/serialization"
	"github.com/born-ml/boost/internal/trainer"
	"github.com/born-ml/boost/internal/tree"
)

// Parameters

// Param holds every training parameter.
type Param = param.GBMParam

// AllocatorParam tunes the device and host caching allocators.
type AllocatorParam = param.AllocatorParam

// ErrConfiguration is returned for invalid parameters or unknown names.
var ErrConfiguration = param.ErrConfiguration

// DefaultParam returns the default parameters.
func DefaultParam() Param {
	return param.Default()
}

// LoadParam reads a YAML parameter file over the defaults.
func LoadParam(path string) (Param, error) {
	return param.Load(path)
}

// Data

// DataSet is a sparse row-major dataset with labels.
type DataSet = dataset.DataSet

// Entry is one present feature value of an instance.
type Entry = dataset.Entry

// FromDense builds a dataset from a dense matrix. NaN marks a missing value.
func FromDense(x [][]float32, y []float32) (*DataSet, error) {
	return dataset.FromDense(x, y)
}

// LoadLibSVM reads a LibSVM text file.
func LoadLibSVM(path string) (*DataSet, error) {
	return dataset.LoadLibSVM(path)
}

// Training

// Model is a trained model: num_class * n_parallel_trees trees per round.
type Model = serialization.Model

// Tree is one regression tree.
type Tree = tree.Tree

// Node is one tree node.
type Node = tree.Node

// Result summarizes a training run.
type Result = trainer.Result

// Round is one entry of the training trace.
type Round = trainer.Round

// Train runs p.NTrees boosting rounds over ds.
func Train(ctx context.Context, ds *DataSet, p Param) (*Result, error) {
	return trainer.Train(ctx, ds, p)
}

// Predict returns the predictions of m on ds in the objective's output space.
func Predict(m *Model, ds *DataSet) ([]float32, error) {
	return trainer.Predict(m, ds)
}

// PredictRaw returns the summed leaf weights, class-major.
func PredictRaw(m *Model, ds *DataSet) []float32 {
	return trainer.PredictRaw(m, ds)
}

// Persistence

// Save writes m to a model file.
func Save(path string, m *Model) error {
	return serialization.Save(path, m, nil)
}

// Load reads a model file.
func Load(path string) (*Model, error) {
	return serialization.Load(path)
}

// Dump writes the text form of every tree of m.
func Dump(w io.Writer, m *Model) error {
	return tree.DumpModel(w, m.Trees)
}
