package main

import (
	"github.com/born-ml/boost/internal/param"
	"github.com/spf13/pflag"
)

// paramFlags maps each parameter flag to the field it sets.
var paramFlags = map[string]func(dst, src *param.GBMParam){
	"depth":                func(d, s *param.GBMParam) { d.Depth = s.Depth },
	"n-trees":              func(d, s *param.GBMParam) { d.NTrees = s.NTrees },
	"n-device":             func(d, s *param.GBMParam) { d.NDevice = s.NDevice },
	"min-child-weight":     func(d, s *param.GBMParam) { d.MinChildWeight = s.MinChildWeight },
	"lambda":               func(d, s *param.GBMParam) { d.Lambda = s.Lambda },
	"gamma":                func(d, s *param.GBMParam) { d.Gamma = s.Gamma },
	"max-num-bin":          func(d, s *param.GBMParam) { d.MaxNumBin = s.MaxNumBin },
	"column-sampling-rate": func(d, s *param.GBMParam) { d.ColumnSamplingRate = s.ColumnSamplingRate },
	"bagging":              func(d, s *param.GBMParam) { d.Bagging = s.Bagging },
	"n-parallel-trees":     func(d, s *param.GBMParam) { d.NParallelTrees = s.NParallelTrees },
	"learning-rate":        func(d, s *param.GBMParam) { d.LearningRate = s.LearningRate },
	"objective":            func(d, s *param.GBMParam) { d.Objective = s.Objective },
	"num-class":            func(d, s *param.GBMParam) { d.NumClass = s.NumClass },
	"tree-method":          func(d, s *param.GBMParam) { d.TreeMethod = s.TreeMethod },
	"seed":                 func(d, s *param.GBMParam) { d.Seed = s.Seed },
	"data":                 func(d, s *param.GBMParam) { d.Path = s.Path },
	"index-base":           func(d, s *param.GBMParam) { d.IndexBase = s.IndexBase },
	"out-model":            func(d, s *param.GBMParam) { d.OutModelName = s.OutModelName },
	"model":                func(d, s *param.GBMParam) { d.InModelName = s.InModelName },
	"device-memory":        func(d, s *param.GBMParam) { d.DeviceMemory = s.DeviceMemory },
	"max-cached-bytes":     func(d, s *param.GBMParam) { d.Allocator.MaxCachedBytes = s.Allocator.MaxCachedBytes },
	"debug-alloc":          func(d, s *param.GBMParam) { d.Allocator.Debug = s.Allocator.Debug },
}

func addDataFlag(fs *pflag.FlagSet, p *param.GBMParam) {
	fs.StringVarP(&p.Path, "data", "d", p.Path, "LibSVM data file")
	fs.IntVar(&p.IndexBase, "index-base", p.IndexBase, "LibSVM feature numbering (-1 detect, 0, 1); a model's recorded numbering wins")
}

func addTrainFlags(fs *pflag.FlagSet, p *param.GBMParam) {
	addDataFlag(fs, p)
	fs.IntVar(&p.Depth, "depth", p.Depth, "Maximum tree depth")
	fs.IntVarP(&p.NTrees, "n-trees", "n", p.NTrees, "Number of boosting rounds")
	fs.IntVar(&p.NDevice, "n-device", p.NDevice, "Number of devices")
	fs.Float32Var(&p.MinChildWeight, "min-child-weight", p.MinChildWeight, "Minimum hessian sum of a child")
	fs.Float32Var(&p.Lambda, "lambda", p.Lambda, "L2 regularization on leaf weights")
	fs.Float32Var(&p.Gamma, "gamma", p.Gamma, "Minimum gain to split a node")
	fs.IntVar(&p.MaxNumBin, "max-num-bin", p.MaxNumBin, "Maximum histogram bins per feature")
	fs.Float32Var(&p.ColumnSamplingRate, "column-sampling-rate", p.ColumnSamplingRate, "Fraction of features per round")
	fs.BoolVar(&p.Bagging, "bagging", p.Bagging, "Bootstrap the instances of every tree")
	fs.IntVar(&p.NParallelTrees, "n-parallel-trees", p.NParallelTrees, "Trees per class and round, averaged")
	fs.Float32Var(&p.LearningRate, "learning-rate", p.LearningRate, "Shrinkage of leaf weights")
	fs.StringVar(&p.Objective, "objective", p.Objective, "Objective (reg:linear, binary:logistic, multi:softmax, ...)")
	fs.IntVar(&p.NumClass, "num-class", p.NumClass, "Number of classes for multi-class objectives")
	fs.StringVar(&p.TreeMethod, "tree-method", p.TreeMethod, "Split search (exact, hist, auto)")
	fs.Uint64Var(&p.Seed, "seed", p.Seed, "Column sampling seed")
	fs.StringVarP(&p.OutModelName, "out-model", "o", p.OutModelName, "Path of the saved model")
	fs.Int64Var(&p.DeviceMemory, "device-memory", p.DeviceMemory, "Memory capacity per device in bytes")
	fs.Int64Var(&p.Allocator.MaxCachedBytes, "max-cached-bytes", p.Allocator.MaxCachedBytes, "Cache budget per device and bin")
	fs.BoolVar(&p.Allocator.Debug, "debug-alloc", p.Allocator.Debug, "Log every allocator operation")
}

func addModelFlag(fs *pflag.FlagSet, p *param.GBMParam) {
	fs.StringVarP(&p.InModelName, "model", "m", p.InModelName, "Path of the model to load")
}

// applyFlags copies into dst the fields of every flag changed on fs.
func applyFlags(fs *pflag.FlagSet, dst, src *param.GBMParam) {
	fs.Visit(func(f *pflag.Flag) {
		if set, ok := paramFlags[f.Name]; ok {
			set(dst, src)
		}
	})
}
