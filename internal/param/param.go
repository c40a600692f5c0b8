// Package param holds the training configuration of the boosting engine.
package param

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/born-ml/boost/internal/memory"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration reports an invalid or unknown configuration value.
var ErrConfiguration = errors.New("configuration error")

// AllocatorParam tunes the caching allocators.
type AllocatorParam struct {
	BinGrowth      int   `yaml:"bin_growth" json:"bin_growth"`
	MinBin         int   `yaml:"min_bin" json:"min_bin"`
	MaxBin         int   `yaml:"max_bin" json:"max_bin"`
	MaxCachedBytes int64 `yaml:"max_cached_bytes" json:"max_cached_bytes"`
	SkipCleanup    bool  `yaml:"skip_cleanup" json:"skip_cleanup"`
	Debug          bool  `yaml:"debug" json:"debug"`
}

// MemoryConfig converts the parameters to an allocator configuration.
func (a AllocatorParam) MemoryConfig() memory.Config {
	return memory.Config{
		BinGrowth:      a.BinGrowth,
		MinBin:         a.MinBin,
		MaxBin:         a.MaxBin,
		MaxCachedBytes: a.MaxCachedBytes,
		SkipCleanup:    a.SkipCleanup,
		Debug:          a.Debug,
	}
}

// GBMParam is read once at initialization and never mutated by the engine.
type GBMParam struct {
	Depth              int     `yaml:"depth" json:"depth"`
	NTrees             int     `yaml:"n_trees" json:"n_trees"`
	NDevice            int     `yaml:"n_device" json:"n_device"`
	MinChildWeight     float32 `yaml:"min_child_weight" json:"min_child_weight"`
	Lambda             float32 `yaml:"lambda" json:"lambda"`
	Gamma              float32 `yaml:"gamma" json:"gamma"`
	MaxNumBin          int     `yaml:"max_num_bin" json:"max_num_bin"`
	Verbose            int     `yaml:"verbose" json:"verbose"` // 0 warn, 1 info, 2 debug
	ColumnSamplingRate float32 `yaml:"column_sampling_rate" json:"column_sampling_rate"`
	Bagging            bool    `yaml:"bagging" json:"bagging"`                   // bootstrap instances per tree
	NParallelTrees     int     `yaml:"n_parallel_trees" json:"n_parallel_trees"` // trees per class and round
	LearningRate       float32 `yaml:"learning_rate" json:"learning_rate"`
	Objective          string  `yaml:"objective" json:"objective"`
	NumClass           int     `yaml:"num_class" json:"num_class"`
	TreeMethod         string  `yaml:"tree_method" json:"tree_method"`
	Seed               uint64  `yaml:"seed" json:"seed"`

	Path         string `yaml:"path" json:"path"`
	IndexBase    int    `yaml:"index_base" json:"index_base"` // LibSVM numbering: -1 detect, 0 or 1
	OutModelName string `yaml:"out_model_name" json:"out_model_name"`
	InModelName  string `yaml:"in_model_name" json:"in_model_name"`

	DeviceMemory int64          `yaml:"device_memory" json:"device_memory"`
	Allocator    AllocatorParam `yaml:"allocator" json:"allocator"`
}

// Default returns the default parameters.
func Default() GBMParam {
	mc := memory.DefaultConfig()
	return GBMParam{
		Depth:              6,
		NTrees:             40,
		NDevice:            1,
		MinChildWeight:     1,
		Lambda:             1,
		Gamma:              1,
		MaxNumBin:          255,
		Verbose:            1,
		ColumnSamplingRate: 1,
		NParallelTrees:     1,
		LearningRate:       1,
		Objective:          "reg:linear",
		NumClass:           1,
		TreeMethod:         "auto",
		OutModelName:       "tgbm.model",
		InModelName:        "tgbm.model",
		IndexBase:          -1,
		DeviceMemory:       4 << 30,
		Allocator: AllocatorParam{
			BinGrowth:      mc.BinGrowth,
			MinBin:         mc.MinBin,
			MaxBin:         mc.MaxBin,
			MaxCachedBytes: mc.MaxCachedBytes,
		},
	}
}

// Validate checks value ranges. Objective, metric and tree method names are
// resolved by their registries.
func (p GBMParam) Validate() error {
	switch {
	case p.Depth < 1 || p.Depth > 20:
		return fmt.Errorf("%w: depth %d not in [1, 20]", ErrConfiguration, p.Depth)
	case p.NTrees < 0:
		return fmt.Errorf("%w: n_trees %d < 0", ErrConfiguration, p.NTrees)
	case p.NDevice < 1:
		return fmt.Errorf("%w: n_device %d < 1", ErrConfiguration, p.NDevice)
	case p.NumClass < 1:
		return fmt.Errorf("%w: num_class %d < 1", ErrConfiguration, p.NumClass)
	case p.Lambda < 0:
		return fmt.Errorf("%w: lambda %g < 0", ErrConfiguration, p.Lambda)
	case p.MinChildWeight < 0:
		return fmt.Errorf("%w: min_child_weight %g < 0", ErrConfiguration, p.MinChildWeight)
	case p.LearningRate <= 0:
		return fmt.Errorf("%w: learning_rate %g <= 0", ErrConfiguration, p.LearningRate)
	case p.ColumnSamplingRate <= 0 || p.ColumnSamplingRate > 1:
		return fmt.Errorf("%w: column_sampling_rate %g not in (0, 1]", ErrConfiguration, p.ColumnSamplingRate)
	case p.MaxNumBin < 2 || p.MaxNumBin > 256:
		return fmt.Errorf("%w: max_num_bin %d not in [2, 256]", ErrConfiguration, p.MaxNumBin)
	case p.NParallelTrees < 1:
		return fmt.Errorf("%w: n_parallel_trees %d < 1", ErrConfiguration, p.NParallelTrees)
	case p.IndexBase < -1 || p.IndexBase > 1:
		return fmt.Errorf("%w: index_base %d not in {-1, 0, 1}", ErrConfiguration, p.IndexBase)
	case p.DeviceMemory <= 0:
		return fmt.Errorf("%w: device_memory %d <= 0", ErrConfiguration, p.DeviceMemory)
	}
	if err := p.Allocator.MemoryConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

// TreesPerRound returns the number of trees grown in one boosting round.
func (p GBMParam) TreesPerRound() int {
	return p.NumClass * p.NParallelTrees
}

// LogLevel maps Verbose to a log level.
func (p GBMParam) LogLevel() slog.Level {
	switch {
	case p.Verbose <= 0:
		return slog.LevelWarn
	case p.Verbose == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (GBMParam, error) {
	p := Default()
	//nolint:gosec // G304: config path comes from the user
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: parse %s: %w", ErrConfiguration, path, err)
	}
	return p, nil
}
