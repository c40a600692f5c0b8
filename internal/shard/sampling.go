package shard

import (
	"math/rand/v2"

	"github.com/born-ml/boost/internal/stats"
)

// ColumnSampling marks the columns excluded from the given round. The sample
// depends only on the seed and the round, so every shard computes the same
// global set.
func (s *Shard) ColumnSampling(round int) error {
	ignored, err := s.IgnoredSet.DeviceData(s.Device)
	if err != nil {
		return err
	}
	clear(ignored)
	rate := s.Param.ColumnSamplingRate
	if rate >= 1 || s.nColumns == 0 {
		return nil
	}
	keep := max(1, int(rate*float32(s.nColumns)))
	rng := rand.New(rand.NewPCG(s.Param.Seed, uint64(round)))
	for _, c := range rng.Perm(s.nColumns)[keep:] {
		ignored[c] = true
	}
	return nil
}

// RowSampling draws a bootstrap sample of the instances for tree t of the
// given round and weights every gradient pair by its draw count. Rows never
// drawn stay out of split search but are still routed and predicted. Like
// ColumnSampling, every shard draws the same sample. Must follow Reset.
func (s *Shard) RowSampling(round, t int) error {
	if !s.Param.Bagging {
		return nil
	}
	bag, err := s.Bag.DeviceData(s.Device)
	if err != nil {
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

	clear(bag)
	n := len(bag)
	rng := rand.New(rand.NewPCG(^s.Param.Seed, uint64(round)<<32|uint64(t)))
	for range n {
		bag[rng.IntN(n)]++
	}
	for i, c := range bag {
		gh[i] = gh[i].Scale(float32(c))
	}
	sum := stats.Sum(gh)
	nodes[0].SumGH = sum
	nodes[0].BaseWeight = sum.Weight(s.Param.Lambda)
	return nil
}
