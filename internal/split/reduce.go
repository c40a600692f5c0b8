package split

import "fmt"

// Reduce gathers one proposal slice per shard, all indexed by the same open
// node positions, and returns the winning point per position. The result is
// meant to be broadcast unchanged to every shard.
func Reduce(proposals [][]Point) ([]Point, error) {
	if len(proposals) == 0 {
		return nil, nil
	}
	n := len(proposals[0])
	best := make([]Point, n)
	for i := range best {
		best[i] = NewPoint()
	}
	for s, local := range proposals {
		if len(local) != n {
			return nil, fmt.Errorf("shard %d proposed %d points, want %d", s, len(local), n)
		}
		for i, p := range local {
			if Better(p, best[i]) {
				best[i] = p
			}
		}
	}
	return best, nil
}
