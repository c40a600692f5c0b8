// Package split describes candidate node splits and their cross-shard reduction.
package split

import (
	"fmt"

	"github.com/born-ml/boost/internal/stats"
)

// Point is one candidate binary split of one tree node.
type Point struct {
	Gain         float32
	FeaMissingGH stats.GHPair // summed pairs of instances missing the feature
	RchSumGH     stats.GHPair // right child sum, missing included when DefaultRight
	DefaultRight bool
	NID          int32
	SplitFeaID   int32
	Fval         float32 // threshold for exact search
	SplitBid     uint8   // threshold bin for histogram search
}

// NewPoint returns the "no improvement found" sentinel.
func NewPoint() Point {
	return Point{NID: -1, SplitFeaID: -1}
}

// IsSentinel reports whether p carries no feature.
func (p Point) IsSentinel() bool {
	return p.SplitFeaID == -1
}

// String formats the point as gain/feature/nid/rch_sum_gh.
func (p Point) String() string {
	return fmt.Sprintf("%g/%d/%d/%s", p.Gain, p.SplitFeaID, p.NID, p.RchSumGH)
}

// Better reports whether a wins over b for the same node. A real feature beats
// the sentinel whatever the gains; otherwise the higher gain wins and ties go
// to the smaller feature id, then the smaller threshold, then missing-left.
func Better(a, b Point) bool {
	switch {
	case a.IsSentinel():
		return false
	case b.IsSentinel():
		return true
	case a.Gain != b.Gain:
		return a.Gain > b.Gain
	case a.SplitFeaID != b.SplitFeaID:
		return a.SplitFeaID < b.SplitFeaID
	case a.Fval != b.Fval:
		return a.Fval < b.Fval
	case a.SplitBid != b.SplitBid:
		return a.SplitBid < b.SplitBid
	default:
		return !a.DefaultRight && b.DefaultRight
	}
}
