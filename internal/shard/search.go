package shard

import (
	"math"
	"sort"

	"github.com/born-ml/boost/internal/parallel"
	"github.com/born-ml/boost/internal/split"
	"github.com/born-ml/boost/internal/stats"
	"github.com/born-ml/boost/internal/tree"
)

// levelState is the per-node view of the open level shared by all columns.
type levelState struct {
	start  int
	width  int
	sum    []stats.GHPair
	count  []int
	open   []bool
	bag    []uint32 // nil without bagging; 0 marks an out-of-bag row
	nid    []int32
	gh     []stats.GHPair
	lambda float32
	mcw    float32
}

// FindSplit writes the best local split of every open node of the current
// level into SP. Columns owned by this shard and not ignored are searched;
// nodes without a valid candidate keep the sentinel.
func (s *Shard) FindSplit() error {
	ls, err := s.levelState()
	if err != nil {
		return err
	}
	ptr, err := s.Columns.CSCColPtr.DeviceData(s.Device)
	if err != nil {
		return err
	}
	val, err := s.Columns.CSCVal.DeviceData(s.Device)
	if err != nil {
		return err
	}
	rowIdx, err := s.Columns.CSCRowIdx.DeviceData(s.Device)
	if err != nil {
		return err
	}
	ignored, err := s.IgnoredSet.DeviceData(s.Device)
	if err != nil {
		return err
	}

	nCol := s.Columns.NColumn
	local := make([][]split.Point, nCol)
	parallel.For(nCol, func(c int) {
		fea := s.Columns.ColumnOffset + c
		if ignored[fea] {
			return
		}
		var cuts []float32
		if s.cuts != nil {
			cuts = s.cuts[c]
		}
		lo, hi := ptr[c], ptr[c+1]
		local[c] = ls.searchColumn(int32(fea), val[lo:hi], rowIdx[lo:hi], cuts, s.cuts != nil)
	}, s.colPar)

	sp, err := s.SP.DeviceData(s.Device)
	if err != nil {
		return err
	}
	for j := range ls.width {
		sp[j] = split.NewPoint()
	}
	for _, points := range local {
		for j, p := range points {
			if split.Better(p, sp[j]) {
				sp[j] = p
			}
		}
	}
	return nil
}

func (s *Shard) levelState() (*levelState, error) {
	nodes, err := s.Tree.DeviceData(s.Device)
	if err != nil {
		return nil, err
	}
	nid, err := s.Stats.NID.DeviceData(s.Device)
	if err != nil {
		return nil, err
	}
	gh, err := s.Stats.GH.DeviceData(s.Device)
	if err != nil {
		return nil, err
	}
	bag, err := s.Bag.DeviceData(s.Device)
	if err != nil {
		return nil, err
	}
	start, end := tree.LevelRange(s.level)
	ls := &levelState{
		start:  start,
		width:  end - start,
		sum:    make([]stats.GHPair, end-start),
		count:  make([]int, end-start),
		open:   make([]bool, end-start),
		bag:    bag,
		nid:    nid,
		gh:     gh,
		lambda: s.Param.Lambda,
		mcw:    s.Param.MinChildWeight,
	}
	for j := range ls.width {
		n := nodes[start+j]
		ls.open[j] = n.Valid && n.State == tree.Open
		ls.sum[j] = n.SumGH
	}
	for r, id := range nid {
		if ls.outOfBag(int32(r)) {
			continue
		}
		if j := int(id) - start; j >= 0 && j < ls.width {
			ls.count[j]++
		}
	}
	return ls, nil
}

func (ls *levelState) outOfBag(r int32) bool {
	return ls.bag != nil && ls.bag[r] == 0
}

// node returns the level-local index of row r, or -1 when r is not in an
// open node of the level or was not drawn for this tree.
func (ls *levelState) node(r int32) int {
	if ls.outOfBag(r) {
		return -1
	}
	j := int(ls.nid[r]) - ls.start
	if j < 0 || j >= ls.width || !ls.open[j] {
		return -1
	}
	return j
}

// searchColumn scans one value-sorted column. A candidate threshold t sends
// values < t left; thresholds are tried between every pair of distinct
// consecutive values of a node, below its first value and above its last.
func (ls *levelState) searchColumn(fea int32, val []float32, rows []int32, cuts []float32, hist bool) []split.Point {
	best := make([]split.Point, ls.width)
	for j := range best {
		best[j] = split.NewPoint()
	}

	present := make([]stats.GHPair, ls.width)
	presentCount := make([]int, ls.width)
	for _, r := range rows {
		if j := ls.node(r); j >= 0 {
			present[j] = present[j].Add(ls.gh[r])
			presentCount[j]++
		}
	}

	left := make([]stats.GHPair, ls.width)
	leftCount := make([]int, ls.width)
	last := make([]float32, ls.width)
	for j := range last {
		last[j] = float32(math.Inf(-1))
	}

	try := func(j int, a, b float32) {
		fval, bid, ok := threshold(a, b, cuts, hist)
		if !ok {
			return
		}
		missing := ls.sum[j].Sub(present[j])
		missingCount := ls.count[j] - presentCount[j]
		for _, dr := range []bool{false, true} {
			l, lc := left[j], leftCount[j]
			if !dr {
				l, lc = l.Add(missing), lc+missingCount
			}
			r, rc := ls.sum[j].Sub(l), ls.count[j]-lc
			if lc == 0 || rc == 0 || l.H < ls.mcw || r.H < ls.mcw {
				continue
			}
			p := split.Point{
				Gain:         l.Score(ls.lambda) + r.Score(ls.lambda) - ls.sum[j].Score(ls.lambda),
				FeaMissingGH: missing,
				RchSumGH:     r,
				DefaultRight: dr,
				NID:          int32(ls.start + j),
				SplitFeaID:   fea,
				Fval:         fval,
				SplitBid:     bid,
			}
			if split.Better(p, best[j]) {
				best[j] = p
			}
		}
	}

	for k, r := range rows {
		j := ls.node(r)
		if j < 0 {
			continue
		}
		v := val[k]
		if leftCount[j] == 0 || v != last[j] {
			try(j, last[j], v)
		}
		left[j] = left[j].Add(ls.gh[r])
		leftCount[j]++
		last[j] = v
	}
	for j := range ls.width {
		if presentCount[j] > 0 {
			try(j, last[j], float32(math.Inf(1)))
		}
	}
	return best
}

// threshold picks the split value between consecutive values a < b of a node.
// Exact search uses b itself, or the next float above a when b is unbounded.
// Histogram search uses the first cut above a, provided it does not exceed b.
func threshold(a, b float32, cuts []float32, hist bool) (float32, uint8, bool) {
	if !hist {
		if math.IsInf(float64(b), 1) {
			return math.Nextafter32(a, b), 0, true
		}
		return b, 0, true
	}
	i := sort.Search(len(cuts), func(i int) bool { return cuts[i] > a })
	if i == len(cuts) || cuts[i] > b {
		return 0, 0, false
	}
	return cuts[i], uint8(i), true
}
