package shard

import (
	"math"
)

// buildCuts derives the histogram thresholds of every owned column from its
// sorted values: at most max_num_bin-1 of the distinct values, always keeping
// the minimum, followed by the next float above the maximum.
func (s *Shard) buildCuts() error {
	ptr, err := s.Columns.CSCColPtr.DeviceData(s.Device)
	if err != nil {
		return err
	}
	val, err := s.Columns.CSCVal.DeviceData(s.Device)
	if err != nil {
		return err
	}
	s.cuts = make([][]float32, s.Columns.NColumn)
	for c := range s.cuts {
		s.cuts[c] = columnCuts(val[ptr[c]:ptr[c+1]], s.Param.MaxNumBin)
	}
	return nil
}

func columnCuts(sorted []float32, maxNumBin int) []float32 {
	if len(sorted) == 0 {
		return nil
	}
	var uniq []float32
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			uniq = append(uniq, v)
		}
	}
	top := uniq[len(uniq)-1]
	if m := maxNumBin - 1; len(uniq) > m {
		picked := make([]float32, m)
		for i := range picked {
			picked[i] = uniq[i*len(uniq)/m]
		}
		uniq = picked
	}
	return append(uniq, math.Nextafter32(top, float32(math.Inf(1))))
}
