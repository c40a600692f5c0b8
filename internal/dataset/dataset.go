// Package dataset holds training instances in row-major sparse form.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrEmpty reports a dataset without instances.
var ErrEmpty = errors.New("dataset has no instances")

// Entry is one present feature value of an instance.
type Entry struct {
	Index int32
	Value float32
}

// DataSet is a set of sparse instances with labels. Entries of an instance
// are sorted by feature index; absent features are missing values.
type DataSet struct {
	Instances [][]Entry
	Y         []float32
	NFeatures int
	IndexBase int // numbering of the source file, AutoBase when not read from one
}

// NInstances returns the number of instances.
func (d *DataSet) NInstances() int {
	return len(d.Instances)
}

// NNZ returns the number of present values.
func (d *DataSet) NNZ() int {
	n := 0
	for _, row := range d.Instances {
		n += len(row)
	}
	return n
}

// Validate checks that labels match instances and indices are in range.
func (d *DataSet) Validate() error {
	if len(d.Instances) == 0 {
		return ErrEmpty
	}
	if len(d.Y) != len(d.Instances) {
		return fmt.Errorf("%d labels for %d instances", len(d.Y), len(d.Instances))
	}
	for i, row := range d.Instances {
		for j, e := range row {
			if e.Index < 0 || int(e.Index) >= d.NFeatures {
				return fmt.Errorf("instance %d: feature %d out of range [0, %d)", i, e.Index, d.NFeatures)
			}
			if j > 0 && row[j-1].Index >= e.Index {
				return fmt.Errorf("instance %d: feature indices not increasing", i)
			}
		}
	}
	return nil
}

// Lookup returns a feature accessor for instance i.
func (d *DataSet) Lookup(i int) func(fid int32) (float32, bool) {
	row := d.Instances[i]
	return func(fid int32) (float32, bool) {
		k := sort.Search(len(row), func(j int) bool { return row[j].Index >= fid })
		if k < len(row) && row[k].Index == fid {
			return row[k].Value, true
		}
		return 0, false
	}
}

// FromDense builds a dataset from a dense matrix. NaN marks a missing value.
func FromDense(x [][]float32, y []float32) (*DataSet, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%d rows for %d labels", len(x), len(y))
	}
	d := &DataSet{
		Instances: make([][]Entry, len(x)),
		Y:         append([]float32(nil), y...),
		IndexBase: AutoBase,
	}
	for i, row := range x {
		d.NFeatures = max(d.NFeatures, len(row))
		entries := make([]Entry, 0, len(row))
		for j, v := range row {
			if math.IsNaN(float64(v)) {
				continue
			}
			entries = append(entries, Entry{Index: int32(j), Value: v})
		}
		d.Instances[i] = entries
	}
	return d, d.Validate()
}
