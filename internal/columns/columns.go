// Package columns stores datasets in compressed sparse column (CSC) form and
// partitions them across devices by column.
package columns

import (
	"errors"
	"fmt"
	"sort"

	"github.com/born-ml/boost/internal/dataset"
	"github.com/born-ml/boost/internal/syncmem"
)

// SparseColumns is a CSC slice of a dataset: one column per feature, covering
// global columns [ColumnOffset, ColumnOffset+NColumn) and every row.
type SparseColumns struct {
	CSCVal    *syncmem.Array[float32]
	CSCRowIdx *syncmem.Array[int32]
	CSCColPtr *syncmem.Array[int32]

	NColumn      int
	NRow         int
	ColumnOffset int
	NNZ          int

	device int
}

func newColumns(alloc *syncmem.Allocators, device, nColumn, nRow, nnz, offset int) *SparseColumns {
	return &SparseColumns{
		CSCVal:       syncmem.NewArray[float32](alloc, device, nnz),
		CSCRowIdx:    syncmem.NewArray[int32](alloc, device, nnz),
		CSCColPtr:    syncmem.NewArray[int32](alloc, device, nColumn+1),
		NColumn:      nColumn,
		NRow:         nRow,
		ColumnOffset: offset,
		NNZ:          nnz,
		device:       device,
	}
}

// Device returns the device the columns are bound to.
func (c *SparseColumns) Device() int {
	return c.device
}

// FromDataset converts a row-major dataset into CSC over the full column range,
// bound to device 0. Rows within a column are ascending.
func FromDataset(alloc *syncmem.Allocators, ds *dataset.DataSet) (*SparseColumns, error) {
	c := newColumns(alloc, 0, ds.NFeatures, ds.NInstances(), ds.NNZ(), 0)

	ptr, err := c.CSCColPtr.HostData()
	if err != nil {
		return nil, err
	}
	for _, row := range ds.Instances {
		for _, e := range row {
			ptr[e.Index+1]++
		}
	}
	for i := 1; i < len(ptr); i++ {
		ptr[i] += ptr[i-1]
	}

	val, err := c.CSCVal.HostData()
	if err != nil {
		return nil, err
	}
	rowIdx, err := c.CSCRowIdx.HostData()
	if err != nil {
		return nil, err
	}
	next := make([]int32, c.NColumn)
	copy(next, ptr[:c.NColumn])
	for i, row := range ds.Instances {
		for _, e := range row {
			k := next[e.Index]
			val[k] = e.Value
			rowIdx[k] = int32(i)
			next[e.Index]++
		}
	}
	return c, nil
}

// ToMultiDevices splits the columns into n contiguous ranges, part i bound to
// device i. The first NColumn%n parts get one extra column. Every part keeps
// all rows.
func (c *SparseColumns) ToMultiDevices(alloc *syncmem.Allocators, n int) ([]*SparseColumns, error) {
	if n < 1 {
		return nil, fmt.Errorf("cannot partition columns over %d devices", n)
	}
	ptr, err := c.CSCColPtr.HostData()
	if err != nil {
		return nil, err
	}
	val, err := c.CSCVal.HostData()
	if err != nil {
		return nil, err
	}
	rowIdx, err := c.CSCRowIdx.HostData()
	if err != nil {
		return nil, err
	}

	parts := make([]*SparseColumns, n)
	base, extra := c.NColumn/n, c.NColumn%n
	start := 0
	for i := range parts {
		width := base
		if i < extra {
			width++
		}
		end := start + width
		lo, hi := ptr[start], ptr[end]

		part := newColumns(alloc, i, width, c.NRow, int(hi-lo), c.ColumnOffset+start)
		localPtr := make([]int32, width+1)
		for j := range localPtr {
			localPtr[j] = ptr[start+j] - lo
		}
		if err := part.CSCColPtr.CopyFrom(i, localPtr); err != nil {
			return nil, err
		}
		if err := part.CSCVal.CopyFrom(i, val[lo:hi]); err != nil {
			return nil, err
		}
		if err := part.CSCRowIdx.CopyFrom(i, rowIdx[lo:hi]); err != nil {
			return nil, err
		}
		parts[i] = part
		start = end
	}
	return parts, nil
}

// SortByValue orders the entries of every column by value, ties by row.
func (c *SparseColumns) SortByValue() error {
	ptr, err := c.CSCColPtr.DeviceData(c.device)
	if err != nil {
		return err
	}
	val, err := c.CSCVal.DeviceData(c.device)
	if err != nil {
		return err
	}
	rowIdx, err := c.CSCRowIdx.DeviceData(c.device)
	if err != nil {
		return err
	}
	for col := range c.NColumn {
		lo, hi := ptr[col], ptr[col+1]
		sort.Sort(entries{val: val[lo:hi], row: rowIdx[lo:hi]})
	}
	return nil
}

// Validate checks the CSC invariants.
func (c *SparseColumns) Validate() error {
	ptr, err := c.CSCColPtr.HostData()
	if err != nil {
		return err
	}
	if len(ptr) != c.NColumn+1 {
		return fmt.Errorf("col_ptr has %d entries for %d columns", len(ptr), c.NColumn)
	}
	if ptr[0] != 0 || int(ptr[c.NColumn]) != c.NNZ {
		return fmt.Errorf("col_ptr spans [%d, %d], want [0, %d]", ptr[0], ptr[c.NColumn], c.NNZ)
	}
	for i := 1; i < len(ptr); i++ {
		if ptr[i] < ptr[i-1] {
			return fmt.Errorf("col_ptr decreases at column %d", i-1)
		}
	}
	if c.CSCVal.Len() != c.NNZ || c.CSCRowIdx.Len() != c.NNZ {
		return fmt.Errorf("val/row_idx lengths %d/%d, want %d", c.CSCVal.Len(), c.CSCRowIdx.Len(), c.NNZ)
	}
	return nil
}

// Release frees the CSC buffers.
func (c *SparseColumns) Release() error {
	return errors.Join(c.CSCVal.Release(), c.CSCRowIdx.Release(), c.CSCColPtr.Release())
}

// entries sorts one column's values and row indices together.
type entries struct {
	val []float32
	row []int32
}

func (e entries) Len() int { return len(e.val) }

func (e entries) Less(i, j int) bool {
	if e.val[i] != e.val[j] {
		return e.val[i] < e.val[j]
	}
	return e.row[i] < e.row[j]
}

func (e entries) Swap(i, j int) {
	e.val[i], e.val[j] = e.val[j], e.val[i]
	e.row[i], e.row[j] = e.row[j], e.row[i]
}
