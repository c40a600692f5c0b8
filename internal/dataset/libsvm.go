package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Feature numbering of a LibSVM file.
const (
	AutoBase = -1 // 0-based when index 0 appears, 1-based otherwise
	ZeroBase = 0
	OneBase  = 1
)

// LoadLibSVM reads a LibSVM text file, detecting its numbering.
func LoadLibSVM(path string) (*DataSet, error) {
	return LoadLibSVMBase(path, AutoBase)
}

// LoadLibSVMBase reads a LibSVM text file numbered from base.
func LoadLibSVMBase(path string, base int) (*DataSet, error) {
	//nolint:gosec // G304: dataset path comes from the user
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return ReadLibSVMBase(f, base)
}

// ReadLibSVM parses "label idx:value ..." lines. Indices are 1-based unless
// index 0 appears anywhere, in which case the file is taken as 0-based.
func ReadLibSVM(r io.Reader) (*DataSet, error) {
	return ReadLibSVMBase(r, AutoBase)
}

// ReadLibSVMBase parses LibSVM lines whose indices start at base. The base
// used ends up in DataSet.IndexBase, so test files can be read the way the
// training file was.
func ReadLibSVMBase(r io.Reader, base int) (*DataSet, error) {
	if base < AutoBase || base > OneBase {
		return nil, fmt.Errorf("index base %d not in {-1, 0, 1}", base)
	}
	d := &DataSet{}
	zeroBased := false
	maxIndex := int32(-1)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if k := strings.IndexByte(text, '#'); k >= 0 {
			text = text[:k]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		label, err := strconv.ParseFloat(fields[0], 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad label %q: %w", line, fields[0], err)
		}
		row := make([]Entry, 0, len(fields)-1)
		for _, f := range fields[1:] {
			idxStr, valStr, ok := strings.Cut(f, ":")
			if !ok {
				return nil, fmt.Errorf("line %d: bad pair %q", line, f)
			}
			idx, err := strconv.ParseInt(idxStr, 10, 32)
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("line %d: bad index %q", line, idxStr)
			}
			val, err := strconv.ParseFloat(valStr, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad value %q: %w", line, valStr, err)
			}
			if idx == 0 {
				if base == OneBase {
					return nil, fmt.Errorf("line %d: index 0 in a 1-based file", line)
				}
				zeroBased = true
			}
			maxIndex = max(maxIndex, int32(idx))
			row = append(row, Entry{Index: int32(idx), Value: float32(val)})
		}
		sort.Slice(row, func(a, b int) bool { return row[a].Index < row[b].Index })
		d.Instances = append(d.Instances, row)
		d.Y = append(d.Y, float32(label))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	if base == AutoBase {
		base = OneBase
		if zeroBased {
			base = ZeroBase
		}
	}
	d.IndexBase = base
	d.NFeatures = int(maxIndex) + 1
	if base == OneBase {
		for _, row := range d.Instances {
			for j := range row {
				row[j].Index--
			}
		}
		d.NFeatures = max(int(maxIndex), 0)
	}
	return d, d.Validate()
}
