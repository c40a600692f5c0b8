package serialization

import (
	"fmt"
	"sort"

	"github.com/born-ml/boost/internal/tree"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTreeCount  = 1_000_000         // Maximum number of trees in a file
	MaxTreeNodes  = 1<<22 - 1         // Node capacity of a depth-21 tree
)

// ValidationLevel controls the strictness of validation.
type ValidationLevel int

const (
	// ValidationStrict performs all validation checks (default, recommended for production).
	ValidationStrict ValidationLevel = iota
	// ValidationNormal performs basic validation checks only.
	ValidationNormal
	// ValidationNone skips validation (dangerous! Use only with trusted input).
	ValidationNone
)

// ValidateTreeOffsets checks for overlapping tree offsets and out-of-bounds access.
func ValidateTreeOffsets(trees []TreeMeta, dataSize int64) error {
	if len(trees) > MaxTreeCount {
		return &ValidationError{
			Type:    "too_many_trees",
			Details: fmt.Sprintf("got %d, max %d", len(trees), MaxTreeCount),
			Err:     ErrTooManyTrees,
		}
	}

	sorted := make([]TreeMeta, len(trees))
	copy(sorted, trees)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tree:    t.Name(),
				Details: fmt.Sprintf("offset=%d, size=%d (negative values not allowed)", t.Offset, t.Size),
				Err:     ErrNegativeOffset,
			}
		}
		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tree:    t.Name(),
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
				Err:     ErrOutOfBounds,
			}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Type:  "offset_overlap",
					Tree:  t.Name(),
					Tree2: next.Name(),
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
					Err: ErrOffsetOverlap,
				}
			}
		}
	}
	return nil
}

// ValidateTreeLayout checks that trees are listed round-major with
// num_class * n_parallel_trees trees per round and that every size matches
// its node count.
func ValidateTreeLayout(h *Header) error {
	numClass, perRound := h.Param.NumClass, h.Param.TreesPerRound()
	if numClass < 1 || perRound < 1 || h.Rounds < 0 || len(h.Trees) != h.Rounds*perRound {
		return &ValidationError{
			Type: "tree_count",
			Details: fmt.Sprintf("%d trees for %d rounds of %d classes and %d parallel trees",
				len(h.Trees), h.Rounds, numClass, h.Param.NParallelTrees),
			Err: ErrInvalidTree,
		}
	}
	for i, t := range h.Trees {
		j := i % perRound
		if t.Round != i/perRound || t.Class != j%numClass || t.Tree != j/numClass {
			return &ValidationError{
				Type:    "tree_order",
				Tree:    t.Name(),
				Details: fmt.Sprintf("listed at position %d", i),
				Err:     ErrInvalidTree,
			}
		}
		if t.NumNodes < 1 || t.NumNodes > MaxTreeNodes || t.Size != int64(t.NumNodes)*NodeRecordSize {
			return &ValidationError{
				Type:    "tree_size",
				Tree:    t.Name(),
				Details: fmt.Sprintf("%d nodes in %d bytes", t.NumNodes, t.Size),
				Err:     ErrInvalidTree,
			}
		}
	}
	return nil
}

// ValidateTreeTopology checks the decoded nodes of one tree.
func ValidateTreeTopology(meta TreeMeta, t tree.Tree) error {
	if err := t.Validate(); err != nil {
		return &ValidationError{
			Type:    "tree_topology",
			Tree:    meta.Name(),
			Details: err.Error(),
			Err:     ErrInvalidTree,
		}
	}
	return nil
}

// ValidateHeader performs comprehensive header validation.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}
	if len(h.Trees) > MaxTreeCount {
		return &ValidationError{
			Type:    "too_many_trees",
			Details: fmt.Sprintf("got %d, max %d", len(h.Trees), MaxTreeCount),
			Err:     ErrTooManyTrees,
		}
	}
	if err := ValidateTreeLayout(h); err != nil {
		return err
	}

	// Offsets are only checked in strict mode.
	if level == ValidationStrict {
		if err := ValidateTreeOffsets(h.Trees, dataSize); err != nil {
			return err
		}
	}
	return nil
}
