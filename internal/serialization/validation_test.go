package serialization

import (
	"errors"
	"strings"
	"testing"

	"github.com/born-ml/boost/internal/param"
)

func validHeader() *Header {
	p := param.Default()
	p.NumClass = 2
	return &Header{
		Param:  p,
		Rounds: 2,
		Trees: []TreeMeta{
			{Round: 0, Class: 0, NumNodes: 3, Offset: 0, Size: 3 * NodeRecordSize},
			{Round: 0, Class: 1, NumNodes: 3, Offset: 84, Size: 3 * NodeRecordSize},
			{Round: 1, Class: 0, NumNodes: 1, Offset: 168, Size: NodeRecordSize},
			{Round: 1, Class: 1, NumNodes: 1, Offset: 196, Size: NodeRecordSize},
		},
	}
}

// TestValidateTreeOffsets verifies overlap and bounds detection.
func TestValidateTreeOffsets(t *testing.T) {
	tests := []struct {
		name     string
		trees    []TreeMeta
		dataSize int64
		want     error
	}{
		{
			name:     "adjacent",
			trees:    []TreeMeta{{Offset: 0, Size: 28}, {Round: 1, Offset: 28, Size: 28}},
			dataSize: 56,
		},
		{
			name:     "overlap by one byte",
			trees:    []TreeMeta{{Offset: 0, Size: 28}, {Round: 1, Offset: 27, Size: 28}},
			dataSize: 56,
			want:     ErrOffsetOverlap,
		},
		{
			name:     "out of bounds",
			trees:    []TreeMeta{{Offset: 28, Size: 28}},
			dataSize: 55,
			want:     ErrOutOfBounds,
		},
		{
			name:     "negative offset",
			trees:    []TreeMeta{{Offset: -1, Size: 28}},
			dataSize: 56,
			want:     ErrNegativeOffset,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTreeOffsets(tt.trees, tt.dataSize)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got: %v", tt.want, err)
			}
		})
	}
}

// TestValidateHeader_Strict accepts a consistent header and rejects bad layouts.
func TestValidateHeader_Strict(t *testing.T) {
	if err := ValidateHeader(validHeader(), 224, ValidationStrict); err != nil {
		t.Fatalf("Expected valid header, got: %v", err)
	}

	h := validHeader()
	h.Trees[1], h.Trees[2] = h.Trees[2], h.Trees[1]
	if err := ValidateHeader(h, 224, ValidationStrict); !errors.Is(err, ErrInvalidTree) {
		t.Errorf("Expected ErrInvalidTree for misordered trees, got: %v", err)
	}

	h = validHeader()
	h.Rounds = 3
	if err := ValidateHeader(h, 224, ValidationStrict); !errors.Is(err, ErrInvalidTree) {
		t.Errorf("Expected ErrInvalidTree for missing trees, got: %v", err)
	}

	h = validHeader()
	h.Trees[3].Size = 27
	if err := ValidateHeader(h, 224, ValidationStrict); !errors.Is(err, ErrInvalidTree) {
		t.Errorf("Expected ErrInvalidTree for size mismatch, got: %v", err)
	}

	if err := ValidateHeader(validHeader(), 200, ValidationStrict); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Expected ErrOutOfBounds, got: %v", err)
	}
}

// TestValidateTreeLayout_ParallelTrees checks class-major order inside a round.
func TestValidateTreeLayout_ParallelTrees(t *testing.T) {
	h := validHeader()
	h.Param.NParallelTrees = 2
	h.Rounds = 1
	h.Trees[2] = TreeMeta{Round: 0, Class: 0, Tree: 1, NumNodes: 1, Offset: 168, Size: NodeRecordSize}
	h.Trees[3] = TreeMeta{Round: 0, Class: 1, Tree: 1, NumNodes: 1, Offset: 196, Size: NodeRecordSize}
	if err := ValidateTreeLayout(h); err != nil {
		t.Fatalf("Expected valid layout, got: %v", err)
	}
	if name := h.Trees[3].Name(); name != "booster[0][1.1]" {
		t.Errorf("Unexpected name %q", name)
	}

	h.Trees[3].Tree = 0
	if err := ValidateTreeLayout(h); !errors.Is(err, ErrInvalidTree) {
		t.Errorf("Expected ErrInvalidTree for wrong tree index, got: %v", err)
	}

	h.Trees[3].Tree = 1
	h.Param.NParallelTrees = 0
	if err := ValidateTreeLayout(h); !errors.Is(err, ErrInvalidTree) {
		t.Errorf("Expected ErrInvalidTree without parallel trees, got: %v", err)
	}
}

// TestValidateHeader_Levels verifies that looser levels skip offset checks.
func TestValidateHeader_Levels(t *testing.T) {
	if err := ValidateHeader(validHeader(), 0, ValidationNormal); err != nil {
		t.Errorf("Normal validation should skip offsets, got: %v", err)
	}
	h := validHeader()
	h.Rounds = 7
	if err := ValidateHeader(h, 0, ValidationNone); err != nil {
		t.Errorf("No validation should accept anything, got: %v", err)
	}
}

// TestValidationError_ErrorMessages checks the formatted messages.
func TestValidationError_ErrorMessages(t *testing.T) {
	err := ValidateTreeOffsets([]TreeMeta{
		{Round: 0, Class: 1, Offset: 0, Size: 28},
		{Round: 2, Class: 0, Offset: 10, Size: 28},
	}, 100)
	if err == nil {
		t.Fatal("Expected overlap error")
	}
	msg := err.Error()
	for _, want := range []string{"offset_overlap", "booster[0][1]", "booster[2][0]"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Message %q should contain %q", msg, want)
		}
	}
}
