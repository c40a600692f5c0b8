package serialization

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/born-ml/boost/internal/param"
	"github.com/born-ml/boost/internal/stats"
	"github.com/born-ml/boost/internal/tree"
)

// Format constants.
const (
	MagicBytes      = "TGBM"
	FormatVersion   = 1
	HeaderAlignment = 64   // Align node data to 64 bytes
	FixedHeaderSize = 64   // Fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
	NodeRecordSize  = 28   // Encoded size of one tree.Node
)

// Flags for the model file.
const (
	FlagHasMetadata uint32 = 1 << 0 // bit 0: custom metadata included
	FlagHist        uint32 = 1 << 1 // bit 1: thresholds carry histogram bin ids
)

// Model is a trained model: one slice of num_class * n_parallel_trees trees
// per round, tree j belonging to class j % num_class.
type Model struct {
	Param param.GBMParam
	Trees [][]tree.Tree
}

// Header represents the JSON header of a model file.
type Header struct {
	FormatVersion int               `json:"format_version"` // Version of the model format
	EngineVersion string            `json:"engine_version"` // Version of the engine that wrote the file
	RunID         string            `json:"run_id"`         // Unique id of the training run
	CreatedAt     time.Time         `json:"created_at"`     // When the file was created
	Param         param.GBMParam    `json:"param"`          // Training parameters
	Rounds        int               `json:"rounds"`         // Number of boosting rounds
	Trees         []TreeMeta        `json:"trees"`          // Tree metadata, round-major
	Metadata      map[string]string `json:"metadata"`       // Custom metadata
}

// TreeMeta describes one tree in the data section.
type TreeMeta struct {
	Round    int   `json:"round"`     // Boosting round
	Class    int   `json:"class"`     // Output class
	Tree     int   `json:"tree"`      // Parallel tree of the class
	NumNodes int   `json:"num_nodes"` // Node capacity
	Offset   int64 `json:"offset"`    // Offset in the data section
	Size     int64 `json:"size"`      // Size in bytes
}

// Name identifies the tree in error messages.
func (m TreeMeta) Name() string {
	if m.Tree > 0 {
		return fmt.Sprintf("booster[%d][%d.%d]", m.Round, m.Class, m.Tree)
	}
	return fmt.Sprintf("booster[%d][%d]", m.Round, m.Class)
}

// encodeNode appends the little-endian record of n to buf.
func encodeNode(buf []byte, n tree.Node) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(n.SumGH.G))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(n.SumGH.H))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(n.Gain))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(n.BaseWeight))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(n.SplitValue))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(n.SplitFeature)) //nolint:gosec // G115: bit pattern round-trips
	return append(buf, n.SplitBid, boolByte(n.DefaultRight), boolByte(n.Valid), byte(n.State))
}

// decodeNode reads one record produced by encodeNode.
func decodeNode(b []byte) (tree.Node, error) {
	if len(b) < NodeRecordSize {
		return tree.Node{}, fmt.Errorf("%w: short node record of %d bytes", ErrInvalidTree, len(b))
	}
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }
	n := tree.Node{
		SumGH:        stats.GHPair{G: f(0), H: f(4)},
		Gain:         f(8),
		BaseWeight:   f(12),
		SplitValue:   f(16),
		SplitFeature: int32(binary.LittleEndian.Uint32(b[20:])), //nolint:gosec // G115: bit pattern round-trips
		SplitBid:     b[24],
		DefaultRight: b[25] != 0,
		Valid:        b[26] != 0,
		State:        tree.State(b[27]),
	}
	if n.State > tree.Split {
		return tree.Node{}, fmt.Errorf("%w: unknown node state %d", ErrInvalidTree, b[27])
	}
	return n, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func padding(pos int64) int64 {
	return (HeaderAlignment - (pos % HeaderAlignment)) % HeaderAlignment
}
