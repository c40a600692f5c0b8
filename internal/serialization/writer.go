package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
)

const engineVersion = "0.1.0" // Current engine version

// ModelWriter writes models to a model file.
type ModelWriter struct {
	file   *os.File
	closed bool
}

// NewModelWriter creates a new model file writer.
func NewModelWriter(path string) (*ModelWriter, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &ModelWriter{file: file}, nil
}

// WriteModel writes m with optional custom metadata.
func (w *ModelWriter) WriteModel(m *Model, metadata map[string]string) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	_, err := WriteTo(w.file, m, metadata)
	return err
}

// Close closes the underlying file.
func (w *ModelWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Save writes m to path.
func Save(path string, m *Model, metadata map[string]string) error {
	w, err := NewModelWriter(path)
	if err != nil {
		return err
	}
	if err := w.WriteModel(m, metadata); err != nil {
		_ = w.Close() // Best effort close on error
		return err
	}
	return w.Close()
}

// WriteTo encodes m to out and returns the header that was written.
func WriteTo(out io.Writer, m *Model, metadata map[string]string) (Header, error) {
	header := Header{
		FormatVersion: FormatVersion,
		EngineVersion: engineVersion,
		RunID:         uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Param:         m.Param,
		Rounds:        len(m.Trees),
		Metadata:      metadata,
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	// Encode node data and tree offsets
	var data []byte
	perRound, numClass := m.Param.TreesPerRound(), m.Param.NumClass
	for r, set := range m.Trees {
		if len(set) != perRound {
			return Header{}, fmt.Errorf("%w: round %d has %d trees, want %d",
				ErrInvalidTree, r, len(set), perRound)
		}
		for j, t := range set {
			meta := TreeMeta{Round: r, Class: j % numClass, Tree: j / numClass}
			if len(t.Nodes) == 0 {
				return Header{}, fmt.Errorf("%w: %s has no nodes", ErrInvalidTree, meta.Name())
			}
			offset := int64(len(data))
			for _, n := range t.Nodes {
				data = encodeNode(data, n)
			}
			meta.NumNodes = len(t.Nodes)
			meta.Offset = offset
			meta.Size = int64(len(data)) - offset
			header.Trees = append(header.Trees, meta)
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return Header{}, fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return Header{}, ErrHeaderTooLarge
	}

	flags := uint32(0)
	if len(metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if m.Param.TreeMethod != "exact" {
		flags |= FlagHist
	}

	// Fixed header
	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	sum := ComputeChecksum(data)
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], sum[:])

	var buf bytes.Buffer
	buf.Write(fixed)
	buf.Write(headerJSON)
	buf.Write(make([]byte, padding(int64(FixedHeaderSize+len(headerJSON)))))
	buf.Write(data)
	if _, err := buf.WriteTo(out); err != nil {
		return Header{}, fmt.Errorf("failed to write model: %w", err)
	}
	return header, nil
}
