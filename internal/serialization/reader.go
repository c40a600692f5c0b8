package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/boost/internal/tree"
)

// ModelReader reads models from a model file.
type ModelReader struct {
	file       *os.File
	header     Header
	flags      uint32
	dataOffset int64    // Offset where node data starts
	dataSize   int64    // Size of the data section
	checksum   [32]byte // SHA-256 checksum of the data section
	opts       ReaderOptions
	closed     bool
}

// ReaderOptions configures the behavior of ModelReader.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// NewModelReader creates a new model file reader with default options (strict validation).
func NewModelReader(path string) (*ModelReader, error) {
	return NewModelReaderWithOptions(path, ReaderOptions{
		ValidationLevel: ValidationStrict,
	})
}

// NewModelReaderWithOptions creates a new model file reader with custom options.
func NewModelReaderWithOptions(path string, opts ReaderOptions) (*ModelReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	reader := &ModelReader{file: file, opts: opts}
	if err := reader.parseHeader(); err != nil {
		_ = file.Close() // Best effort close on error
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	if err := ValidateHeader(&reader.header, reader.dataSize, opts.ValidationLevel); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return reader, nil
}

// parseHeader reads the fixed header and the JSON header, then checks the
// data section against the stored checksum.
func (r *ModelReader) parseHeader() error {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r.file, fixed); err != nil {
		return fmt.Errorf("failed to read fixed header: %w", err)
	}
	headerSize, err := r.parseFixed(fixed)
	if err != nil {
		return err
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return fmt.Errorf("failed to read header JSON: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	pos := int64(FixedHeaderSize) + int64(headerSize) //nolint:gosec // G115: bounded by MaxHeaderSize
	r.dataOffset = pos + padding(pos)

	if r.opts.SkipChecksumValidation {
		return nil
	}
	if _, err := r.file.Seek(r.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to node data: %w", err)
	}
	computed, err := ComputeChecksumReader(io.LimitReader(r.file, r.dataSize))
	if err != nil {
		return fmt.Errorf("failed to read node data for checksum: %w", err)
	}
	return ValidateChecksum(computed, r.checksum)
}

// parseFixed decodes the 64-byte fixed header and returns the JSON header size.
func (r *ModelReader) parseFixed(fixed []byte) (uint64, error) {
	if string(fixed[0:4]) != MagicBytes {
		return 0, ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(fixed[4:8]); version != FormatVersion {
		return 0, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	r.flags = binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	if headerSize > MaxHeaderSize {
		return 0, ErrHeaderTooLarge
	}
	r.dataSize = int64(binary.LittleEndian.Uint64(fixed[24:32])) //nolint:gosec // G115: validated against offsets
	copy(r.checksum[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])
	return headerSize, nil
}

// Header returns the file header.
func (r *ModelReader) Header() Header {
	return r.header
}

// Flags returns the format flags of the file.
func (r *ModelReader) Flags() uint32 {
	return r.flags
}

// Metadata returns the metadata map from the header.
func (r *ModelReader) Metadata() map[string]string {
	return r.header.Metadata
}

// ReadTree reads the i-th tree in round-major order.
func (r *ModelReader) ReadTree(i int) (tree.Tree, error) {
	if r.closed {
		return tree.Tree{}, fmt.Errorf("reader is closed")
	}
	if i < 0 || i >= len(r.header.Trees) {
		return tree.Tree{}, fmt.Errorf("tree %d not found", i)
	}
	meta := r.header.Trees[i]

	data := make([]byte, meta.Size)
	if _, err := r.file.ReadAt(data, r.dataOffset+meta.Offset); err != nil {
		return tree.Tree{}, fmt.Errorf("failed to read %s: %w", meta.Name(), err)
	}
	t, err := decodeTree(meta, data)
	if err != nil {
		return tree.Tree{}, err
	}
	// Node contents are only checked in strict mode.
	if r.opts.ValidationLevel == ValidationStrict {
		if err := ValidateTreeTopology(meta, t); err != nil {
			return tree.Tree{}, err
		}
	}
	return t, nil
}

// ReadModel reads every tree.
func (r *ModelReader) ReadModel() (*Model, error) {
	m := &Model{Param: r.header.Param, Trees: make([][]tree.Tree, r.header.Rounds)}
	for i, meta := range r.header.Trees {
		t, err := r.ReadTree(i)
		if err != nil {
			return nil, err
		}
		m.Trees[meta.Round] = append(m.Trees[meta.Round], t)
	}
	return m, nil
}

// Close closes the reader and the underlying file.
func (r *ModelReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// Load reads the model stored at path with strict validation.
func Load(path string) (*Model, error) {
	r, err := NewModelReader(path)
	if err != nil {
		return nil, err
	}
	m, err := r.ReadModel()
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	return m, err
}

// ReadFrom reads a model from an io.Reader.
// This is useful for reading from buffers or network connections.
func ReadFrom(in io.Reader) (*Model, Header, error) {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(in, fixed); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read fixed header: %w", err)
	}
	var r ModelReader
	headerSize, err := r.parseFixed(fixed)
	if err != nil {
		return nil, Header{}, err
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(in, headerBytes); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, Header{}, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	if err := ValidateHeader(&header, r.dataSize, ValidationStrict); err != nil {
		return nil, Header{}, err
	}

	// Skip padding
	pos := int64(FixedHeaderSize) + int64(headerSize) //nolint:gosec // G115: bounded by MaxHeaderSize
	if _, err := io.CopyN(io.Discard, in, padding(pos)); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read padding: %w", err)
	}

	data := make([]byte, r.dataSize)
	if _, err := io.ReadFull(in, data); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read node data: %w", err)
	}
	if err := ValidateChecksum(ComputeChecksum(data), r.checksum); err != nil {
		return nil, Header{}, err
	}

	m := &Model{Param: header.Param, Trees: make([][]tree.Tree, header.Rounds)}
	for _, meta := range header.Trees {
		t, err := decodeTree(meta, data[meta.Offset:meta.Offset+meta.Size])
		if err != nil {
			return nil, Header{}, err
		}
		if err := ValidateTreeTopology(meta, t); err != nil {
			return nil, Header{}, err
		}
		m.Trees[meta.Round] = append(m.Trees[meta.Round], t)
	}
	return m, header, nil
}

func decodeTree(meta TreeMeta, data []byte) (tree.Tree, error) {
	nodes := make([]tree.Node, meta.NumNodes)
	rd := bytes.NewReader(data)
	rec := make([]byte, NodeRecordSize)
	for i := range nodes {
		if _, err := io.ReadFull(rd, rec); err != nil {
			return tree.Tree{}, fmt.Errorf("%s node %d: %w", meta.Name(), i, err)
		}
		n, err := decodeNode(rec)
		if err != nil {
			return tree.Tree{}, fmt.Errorf("%s node %d: %w", meta.Name(), i, err)
		}
		nodes[i] = n
	}
	return tree.Tree{Nodes: nodes}, nil
}
