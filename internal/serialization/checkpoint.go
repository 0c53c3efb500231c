// Package serialization reads and writes optimizer checkpoints.
//
// The .kron file format:
//
//	magic "KRON" (4 bytes)
//	format version (uint32, little endian)
//	header length (uint32, little endian)
//	JSON header (tensor metadata + SHA-256 checksum of the data section)
//	data section (raw tensor bytes, in header order)
//
// A checkpoint is a flat map from state names (e.g. "group.0.C",
// "group.0.momentum.1", "step") to tensors, matching the optimizer's
// StateDict/LoadStateDict convention.
package serialization

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/kron-ml/kron/internal/tensor"
)

// Format constants.
const (
	MagicBytes    = "KRON"
	FormatVersion = 1
)

// ErrChecksumMismatch indicates the data section does not match the stored
// checksum.
var ErrChecksumMismatch = errors.New("checksum mismatch: checkpoint is corrupted")

// Header is the JSON header of a .kron file.
type Header struct {
	FormatVersion int          `json:"format_version"`
	Checksum      string       `json:"checksum"` // hex SHA-256 of the data section
	Tensors       []TensorMeta `json:"tensors"`
}

// TensorMeta describes one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float32:
		return "float32"
	case tensor.Float64:
		return "float64"
	default:
		return "unknown"
	}
}

func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case "float32":
		return tensor.Float32, true
	case "float64":
		return tensor.Float64, true
	default:
		return 0, false
	}
}

// Save writes a state dict to path. Entries are laid out in sorted name
// order so the same state always produces the same bytes.
func Save(path string, state map[string]*tensor.RawTensor) error {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	var data bytes.Buffer
	metas := make([]TensorMeta, 0, len(names))
	for _, name := range names {
		raw := state[name]
		offset := int64(data.Len())
		if _, err := data.Write(raw.Bytes()); err != nil {
			return err
		}
		metas = append(metas, TensorMeta{
			Name:   name,
			DType:  dtypeToString(raw.DType()),
			Shape:  raw.Shape(),
			Offset: offset,
			Size:   int64(len(raw.Bytes())),
		})
	}

	sum := sha256.Sum256(data.Bytes())
	header := Header{
		FormatVersion: FormatVersion,
		Checksum:      hex.EncodeToString(sum[:]),
		Tensors:       metas,
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}

	var file bytes.Buffer
	file.WriteString(MagicBytes)
	if err := binary.Write(&file, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return err
	}
	if err := binary.Write(&file, binary.LittleEndian, uint32(len(headerJSON))); err != nil {
		return err
	}
	file.Write(headerJSON)
	file.Write(data.Bytes())

	return os.WriteFile(path, file.Bytes(), 0o644)
}

// Load reads a state dict from path, verifying magic, version and checksum.
func Load(path string) (map[string]*tensor.RawTensor, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(content) < len(MagicBytes)+8 {
		return nil, fmt.Errorf("file too short to be a %s checkpoint", MagicBytes)
	}
	if string(content[:len(MagicBytes)]) != MagicBytes {
		return nil, fmt.Errorf("bad magic %q: not a %s checkpoint", content[:len(MagicBytes)], MagicBytes)
	}
	content = content[len(MagicBytes):]

	version := binary.LittleEndian.Uint32(content[:4])
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported format version %d", version)
	}
	headerLen := int(binary.LittleEndian.Uint32(content[4:8]))
	content = content[8:]

	if len(content) < headerLen {
		return nil, fmt.Errorf("truncated header: want %d bytes, have %d", headerLen, len(content))
	}
	var header Header
	if err := json.Unmarshal(content[:headerLen], &header); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	data := content[headerLen:]

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != header.Checksum {
		return nil, ErrChecksumMismatch
	}

	state := make(map[string]*tensor.RawTensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		dtype, ok := stringToDtype(meta.DType)
		if !ok {
			return nil, fmt.Errorf("tensor %q has unknown dtype %q", meta.Name, meta.DType)
		}
		if meta.Offset < 0 || meta.Offset+meta.Size > int64(len(data)) {
			return nil, fmt.Errorf("tensor %q data out of bounds", meta.Name)
		}
		raw, err := tensor.NewRaw(meta.Shape, dtype, tensor.CPU)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", meta.Name, err)
		}
		if int64(len(raw.Bytes())) != meta.Size {
			return nil, fmt.Errorf("tensor %q size mismatch: shape %v wants %d bytes, header says %d",
				meta.Name, meta.Shape, len(raw.Bytes()), meta.Size)
		}
		copy(raw.Bytes(), data[meta.Offset:meta.Offset+meta.Size])
		state[meta.Name] = raw
	}

	return state, nil
}
