// Package checkpoint saves and restores model parameters in SafeTensors
// format.
//
// File layout:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: float64 LE, tensors in alphabetical order]
//
// The header's __metadata__ carries a SHA-256 of the data section, verified
// on load.
package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/born-ml/gradloop/internal/nn"
)

// Common errors.
var (
	ErrChecksumMismatch = errors.New("checkpoint: checksum mismatch, file may be corrupted")
	ErrMissingTensor    = errors.New("checkpoint: tensor not found")
	ErrShapeMismatch    = errors.New("checkpoint: tensor shape mismatch")
	ErrInvalidFile      = errors.New("checkpoint: invalid file")
)

const (
	metadataKey    = "__metadata__"
	checksumKey    = "sha256"
	dtypeF64       = "F64"
	maxHeaderBytes = 100 * 1024 * 1024
)

// tensorHeader describes one tensor in the JSON header.
type tensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Save writes params to path. Extra metadata is stored alongside the
// checksum. The file is written to a temporary name and renamed into place.
func Save(path string, params []nn.NamedParameter, metadata map[string]string) error {
	sorted := append([]nn.NamedParameter(nil), params...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	header := make(map[string]any, len(sorted)+1)
	var body []byte
	for i, np := range sorted {
		if i > 0 && sorted[i-1].Name == np.Name {
			return fmt.Errorf("checkpoint: duplicate parameter name %q", np.Name)
		}
		r, c := np.Parameter.Dims()
		start := int64(len(body))
		for _, v := range np.Parameter.Value().RawMatrix().Data {
			body = binary.LittleEndian.AppendUint64(body, math.Float64bits(v))
		}
		header[np.Name] = tensorHeader{
			DType:       dtypeF64,
			Shape:       []int64{int64(r), int64(c)},
			DataOffsets: [2]int64{start, int64(len(body))},
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	sum := sha256.Sum256(body)
	meta[checksumKey] = hex.EncodeToString(sum[:])
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal header: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("checkpoint: create: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := binary.Write(tmp, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: write header size: %w", err)
	}
	if _, err := tmp.Write(headerJSON); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: write header: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: write tensors: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("checkpoint: rename: %w", err)
	}
	return nil
}

// Load restores every parameter in params from path, in place, and returns
// the stored metadata (without the checksum).
//
// Each parameter must be present with an identical shape. Nothing is modified
// unless the whole file validates.
func Load(path string, params []nn.NamedParameter) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}
	if len(raw) < 8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidFile, len(raw))
	}
	headerSize := binary.LittleEndian.Uint64(raw[:8])
	if headerSize > maxHeaderBytes || headerSize > uint64(len(raw)-8) {
		return nil, fmt.Errorf("%w: header size %d", ErrInvalidFile, headerSize)
	}
	body := raw[8+headerSize:]

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw[8:8+headerSize], &fields); err != nil {
		return nil, fmt.Errorf("%w: parse header: %v", ErrInvalidFile, err)
	}

	meta := map[string]string{}
	if m, ok := fields[metadataKey]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, fmt.Errorf("%w: parse metadata: %v", ErrInvalidFile, err)
		}
	}
	if want, ok := meta[checksumKey]; ok {
		sum := sha256.Sum256(body)
		if hex.EncodeToString(sum[:]) != want {
			return nil, ErrChecksumMismatch
		}
		delete(meta, checksumKey)
	}

	values := make([][]float64, len(params))
	for i, np := range params {
		field, ok := fields[np.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingTensor, np.Name)
		}
		var th tensorHeader
		if err := json.Unmarshal(field, &th); err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %v", ErrInvalidFile, np.Name, err)
		}
		r, c := np.Parameter.Dims()
		if len(th.Shape) != 2 || th.Shape[0] != int64(r) || th.Shape[1] != int64(c) {
			return nil, fmt.Errorf("%w: %q is %v, model has [%d %d]", ErrShapeMismatch, np.Name, th.Shape, r, c)
		}
		if th.DType != dtypeF64 {
			return nil, fmt.Errorf("%w: %q has dtype %s", ErrInvalidFile, np.Name, th.DType)
		}
		start, end := th.DataOffsets[0], th.DataOffsets[1]
		if start < 0 || end > int64(len(body)) || end-start != int64(r*c*8) {
			return nil, fmt.Errorf("%w: %q offsets [%d, %d]", ErrInvalidFile, np.Name, start, end)
		}
		vals := make([]float64, r*c)
		for j := range vals {
			off := start + int64(j*8)
			vals[j] = math.Float64frombits(binary.LittleEndian.Uint64(body[off : off+8]))
		}
		values[i] = vals
	}

	for i, np := range params {
		copy(np.Parameter.Value().RawMatrix().Data, values[i])
	}
	return meta, nil
}
