package checkpoint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"

	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

// decodeHeader parses the fixed and JSON headers and returns the offset of
// the data section.
func decodeHeader(buf []byte) (*Header, int64, error) {
	if len(buf) < fixedHeaderSize {
		return nil, 0, errors.Wrapf(ErrUnsupported, "file too short (%d bytes)", len(buf))
	}
	if string(buf[0:4]) != magicBytes {
		return nil, 0, errors.WithStack(ErrInvalidMagic)
	}
	if v := binary.LittleEndian.Uint32(buf[4:8]); v != formatVersion {
		return nil, 0, errors.Wrapf(ErrUnsupported, "version %d, want %d", v, formatVersion)
	}
	headerSize := binary.LittleEndian.Uint64(buf[16:24])
	if headerSize > maxHeaderSize || int64(headerSize) > int64(len(buf)-fixedHeaderSize) {
		return nil, 0, errors.Wrapf(ErrUnsupported, "header size %d out of range", headerSize)
	}

	var header Header
	jsonEnd := fixedHeaderSize + int64(headerSize)
	if err := json.Unmarshal(buf[fixedHeaderSize:jsonEnd], &header); err != nil {
		return nil, 0, errors.Wrap(err, "failed to parse header JSON")
	}
	return &header, jsonEnd + padding(jsonEnd), nil
}

// decode parses a whole checkpoint file and verifies its checksum.
func decode(buf []byte) (*State, *Header, error) {
	header, dataOffset, err := decodeHeader(buf)
	if err != nil {
		return nil, nil, err
	}
	dataSize := int64(binary.LittleEndian.Uint64(buf[24:32]))
	if dataOffset+dataSize > int64(len(buf)) {
		return nil, nil, errors.Wrapf(ErrUnsupported, "data section of %d bytes truncated", dataSize)
	}
	data := buf[dataOffset : dataOffset+dataSize]

	sum := sha256.Sum256(data)
	if !bytes.Equal(sum[:], buf[checksumOffset:checksumOffset+checksumSize]) {
		return nil, nil, errors.WithStack(ErrChecksumMismatch)
	}

	state := &State{
		Tensors:  make(map[string]*tensor.RawTensor, len(header.Tensors)),
		Metadata: header.Metadata,
	}
	if meta := header.CheckpointMeta; meta != nil {
		state.GlobalStep = meta.Step
		state.Epoch = meta.Epoch
		state.Loss = meta.Loss
		state.OptimizerType = meta.OptimizerType
		state.OptimizerConfig = meta.OptimizerConfig
		state.TrainingMeta = meta.TrainingMeta
	}

	for _, tm := range header.Tensors {
		if tm.DType != dtypeFloat32 {
			return nil, nil, errors.Wrapf(ErrUnsupported, "tensor %q has dtype %s", tm.Name, tm.DType)
		}
		if tm.Offset < 0 || tm.Size < 0 || tm.Offset+tm.Size > dataSize {
			return nil, nil, errors.Wrapf(ErrUnsupported, "tensor %q lies outside the data section", tm.Name)
		}
		raw, err := tensor.NewRaw(tensor.Shape(tm.Shape), tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "tensor %q", tm.Name)
		}
		if int64(raw.ByteSize()) != tm.Size {
			return nil, nil, errors.Wrapf(ErrUnsupported, "tensor %q: shape %v does not match %d bytes", tm.Name, tm.Shape, tm.Size)
		}
		copy(raw.Data(), data[tm.Offset:tm.Offset+tm.Size])
		state.Tensors[tm.Name] = raw
	}
	return state, header, nil
}
