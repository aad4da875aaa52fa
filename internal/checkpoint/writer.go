package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

// encode writes state to w. Tensors are laid out in name order, so equal
// states produce byte-identical data sections.
func encode(w io.Writer, state *State, createdAt time.Time) error {
	names := make([]string, 0, len(state.Tensors))
	for name := range state.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{
		FormatVersion: formatVersion,
		BornVersion:   bornVersion,
		ModelType:     modelType,
		CreatedAt:     createdAt.UTC(),
		Tensors:       make([]TensorMeta, 0, len(names)),
		Metadata:      state.Metadata,
		CheckpointMeta: &CheckpointMeta{
			IsCheckpoint:    true,
			Epoch:           state.Epoch,
			Step:            state.GlobalStep,
			Loss:            state.Loss,
			OptimizerType:   state.OptimizerType,
			OptimizerConfig: state.OptimizerConfig,
			TrainingMeta:    state.TrainingMeta,
		},
	}
	if header.Metadata == nil {
		header.Metadata = map[string]string{}
	}

	var offset int64
	hash := sha256.New()
	for _, name := range names {
		raw := state.Tensors[name]
		if raw == nil {
			return errors.Errorf("tensor %q is nil", name)
		}
		if raw.DType() != tensor.Float32 {
			return errors.Errorf("tensor %q has dtype %s, only float32 is supported", name, raw.DType())
		}
		size := int64(raw.ByteSize())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  dtypeFloat32,
			Shape:  []int(raw.Shape()),
			Offset: offset,
			Size:   size,
		})
		hash.Write(raw.Data()[:size])
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}

	fixed := make([]byte, fixedHeaderSize)
	copy(fixed[0:4], magicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], formatVersion)
	flags := flagHasOptimizer
	if len(header.Metadata) > 0 {
		flags |= flagHasMetadata
	}
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(offset))
	copy(fixed[checksumOffset:checksumOffset+checksumSize], hash.Sum(nil))

	if _, err := w.Write(fixed); err != nil {
		return errors.Wrap(err, "failed to write fixed header")
	}
	if _, err := w.Write(headerJSON); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	if pad := padding(fixedHeaderSize + int64(len(headerJSON))); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return errors.Wrap(err, "failed to write padding")
		}
	}
	for i, name := range names {
		raw := state.Tensors[name]
		if _, err := w.Write(raw.Data()[:header.Tensors[i].Size]); err != nil {
			return errors.Wrapf(err, "failed to write tensor %q", name)
		}
	}
	return nil
}
