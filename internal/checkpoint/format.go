package checkpoint

import (
	"time"

	"github.com/born-ml/born/tensor"
)

// Layout of a checkpoint file (.born format, version 2):
//
//	0x00  "BORN"
//	0x04  uint32 version (2)
//	0x08  uint32 flags
//	0x0C  reserved
//	0x10  uint64 JSON header size
//	0x18  uint64 tensor data size
//	0x20  SHA-256 of the tensor data
//	0x40  JSON header, zero padded to a 64-byte boundary
//	      tensor data, concatenated in header order
const (
	magicBytes      = "BORN"
	formatVersion   = 2
	fixedHeaderSize = 64
	checksumOffset  = 0x20
	checksumSize    = 32
	alignment       = 64
	maxHeaderSize   = 100 * 1024 * 1024

	// bornVersion is the born release whose reader accepts these files.
	bornVersion = "0.5.4"
	modelType   = "AUTOMAP"
)

// Header flags.
const (
	flagHasOptimizer uint32 = 1 << 1
	flagHasMetadata  uint32 = 1 << 2
)

const dtypeFloat32 = "float32"

// Header is the JSON header of a checkpoint file.
type Header struct {
	FormatVersion  int               `json:"format_version"`
	BornVersion    string            `json:"born_version"`
	ModelType      string            `json:"model_type"`
	CreatedAt      time.Time         `json:"created_at"`
	Tensors        []TensorMeta      `json:"tensors"`
	Metadata       map[string]string `json:"metadata"`
	CheckpointMeta *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta records the training position.
type CheckpointMeta struct {
	IsCheckpoint    bool           `json:"is_checkpoint"`
	Epoch           int            `json:"epoch"`
	Step            int64          `json:"step"`
	Loss            float64        `json:"loss"`
	OptimizerType   string         `json:"optimizer_type"`
	OptimizerConfig map[string]any `json:"optimizer_config"`
	TrainingMeta    map[string]any `json:"training_meta"`
}

// TensorMeta locates one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

// DataBytes is the total size of the tensor data section.
func (h *Header) DataBytes() int64 {
	var total int64
	for _, t := range h.Tensors {
		total += t.Size
	}
	return total
}

// State is everything a checkpoint stores.
type State struct {
	// Tensors holds model parameters and optimizer slots. Only float32
	// tensors are supported.
	Tensors map[string]*tensor.RawTensor

	GlobalStep int64
	Epoch      int
	// Loss is the cost of the last completed epoch.
	Loss float64

	OptimizerType   string
	OptimizerConfig map[string]any
	// TrainingMeta carries run settings such as batch size and seed.
	TrainingMeta map[string]any

	Metadata map[string]string
}

func padding(pos int64) int64 {
	return (alignment - pos%alignment) % alignment
}
