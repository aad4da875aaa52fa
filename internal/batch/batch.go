// Package batch splits a dataset into shuffled minibatches.
package batch

import (
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/automap-mri/automap/internal/dataset"
)

// ErrInvalidBatchSize is returned for a batch size below 1.
var ErrInvalidBatchSize = errors.New("batch size must be at least 1")

// Minibatch is a slice of the dataset in shuffled order.
type Minibatch struct {
	// X is Size×H×W×2 and Y is Size×H×W, row-major.
	X, Y []float32

	// Indices are the dataset positions of the examples, in batch order.
	Indices []int

	H, W int
}

// Size is the number of examples in the minibatch.
func (m *Minibatch) Size() int { return len(m.Indices) }

// Permutation returns a permutation of [0, n) that depends only on seed.
func Permutation(n int, seed int64) []int {
	s := uint64(seed)
	rng := rand.New(rand.NewPCG(s, s))
	return rng.Perm(n)
}

// Partition shuffles ds with seed and cuts it into consecutive chunks of
// batchSize examples. The last chunk holds the remainder when batchSize
// does not divide N, so there are ceil(N/batchSize) minibatches. The same
// permutation is applied to inputs and labels.
func Partition(ds *dataset.Dataset, batchSize int, seed int64) ([]Minibatch, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if batchSize < 1 {
		return nil, errors.Wrapf(ErrInvalidBatchSize, "got %d", batchSize)
	}

	perm := Permutation(ds.N, seed)
	batches := make([]Minibatch, 0, Count(ds.N, batchSize))
	for start := 0; start < ds.N; start += batchSize {
		end := min(start+batchSize, ds.N)
		indices := perm[start:end:end]
		x, y := ds.Gather(indices)
		batches = append(batches, Minibatch{X: x, Y: y, Indices: indices, H: ds.H, W: ds.W})
	}
	return batches, nil
}

// Count is the number of minibatches Partition produces for n examples.
func Count(n, batchSize int) int {
	if n <= 0 || batchSize < 1 {
		return 0
	}
	return (n + batchSize - 1) / batchSize
}
