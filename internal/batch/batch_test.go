package batch

import (
	"sort"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automap-mri/automap/internal/dataset"
)

// indexed returns a dataset where example i holds the value i in its
// input and 100+i in its label.
func indexed(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	const h, w = 2, 2
	x := make([]float32, n*h*w*2)
	y := make([]float32, n*h*w)
	for i := 0; i < n; i++ {
		for j := 0; j < h*w*2; j++ {
			x[i*h*w*2+j] = float32(i)
		}
		for j := 0; j < h*w; j++ {
			y[i*h*w+j] = float32(100 + i)
		}
	}
	return must.M1(dataset.New(x, y, n, h, w))
}

func sizes(batches []Minibatch) []int {
	out := make([]int, len(batches))
	for i := range batches {
		out[i] = batches[i].Size()
	}
	return out
}

func TestPartitionSizes(t *testing.T) {
	ds := indexed(t, 11)

	batches, err := Partition(ds, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 5, 1}, sizes(batches))

	batches, err = Partition(ds, 20, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{11}, sizes(batches))

	batches, err = Partition(ds, 11, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{11}, sizes(batches))

	batches, err = Partition(ds, 1, 4)
	require.NoError(t, err)
	assert.Len(t, batches, 11)
}

func TestPartitionCoversEveryExampleOnce(t *testing.T) {
	ds := indexed(t, 11)
	batches := must.M1(Partition(ds, 4, 9))
	var all []int
	for _, b := range batches {
		all = append(all, b.Indices...)
	}
	sort.Ints(all)
	want := make([]int, 11)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, all)
}

func TestPartitionKeepsPairs(t *testing.T) {
	ds := indexed(t, 11)
	for _, b := range must.M1(Partition(ds, 3, 5)) {
		px := b.H * b.W
		for k, idx := range b.Indices {
			assert.Equal(t, float32(idx), b.X[k*px*2])
			assert.Equal(t, float32(100+idx), b.Y[k*px])
		}
	}
}

func TestPartitionDeterministic(t *testing.T) {
	ds := indexed(t, 11)
	a := must.M1(Partition(ds, 5, 3))
	b := must.M1(Partition(ds, 5, 3))
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Indices, b[i].Indices)
		assert.Equal(t, a[i].X, b[i].X)
		assert.Equal(t, a[i].Y, b[i].Y)
	}

	assert.Equal(t, Permutation(50, 3), Permutation(50, 3))
	assert.NotEqual(t, Permutation(50, 3), Permutation(50, 4))
}

func TestPartitionErrors(t *testing.T) {
	_, err := Partition(&dataset.Dataset{H: 2, W: 2}, 5, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrInvalidDataset)

	_, err = Partition(indexed(t, 3), 0, 3)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestCount(t *testing.T) {
	assert.Equal(t, 3, Count(11, 5))
	assert.Equal(t, 1, Count(11, 20))
	assert.Equal(t, 2, Count(10, 5))
	assert.Equal(t, 0, Count(0, 5))
}
