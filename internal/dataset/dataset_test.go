package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequential builds a dataset whose values encode their example index.
func sequential(t *testing.T, n, h, w int) *Dataset {
	t.Helper()
	px := h * w
	x := make([]float32, n*px*2)
	y := make([]float32, n*px)
	for i := 0; i < n; i++ {
		for j := 0; j < px*2; j++ {
			x[i*px*2+j] = float32(i)
		}
		for j := 0; j < px; j++ {
			y[i*px+j] = float32(i)
		}
	}
	return must.M1(New(x, y, n, h, w))
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		x, y    []float32
		n, h, w int
	}{
		{"empty", nil, nil, 0, 4, 4},
		{"x too short", make([]float32, 10), make([]float32, 16), 1, 4, 4},
		{"y too long", make([]float32, 32), make([]float32, 17), 1, 4, 4},
		{"bad width", make([]float32, 32), make([]float32, 16), 1, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.x, tt.y, tt.n, tt.h, tt.w)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDataset)
			var invalid *InvalidDatasetError
			assert.True(t, errors.As(err, &invalid))
		})
	}

	ds, err := New(make([]float32, 32), make([]float32, 16), 1, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 4, 2}, ds.XShape())
	assert.Equal(t, []int{1, 4, 4}, ds.YShape())
}

func TestGatherKeepsPairs(t *testing.T) {
	ds := sequential(t, 5, 2, 3)
	x, y := ds.Gather([]int{4, 0, 2})
	require.Len(t, x, 3*2*3*2)
	require.Len(t, y, 3*2*3)
	for k, want := range []float32{4, 0, 2} {
		assert.Equal(t, want, x[k*12], "input %d", k)
		assert.Equal(t, want, y[k*6], "label %d", k)
	}
}

func TestConcat(t *testing.T) {
	a := sequential(t, 2, 2, 2)
	b := sequential(t, 3, 2, 2)
	ds, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, 5, ds.N)

	_, err = Concat(a, sequential(t, 1, 3, 3))
	assert.ErrorIs(t, err, ErrInvalidDataset)
}

func TestFromColumnMajor(t *testing.T) {
	// 2x3 image, one slice. Column-major order: (0,0),(1,0),(0,1),(1,1),(0,2),(1,2).
	img := []float32{1, 4, 2, 5, 3, 6}
	kr := []float32{10, 40, 20, 50, 30, 60}
	ki := []float32{-1, -4, -2, -5, -3, -6}
	ds, err := fromColumnMajor(kr, ki, img, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, ds.Y)
	assert.Equal(t, []float32{10, -1, 20, -2, 30, -3, 40, -4, 50, -5, 60, -6}, ds.X)
}

func TestToFloat32(t *testing.T) {
	got, err := toFloat32([]interface{}{float64(1.5), uint8(2), int16(-3), float32(4)})
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 2, -3, 4}, got)

	_, err = toFloat32([]interface{}{"x"})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	ds := must.M1(New(
		[]float32{2, 4, 6, 8, 0, 0, 0, 0},
		[]float32{1, 2, 0, 0},
		2, 1, 2))
	Normalize(ds)
	assert.Equal(t, []float32{0.5, 1}, ds.Y[:2])
	assert.Equal(t, []float32{1, 2, 3, 4}, ds.X[:4])
	assert.Equal(t, []float32{0, 0}, ds.Y[2:], "all-zero example unchanged")
}

func TestSynthesize(t *testing.T) {
	opts := SynthOptions{Examples: 3, Size: 8, Sampling: 0.5, Seed: 7}
	a, err := Synthesize(opts)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 8, 8, 2}, a.XShape())
	assert.Equal(t, []int{3, 8, 8}, a.YShape())

	b := must.M1(Synthesize(opts))
	assert.Equal(t, a.X, b.X)
	assert.Equal(t, a.Y, b.Y)

	for _, v := range a.Y {
		assert.True(t, v >= 0 && v <= 1)
	}

	opts.Seed = 8
	c := must.M1(Synthesize(opts))
	assert.NotEqual(t, a.Y, c.Y)

	_, err = Synthesize(SynthOptions{Examples: 0, Size: 8, Sampling: 1})
	assert.ErrorIs(t, err, ErrInvalidDataset)
}

func TestSynthesizeFullSamplingKeepsEnergy(t *testing.T) {
	ds := must.M1(Synthesize(SynthOptions{Examples: 1, Size: 16, Sampling: 1, Seed: 1}))
	// Orthonormal transform: Parseval holds.
	var image, kspace float64
	for _, v := range ds.Y {
		image += float64(v) * float64(v)
	}
	for _, v := range ds.X {
		kspace += float64(v) * float64(v)
	}
	assert.InDelta(t, image, kspace, 1e-2*image)
}

func TestLoadDirCaseRange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mat"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.MAT"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o600))

	files, err := ListCases(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.MAT"), filepath.Join(dir, "b.mat")}, files)

	_, err = LoadDir(dir, LoadOptions{FirstCase: 1, LastCase: 3, Height: 4, Width: 4})
	assert.ErrorIs(t, err, ErrInvalidDataset)
}
