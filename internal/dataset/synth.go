package dataset

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/automap-mri/automap/internal/parallel"
)

// SynthOptions configures Synthesize.
type SynthOptions struct {
	// Examples is the number of phantoms generated.
	Examples int

	// Size is the height and width of each square phantom.
	Size int

	// Sampling is the fraction of phase-encode lines kept in k-space,
	// in (0, 1]. The central lines are always kept.
	Sampling float64

	// Ellipses per phantom. Defaults to 6.
	Ellipses int

	Seed uint64
}

// Synthesize builds a dataset of random ellipse phantoms and their
// undersampled, centred 2-D Fourier transforms. The same options always
// produce the same dataset.
func Synthesize(opts SynthOptions) (*Dataset, error) {
	if opts.Examples <= 0 {
		return nil, invalidf("synthetic dataset needs at least one example, got %d", opts.Examples)
	}
	if opts.Size < 2 {
		return nil, invalidf("synthetic image size %d too small", opts.Size)
	}
	if opts.Sampling <= 0 || opts.Sampling > 1 {
		return nil, invalidf("sampling fraction %g not in (0, 1]", opts.Sampling)
	}
	if opts.Ellipses <= 0 {
		opts.Ellipses = 6
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	n, size := opts.Examples, opts.Size
	px := size * size
	x := make([]float32, n*px*2)
	y := make([]float32, n*px)
	imgs := make([][]float64, n)
	masks := make([][]bool, n)
	for i := range imgs {
		imgs[i] = phantom(rng, size, opts.Ellipses)
		masks[i] = lineMask(rng, size, opts.Sampling)
	}

	// CmplxFFT keeps work buffers, so every example gets its own.
	_ = parallel.For(n, parallel.DefaultConfig(), func(i int) error {
		for j, v := range imgs[i] {
			y[i*px+j] = float32(v)
		}
		k := kSpace(fourier.NewCmplxFFT(size), imgs[i], size)
		for r := 0; r < size; r++ {
			if !masks[i][r] {
				continue
			}
			for c := 0; c < size; c++ {
				v := k[r*size+c]
				dst := i*px + r*size + c
				x[dst*2] = float32(real(v))
				x[dst*2+1] = float32(imag(v))
			}
		}
		return nil
	})
	return New(x, y, n, size, size)
}

// phantom draws overlapping ellipses of random intensity on a size×size
// grid spanning [-1, 1]², clipped to [0, 1].
func phantom(rng *rand.Rand, size, ellipses int) []float64 {
	img := make([]float64, size*size)
	for e := 0; e < ellipses; e++ {
		cx, cy := rng.Float64()*1.2-0.6, rng.Float64()*1.2-0.6
		a, b := 0.1+rng.Float64()*0.5, 0.1+rng.Float64()*0.5
		theta := rng.Float64() * math.Pi
		intensity := 0.2 + rng.Float64()*0.8
		sin, cos := math.Sincos(theta)
		for r := 0; r < size; r++ {
			py := 2*float64(r)/float64(size-1) - 1 - cy
			for c := 0; c < size; c++ {
				pxv := 2*float64(c)/float64(size-1) - 1 - cx
				u := (pxv*cos + py*sin) / a
				v := (-pxv*sin + py*cos) / b
				if u*u+v*v <= 1 {
					img[r*size+c] += intensity
				}
			}
		}
	}
	for i, v := range img {
		img[i] = math.Min(v, 1)
	}
	return img
}

// kSpace is the orthonormal 2-D DFT of img with the zero frequency moved
// to the centre.
func kSpace(fft *fourier.CmplxFFT, img []float64, size int) []complex128 {
	grid := make([]complex128, size*size)
	for i, v := range img {
		grid[i] = complex(v, 0)
	}
	row := make([]complex128, size)
	for r := 0; r < size; r++ {
		fft.Coefficients(row, grid[r*size:(r+1)*size])
		copy(grid[r*size:], row)
	}
	col := make([]complex128, size)
	for c := 0; c < size; c++ {
		for r := 0; r < size; r++ {
			col[r] = grid[r*size+c]
		}
		fft.Coefficients(row, col)
		for r := 0; r < size; r++ {
			grid[r*size+c] = row[r]
		}
	}

	scale := complex(1/float64(size), 0)
	out := make([]complex128, size*size)
	half := size / 2
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			out[((r+half)%size)*size+(c+half)%size] = grid[r*size+c] * scale
		}
	}
	return out
}

// lineMask keeps the central 8% of rows plus a random subset, so that about
// fraction of all rows survive.
func lineMask(rng *rand.Rand, size int, fraction float64) []bool {
	mask := make([]bool, size)
	center := max(1, int(math.Round(float64(size)*0.08)))
	lo := size/2 - center/2
	for r := lo; r < lo+center && r < size; r++ {
		mask[r] = true
	}
	for r := range mask {
		if !mask[r] && rng.Float64() < fraction {
			mask[r] = true
		}
	}
	return mask
}
