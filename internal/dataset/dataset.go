// Package dataset holds paired k-space/image training examples in memory.
//
// Inputs are stored row-major as N×H×W×2 (real and imaginary k-space
// channels last) and labels as N×H×W. A Dataset is read-only once built.
package dataset

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// ErrInvalidDataset is matched by errors.Is for every InvalidDatasetError.
var ErrInvalidDataset = errors.New("invalid dataset")

// InvalidDatasetError reports a dataset that cannot be trained on.
type InvalidDatasetError struct {
	Reason string
}

func (e *InvalidDatasetError) Error() string {
	return "invalid dataset: " + e.Reason
}

// Is makes errors.Is(err, ErrInvalidDataset) hold.
func (e *InvalidDatasetError) Is(target error) bool {
	return target == ErrInvalidDataset
}

func invalidf(format string, args ...any) error {
	return errors.WithStack(&InvalidDatasetError{Reason: fmt.Sprintf(format, args...)})
}

// Dataset is a set of N paired examples of height H and width W.
type Dataset struct {
	// X is the k-space input, N×H×W×2 row-major.
	X []float32
	// Y is the image label, N×H×W row-major.
	Y []float32

	N, H, W int
}

// New validates the buffers and wraps them in a Dataset. The slices are
// not copied.
func New(x, y []float32, n, h, w int) (*Dataset, error) {
	ds := &Dataset{X: x, Y: y, N: n, H: h, W: w}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Validate checks the shape invariants.
func (d *Dataset) Validate() error {
	if d == nil {
		return invalidf("nil dataset")
	}
	if d.N <= 0 {
		return invalidf("no examples (N=%d)", d.N)
	}
	if d.H <= 0 || d.W <= 0 {
		return invalidf("bad image size %dx%d", d.H, d.W)
	}
	if want := d.N * d.H * d.W * 2; len(d.X) != want {
		return invalidf("input has %d values, want N×H×W×2 = %d", len(d.X), want)
	}
	if want := d.N * d.H * d.W; len(d.Y) != want {
		return invalidf("label has %d values, want N×H×W = %d", len(d.Y), want)
	}
	return nil
}

// XShape returns the input shape [N, H, W, 2].
func (d *Dataset) XShape() []int { return []int{d.N, d.H, d.W, 2} }

// YShape returns the label shape [N, H, W].
func (d *Dataset) YShape() []int { return []int{d.N, d.H, d.W} }

// Pixels is H×W.
func (d *Dataset) Pixels() int { return d.H * d.W }

// Gather copies the examples at the given indices, in that order, into
// fresh input and label buffers.
func (d *Dataset) Gather(indices []int) (x, y []float32) {
	px := d.Pixels()
	x = make([]float32, 0, len(indices)*px*2)
	y = make([]float32, 0, len(indices)*px)
	for _, idx := range indices {
		x = append(x, d.X[idx*px*2:(idx+1)*px*2]...)
		y = append(y, d.Y[idx*px:(idx+1)*px]...)
	}
	return x, y
}

// SizeBytes is the memory held by X and Y.
func (d *Dataset) SizeBytes() uint64 {
	return uint64(len(d.X)+len(d.Y)) * 4
}

func (d *Dataset) String() string {
	return fmt.Sprintf("Dataset(X=%v, Y=%v, %s)", d.XShape(), d.YShape(), humanize.Bytes(d.SizeBytes()))
}

// Concat joins datasets with equal H and W.
func Concat(parts ...*Dataset) (*Dataset, error) {
	if len(parts) == 0 {
		return nil, invalidf("nothing to concatenate")
	}
	h, w := parts[0].H, parts[0].W
	var n int
	for _, p := range parts {
		if p.H != h || p.W != w {
			return nil, invalidf("size mismatch: %dx%d vs %dx%d", p.H, p.W, h, w)
		}
		n += p.N
	}
	x := make([]float32, 0, n*h*w*2)
	y := make([]float32, 0, n*h*w)
	for _, p := range parts {
		x = append(x, p.X...)
		y = append(y, p.Y...)
	}
	return New(x, y, n, h, w)
}
