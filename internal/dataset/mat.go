package dataset

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/daniellowtw/matlab"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/automap-mri/automap/internal/parallel"
)

// Variable names expected in each case file. Every variable is an
// H×W×S MATLAB array (column-major) holding S slices of the case.
const (
	VarKSpaceReal = "k_real"
	VarKSpaceImag = "k_imag"
	VarImage      = "image"
)

// LoadOptions selects and shapes the cases read by LoadDir.
type LoadOptions struct {
	// FirstCase and LastCase select files [FirstCase, LastCase) among the
	// *.mat files of the directory, sorted by name.
	FirstCase, LastCase int

	// Height and Width of every slice.
	Height, Width int

	// Normalize scales each example so its image peaks at 1. The k-space
	// input is scaled by the same factor.
	Normalize bool
}

// ListCases returns the sorted *.mat files in dir.
func ListCases(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list data directory %q", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".mat") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// LoadDir reads the selected case files of dir into one Dataset.
func LoadDir(dir string, opts LoadOptions) (*Dataset, error) {
	start := time.Now()
	files, err := ListCases(dir)
	if err != nil {
		return nil, err
	}
	if opts.FirstCase < 0 || opts.LastCase > len(files) || opts.FirstCase >= opts.LastCase {
		return nil, invalidf("case range [%d, %d) not available: %d case files in %q",
			opts.FirstCase, opts.LastCase, len(files), dir)
	}

	selected := files[opts.FirstCase:opts.LastCase]
	parts := make([]*Dataset, len(selected))
	err = parallel.For(len(selected), parallel.DefaultConfig(), func(i int) error {
		var err error
		parts[i], err = LoadCase(selected[i], opts.Height, opts.Width)
		return err
	})
	if err != nil {
		return nil, err
	}
	ds, err := Concat(parts...)
	if err != nil {
		return nil, err
	}
	if opts.Normalize {
		Normalize(ds)
	}
	klog.Infof("Loaded %d examples from %d case(s) in %s: %s", ds.N, len(parts), time.Since(start), ds)
	return ds, nil
}

// LoadCase reads one case file holding S slices of height h and width w.
func LoadCase(path string, h, w int) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open case file %q", path)
	}
	defer func() { _ = f.Close() }()

	if info, err := f.Stat(); err == nil {
		klog.V(1).Infof("Reading %q (%s)", path, humanize.Bytes(uint64(info.Size())))
	}

	matFile, err := matlab.NewFileFromReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse Matlab file %q", path)
	}
	read := func(name string) ([]float32, error) {
		v, found := matFile.GetVar(name)
		if !found {
			return nil, invalidf("variable %q missing in %q", name, path)
		}
		values, err := toFloat32(v.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "variable %q in %q", name, path)
		}
		return values, nil
	}

	kr, err := read(VarKSpaceReal)
	if err != nil {
		return nil, err
	}
	ki, err := read(VarKSpaceImag)
	if err != nil {
		return nil, err
	}
	img, err := read(VarImage)
	if err != nil {
		return nil, err
	}
	px := h * w
	if px <= 0 || len(img) == 0 || len(img)%px != 0 {
		return nil, invalidf("%q: image has %d values, not a multiple of %dx%d", path, len(img), h, w)
	}
	if len(kr) != len(img) || len(ki) != len(img) {
		return nil, invalidf("%q: k-space (%d, %d values) and image (%d values) disagree",
			path, len(kr), len(ki), len(img))
	}
	return fromColumnMajor(kr, ki, img, len(img)/px, h, w)
}

// fromColumnMajor converts H×W×S column-major arrays to the row-major
// N×H×W×2 / N×H×W layout.
func fromColumnMajor(kr, ki, img []float32, n, h, w int) (*Dataset, error) {
	x := make([]float32, n*h*w*2)
	y := make([]float32, n*h*w)
	for s := 0; s < n; s++ {
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				src := r + c*h + s*h*w
				dst := (s*h+r)*w + c
				x[dst*2] = kr[src]
				x[dst*2+1] = ki[src]
				y[dst] = img[src]
			}
		}
	}
	return New(x, y, n, h, w)
}

func toFloat32(values []interface{}) ([]float32, error) {
	out := make([]float32, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case float64:
			out[i] = float32(t)
		case float32:
			out[i] = t
		case int8:
			out[i] = float32(t)
		case uint8:
			out[i] = float32(t)
		case int16:
			out[i] = float32(t)
		case uint16:
			out[i] = float32(t)
		case int32:
			out[i] = float32(t)
		case uint32:
			out[i] = float32(t)
		case int64:
			out[i] = float32(t)
		case uint64:
			out[i] = float32(t)
		default:
			return nil, errors.Errorf("unsupported element type %T at index %d", v, i)
		}
	}
	return out, nil
}

// Normalize rescales every example in place so that its image has a peak
// magnitude of 1. Examples with an all-zero image are left untouched.
func Normalize(d *Dataset) {
	px := d.Pixels()
	for n := 0; n < d.N; n++ {
		img := d.Y[n*px : (n+1)*px]
		var peak float64
		for _, v := range img {
			peak = math.Max(peak, math.Abs(float64(v)))
		}
		if peak == 0 {
			continue
		}
		scale := float32(1 / peak)
		for i := range img {
			img[i] *= scale
		}
		k := d.X[n*px*2 : (n+1)*px*2]
		for i := range k {
			k[i] *= scale
		}
	}
}
