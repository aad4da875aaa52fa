// Package report renders training progress: a per-epoch progress bar, the
// learning curve as JSON, SVG or PNG, and summary tables.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Format selects how the learning curve is plotted.
type Format string

const (
	FormatSVG  Format = "svg"
	FormatPNG  Format = "png"
	FormatNone Format = "none"
)

// ParseFormat accepts "svg", "png" or "none", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatSVG, FormatPNG, FormatNone:
		return f, nil
	default:
		return "", errors.Errorf("unknown plot format %q, want svg, png or none", s)
	}
}

// Curve is the cost of every epoch of a run.
type Curve struct {
	RunID        string    `json:"run_id,omitempty"`
	LearningRate float64   `json:"learning_rate"`
	Costs        []float64 `json:"costs"`
}

// CurveFile is the base name used by WriteAll.
const CurveFile = "learning_curve"

// WriteAll stores the curve as JSON in dir and, unless format is
// FormatNone, plots it next to it. It returns the written paths.
func WriteAll(dir string, c *Curve, format Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create output directory %q", dir)
	}
	jsonPath := filepath.Join(dir, CurveFile+".json")
	if err := WriteJSON(jsonPath, c); err != nil {
		return nil, err
	}
	paths := []string{jsonPath}

	var err error
	plotPath := filepath.Join(dir, CurveFile+"."+string(format))
	switch format {
	case FormatSVG:
		err = WriteSVG(plotPath, c)
	case FormatPNG:
		err = WritePNG(plotPath, c)
	case FormatNone:
		return paths, nil
	default:
		err = errors.Errorf("unknown plot format %q", format)
	}
	if err != nil {
		return paths, err
	}
	klog.V(1).Infof("Learning curve plotted to %s", plotPath)
	return append(paths, plotPath), nil
}

// WriteJSON writes the curve to path.
func WriteJSON(path string, c *Curve) error {
	buf, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode learning curve")
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %q", path)
	}
	return nil
}

// ReadJSON loads a curve written by WriteJSON.
func ReadJSON(path string) (*Curve, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", path)
	}
	var c Curve
	if err := json.Unmarshal(buf, &c); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %q", path)
	}
	return &c, nil
}
