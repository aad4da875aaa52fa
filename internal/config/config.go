// Package config holds the knobs of a training run. Values come from
// Default, optionally replaced by a YAML file, then by command-line
// overrides.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Devices accepted by Validate.
const (
	DeviceCPU    = "cpu"
	DeviceWebGPU = "webgpu"
)

// Config captures a training run.
type Config struct {
	// Data source: a directory of .mat cases, or generated phantoms.
	DataDir           string  `yaml:"data_dir"`
	Cases             [2]int  `yaml:"cases,flow"` // [first, last) in name order
	Synthetic         bool    `yaml:"synthetic"`
	SyntheticExamples int     `yaml:"synthetic_examples"`
	ImageSize         int     `yaml:"image_size"`
	Undersample       float64 `yaml:"undersample"`
	Normalize         bool    `yaml:"normalize"`

	LearningRate      float64 `yaml:"learning_rate"`
	NumEpochs         int     `yaml:"num_epochs"`
	BatchSize         int     `yaml:"batch_size"`
	CheckpointEvery   int     `yaml:"checkpoint_every"`
	CheckpointDir     string  `yaml:"checkpoint_dir"`
	OutputDir         string  `yaml:"output_dir"`
	Plot              string  `yaml:"plot"`
	Seed              int64   `yaml:"seed"`
	Resume            bool    `yaml:"resume"`
	StrictCheckpoints bool    `yaml:"strict_checkpoints"`
	Device            string  `yaml:"device"`
	Progress          bool    `yaml:"progress"`
}

// Default returns the standard training settings.
func Default() *Config {
	return &Config{
		Cases:             [2]int{0, 1},
		SyntheticExamples: 11,
		ImageSize:         64,
		Undersample:       0.5,
		LearningRate:      1e-4,
		NumEpochs:         5,
		BatchSize:         11,
		CheckpointEvery:   2,
		CheckpointDir:     "../checkpoints",
		OutputDir:         ".",
		Plot:              "svg",
		Seed:              3,
		Device:            DeviceCPU,
		Progress:          true,
	}
}

// Load reads path over Default and validates the result. Unknown keys
// are rejected.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Overrides captures command-line values. Nil fields leave the config
// unchanged, so an explicit zero or false still overrides.
type Overrides struct {
	DataDir         *string
	Cases           *[2]int
	Synthetic       *bool
	LearningRate    *float64
	NumEpochs       *int
	BatchSize       *int
	CheckpointEvery *int
	CheckpointDir   *string
	OutputDir       *string
	Plot            *string
	Seed            *int64
	Resume          *bool
	Device          *string
	Progress        *bool
}

// ApplyOverrides updates c with every non-nil override.
func (c *Config) ApplyOverrides(o Overrides) {
	set(&c.DataDir, o.DataDir)
	set(&c.Cases, o.Cases)
	set(&c.Synthetic, o.Synthetic)
	set(&c.LearningRate, o.LearningRate)
	set(&c.NumEpochs, o.NumEpochs)
	set(&c.BatchSize, o.BatchSize)
	set(&c.CheckpointEvery, o.CheckpointEvery)
	set(&c.CheckpointDir, o.CheckpointDir)
	set(&c.OutputDir, o.OutputDir)
	set(&c.Plot, o.Plot)
	set(&c.Seed, o.Seed)
	set(&c.Resume, o.Resume)
	set(&c.Device, o.Device)
	set(&c.Progress, o.Progress)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Validate verifies the config is runnable and expands "~" in paths.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if !c.Synthetic && c.DataDir == "" {
		return errors.New("either data_dir or synthetic must be set")
	}
	if c.Synthetic {
		if c.SyntheticExamples <= 0 {
			return errors.Errorf("synthetic_examples must be > 0 (got %d)", c.SyntheticExamples)
		}
		if c.Undersample <= 0 || c.Undersample > 1 {
			return errors.Errorf("undersample must be in (0, 1] (got %g)", c.Undersample)
		}
	} else if c.Cases[0] < 0 || c.Cases[1] <= c.Cases[0] {
		return errors.Errorf("cases must select files [first, last) with 0 <= first < last (got %v)", c.Cases)
	}
	if c.ImageSize <= 0 {
		return errors.Errorf("image_size must be > 0 (got %d)", c.ImageSize)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.NumEpochs <= 0 {
		return errors.Errorf("num_epochs must be > 0 (got %d)", c.NumEpochs)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.CheckpointEvery <= 0 {
		return errors.Errorf("checkpoint_every must be > 0 (got %d)", c.CheckpointEvery)
	}
	switch strings.ToLower(c.Plot) {
	case "svg", "png", "none":
	default:
		return errors.Errorf("plot must be svg, png or none (got %q)", c.Plot)
	}
	switch c.Device {
	case DeviceCPU, DeviceWebGPU:
	default:
		return errors.Errorf("device must be %s or %s (got %q)", DeviceCPU, DeviceWebGPU, c.Device)
	}
	if c.CheckpointDir == "" {
		return errors.New("checkpoint_dir must be set")
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}

	var err error
	for _, p := range []*string{&c.DataDir, &c.CheckpointDir, &c.OutputDir} {
		if *p, err = ExpandHome(*p); err != nil {
			return err
		}
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "expand %q", path)
	}
	return filepath.Join(home, path[1:]), nil
}
