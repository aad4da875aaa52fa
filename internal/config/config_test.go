package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "automap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultNeedsDataSource(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())
	cfg.Synthetic = true
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, int64(3), cfg.Seed)
	assert.Equal(t, 11, cfg.BatchSize)
	assert.Equal(t, 2, cfg.CheckpointEvery)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
data_dir: /data/mri
cases: [2, 4]
learning_rate: 0.001
num_epochs: 100
plot: png
normalize: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/mri", cfg.DataDir)
	assert.Equal(t, [2]int{2, 4}, cfg.Cases)
	assert.Equal(t, 1e-3, cfg.LearningRate)
	assert.Equal(t, 100, cfg.NumEpochs)
	assert.Equal(t, "png", cfg.Plot)
	assert.True(t, cfg.Normalize)
	// Unset keys keep their defaults.
	assert.Equal(t, 11, cfg.BatchSize)
	assert.Equal(t, "../checkpoints", cfg.CheckpointDir)
	assert.True(t, cfg.Progress)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "synthetic: true\nepochs: 3\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOverridesTakePrecedence(t *testing.T) {
	cfg, err := Load(writeConfig(t, "synthetic: true\nbatch_size: 7\nprogress: true\nseed: 9\n"))
	require.NoError(t, err)

	batch, progress, dev := 20, false, DeviceWebGPU
	cfg.ApplyOverrides(Overrides{BatchSize: &batch, Progress: &progress, Device: &dev})
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.BatchSize)
	assert.False(t, cfg.Progress)
	assert.Equal(t, DeviceWebGPU, cfg.Device)
	assert.Equal(t, int64(9), cfg.Seed, "fields without override keep the file value")
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(c *Config){
		"lr":               func(c *Config) { c.LearningRate = 0 },
		"epochs":           func(c *Config) { c.NumEpochs = 0 },
		"batch":            func(c *Config) { c.BatchSize = -1 },
		"checkpoint_every": func(c *Config) { c.CheckpointEvery = 0 },
		"plot":             func(c *Config) { c.Plot = "gif" },
		"device":           func(c *Config) { c.Device = "tpu" },
		"undersample":      func(c *Config) { c.Undersample = 1.5 },
		"image_size":       func(c *Config) { c.ImageSize = 0 },
		"checkpoint_dir":   func(c *Config) { c.CheckpointDir = "" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Synthetic = true
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.DataDir = "/data"
	cfg.Cases = [2]int{3, 1}
	assert.Error(t, cfg.Validate())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/ckpt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "ckpt"), got)

	got, err = ExpandHome("../ckpt")
	require.NoError(t, err)
	assert.Equal(t, "../ckpt", got)

	cfg := Default()
	cfg.Synthetic = true
	cfg.CheckpointDir = "~/runs"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join(home, "runs"), cfg.CheckpointDir)
}
