package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/automap-mri/automap/internal/automap"
	"github.com/automap-mri/automap/internal/checkpoint"
	"github.com/automap-mri/automap/internal/config"
	"github.com/automap-mri/automap/internal/dataset"
	"github.com/automap-mri/automap/internal/device"
	"github.com/automap-mri/automap/internal/optim"
	"github.com/automap-mri/automap/internal/report"
	"github.com/automap-mri/automap/internal/train"
)

// trainFlags registers the train flags on fs. The returned function
// reports only the flags that were given, so that unset flags do not
// replace values from the config file.
func trainFlags(fs *flag.FlagSet) (configPath *string, overrides func() (config.Overrides, error)) {
	configPath = fs.String("config", "", "YAML config file")
	dataDir := fs.String("data", "", "directory of .mat case files")
	cases := fs.String("cases", "0,1", "case files [first,last) to load, in name order")
	synthetic := fs.Bool("synthetic", false, "train on generated phantoms instead of -data")
	lr := fs.Float64("lr", 1e-4, "learning rate")
	epochs := fs.Int("epochs", 5, "number of epochs")
	batchSize := fs.Int("batch", 11, "minibatch size")
	every := fs.Int("checkpoint_every", 2, "save a checkpoint every N epochs")
	ckptDir := fs.String("checkpoints", "../checkpoints", "checkpoint directory")
	outDir := fs.String("out", ".", "directory for the learning curve")
	plotFormat := fs.String("plot", "svg", "learning curve plot: svg, png or none")
	resume := fs.Bool("resume", false, "continue from the latest checkpoint")
	dev := fs.String("device", config.DeviceCPU, "compute device: cpu or webgpu")
	seed := fs.Int64("seed", 3, "shuffle seed, incremented before every epoch")
	progress := fs.Bool("progress", true, "show a progress bar per epoch")

	overrides = func() (config.Overrides, error) {
		var o config.Overrides
		var err error
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "data":
				o.DataDir = dataDir
			case "cases":
				var r [2]int
				if r, err = parseCases(*cases); err == nil {
					o.Cases = &r
				}
			case "synthetic":
				o.Synthetic = synthetic
			case "lr":
				o.LearningRate = lr
			case "epochs":
				o.NumEpochs = epochs
			case "batch":
				o.BatchSize = batchSize
			case "checkpoint_every":
				o.CheckpointEvery = every
			case "checkpoints":
				o.CheckpointDir = ckptDir
			case "out":
				o.OutputDir = outDir
			case "plot":
				o.Plot = plotFormat
			case "resume":
				o.Resume = resume
			case "device":
				o.Device = dev
			case "seed":
				o.Seed = seed
			case "progress":
				o.Progress = progress
			}
		})
		return o, err
	}
	return configPath, overrides
}

func parseCases(s string) ([2]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return [2]int{}, errors.Errorf("-cases wants first,last, got %q", s)
	}
	var r [2]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return [2]int{}, errors.Wrapf(err, "-cases %q", s)
		}
		r[i] = n
	}
	return r, nil
}

// loadTrainConfig parses args into a validated config: defaults, then the
// -config file, then explicit flags.
func loadTrainConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath, overrides := trainFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.Errorf("unexpected arguments %v", fs.Args())
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	o, err := overrides()
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runTrain(ctx context.Context, args []string) error {
	cfg, err := loadTrainConfig(args)
	if err != nil {
		return err
	}
	switch cfg.Device {
	case config.DeviceWebGPU:
		return trainOnWebGPU(ctx, cfg)
	default:
		sess := device.OpenCPU()
		defer sess.Close()
		_, err := runTraining(ctx, cfg, sess)
		return err
	}
}

// loadDataset reads the configured cases, or generates phantoms.
func loadDataset(cfg *config.Config) (*dataset.Dataset, error) {
	if cfg.Synthetic {
		return dataset.Synthesize(dataset.SynthOptions{
			Examples: cfg.SyntheticExamples,
			Size:     cfg.ImageSize,
			Sampling: cfg.Undersample,
			Seed:     uint64(cfg.Seed),
		})
	}
	return dataset.LoadDir(cfg.DataDir, dataset.LoadOptions{
		FirstCase: cfg.Cases[0],
		LastCase:  cfg.Cases[1],
		Height:    cfg.ImageSize,
		Width:     cfg.ImageSize,
		Normalize: cfg.Normalize,
	})
}

// runTraining builds a fresh model and optimizer on sess, optionally
// resumes from the latest checkpoint, trains and writes the learning
// curve.
func runTraining[D tensor.Backend](ctx context.Context, cfg *config.Config, sess *device.Session[D]) (*train.Result, error) {
	ds, err := loadDataset(cfg)
	if err != nil {
		return nil, err
	}

	model := automap.New(automap.DefaultConfig(ds.H, ds.W), sess.Backend)
	klog.V(1).Infof("Model: %s", model)
	rmsCfg := optim.DefaultRMSPropConfig()
	rmsCfg.LR = float32(cfg.LearningRate)
	opt := optim.NewRMSProp(model.Parameters(), rmsCfg)

	store, err := checkpoint.Open(cfg.CheckpointDir)
	if err != nil {
		return nil, err
	}
	reporters := train.Reporters{train.LogReporter{}}
	if cfg.Progress {
		reporters = append(reporters, report.NewProgress(os.Stderr))
	}

	trainer, err := train.New[*autodiff.Backend[D]](model, opt, sess.Backend, train.Config{
		NumEpochs:         cfg.NumEpochs,
		BatchSize:         cfg.BatchSize,
		CheckpointEvery:   cfg.CheckpointEvery,
		Seed:              cfg.Seed,
		StrictCheckpoints: cfg.StrictCheckpoints,
		TrainingMeta: map[string]any{
			"learning_rate": cfg.LearningRate,
			"device":        sess.Name(),
		},
	}, train.WithStore(store), train.WithReporter(reporters))
	if err != nil {
		return nil, err
	}

	if cfg.Resume {
		if err := resume(trainer, store); err != nil {
			return nil, err
		}
	}

	res, err := trainer.Run(ctx, ds)
	if err != nil {
		return nil, err
	}
	for _, e := range res.CheckpointErrors {
		klog.Warningf("Checkpoint not saved: %v", e)
	}

	curve := &report.Curve{RunID: res.RunID, LearningRate: cfg.LearningRate, Costs: res.LearningCurve}
	format, err := report.ParseFormat(cfg.Plot)
	if err != nil {
		return nil, err
	}
	paths, err := report.WriteAll(cfg.OutputDir, curve, format)
	if err != nil {
		return nil, err
	}
	fmt.Println(report.CurveTable(curve))
	fmt.Printf("Run %s: %d epochs, global step %d, learning curve in %s\n",
		res.RunID, len(res.LearningCurve), res.GlobalStep, strings.Join(paths, ", "))
	return res, nil
}

func resume[B autodiff.BackwardCapable](trainer *train.Trainer[B], store *checkpoint.Store) error {
	h, err := store.Latest()
	if errors.Is(err, checkpoint.ErrNotFound) {
		klog.Infof("No checkpoint in %s, starting from scratch", store.Dir())
		return nil
	}
	if err != nil {
		return err
	}
	state, err := store.Restore(h)
	if err != nil {
		return err
	}
	return trainer.Resume(state)
}
