// Package train runs the AUTOMAP training loop.
//
// A run walks INIT -> (EPOCH_START -> MINIBATCH_LOOP -> EPOCH_END
// [-> CHECKPOINT])* -> DONE. Each epoch reshuffles the dataset with a seed
// that is incremented once per epoch, applies one optimizer step per
// minibatch and records the epoch cost as the average of the per-minibatch
// mean costs, every minibatch weighted equally regardless of its size.
package train

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/automap-mri/automap/internal/automap"
	"github.com/automap-mri/automap/internal/batch"
	"github.com/automap-mri/automap/internal/checkpoint"
	"github.com/automap-mri/automap/internal/dataset"
	"github.com/automap-mri/automap/internal/optim"
)

// Config controls the loop.
type Config struct {
	NumEpochs int
	BatchSize int

	// CheckpointEvery saves after every epoch e with (e+1) % CheckpointEvery == 0.
	CheckpointEvery int

	// Seed is incremented before each epoch's shuffle, so epoch e uses
	// Seed+e+1.
	Seed int64

	// StrictCheckpoints makes a failed save abort the run. By default the
	// failure is reported and training continues.
	StrictCheckpoints bool

	// TrainingMeta is copied into every checkpoint.
	TrainingMeta map[string]any
}

// DefaultConfig returns the standard settings: 5 epochs of minibatches
// of 11, checkpoints every 2 epochs, seed 3.
func DefaultConfig() Config {
	return Config{NumEpochs: 5, BatchSize: 11, CheckpointEvery: 2, Seed: 3}
}

// Result is what a completed run returns.
type Result struct {
	// LearningCurve holds one cost per epoch, including epochs restored
	// from a checkpoint.
	LearningCurve []float64
	GlobalStep    int64
	Checkpoints   []checkpoint.Handle
	// CheckpointErrors lists saves that failed without aborting the run.
	CheckpointErrors []error
	RunID            string
}

// Option customizes a Trainer.
type Option func(*options)

type options struct {
	store    *checkpoint.Store
	reporter Reporter
	runID    string
}

// WithStore enables checkpointing into store.
func WithStore(store *checkpoint.Store) Option {
	return func(o *options) { o.store = store }
}

// WithReporter replaces the default LogReporter.
func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithRunID sets the run identifier written to checkpoints. A random UUID
// is used otherwise.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// Trainer owns one model, its optimizer and the backend they run on.
type Trainer[B autodiff.BackwardCapable] struct {
	model   *automap.Model[B]
	opt     optim.Optimizer
	backend B
	cfg     Config
	opts    options

	startEpoch int
	curve      []float64
}

// New creates a trainer. The optimizer must update model's parameters.
func New[B autodiff.BackwardCapable](model *automap.Model[B], opt optim.Optimizer, backend B, cfg Config, opts ...Option) (*Trainer[B], error) {
	if cfg.NumEpochs < 1 {
		return nil, errors.Errorf("train: need at least one epoch, got %d", cfg.NumEpochs)
	}
	if cfg.BatchSize < 1 {
		return nil, errors.Wrapf(batch.ErrInvalidBatchSize, "train: got %d", cfg.BatchSize)
	}
	if cfg.CheckpointEvery < 1 {
		return nil, errors.Errorf("train: checkpoint interval must be at least 1, got %d", cfg.CheckpointEvery)
	}
	t := &Trainer[B]{model: model, opt: opt, backend: backend, cfg: cfg}
	for _, o := range opts {
		o(&t.opts)
	}
	if t.opts.reporter == nil {
		t.opts.reporter = LogReporter{}
	}
	if t.opts.runID == "" {
		t.opts.runID = uuid.NewString()
	}
	return t, nil
}

// Resume loads model weights, optimizer slots, the global step and the
// learning curve from a checkpoint. The next Run continues with the epoch
// after the one the checkpoint recorded.
func (t *Trainer[B]) Resume(state *checkpoint.State) error {
	if err := t.model.LoadStateDict(state.Tensors); err != nil {
		return errors.Wrap(err, "resume: model")
	}
	if err := t.opt.LoadStateDict(state.Tensors); err != nil {
		return errors.Wrap(err, "resume: optimizer")
	}
	t.opt.SetGlobalStep(state.GlobalStep)
	t.startEpoch = state.Epoch + 1
	t.curve = curveFromMeta(state.TrainingMeta)
	if id := state.Metadata["run_id"]; id != "" {
		t.opts.runID = id
	}
	klog.Infof("Resumed at epoch %d, global step %d", t.startEpoch, state.GlobalStep)
	return nil
}

// StartEpoch is the first epoch the next Run will execute.
func (t *Trainer[B]) StartEpoch() int { return t.startEpoch }

// Run trains for the configured number of epochs. It returns a
// *ComputationError when a step fails, ctx.Err() (wrapped) when ctx is
// cancelled between minibatches, and a *checkpoint.PersistenceError only
// when StrictCheckpoints is set.
func (t *Trainer[B]) Run(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	mc := t.model.Config()
	if ds.H != mc.Height || ds.W != mc.Width {
		return nil, errors.WithStack(&dataset.InvalidDatasetError{
			Reason: "examples are " + dims(ds.H, ds.W) + ", model expects " + dims(mc.Height, mc.Width),
		})
	}

	tape := t.backend.GetTape()
	tape.StartRecording()
	defer func() {
		tape.Clear()
		tape.StopRecording()
	}()

	res := &Result{
		LearningCurve: append([]float64(nil), t.curve...),
		RunID:         t.opts.runID,
	}
	seed := t.cfg.Seed + int64(t.startEpoch)
	rep := t.opts.reporter

	for epoch := t.startEpoch; epoch < t.cfg.NumEpochs; epoch++ {
		tic := time.Now()
		seed++
		batches, err := batch.Partition(ds, t.cfg.BatchSize, seed)
		if err != nil {
			return nil, err
		}
		rep.EpochStart(epoch, len(batches))

		var epochCost float64
		for i := range batches {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrapf(err, "training interrupted in epoch %d", epoch)
			}
			step := t.opt.GlobalStep()
			cost, err := t.step(&batches[i])
			if err != nil {
				return nil, &ComputationError{Epoch: epoch, Batch: i, Step: step, Err: err}
			}
			epochCost += cost / float64(len(batches))
			rep.MinibatchDone(epoch, i, cost)
		}

		res.LearningCurve = append(res.LearningCurve, epochCost)
		rep.EpochEnd(EpochSummary{
			Epoch:       epoch,
			Cost:        epochCost,
			Elapsed:     time.Since(tic),
			GlobalStep:  t.opt.GlobalStep(),
			Minibatches: len(batches),
		})

		if t.opts.store != nil && (epoch+1)%t.cfg.CheckpointEvery == 0 {
			h, err := t.save(epoch, epochCost, res.LearningCurve)
			rep.CheckpointDone(epoch, h, err)
			if err != nil {
				if t.cfg.StrictCheckpoints {
					return nil, err
				}
				res.CheckpointErrors = append(res.CheckpointErrors, err)
			} else {
				res.Checkpoints = append(res.Checkpoints, h)
			}
		}
	}

	t.startEpoch = max(t.startEpoch, t.cfg.NumEpochs)
	t.curve = res.LearningCurve
	res.GlobalStep = t.opt.GlobalStep()
	return res, nil
}

// step runs forward, cost, gradients and update for one minibatch and
// returns its mean cost. Panics raised by the tensor backend are turned
// into errors here.
func (t *Trainer[B]) step(mb *batch.Minibatch) (cost float64, err error) {
	tape := t.backend.GetTape()
	defer tape.Clear()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%v", r)
		}
	}()

	n := mb.Size()
	x, err := tensor.FromSlice(mb.X, tensor.Shape{n, mb.H, mb.W, 2}, t.backend)
	if err != nil {
		return 0, errors.Wrap(err, "input")
	}
	y, err := tensor.FromSlice(mb.Y, tensor.Shape{n, mb.H, mb.W}, t.backend)
	if err != nil {
		return 0, errors.Wrap(err, "label")
	}

	c := automap.Cost(t.model.Forward(x), y)
	cost = automap.MeanCost(c)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 0, errors.Wrapf(ErrNonFiniteCost, "cost=%v", cost)
	}
	grads := optim.ComputeGradients(c, t.backend)
	t.opt.Apply(grads)
	return cost, nil
}

func (t *Trainer[B]) save(epoch int, cost float64, curve []float64) (checkpoint.Handle, error) {
	tensors := t.model.StateDict()
	for k, v := range t.opt.StateDict() {
		tensors[k] = v
	}
	meta := map[string]any{
		"batch_size":     t.cfg.BatchSize,
		"seed":           t.cfg.Seed,
		"num_epochs":     t.cfg.NumEpochs,
		"learning_curve": curve,
	}
	for k, v := range t.cfg.TrainingMeta {
		meta[k] = v
	}
	metadata := t.model.Config().Metadata()
	metadata["run_id"] = t.opts.runID
	return t.opts.store.Save(&checkpoint.State{
		Tensors:         tensors,
		GlobalStep:      t.opt.GlobalStep(),
		Epoch:           epoch,
		Loss:            cost,
		OptimizerType:   t.opt.Name(),
		OptimizerConfig: t.opt.Hyperparameters(),
		TrainingMeta:    meta,
		Metadata:        metadata,
	})
}

// curveFromMeta reads back the learning curve stored by save. JSON turns
// the []float64 into []any.
func curveFromMeta(meta map[string]any) []float64 {
	values, ok := meta["learning_curve"].([]any)
	if !ok {
		return nil
	}
	curve := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := v.(float64); ok {
			curve = append(curve, f)
		}
	}
	return curve
}

func dims(h, w int) string { return fmt.Sprintf("%dx%d", h, w) }
