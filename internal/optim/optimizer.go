// Package optim separates gradient computation from parameter updates and
// keeps the global step counter that names checkpoints.
//
// A training step is:
//
//	cost := automap.Cost(model.Forward(x), y)
//	grads := optim.ComputeGradients(cost, backend)
//	optimizer.Apply(grads) // updates parameters, global step += 1
//
// RMSProp is implemented here with slot state that can be checkpointed.
// Any born optimizer (SGD, Adam) can be driven through Counted.
package optim

import (
	"github.com/born-ml/born/autodiff"
	bornoptim "github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
)

// Gradients maps each parameter tensor to its gradient.
type Gradients = map[*tensor.RawTensor]*tensor.RawTensor

// ComputeGradients back-propagates from loss through the operations
// recorded on the backend's tape. For a non-scalar loss every element is
// seeded with one, so the result is the gradient of the sum of loss.
//
// It panics when nothing was recorded; callers recover at the step
// boundary.
func ComputeGradients[B autodiff.BackwardCapable](loss *tensor.Tensor[float32, B], backend B) Gradients {
	return autodiff.Backward(loss, backend)
}

// Optimizer applies gradients and counts the updates it has made.
type Optimizer interface {
	// Apply updates every parameter that has a gradient and increments
	// the global step by one.
	Apply(grads Gradients)

	// GlobalStep is the number of Apply calls since creation or the last
	// SetGlobalStep.
	GlobalStep() int64
	SetGlobalStep(step int64)

	// StateDict exports the optimizer slots for checkpointing. It may be
	// empty for optimizers whose state cannot be exported.
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(state map[string]*tensor.RawTensor) error

	// Name identifies the algorithm in checkpoint metadata.
	Name() string
	// Hyperparameters are recorded in checkpoint metadata.
	Hyperparameters() map[string]any

	GetLR() float32
}

// Counted drives a born optimizer and adds the global step counter.
// Its slots are private to born and are not checkpointed.
type Counted struct {
	name  string
	inner bornoptim.Optimizer
	step  int64
}

var _ Optimizer = (*Counted)(nil)

// NewCounted wraps inner, reporting it as name.
func NewCounted(name string, inner bornoptim.Optimizer) *Counted {
	return &Counted{name: name, inner: inner}
}

// Apply runs one step of the wrapped optimizer.
func (c *Counted) Apply(grads Gradients) {
	c.inner.Step(grads)
	c.inner.ZeroGrad()
	c.step++
}

func (c *Counted) GlobalStep() int64        { return c.step }
func (c *Counted) SetGlobalStep(step int64) { c.step = step }
func (c *Counted) Name() string             { return c.name }
func (c *Counted) GetLR() float32           { return c.inner.GetLR() }

func (c *Counted) Hyperparameters() map[string]any {
	return map[string]any{"learning_rate": c.inner.GetLR()}
}

// StateDict is empty: born keeps its optimizer moments unexported.
func (c *Counted) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict ignores state; only the global step survives a restore.
func (c *Counted) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }
