package optim

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

// Slot key prefixes used by RMSProp.StateDict.
const (
	slotMeanSquare = "rmsprop.ms."
	slotMomentum   = "rmsprop.mom."
)

// RMSPropConfig holds the RMSProp hyperparameters.
type RMSPropConfig struct {
	LR       float32 // Learning rate (default: 0.0001)
	Decay    float32 // Discount of the squared-gradient average (default: 0.9)
	Momentum float32 // Momentum coefficient (default: 0)
	Eps      float32 // Added under the square root (default: 1e-10)
}

// DefaultRMSPropConfig returns the defaults listed on RMSPropConfig.
func DefaultRMSPropConfig() RMSPropConfig {
	return RMSPropConfig{LR: 1e-4, Decay: 0.9, Momentum: 0, Eps: 1e-10}
}

// RMSProp implements RMSProp with the mean-square accumulator initialized
// to one.
//
// Update rule, per element:
//
//	ms  = decay * ms + (1 - decay) * g²
//	mom = momentum * mom + lr * g / sqrt(ms + eps)
//	p   = p - mom
//
// Slots are created lazily on the first gradient a parameter receives.
// Parameters without a gradient are skipped, but the global step still
// advances once per Apply.
type RMSProp[B tensor.Backend] struct {
	params []*nn.Parameter[B]
	cfg    RMSPropConfig
	ms     [][]float32
	mom    [][]float32
	step   int64
}

var _ Optimizer = (*RMSProp[tensor.Backend])(nil)

// NewRMSProp creates an optimizer over params. A zero LR, Decay or Eps
// takes its default; Momentum defaults to zero.
func NewRMSProp[B tensor.Backend](params []*nn.Parameter[B], cfg RMSPropConfig) *RMSProp[B] {
	def := DefaultRMSPropConfig()
	if cfg.LR == 0 {
		cfg.LR = def.LR
	}
	if cfg.Decay == 0 {
		cfg.Decay = def.Decay
	}
	if cfg.Eps == 0 {
		cfg.Eps = def.Eps
	}
	return &RMSProp[B]{
		params: params,
		cfg:    cfg,
		ms:     make([][]float32, len(params)),
		mom:    make([][]float32, len(params)),
	}
}

// Apply performs one RMSProp update.
func (r *RMSProp[B]) Apply(grads Gradients) {
	for i, param := range r.params {
		grad, ok := grads[param.Tensor().Raw()]
		if !ok || grad == nil {
			continue
		}
		p := param.Tensor().Raw().AsFloat32()
		g := grad.AsFloat32()
		if len(g) != len(p) {
			panic(fmt.Sprintf("rmsprop: gradient for parameter %d has %d elements, parameter has %d", i, len(g), len(p)))
		}
		r.ensureSlots(i, len(p))
		r.update(p, g, r.ms[i], r.mom[i])
	}
	r.step++
}

// Step implements born's optim.Optimizer.
func (r *RMSProp[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	r.Apply(grads)
}

func (r *RMSProp[B]) ensureSlots(i, n int) {
	if r.ms[i] != nil {
		return
	}
	ms := make([]float32, n)
	for j := range ms {
		ms[j] = 1
	}
	r.ms[i] = ms
	r.mom[i] = make([]float32, n)
}

func (r *RMSProp[B]) update(p, g, ms, mom []float32) {
	decay, momentum, lr, eps := r.cfg.Decay, r.cfg.Momentum, r.cfg.LR, r.cfg.Eps
	for j := range p {
		gj := g[j]
		ms[j] = decay*ms[j] + (1-decay)*gj*gj
		mom[j] = momentum*mom[j] + lr*gj/float32(math.Sqrt(float64(ms[j]+eps)))
		p[j] -= mom[j]
	}
}

// ZeroGrad clears the parameters' gradients.
func (r *RMSProp[B]) ZeroGrad() {
	for _, p := range r.params {
		p.ZeroGrad()
	}
}

func (r *RMSProp[B]) GetLR() float32           { return r.cfg.LR }
func (r *RMSProp[B]) GlobalStep() int64        { return r.step }
func (r *RMSProp[B]) SetGlobalStep(step int64) { r.step = step }
func (r *RMSProp[B]) Name() string             { return "RMSProp" }

// Config returns the effective hyperparameters.
func (r *RMSProp[B]) Config() RMSPropConfig { return r.cfg }

func (r *RMSProp[B]) Hyperparameters() map[string]any {
	return map[string]any{
		"learning_rate": r.cfg.LR,
		"decay":         r.cfg.Decay,
		"momentum":      r.cfg.Momentum,
		"epsilon":       r.cfg.Eps,
	}
}

// StateDict exports initialized slots as float32 tensors keyed by
// parameter index.
func (r *RMSProp[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for i := range r.params {
		if r.ms[i] == nil {
			continue
		}
		shape := r.params[i].Tensor().Shape()
		state[slotMeanSquare+strconv.Itoa(i)] = slotTensor(r.ms[i], shape)
		state[slotMomentum+strconv.Itoa(i)] = slotTensor(r.mom[i], shape)
	}
	return state
}

func slotTensor(values []float32, shape tensor.Shape) *tensor.RawTensor {
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(err)
	}
	copy(raw.AsFloat32(), values)
	return raw
}

// LoadStateDict restores slots written by StateDict. Keys that are not
// RMSProp slots are ignored, so the model and optimizer can share one map.
func (r *RMSProp[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for key, raw := range state {
		var prefix string
		switch {
		case strings.HasPrefix(key, slotMeanSquare):
			prefix = slotMeanSquare
		case strings.HasPrefix(key, slotMomentum):
			prefix = slotMomentum
		default:
			continue
		}
		i, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
		if err != nil || i < 0 || i >= len(r.params) {
			return errors.Errorf("rmsprop: slot %q does not name a parameter", key)
		}
		if raw.DType() != tensor.Float32 {
			return errors.Errorf("rmsprop: slot %q has dtype %s, want float32", key, raw.DType())
		}
		n := r.params[i].Tensor().NumElements()
		if raw.NumElements() != n {
			return errors.Errorf("rmsprop: slot %q has %d elements, parameter has %d", key, raw.NumElements(), n)
		}
		r.ensureSlots(i, n)
		if prefix == slotMeanSquare {
			copy(r.ms[i], raw.AsFloat32())
		} else {
			copy(r.mom[i], raw.AsFloat32())
		}
	}
	return nil
}
