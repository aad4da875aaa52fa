package optim

import (
	"math"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	bornoptim "github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.Backend[*cpu.Backend]

func param(t *testing.T, backend Backend, values ...float32) *nn.Parameter[Backend] {
	t.Helper()
	w := must.M1(tensor.FromSlice(values, tensor.Shape{len(values)}, backend))
	return nn.NewParameter("w", w)
}

func gradFor(t *testing.T, p *nn.Parameter[Backend], values ...float32) Gradients {
	t.Helper()
	g := must.M1(tensor.FromSlice(values, p.Tensor().Shape(), p.Tensor().Backend()))
	return Gradients{p.Tensor().Raw(): g.Raw()}
}

func TestRMSPropUpdate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	p := param(t, backend, 1, 2)
	opt := NewRMSProp([]*nn.Parameter[Backend]{p}, RMSPropConfig{LR: 0.1})

	assert.Equal(t, float32(0.9), opt.Config().Decay)
	assert.Equal(t, float32(0), opt.Config().Momentum)
	assert.Equal(t, float32(1e-10), opt.Config().Eps)

	// ms starts at 1: ms = 0.9 + 0.1*1 = 1, step = 0.1*1/sqrt(1).
	opt.Apply(gradFor(t, p, 1, 0))
	data := p.Tensor().Raw().AsFloat32()
	assert.InDelta(t, 0.9, data[0], 1e-6)
	assert.InDelta(t, 2.0, data[1], 1e-6, "zero gradient leaves the weight")
	assert.Equal(t, int64(1), opt.GlobalStep())

	// ms = 0.9*1 + 0.1*4 = 1.3, step = 0.1*2/sqrt(1.3).
	opt.Apply(gradFor(t, p, 2, 0))
	want := 0.9 - 0.2/math.Sqrt(1.3)
	assert.InDelta(t, want, data[0], 1e-6)
	assert.Equal(t, int64(2), opt.GlobalStep())
}

func TestRMSPropMomentum(t *testing.T) {
	backend := autodiff.New(cpu.New())
	p := param(t, backend, 0)
	opt := NewRMSProp([]*nn.Parameter[Backend]{p}, RMSPropConfig{LR: 0.1, Momentum: 0.5})

	opt.Apply(gradFor(t, p, 1)) // mom = 0.1
	opt.Apply(gradFor(t, p, 1)) // ms = 1, mom = 0.05 + 0.1
	assert.InDelta(t, -0.25, p.Tensor().Raw().AsFloat32()[0], 1e-6)
}

func TestRMSPropSkipsMissingGradients(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := param(t, backend, 1)
	b := param(t, backend, 5)
	opt := NewRMSProp([]*nn.Parameter[Backend]{a, b}, RMSPropConfig{LR: 0.1})

	opt.Apply(gradFor(t, a, 1))
	assert.Equal(t, float32(5), b.Tensor().Raw().AsFloat32()[0])
	assert.Equal(t, int64(1), opt.GlobalStep())

	state := opt.StateDict()
	assert.Contains(t, state, "rmsprop.ms.0")
	assert.NotContains(t, state, "rmsprop.ms.1")
}

func TestRMSPropStateDictRoundTrip(t *testing.T) {
	backend := autodiff.New(cpu.New())
	p := param(t, backend, 1, 1, 1)
	opt := NewRMSProp([]*nn.Parameter[Backend]{p}, RMSPropConfig{LR: 0.1, Momentum: 0.9})
	opt.Apply(gradFor(t, p, 1, 2, 3))
	opt.Apply(gradFor(t, p, -1, 0, 1))

	q := param(t, backend, p.Tensor().Raw().AsFloat32()...)
	restored := NewRMSProp([]*nn.Parameter[Backend]{q}, RMSPropConfig{LR: 0.1, Momentum: 0.9})
	require.NoError(t, restored.LoadStateDict(opt.StateDict()))
	restored.SetGlobalStep(opt.GlobalStep())

	opt.Apply(gradFor(t, p, 0.5, 0.5, 0.5))
	restored.Apply(gradFor(t, q, 0.5, 0.5, 0.5))
	assert.Equal(t, p.Tensor().Raw().AsFloat32(), q.Tensor().Raw().AsFloat32())
	assert.Equal(t, int64(3), restored.GlobalStep())
}

func TestRMSPropLoadStateDictErrors(t *testing.T) {
	backend := autodiff.New(cpu.New())
	p := param(t, backend, 1, 1)
	opt := NewRMSProp([]*nn.Parameter[Backend]{p}, RMSPropConfig{})

	bad, err := tensor.NewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	assert.Error(t, opt.LoadStateDict(map[string]*tensor.RawTensor{"rmsprop.ms.0": bad}))
	assert.Error(t, opt.LoadStateDict(map[string]*tensor.RawTensor{"rmsprop.ms.7": bad}))
	assert.NoError(t, opt.LoadStateDict(map[string]*tensor.RawTensor{"fc1.weight": bad}))
}

func TestComputeGradients(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	defer backend.Tape().Clear()

	x := must.M1(tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend))
	y := x.Mul(x)
	grads := ComputeGradients(y, backend)
	// d/dx sum(x²) = 2x
	assert.Equal(t, []float32{2, 4, 6}, grads[x.Raw()].AsFloat32())
}

func TestCountedAdam(t *testing.T) {
	backend := autodiff.New(cpu.New())
	p := param(t, backend, 1)
	params := []*nn.Parameter[Backend]{p}
	opt := NewCounted("Adam", bornoptim.NewAdam(params, bornoptim.AdamConfig{LR: 0.1}, backend))

	opt.Apply(gradFor(t, p, 1))
	// First Adam step moves each weight by about lr.
	assert.InDelta(t, 0.9, p.Tensor().Raw().AsFloat32()[0], 1e-4)
	assert.Equal(t, int64(1), opt.GlobalStep())
	assert.Equal(t, "Adam", opt.Name())
	assert.Empty(t, opt.StateDict())
	assert.InDelta(t, 0.1, opt.GetLR(), 1e-9)
}
