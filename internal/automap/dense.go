package automap

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Dense is a fully connected layer without bias: y = x·W, with W stored as
// [in, out].
type Dense[B tensor.Backend] struct {
	in, out int
	weight  *nn.Parameter[B]
}

// NewDense creates a Dense layer with Xavier-initialized weights.
func NewDense[B tensor.Backend](in, out int, backend B) *Dense[B] {
	if in <= 0 || out <= 0 {
		panic(fmt.Sprintf("dense: invalid features in=%d, out=%d", in, out))
	}
	w := nn.Xavier(in, out, tensor.Shape{in, out}, backend)
	return &Dense[B]{in: in, out: out, weight: nn.NewParameter("dense.weight", w)}
}

// Forward maps [batch, in] to [batch, out].
func (d *Dense[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != d.in {
		panic(fmt.Sprintf("dense: expected input [batch, %d], got %v", d.in, shape))
	}
	return input.MatMul(d.weight.Tensor())
}

// Weight returns the [in, out] weight parameter.
func (d *Dense[B]) Weight() *nn.Parameter[B] { return d.weight }

// Parameters returns the weight.
func (d *Dense[B]) Parameters() []*nn.Parameter[B] { return []*nn.Parameter[B]{d.weight} }

func (d *Dense[B]) String() string {
	return fmt.Sprintf("Dense(in=%d, out=%d, bias=false)", d.in, d.out)
}
