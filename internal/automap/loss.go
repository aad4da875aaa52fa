package automap

import (
	"fmt"

	"github.com/born-ml/born/tensor"
)

// Cost is the elementwise squared error (output - label)², with the same
// shape as its inputs. It is not reduced: differentiating it seeds every
// element with one, which yields the gradient of the summed error.
func Cost[B tensor.Backend](output, label *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !output.Shape().Equal(label.Shape()) {
		panic(fmt.Sprintf("automap: cost shape mismatch: output %v, label %v", output.Shape(), label.Shape()))
	}
	diff := output.Sub(label)
	return diff.Mul(diff)
}

// MeanCost is the mean over all elements of a cost tensor.
func MeanCost[B tensor.Backend](cost *tensor.Tensor[float32, B]) float64 {
	data := cost.Data()
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += float64(v)
	}
	return sum / float64(len(data))
}
