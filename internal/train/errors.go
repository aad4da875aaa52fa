package train

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNonFiniteCost is wrapped by ComputationError when a minibatch cost
// is NaN or infinite.
var ErrNonFiniteCost = errors.New("non-finite cost")

// ComputationError aborts a run when a forward, backward or update step
// fails. Step is the global step at which the failing minibatch started.
type ComputationError struct {
	Epoch int
	Batch int
	Step  int64
	Err   error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation failed at epoch %d, minibatch %d (global step %d): %v",
		e.Epoch, e.Batch, e.Step, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }
