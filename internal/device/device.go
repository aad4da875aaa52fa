// Package device opens the compute backend a run executes on and releases
// it when the run ends.
package device

import (
	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrUnavailable is returned when the requested device cannot be used on
// this machine.
var ErrUnavailable = errors.New("device unavailable")

// Session owns a gradient-recording backend for the duration of a run.
// Close must be called on every exit path.
type Session[B tensor.Backend] struct {
	Backend *autodiff.Backend[B]
	release func()
	closed  bool
}

func newSession[B tensor.Backend](inner B, release func()) *Session[B] {
	s := &Session[B]{Backend: autodiff.New(inner), release: release}
	klog.Infof("Device: %s (%s)", s.Name(), inner.Device())
	return s
}

// OpenCPU opens the pure Go CPU backend. It is always available.
func OpenCPU() *Session[*cpu.Backend] {
	return newSession(cpu.New(), nil)
}

// Name describes the backend, e.g. "Autodiff(CPU)".
func (s *Session[B]) Name() string {
	return s.Backend.Name()
}

// Close clears any recorded operations and releases the device. It is
// safe to call more than once.
func (s *Session[B]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	tape := s.Backend.Tape()
	tape.StopRecording()
	tape.Clear()
	if s.release != nil {
		s.release()
	}
	klog.V(1).Infof("Device %s released", s.Name())
	return nil
}
