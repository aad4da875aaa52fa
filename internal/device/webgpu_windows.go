//go:build windows

package device

import (
	"github.com/born-ml/born/backend/webgpu"
	"github.com/pkg/errors"
)

// OpenWebGPU opens the first WebGPU adapter.
func OpenWebGPU() (*Session[*webgpu.Backend], error) {
	if !webgpu.IsAvailable() {
		return nil, errors.WithStack(ErrUnavailable)
	}
	gpu, err := webgpu.New()
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "webgpu: %v", err)
	}
	return newSession(gpu, gpu.Release), nil
}
