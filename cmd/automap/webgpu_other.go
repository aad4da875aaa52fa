//go:build !windows

package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/automap-mri/automap/internal/config"
	"github.com/automap-mri/automap/internal/device"
)

func trainOnWebGPU(context.Context, *config.Config) error {
	return errors.Wrap(device.ErrUnavailable, "webgpu backend is only built on windows")
}
