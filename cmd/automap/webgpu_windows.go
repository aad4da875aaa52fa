//go:build windows

package main

import (
	"context"

	"github.com/automap-mri/automap/internal/config"
	"github.com/automap-mri/automap/internal/device"
)

func trainOnWebGPU(ctx context.Context, cfg *config.Config) error {
	sess, err := device.OpenWebGPU()
	if err != nil {
		return err
	}
	defer sess.Close()
	_, err = runTraining(ctx, cfg, sess)
	return err
}
