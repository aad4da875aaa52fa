package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/automap-mri/automap/internal/checkpoint"
	"github.com/automap-mri/automap/internal/report"
)

// resolveCheckpoint accepts a checkpoint file, or a checkpoint directory
// in which case its latest checkpoint is used.
func resolveCheckpoint(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if !fi.IsDir() {
		return path, nil
	}
	store, err := checkpoint.Open(path)
	if err != nil {
		return "", err
	}
	h, err := store.Latest()
	if err != nil {
		return "", err
	}
	return h.Path, nil
}

func runInspect(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: automap inspect CHECKPOINT_FILE_OR_DIR")
	}
	path, err := resolveCheckpoint(fs.Arg(0))
	if err != nil {
		return err
	}
	info, err := checkpoint.Inspect(path)
	if err != nil {
		return err
	}
	fmt.Println(report.CheckpointTable(info))
	if !info.ChecksumOK {
		return errors.Wrap(checkpoint.ErrChecksumMismatch, path)
	}
	return nil
}
