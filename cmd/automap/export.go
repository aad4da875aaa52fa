package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/automap-mri/automap/internal/automap"
	"github.com/automap-mri/automap/internal/checkpoint"
	"github.com/automap-mri/automap/internal/device"
)

// exportModel restores the checkpoint at src into a model and writes only
// its weights to dst. The result loads with born's nn.Load.
func exportModel(src, dst string) error {
	state, err := checkpoint.Read(src)
	if err != nil {
		return err
	}
	mc, err := automap.ConfigFromMetadata(state.Metadata)
	if err != nil {
		return errors.Wrapf(err, "checkpoint %s", src)
	}

	sess := device.OpenCPU()
	defer sess.Close()
	model := automap.New(mc, sess.Backend)
	if err := model.LoadStateDict(state.Tensors); err != nil {
		return errors.Wrapf(err, "checkpoint %s", src)
	}

	meta := mc.Metadata()
	meta["run_id"] = state.Metadata["run_id"]
	meta["global_step"] = fmt.Sprint(state.GlobalStep)
	if err := nn.Save(model, dst, "AUTOMAP", meta); err != nil {
		return errors.Wrapf(err, "failed to export to %s", dst)
	}
	klog.Infof("Exported %d parameters of step %d to %s", model.NumParameters(), state.GlobalStep, dst)
	return nil
}

func runExport(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("out", "automap.born", "output model file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: automap export -out model.born CHECKPOINT_FILE_OR_DIR")
	}
	src, err := resolveCheckpoint(fs.Arg(0))
	if err != nil {
		return err
	}
	return exportModel(src, *out)
}
