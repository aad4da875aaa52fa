// Command automap trains the AUTOMAP MRI reconstruction network and
// inspects the checkpoints it writes.
//
// Usage:
//
//	automap [klog flags] train   [flags]
//	automap [klog flags] inspect CHECKPOINT_FILE_OR_DIR
//	automap [klog flags] export  -out model.born CHECKPOINT_FILE_OR_DIR
//	automap version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"k8s.io/klog/v2"
)

const version = "v0.1.0"

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) error
}

var commands = []command{
	{"train", "train the network and plot its learning curve", runTrain},
	{"inspect", "describe a checkpoint file or the latest one in a directory", runInspect},
	{"export", "write the model weights of a checkpoint without optimizer state", runExport},
	{"version", "show version", func(context.Context, []string) error {
		fmt.Printf("automap %s\n", version)
		return nil
	}},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] <command> [command flags]\n\nCommands:\n", os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(out, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		if err := c.run(ctx, args[1:]); err != nil {
			if klog.V(1).Enabled() {
				klog.Exitf("%s: %+v", c.name, err)
			}
			klog.Exitf("%s: %v", c.name, err)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
	usage()
	os.Exit(2)
}
