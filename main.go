// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Main entrypoint for govmaf application

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/evolution-gaming/govmaf/internal/logging"
	"github.com/evolution-gaming/govmaf/model"
)

// root represents top level of govmaf command, including dispatching to subcommands.
func root(args []string) error {
	usage := `govmaf - VMAF scoring with embedded models

Usage:

    govmaf <command> [arguments] [-h|-help]

The commands are:

    models      list embedded VMAF models, optionally write them to disk
    score       calculate VMAF of a distorted video against reference via ffmpeg
    native      calculate VMAF of raw YUV files via linked libvmaf
    vqmplot     create plot for given metric from libvmaf JSON report
    dump-conf   output actual application configuration
    version     print govmaf version and exit

Use "govmaf <command> -h|-help" for more information about command.`

	if len(args) < 1 {
		fmt.Println(usage)
		return &AppError{msg: "please, specify command", exitCode: 2}
	}

	switch args[0] {
	case "models":
		return CreateModelsCommand().Run(args[1:])
	case "score":
		return CreateScoreCommand().Run(args[1:])
	case "native":
		return CreateNativeCommand().Run(args[1:])
	case "vqmplot":
		return CreateVQMPlotCommand().Run(args[1:])
	case "dump-conf", "dump":
		return CreateDumpConfCommand().Run(args[1:])
	case "version":
		printVersion()
		return nil
	case "-h", "-help", "--help", "?":
		fmt.Println(usage)
		return &AppError{
			exitCode: 2,
		}
	default:
		// No commands were matched at this point, so bail out with default usage message.
		fmt.Println(usage)
		return &AppError{
			msg:      "unknown command/flag",
			exitCode: 2,
		}
	}
}

// exitCode maps error returned from root to process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *AppError
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return 1
}

// run executes the application and removes materialized models before
// returning.
func run(args []string) int {
	defer func() {
		if err := model.Cleanup(); err != nil {
			logging.Warnf("Model cleanup: %s", err)
		}
	}()

	err := root(args)
	if err != nil && err.Error() != "" {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	return exitCode(err)
}

// interruptible is set while a subcommand stops its own work on signal.
var interruptible atomic.Bool

// handleSignals removes model files and exits on the first signal received
// while no subcommand is interruptible. Otherwise the subcommand returns and
// cleanup is left to the deferred call in run.
func handleSignals(sigs <-chan os.Signal, cleanup func() error, exit func(int)) {
	for s := range sigs {
		if interruptible.Load() {
			logging.Infof("Received %s, stopping", s)
			continue
		}
		logging.Infof("Received %s, cleaning up", s)
		if err := cleanup(); err != nil {
			logging.Warnf("Model cleanup: %s", err)
		}
		exit(130)
		return
	}
}

// interruptibleContext returns a context cancelled on SIGINT or SIGTERM and
// marks the caller interruptible until release is called.
func interruptibleContext(parent context.Context) (ctx context.Context, release func()) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	interruptible.Store(true)
	return ctx, func() {
		interruptible.Store(false)
		stop()
	}
}

func main() {
	// Enable info logger by default and early enough.
	logging.EnableInfoLogger()

	// Deferred cleanup does not run when process is interrupted, so remove
	// model files on signal as well.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go handleSignals(sigs, model.Cleanup, os.Exit)

	os.Exit(run(os.Args[1:]))
}
