// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command vmaf-fetch downloads and builds libvmaf and installs the static
// library and the model files embedded by package model.
//
// It runs through go generate:
//
//	go generate ./model
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/evolution-gaming/govmaf/internal/fetch"
	"github.com/evolution-gaming/govmaf/internal/logging"
)

func main() {
	var cfg fetch.Config
	var debug bool

	fs := flag.NewFlagSet("vmaf-fetch", flag.ExitOnError)
	fs.StringVar(&cfg.Ref, "ref", fetch.DefaultRef, "Netflix/vmaf git ref to build")
	fs.StringVar(&cfg.URL, "url", "", "Source tarball URL (default derived from -ref)")
	fs.StringVar(&cfg.WorkDir, "work-dir", ".vmaf-build", "Scratch directory for download and build")
	fs.StringVar(&cfg.LibDir, "lib-dir", "", "Destination for libvmaf.a and libvmaf.h (mandatory)")
	fs.StringVar(&cfg.ModelsDir, "models-dir", "", "Destination for model files (mandatory)")
	fs.StringVar(&cfg.MakeCmd, "make", fetch.DefaultMakeCmd, "Build command template")
	fs.Uint64Var(&cfg.Retries, "retries", fetch.DefaultRetries, "Download retries")
	fs.DurationVar(&cfg.RetryBase, "retry-base", fetch.DefaultRetryBase, "Initial delay between download retries")
	fs.BoolVar(&cfg.Force, "force", false, "Rebuild even if all artifacts are present")
	fs.BoolVar(&cfg.KeepWorkDir, "keep", false, "Keep sources in work directory")
	fs.BoolVar(&debug, "debug", false, "Enable debug logging and show build output")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: vmaf-fetch -lib-dir DIR -models-dir DIR [flags]\n\n")
		fs.PrintDefaults()
	}
	// Parse never fails with ExitOnError.
	_ = fs.Parse(os.Args[1:])

	logging.EnableInfoLogger()
	if debug {
		logging.EnableDebugLogger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := fetch.Run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "vmaf-fetch: %s\n", err)
		stop()
		os.Exit(1)
	}
}
