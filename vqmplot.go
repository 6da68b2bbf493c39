// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// govmaf tool's vqmplot subcommand implementation.

package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evolution-gaming/govmaf/internal/analysis"
	"github.com/evolution-gaming/govmaf/internal/logging"
	"github.com/evolution-gaming/govmaf/internal/vqm"
)

// Make sure VQMPlotApp implements Commander interface.
var _ Commander = (*VQMPlotApp)(nil)

// VQMPlotApp is vqmplot subcommand context that implements Commander interface.
type VQMPlotApp struct {
	// FlagSet instance
	fs *flag.FlagSet
	// libvmaf JSON log or per-frame metrics file
	flInFile string
	// Plot output file
	flOutFile string
	// Metric to plot
	flMetric string
	// Global flags
	gf globalFlags
}

// CreateVQMPlotCommand will create Commander instance from VQMPlotApp.
func CreateVQMPlotCommand() *VQMPlotApp {
	longHelp := `Subcommand "vqmplot" will create plot of given metric from libvmaf JSON log or
per-frame metrics file, as produced by "score" subcommand (-log and -frames
respectively). Plot consists of per frame values, histogram and CDF.

Examples:

  govmaf vqmplot -i compressed_vmaf.json
  govmaf vqmplot -i compressed_vmaf.json -m PSNR -o psnr.png`

	app := &VQMPlotApp{
		fs: flag.NewFlagSet("vqmplot", flag.ContinueOnError),
		gf: globalFlags{},
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flInFile, "i", "", "libvmaf JSON log or per-frame metrics file (mandatory)")
	app.fs.StringVar(&app.flOutFile, "o", "", "File to save plot to")
	app.fs.StringVar(&app.flMetric, "m", vqm.MetricVMAF, "Metric to plot: VMAF, PSNR or MS-SSIM")

	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}
	return app
}

func (a *VQMPlotApp) Name() string {
	return a.fs.Name()
}

func (a *VQMPlotApp) Help() {
	a.fs.Usage()
}

// Run is main entry point into VQMPlotApp execution.
func (a *VQMPlotApp) Run(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      "usage error",
		}
	}

	if a.gf.Debug {
		logging.EnableDebugLogger()
	}

	if a.flInFile == "" {
		a.fs.Usage()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -i is missing",
		}
	}

	if a.flOutFile == "" {
		base := filepath.Base(a.flInFile)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		a.flOutFile = fmt.Sprintf("%s_%s.png", base, strings.ToLower(a.flMetric))
	}

	logging.Infof("Output will be written to:\n\t%s\n", a.flOutFile)

	if err := plotMetric(a.flInFile, a.flOutFile, a.flMetric); err != nil {
		return &AppError{
			exitCode: 1,
			msg:      err.Error(),
		}
	}

	return nil
}

func plotMetric(logFile, plotFile, metric string) error {
	doc, err := os.ReadFile(logFile)
	if err != nil {
		return fmt.Errorf("libvmaf log file should exist: %w", err)
	}

	frames, err := loadFrames(doc)
	if err != nil {
		return err
	}

	values, err := frames.Values(metric)
	if err != nil {
		return err
	}

	return analysis.MultiPlotVqm(values, metric, filepath.Base(logFile), plotFile)
}

// loadFrames parses either per-frame metrics (JSON array) or libvmaf log
// (JSON object).
func loadFrames(doc []byte) (vqm.FrameMetrics, error) {
	var frames vqm.FrameMetrics
	if bytes.HasPrefix(bytes.TrimSpace(doc), []byte("[")) {
		if err := frames.FromJSON(bytes.NewReader(doc)); err != nil {
			return nil, fmt.Errorf("parsing per-frame metrics: %w", err)
		}
		return frames, nil
	}
	if err := frames.FromFfmpegVMAF(bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("parsing libvmaf log: %w", err)
	}
	return frames, nil
}
