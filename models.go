// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// govmaf tool's models subcommand implementation.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/evolution-gaming/govmaf/internal/logging"
	"github.com/evolution-gaming/govmaf/model"
)

// Make sure ModelsApp implements Commander interface.
var _ Commander = (*ModelsApp)(nil)

// ModelsApp is models subcommand context that implements Commander interface.
type ModelsApp struct {
	out io.Writer
	// FlagSet instance
	fs *flag.FlagSet
	gf globalFlags
	// Write models to disk and print their paths
	flMaterialize bool
}

// CreateModelsCommand will create Commander instance from ModelsApp.
func CreateModelsCommand() *ModelsApp {
	longHelp := `Subcommand "models" lists VMAF models embedded into govmaf binary. With
-materialize flag models are written into temporary directory and their paths
are printed. Files are removed when command exits.

Examples:

  govmaf models
  govmaf models -materialize`

	app := &ModelsApp{
		fs:  flag.NewFlagSet("models", flag.ContinueOnError),
		out: os.Stdout,
	}
	app.gf.Register(app.fs)
	app.fs.BoolVar(&app.flMaterialize, "materialize", false, "Write models to disk and print paths")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

func (a *ModelsApp) Name() string {
	return a.fs.Name()
}

func (a *ModelsApp) Help() {
	a.fs.Usage()
}

func (a *ModelsApp) Run(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.Name()),
		}
	}

	cfg, err := loadAppConfig(a.gf)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	if err := cfg.VerifyModel(); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	if a.flMaterialize {
		if err := model.Preload(context.Background()); err != nil {
			return &AppError{exitCode: 1, msg: fmt.Sprintf("materializing models: %s", err)}
		}
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	header := "NAME\tFILE\tSIZE"
	if a.flMaterialize {
		header += "\tPATH"
	}
	fmt.Fprintln(tw, header)
	for _, n := range model.Names() {
		primary, secondary, err := model.Asset(n)
		if err != nil {
			return &AppError{exitCode: 1, msg: err.Error()}
		}
		size := humanize.IBytes(uint64(len(primary) + len(secondary)))
		line := fmt.Sprintf("%s\t%s\t%s", n, n.FileName(), size)
		if a.flMaterialize {
			p, err := model.Path(n)
			if err != nil {
				return &AppError{exitCode: 1, msg: err.Error()}
			}
			line += "\t" + p
		}
		fmt.Fprintln(tw, line)
	}
	if err := tw.Flush(); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	logging.Debugf("Listed %d models", len(model.Names()))

	return nil
}
