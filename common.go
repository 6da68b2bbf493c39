// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Reusable parts of govmaf application and subcommand infrastructure.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/evolution-gaming/govmaf/internal/logging"
	"github.com/evolution-gaming/govmaf/model"
)

// Commander interface should be implemented by commands and sub-commands.
type Commander interface {
	Run([]string) error
	Name() string
	Help()
}

// AppError a custom error returned from CLI application.
//
// AppError is handy error type envisioned to be used in CLI's main.
// ExitCode() should be used as argument for os.Exit().
type AppError struct {
	msg      string
	exitCode int
}

// Error implements error interface for AppError.
func (e *AppError) Error() string {
	return e.msg
}

// ExitCode returns CLI application's exit code.
func (e *AppError) ExitCode() int {
	return e.exitCode
}

// printSubCommandUsage helper to format ad print subcommand's usage.
func printSubCommandUsage(longHelp string, fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage of sub-command %s:\n\n", fs.Name())
	fmt.Fprintf(fs.Output(), "%s\n\n", longHelp)
	fs.PrintDefaults()
}

// resolveModel picks the model to use. Flag value wins over configuration, "auto"
// selects the model by frame size.
func resolveModel(cfgModel, flagModel string, width, height int) (model.Name, error) {
	m := cfgModel
	if flagModel != "" {
		m = flagModel
	}
	if m == "" || m == modelAuto {
		n := model.ForResolution(width, height)
		logging.Debugf("Model for %dx%d: %s", width, height, n)
		return n, nil
	}
	return model.ParseName(m)
}

// loadAppConfig loads configuration for a subcommand and applies process wide
// settings from it.
func loadAppConfig(gf globalFlags) (Config, error) {
	if gf.Debug {
		logging.EnableDebugLogger()
	}
	cfg, err := LoadConfig(gf.ConfFile)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Apply(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// writeJSON writes v as indented JSON document.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeJSONFile writes v as indented JSON document into file.
func writeJSONFile(fPath string, v any) (err error) {
	fd, err := os.Create(fPath)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer func() {
		if cErr := fd.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing report file: %w", cErr)
		}
	}()
	return writeJSON(fd, v)
}

// fileExists is a helper to check that file exists and is not a directory.
func fileExists(f string) bool {
	if f == "" {
		return false
	}
	fi, err := os.Stat(f)
	return err == nil && !fi.IsDir()
}
