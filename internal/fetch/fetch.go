// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fetch downloads the VMAF source tree, builds the static libvmaf
// library and installs it together with the model files the module embeds.
//
// The pipeline is driven by cmd/vmaf-fetch through go generate. It must not
// depend on the packages that embed its output.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/evolution-gaming/govmaf/internal/logging"
	"github.com/gofrs/flock"
)

// Defaults.
const (
	DefaultRef         = "v1.3.15"
	DefaultURLTemplate = "https://github.com/Netflix/vmaf/tarball/%s"
	DefaultMakeCmd     = "make -C {{.SourceDir}}"
	DefaultRetries     = 3
	DefaultRetryBase   = time.Second
	DefaultLockTimeout = 10 * time.Minute
	// Build output kept for error reports.
	DefaultOutputLimit = 64 << 10
)

const (
	lockFileName = ".fetch.lock"
	downloadDir  = "download"
	sourceDir    = "source"
)

var (
	// ErrUnsafePath is returned for archive entries escaping the destination.
	ErrUnsafePath = errors.New("unsafe path in archive")
	// ErrLayout is returned when the archive does not hold exactly one top level directory.
	ErrLayout = errors.New("unexpected archive layout")
	// ErrLocked is returned when another fetch holds the work directory.
	ErrLocked = errors.New("work directory is locked")
	// ErrBuild is returned when the build command fails.
	ErrBuild = errors.New("build failed")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid fetch configuration")
)

// Config of a pipeline run. Zero fields take defaults.
type Config struct {
	// Git ref of Netflix/vmaf to fetch.
	Ref string
	// Tarball URL, derived from Ref when empty.
	URL string
	// Scratch directory for download and build.
	WorkDir string
	// Destination of libvmaf.a and libvmaf.h.
	LibDir string
	// Destination of model files.
	ModelsDir string
	// Build command template, {{.SourceDir}} is the extracted source tree.
	MakeCmd string
	// Download retries after the first attempt.
	Retries uint64
	// Base delay of exponential backoff between download attempts.
	RetryBase time.Duration
	// How long to wait for the work directory lock.
	LockTimeout time.Duration
	// Rebuild even if all artifacts are present.
	Force bool
	// Keep downloaded and built sources in WorkDir.
	KeepWorkDir bool
	// Captured build output limit in bytes.
	OutputLimit uint
	// HTTP client for the download.
	Client *http.Client
}

// Artifact maps a file of the built source tree to its installed location.
type Artifact struct {
	// Source is slash separated and relative to the source tree root.
	Source string
	Dest   string
}

// Result of Run.
type Result struct {
	// Skipped is set when all artifacts were already present.
	Skipped   bool
	Artifacts []Artifact
	// Total bytes installed.
	Bytes int64
}

// Model files installed into ModelsDir. Each model needs its ".model" companion.
var modelFiles = []string{
	"vmaf_v0.6.1.pkl",
	"vmaf_v0.6.1.pkl.model",
	"vmaf_4k_v0.6.1.pkl",
	"vmaf_4k_v0.6.1.pkl.model",
}

// Artifacts lists every file the pipeline installs.
func (c Config) Artifacts() []Artifact {
	arts := []Artifact{
		{Source: "src/libvmaf/src/libvmaf.h", Dest: filepath.Join(c.LibDir, "libvmaf.h")},
		{Source: "src/libvmaf/libvmaf.a", Dest: filepath.Join(c.LibDir, "libvmaf.a")},
	}
	for _, f := range modelFiles {
		arts = append(arts, Artifact{Source: path.Join("model", f), Dest: filepath.Join(c.ModelsDir, f)})
	}
	return arts
}

// withDefaults returns a copy of c with defaults filled in.
func (c Config) withDefaults() Config {
	if c.Ref == "" {
		c.Ref = DefaultRef
	}
	if c.URL == "" {
		c.URL = fmt.Sprintf(DefaultURLTemplate, c.Ref)
	}
	if c.MakeCmd == "" {
		c.MakeCmd = DefaultMakeCmd
	}
	if c.RetryBase == 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.OutputLimit == 0 {
		c.OutputLimit = DefaultOutputLimit
	}
	if c.Client == nil {
		c.Client = http.DefaultClient
	}
	return c
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	var msgs []string
	if c.WorkDir == "" {
		msgs = append(msgs, "empty work directory")
	}
	if c.LibDir == "" {
		msgs = append(msgs, "empty lib directory")
	}
	if c.ModelsDir == "" {
		msgs = append(msgs, "empty models directory")
	}
	if len(msgs) != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, ", "))
	}
	return nil
}

// Run executes the pipeline: download, extract, build and install.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	arts := cfg.Artifacts()
	if !cfg.Force && allPresent(arts) {
		logging.Infof("All %d artifacts present, skipping fetch (use -force to rebuild)", len(arts))
		return &Result{Skipped: true, Artifacts: arts}, nil
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	unlock, err := lockWorkDir(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer unlock()

	dlDir := filepath.Join(cfg.WorkDir, downloadDir)
	srcDir := filepath.Join(cfg.WorkDir, sourceDir)
	for _, d := range []string{dlDir, srcDir} {
		if err := os.RemoveAll(d); err != nil {
			return nil, fmt.Errorf("clean %s: %w", d, err)
		}
	}
	if !cfg.KeepWorkDir {
		defer func() {
			for _, d := range []string{dlDir, srcDir} {
				if err := os.RemoveAll(d); err != nil {
					logging.Warnf("Unable to remove %s: %s", d, err)
				}
			}
		}()
	}

	logging.Infof("Downloading %s", cfg.URL)
	if err := download(ctx, cfg, dlDir); err != nil {
		return nil, err
	}
	top, err := singleTopDir(dlDir)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(top, srcDir); err != nil {
		return nil, fmt.Errorf("move source tree: %w", err)
	}

	logging.Infof("Building libvmaf in %s", srcDir)
	if err := build(ctx, cfg, srcDir); err != nil {
		return nil, err
	}

	res := &Result{Artifacts: arts}
	for _, a := range arts {
		n, err := installFile(filepath.Join(srcDir, filepath.FromSlash(a.Source)), a.Dest)
		if err != nil {
			return nil, err
		}
		logging.Infof("Installed %s (%s)", a.Dest, humanize.IBytes(uint64(n)))
		res.Bytes += n
	}
	logging.Infof("Installed %d files, %s total", len(arts), humanize.IBytes(uint64(res.Bytes)))

	return res, nil
}

func allPresent(arts []Artifact) bool {
	for _, a := range arts {
		fi, err := os.Stat(a.Dest)
		if err != nil || fi.Size() == 0 {
			return false
		}
	}
	return true
}

// lockWorkDir takes an exclusive lock on the work directory.
func lockWorkDir(ctx context.Context, cfg Config) (func(), error) {
	fl := flock.New(filepath.Join(cfg.WorkDir, lockFileName))
	lockCtx, cancel := context.WithTimeout(ctx, cfg.LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, fl.Path())
		}
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, fl.Path())
	}
	logging.Debugf("Locked %s", fl.Path())

	return func() {
		if err := fl.Unlock(); err != nil {
			logging.Warnf("Unable to unlock %s: %s", fl.Path(), err)
		}
	}, nil
}
