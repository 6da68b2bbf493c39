// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/evolution-gaming/govmaf/internal/logging"
	"github.com/evolution-gaming/govmaf/internal/lw"
	"github.com/evolution-gaming/govmaf/internal/tools"
	"github.com/google/shlex"
)

// MakeEnv overrides the build tool binary.
const MakeEnv = "GOVMAF_MAKE"

// buildCommand renders the MakeCmd template into an argument list.
func buildCommand(tpl, srcDir string) ([]string, error) {
	t, err := template.New("make").Parse(tpl)
	if err != nil {
		return nil, fmt.Errorf("parse build command: %w", err)
	}
	var cmd strings.Builder
	if err := t.Execute(&cmd, struct{ SourceDir string }{srcDir}); err != nil {
		return nil, fmt.Errorf("render build command: %w", err)
	}
	args, err := shlex.Split(cmd.String())
	if err != nil {
		return nil, fmt.Errorf("split build command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty build command", ErrInvalidConfig)
	}
	return args, nil
}

// build runs the build command in srcDir.
func build(ctx context.Context, cfg Config, srcDir string) error {
	args, err := buildCommand(cfg.MakeCmd, srcDir)
	if err != nil {
		return err
	}
	exe, err := tools.FindTool(args[0], MakeEnv)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBuild, err)
	}

	var out bytes.Buffer
	capture := lw.TruncateWriter(&out, cfg.OutputLimit)
	var w io.Writer = capture
	if logging.DebugEnabled() {
		w = io.MultiWriter(capture, os.Stderr)
	}

	cmd := exec.CommandContext(ctx, exe, args[1:]...) //#nosec G204
	cmd.Dir = srcDir
	cmd.Stdout = w
	cmd.Stderr = w
	logging.Debugf("Build command: %v", cmd.Args)
	if err := cmd.Run(); err != nil {
		suffix := ""
		if capture.Truncated() {
			suffix = "\n[output truncated]"
		}
		return fmt.Errorf("%w: %v: %s\n%s%s", ErrBuild, cmd.Args, err, out.String(), suffix)
	}
	return nil
}

// installFile copies src to dst atomically and returns bytes written.
func installFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("install: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("install: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, fmt.Errorf("install: %w", err)
	}
	n, err := io.Copy(tmp, in)
	if cErr := tmp.Close(); err == nil {
		err = cErr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), 0o644)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("install %s: %w", dst, err)
	}
	return n, nil
}
