// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tools

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/evolution-gaming/govmaf/internal/logging"
)

// ErrToolNotFound is returned by FindTool.
var ErrToolNotFound = errors.New("binary not found")

// FindTool will find tool executable in $PATH with possibility to override it
// via environment variable. An empty overrideEnvVar disables the override.
func FindTool(exeName, overrideEnvVar string) (string, error) {
	if overrideEnvVar != "" {
		if p := os.Getenv(overrideEnvVar); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
			logging.Warnf("%s=%s does not exist, falling back to $PATH", overrideEnvVar, p)
		}
	}

	// Look for executable in $PATH.
	if p, err := exec.LookPath(exeName); err == nil {
		return p, nil
	}

	return "", fmt.Errorf("%w: %s", ErrToolNotFound, exeName)
}
