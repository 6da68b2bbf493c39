// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Application version string. Version is taken from -ldflags="-X main.version=..."
// when set, otherwise from module build info of "go install".

package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/evolution-gaming/govmaf/libvmaf"
)

// Value injected during build with -ldflags="-X main.version={ver}".
var (
	version string
	vInfo   = readVersionInfo()
)

// versionInfo is struct that includes relevant version information.
type versionInfo struct {
	time      time.Time
	version   string
	revision  string
	goVersion string
	// Whether native libvmaf binding is compiled in.
	native bool
}

func readVersionInfo() versionInfo {
	v := versionInfo{version: version, native: libvmaf.Available}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return v
	}
	v.goVersion = bi.GoVersion
	if v.version == "" {
		v.version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			v.revision = s.Value
		case "vcs.time":
			v.time, _ = time.Parse(time.RFC3339, s.Value)
		}
	}
	return v
}

func (v versionInfo) String() string {
	parts := []string{v.version}
	if v.revision != "" {
		parts = append(parts, v.revision)
	}
	if !v.time.IsZero() {
		parts = append(parts, v.time.Format(time.DateOnly))
	}
	if v.goVersion != "" {
		parts = append(parts, v.goVersion)
	}
	parts = append(parts, fmt.Sprintf("libvmaf=%t", v.native))
	return strings.Join(parts, " ")
}

func printVersion() {
	fmt.Fprintln(os.Stderr, vInfo)
}
