// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package model ships the two VMAF models libvmaf was built with and hands out
// file paths to them.
//
// The payloads are compiled into the binary from the assets directory, which
// is populated by cmd/vmaf-fetch (run "go generate ./model"). A build without
// the payloads fails to compile, unless it is tagged govmaf_noassets: then Asset
// and Path return ErrNoAssets and everything else works, which is enough for
// "go vet" and for tests that need no model.
//
// libvmaf loads models from files only, and it expects a companion file next to
// the model file with ".model" appended to its name. Path writes both files into
// a private temporary directory on first use and returns the same path for the
// rest of the process lifetime:
//
//	p, err := model.Path(model.Default)
//	if err != nil {
//		return err
//	}
//	defer model.Cleanup()
//
// # Thread Safety
//
// All functions are safe for concurrent use. Concurrent first calls for the same
// model materialize it exactly once.
//
// # Cleanup
//
// Go runs no destructors at exit, so the directories are removed by Cleanup,
// which programs should defer in main. A process killed before that leaves its
// directories behind in the temp root.
package model

//go:generate go run ../cmd/vmaf-fetch -models-dir assets -lib-dir ../libvmaf/lib -work-dir ../.vmaf-build
