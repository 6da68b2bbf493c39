// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownModel is returned for a Name outside of the shipped models.
	ErrUnknownModel = errors.New("model: unknown model")
	// ErrAlreadyInitialized is returned by SetTempRoot once a model has been
	// materialized.
	ErrAlreadyInitialized = errors.New("model: already initialized")
	// ErrNoAssets is returned by Asset in builds tagged govmaf_noassets.
	ErrNoAssets = errors.New("model: built without model payloads (govmaf_noassets)")
)

// Name identifies one of the shipped models.
type Name uint8

const (
	// Default is the general purpose model, vmaf_v0.6.1.
	Default Name = iota + 1
	// FourK is the model trained for 4K content on large displays, vmaf_4k_v0.6.1.
	FourK
)

var modelInfo = map[Name]struct {
	name     string
	fileName string
}{
	Default: {name: "default", fileName: "vmaf_v0.6.1.pkl"},
	FourK:   {name: "4k", fileName: "vmaf_4k_v0.6.1.pkl"},
}

// Names returns all shipped models.
func Names() []Name {
	return []Name{Default, FourK}
}

// Valid reports whether n is one of the shipped models.
func (n Name) Valid() bool {
	_, ok := modelInfo[n]
	return ok
}

func (n Name) String() string {
	if i, ok := modelInfo[n]; ok {
		return i.name
	}
	return fmt.Sprintf("Name(%d)", uint8(n))
}

// FileName returns the canonical file name of the model definition.
// The companion file has the same name with ".model" appended.
func (n Name) FileName() string {
	return modelInfo[n].fileName
}

// ParseName maps "default" and "4k" (or the model versions "vmaf_v0.6.1" and
// "vmaf_4k_v0.6.1") to a Name. Matching is case-insensitive.
func ParseName(s string) (Name, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, n := range Names() {
		i := modelInfo[n]
		if s == i.name || s == strings.TrimSuffix(i.fileName, ".pkl") {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// ForResolution picks the model suited for the given frame size: FourK for
// frames of 4K size, Default for everything else.
func ForResolution(width, height int) Name {
	if width >= 3840 || height >= 2160 {
		return FourK
	}
	return Default
}
