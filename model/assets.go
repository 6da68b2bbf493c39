// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !govmaf_noassets

package model

import (
	_ "embed"
	"fmt"
)

var (
	//go:embed assets/vmaf_v0.6.1.pkl
	defaultPrimary []byte
	//go:embed assets/vmaf_v0.6.1.pkl.model
	defaultSecondary []byte

	//go:embed assets/vmaf_4k_v0.6.1.pkl
	fourKPrimary []byte
	//go:embed assets/vmaf_4k_v0.6.1.pkl.model
	fourKSecondary []byte
)

// Asset returns the embedded payload of model n: the model definition and the
// companion file libvmaf looks up next to it.
//
// The returned slices share the embedded storage and must not be modified.
func Asset(n Name) (primary, secondary []byte, err error) {
	switch n {
	case Default:
		return defaultPrimary, defaultSecondary, nil
	case FourK:
		return fourKPrimary, fourKSecondary, nil
	default:
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownModel, uint8(n))
	}
}
