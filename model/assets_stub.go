// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build govmaf_noassets

package model

import "fmt"

// Asset validates n and returns ErrNoAssets, the payloads are not compiled in.
func Asset(n Name) (primary, secondary []byte, err error) {
	if !n.Valid() {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownModel, uint8(n))
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrNoAssets, n)
}
