// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !cgo || !libvmaf

package libvmaf

import "context"

// Available reports whether Compute is backed by the native library.
const Available = false

func compute(context.Context, Options, FrameReader) (Score, error) {
	return Score{}, ErrUnavailable
}
