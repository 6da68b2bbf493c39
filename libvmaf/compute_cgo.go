// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build cgo && libvmaf

package libvmaf

/*
#cgo CFLAGS: -I${SRCDIR}/lib
#cgo LDFLAGS: -L${SRCDIR}/lib -lvmaf -lm -lpthread
#cgo linux LDFLAGS: -lstdc++
#cgo darwin LDFLAGS: -lc++
#include <stdlib.h>
#include "libvmaf.h"

int govmaf_read_frame(float *ref, float *dist, float *temp, int stride_byte, void *user_data);
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/cgo"
	"unsafe"

	"github.com/evolution-gaming/govmaf/internal/logging"
)

// Available reports whether Compute is backed by the native library.
const Available = true

// Return codes of the read_frame callback as interpreted by libvmaf.
const (
	readOK    = 0
	readError = 1
	readEOF   = 2
)

// readState is shared with the callback through a cgo.Handle.
type readState struct {
	ctx    context.Context
	r      FrameReader
	height int
	frames int
	err    error
}

//export govmafReadFrame
func govmafReadFrame(ref, dist, temp *C.float, strideByte C.int, userData unsafe.Pointer) C.int {
	s := cgo.Handle(*(*uintptr)(userData)).Value().(*readState)

	if err := s.ctx.Err(); err != nil {
		s.err = err
		return readError
	}

	n := int(strideByte) / 4 * s.height
	refBuf := unsafe.Slice((*float32)(unsafe.Pointer(ref)), n)
	distBuf := unsafe.Slice((*float32)(unsafe.Pointer(dist)), n)

	err := s.r.ReadFrame(refBuf, distBuf, int(strideByte))
	switch {
	case err == nil:
		s.frames++
		return readOK
	case errors.Is(err, io.EOF):
		return readEOF
	default:
		s.err = err
		return readError
	}
}

func compute(ctx context.Context, opts Options, r FrameReader) (Score, error) {
	state := &readState{ctx: ctx, r: r, height: opts.Height}
	h := cgo.NewHandle(state)
	defer h.Delete()

	cFormat := C.CString(string(opts.Format))
	defer C.free(unsafe.Pointer(cFormat))
	cModel := C.CString(opts.ModelPath)
	defer C.free(unsafe.Pointer(cModel))

	pool := opts.PoolMethod
	if pool == "" {
		pool = PoolMean
	}
	cPool := C.CString(pool)
	defer C.free(unsafe.Pointer(cPool))

	var cLogPath, cLogFmt *C.char
	if opts.LogPath != "" {
		cLogPath = C.CString(opts.LogPath)
		defer C.free(unsafe.Pointer(cLogPath))
		logFmt := opts.LogFormat
		if logFmt == "" {
			logFmt = LogXML
		}
		cLogFmt = C.CString(logFmt)
		defer C.free(unsafe.Pointer(cLogFmt))
	}

	logging.Debugf("compute_vmaf: %s %dx%d model=%s threads=%d subsample=%d",
		opts.Format, opts.Width, opts.Height, opts.ModelPath, opts.Threads, opts.Subsample)

	var score C.double
	ret := C.compute_vmaf(
		&score,
		cFormat,
		C.int(opts.Width),
		C.int(opts.Height),
		(*[0]byte)(unsafe.Pointer(C.govmaf_read_frame)),
		unsafe.Pointer(&h),
		cModel,
		cLogPath,
		cLogFmt,
		cBool(opts.DisableClip),
		cBool(opts.DisableAVX),
		cBool(opts.EnableTransform),
		cBool(opts.PhoneModel),
		cBool(opts.PSNR),
		cBool(opts.SSIM),
		cBool(opts.MSSSIM),
		cPool,
		C.int(opts.Threads),
		C.int(opts.Subsample),
		cBool(opts.ConfidenceInterval),
	)
	if state.err != nil {
		return Score{}, fmt.Errorf("libvmaf: frame %d: %w", state.frames, state.err)
	}
	if ret != 0 {
		return Score{}, fmt.Errorf("libvmaf: compute_vmaf failed with code %d", int(ret))
	}

	return Score{
		VMAF:      float64(score),
		Frames:    state.frames,
		ModelPath: opts.ModelPath,
	}, nil
}

func cBool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}
