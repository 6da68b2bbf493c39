// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package libvmaf binds compute_vmaf from the native VMAF library (libvmaf 1.x).
//
// The binding is compiled only with cgo enabled and the "libvmaf" build tag:
//
//	go generate ./model
//	go build -tags libvmaf ./...
//
// go generate places libvmaf.a and libvmaf.h into the lib directory of this
// package. In other builds Compute returns ErrUnavailable.
package libvmaf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrUnavailable is returned by Compute in builds without the native library.
	ErrUnavailable = errors.New("libvmaf: native library not available in this build (build with cgo and -tags libvmaf)")
	// ErrInvalidOptions wraps all Options validation failures.
	ErrInvalidOptions = errors.New("libvmaf: invalid options")
	// ErrFrameCountMismatch is returned when one input ends before the other.
	ErrFrameCountMismatch = errors.New("libvmaf: reference and distorted frame count mismatch")
)

// Log formats understood by libvmaf.
const (
	LogXML  = "xml"
	LogJSON = "json"
	LogCSV  = "csv"
)

// Pooling methods understood by libvmaf.
const (
	PoolMean         = "mean"
	PoolHarmonicMean = "harmonic_mean"
	PoolMin          = "min"
)

// Options mirrors the parameters of compute_vmaf.
type Options struct {
	// Pixel format of the input, passed through to libvmaf.
	Format Format
	Width  int
	Height int
	// Path to the model file. The companion ".model" file must exist next to it,
	// see package model.
	ModelPath string
	// Optional per-frame log.
	LogPath   string
	LogFormat string

	DisableClip     bool
	DisableAVX      bool
	EnableTransform bool
	PhoneModel      bool

	PSNR   bool
	SSIM   bool
	MSSSIM bool

	// Empty means libvmaf's default (mean).
	PoolMethod string
	// 0 lets libvmaf pick the thread count.
	Threads int
	// Compute every n-th frame, 0 is treated as 1.
	Subsample          int
	ConfidenceInterval bool
}

// Validate checks options before they are handed to the native library. All
// problems are reported at once.
func (o *Options) Validate() error {
	var msgs []string

	if _, err := ParseFormat(string(o.Format)); err != nil {
		msgs = append(msgs, err.Error())
	}
	if o.Width <= 0 || o.Height <= 0 {
		msgs = append(msgs, fmt.Sprintf("invalid frame size %dx%d", o.Width, o.Height))
	}
	if o.ModelPath == "" {
		msgs = append(msgs, "empty model path")
	} else if _, err := os.Stat(o.ModelPath); err != nil {
		msgs = append(msgs, fmt.Sprintf("model file: %s", err))
	}
	switch o.LogFormat {
	case "", LogXML, LogJSON, LogCSV:
	default:
		msgs = append(msgs, fmt.Sprintf("unknown log format %q", o.LogFormat))
	}
	if o.LogFormat != "" && o.LogPath == "" {
		msgs = append(msgs, "log format without log path")
	}
	switch o.PoolMethod {
	case "", PoolMean, PoolHarmonicMean, PoolMin:
	default:
		msgs = append(msgs, fmt.Sprintf("unknown pool method %q", o.PoolMethod))
	}
	if o.Threads < 0 {
		msgs = append(msgs, "negative thread count")
	}
	if o.Subsample < 0 {
		msgs = append(msgs, "negative subsample")
	}

	if len(msgs) != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(msgs, ", "))
	}
	return nil
}

// FrameReader feeds frames to libvmaf.
//
// ReadFrame fills ref and dist with the luma plane of the next frame pair as
// float samples. Rows are stride bytes apart. It returns io.EOF when there are
// no more frames.
type FrameReader interface {
	ReadFrame(ref, dist []float32, stride int) error
}

// Score is the result of Compute.
type Score struct {
	// Pooled VMAF score.
	VMAF float64
	// Frames read from the FrameReader.
	Frames    int
	ModelPath string
}

// Compute scores the frames produced by r. ctx is checked before every frame,
// cancelling it aborts the computation.
func Compute(ctx context.Context, opts Options, r FrameReader) (Score, error) {
	if opts.Subsample == 0 {
		opts.Subsample = 1
	}
	if err := opts.Validate(); err != nil {
		return Score{}, err
	}
	return compute(ctx, opts, r)
}
