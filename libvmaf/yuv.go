// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package libvmaf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Format is a raw planar YUV pixel format as named by libvmaf.
type Format string

// Supported formats.
const (
	YUV420P   Format = "yuv420p"
	YUV422P   Format = "yuv422p"
	YUV444P   Format = "yuv444p"
	YUV420P10 Format = "yuv420p10le"
	YUV422P10 Format = "yuv422p10le"
	YUV444P10 Format = "yuv444p10le"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("libvmaf: unknown pixel format")

// ParseFormat validates s as a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case YUV420P, YUV422P, YUV444P, YUV420P10, YUV422P10, YUV444P10:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// BytesPerSample is 2 for 10 bit formats and 1 otherwise.
func (f Format) BytesPerSample() int {
	switch f {
	case YUV420P10, YUV422P10, YUV444P10:
		return 2
	}
	return 1
}

// FrameSize returns the size in bytes of one frame with all planes.
func (f Format) FrameSize(width, height int) int {
	luma := width * height
	var chroma int
	switch f {
	case YUV420P, YUV420P10:
		chroma = 2 * ((width + 1) / 2) * ((height + 1) / 2)
	case YUV422P, YUV422P10:
		chroma = 2 * ((width + 1) / 2) * height
	case YUV444P, YUV444P10:
		chroma = 2 * luma
	}
	return (luma + chroma) * f.BytesPerSample()
}

// YUVReader is a FrameReader over two raw planar YUV streams of identical
// geometry. Only the luma plane is handed to libvmaf, chroma is skipped.
type YUVReader struct {
	ref, dist io.Reader
	format    Format
	width     int
	height    int

	refBuf, distBuf []byte
	frames          int
}

// NewYUVReader creates a reader for frames of the given format and size.
func NewYUVReader(ref, dist io.Reader, format Format, width, height int) (*YUVReader, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid frame size %dx%d", ErrInvalidOptions, width, height)
	}
	size := format.FrameSize(width, height)
	return &YUVReader{
		ref:     ref,
		dist:    dist,
		format:  format,
		width:   width,
		height:  height,
		refBuf:  make([]byte, size),
		distBuf: make([]byte, size),
	}, nil
}

// Frames returns the number of frame pairs read so far.
func (y *YUVReader) Frames() int {
	return y.frames
}

// ReadFrame implements FrameReader.
func (y *YUVReader) ReadFrame(ref, dist []float32, stride int) error {
	rowLen := stride / 4
	if rowLen < y.width {
		return fmt.Errorf("libvmaf: stride %d too small for width %d", stride, y.width)
	}
	if need := rowLen*(y.height-1) + y.width; len(ref) < need || len(dist) < need {
		return fmt.Errorf("libvmaf: frame buffer too small, need %d samples", need)
	}

	refErr := readFull(y.ref, y.refBuf)
	distErr := readFull(y.dist, y.distBuf)
	switch {
	case refErr == io.EOF && distErr == io.EOF:
		return io.EOF
	case refErr == io.EOF || distErr == io.EOF:
		return fmt.Errorf("%w after %d frames", ErrFrameCountMismatch, y.frames)
	case refErr != nil:
		return fmt.Errorf("read reference frame %d: %w", y.frames, refErr)
	case distErr != nil:
		return fmt.Errorf("read distorted frame %d: %w", y.frames, distErr)
	}

	y.luma(ref, y.refBuf, rowLen)
	y.luma(dist, y.distBuf, rowLen)
	y.frames++
	return nil
}

// luma converts the luma plane of src into dst. 10 bit samples are scaled to
// the 8 bit range libvmaf 1.x expects.
func (y *YUVReader) luma(dst []float32, src []byte, rowLen int) {
	if y.format.BytesPerSample() == 1 {
		for i := 0; i < y.height; i++ {
			row := src[i*y.width : (i+1)*y.width]
			out := dst[i*rowLen:]
			for j, v := range row {
				out[j] = float32(v)
			}
		}
		return
	}
	for i := 0; i < y.height; i++ {
		row := src[2*i*y.width : 2*(i+1)*y.width]
		out := dst[i*rowLen:]
		for j := 0; j < y.width; j++ {
			out[j] = float32(binary.LittleEndian.Uint16(row[2*j:])) / 4.0
		}
	}
}

// readFull is io.ReadFull that reports io.EOF only when nothing was read.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
