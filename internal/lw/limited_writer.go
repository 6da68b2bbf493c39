// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// A naìve LimitedWriter implementation.
//
// A symmetrical implementation to io.LimitedReader. In truncating mode it
// accepts everything but keeps only the first N bytes, which suits capturing
// output of external build tools.
package lw

import (
	"errors"
	"io"
)

var ErrLimitedWriterOverflow = errors.New("LimitedWriter overflow")

type LimitedWriter struct {
	// Apply limits to this Writer
	W io.Writer
	// Limit value, does not makes sense to be negative
	N uint
	// Discard data past the limit instead of failing
	Truncate bool

	truncated bool
}

// Write implements io.Writer for *LimitedWriter.
func (s *LimitedWriter) Write(b []byte) (int, error) {
	if uint(len(b)) <= s.N {
		n, err := s.W.Write(b)
		s.N -= uint(n)
		return n, err
	}
	if !s.Truncate {
		return 0, ErrLimitedWriterOverflow
	}

	s.truncated = true
	n, err := s.W.Write(b[:s.N])
	s.N -= uint(n)
	if err != nil {
		return n, err
	}
	// Pretend the rest went through, callers like os/exec treat short writes
	// as failures.
	return len(b), nil
}

// Truncated reports whether any data was discarded.
func (s *LimitedWriter) Truncated() bool {
	return s.truncated
}

func LimitWriter(w io.Writer, n uint) io.Writer {
	return &LimitedWriter{W: w, N: n}
}

// TruncateWriter returns a LimitedWriter in truncating mode.
func TruncateWriter(w io.Writer, n uint) *LimitedWriter {
	return &LimitedWriter{W: w, N: n, Truncate: true}
}
