// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/evolution-gaming/govmaf/internal/materialize"
	"github.com/sourcegraph/conc/pool"
)

var (
	// mu guards tempRoot and initialized.
	mu          sync.Mutex
	tempRoot    string
	initialized bool

	// processCache is the process-wide cache, created on first use.
	processCache = sync.OnceValue(func() *materialize.Cache {
		mu.Lock()
		defer mu.Unlock()
		initialized = true
		return materialize.New(embeddedSource{}, materialize.WithTempRoot(tempRoot))
	})
)

// embeddedSource serves the embedded payloads to the cache.
type embeddedSource struct{}

func (embeddedSource) Asset(key string) (materialize.Asset, error) {
	n, err := ParseName(key)
	if err != nil {
		return materialize.Asset{}, err
	}
	primary, secondary, err := Asset(n)
	if err != nil {
		return materialize.Asset{}, err
	}
	return materialize.Asset{
		FileName:  n.FileName(),
		Primary:   primary,
		Secondary: secondary,
	}, nil
}

// SetTempRoot sets the directory under which model directories are created.
// It must be called before the first Path call, afterwards it returns
// ErrAlreadyInitialized. The default is os.TempDir().
func SetTempRoot(dir string) error {
	mu.Lock()
	defer mu.Unlock()
	if initialized {
		return ErrAlreadyInitialized
	}
	tempRoot = dir
	return nil
}

// Path returns the path of model n on disk, writing it out on first use.
//
// The file stays in place until Cleanup and every call returns the same path.
// The companion file libvmaf expects lives at the returned path plus ".model".
// A failed first call leaves nothing behind, the next call tries again.
func Path(n Name) (string, error) {
	if !n.Valid() {
		return "", fmt.Errorf("%w: %d", ErrUnknownModel, uint8(n))
	}
	return processCache().Path(n.String())
}

// MustPath is like Path but panics if the model cannot be written.
func MustPath(n Name) string {
	p, err := Path(n)
	if err != nil {
		panic(err)
	}
	return p
}

// Preload materializes all models concurrently.
func Preload(ctx context.Context) error {
	p := pool.New().WithContext(ctx)
	for _, n := range Names() {
		n := n
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := Path(n)
			return err
		})
	}
	return p.Wait()
}

// Cleanup removes all model files written by this process. Path returns an
// error afterwards.
func Cleanup() error {
	mu.Lock()
	done := initialized
	mu.Unlock()
	if !done {
		return nil
	}
	return processCache().Close()
}
