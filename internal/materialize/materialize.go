// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package materialize writes in-memory model payloads to private temporary
// directories so that file path based APIs (libvmaf's model loader) can consume
// them.
//
// A Cache materializes each named payload at most once. The first Path call for
// a name creates a fresh directory with os.MkdirTemp, writes the primary file and
// its ".model" sibling, and publishes the entry. Every later call returns the
// published path without touching the filesystem. Concurrent first calls are
// collapsed into a single materialization, callers that lose the race block
// until the winner publishes.
//
// A failed materialization removes whatever it wrote and publishes nothing, so
// the next Path call for that name starts over.
package materialize

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/evolution-gaming/govmaf/internal/logging"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

// SecondarySuffix is appended to the primary file path to form the path of the
// companion file. libvmaf derives that path on its own, the suffix is not
// negotiable.
const SecondarySuffix = ".model"

// DefaultPattern is the os.MkdirTemp pattern for model directories.
const DefaultPattern = "govmaf-model-*"

var (
	// ErrClosed is returned by Path after Close has been called.
	ErrClosed = errors.New("materialize: cache closed")
	// ErrEmptyAsset is returned when a source yields an empty primary payload.
	ErrEmptyAsset = errors.New("materialize: empty asset")
	// ErrInvalidFileName is returned when a source yields a file name that is
	// not a plain base name.
	ErrInvalidFileName = errors.New("materialize: invalid file name")
)

// Asset is the payload of one model.
type Asset struct {
	// FileName is the base name of the primary file, e.g. "vmaf_v0.6.1.pkl".
	FileName  string
	Primary   []byte
	Secondary []byte
}

// Source resolves a model name into its payload.
type Source interface {
	Asset(name string) (Asset, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(name string) (Asset, error)

// Asset implements Source.
func (f SourceFunc) Asset(name string) (Asset, error) {
	return f(name)
}

// Materialized describes the on-disk projection of one Asset.
type Materialized struct {
	Name string
	// Dir is owned by the Cache and removed on Close.
	Dir       string
	Primary   string
	Secondary string
}

// Error describes a failed materialization.
type Error struct {
	Name string
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("materialize model %q: %s: %v", e.Name, e.Op, e.Err)
	}
	return fmt.Sprintf("materialize model %q: %s %s: %v", e.Name, e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Option configures a Cache.
type Option func(*Cache)

// WithTempRoot sets the parent directory for model directories. Empty means
// os.TempDir().
func WithTempRoot(dir string) Option {
	return func(c *Cache) {
		c.root = dir
	}
}

// WithPattern sets the os.MkdirTemp pattern for model directories.
func WithPattern(pattern string) Option {
	return func(c *Cache) {
		if pattern != "" {
			c.pattern = pattern
		}
	}
}

// WithFileMode sets permissions of written model files.
func WithFileMode(perm fs.FileMode) Option {
	return func(c *Cache) {
		c.perm = perm
	}
}

// Cache materializes assets from a Source on first use. It is safe for
// concurrent use. The zero value is not usable, create instances with New.
type Cache struct {
	src     Source
	root    string
	pattern string
	perm    fs.FileMode

	group singleflight.Group
	// Published entries: name -> *Materialized. Read without locking.
	done sync.Map

	// mu serializes publishing against Close.
	mu     sync.Mutex
	closed bool

	// Filesystem hooks, replaced in tests.
	mkdirTemp func(dir, pattern string) (string, error)
	writeFile func(name string, data []byte, perm fs.FileMode) error
	removeAll func(path string) error
}

// New creates a Cache backed by src.
func New(src Source, opts ...Option) *Cache {
	c := &Cache{
		src:       src,
		pattern:   DefaultPattern,
		perm:      0o644,
		mkdirTemp: os.MkdirTemp,
		writeFile: os.WriteFile,
		removeAll: os.RemoveAll,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the path of the primary file for name, materializing it first
// if needed. The returned path stays valid until Close.
func (c *Cache) Path(name string) (string, error) {
	if m, ok := c.load(name); ok {
		return m.Primary, nil
	}

	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		// A racer may have published between the fast path and this flight.
		if m, ok := c.load(name); ok {
			return m, nil
		}
		return c.materialize(name)
	})
	if err != nil {
		return "", err
	}
	return v.(*Materialized).Primary, nil
}

// Materialized returns a copy of the published entry for name.
func (c *Cache) Materialized(name string) (Materialized, bool) {
	m, ok := c.load(name)
	if !ok {
		return Materialized{}, false
	}
	return *m, true
}

// Close removes every materialized directory. Path fails with ErrClosed
// afterwards. Calling Close more than once is a no-op.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	c.done.Range(func(k, v interface{}) bool {
		m := v.(*Materialized)
		if rmErr := c.removeAll(m.Dir); rmErr != nil {
			err = multierr.Append(err, fmt.Errorf("remove %s: %w", m.Dir, rmErr))
		} else {
			logging.Debugf("Removed model %s directory %s", m.Name, m.Dir)
		}
		c.done.Delete(k)
		return true
	})
	return err
}

func (c *Cache) load(name string) (*Materialized, bool) {
	v, ok := c.done.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Materialized), true
}

func (c *Cache) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// materialize runs inside the singleflight group, so at most one call per name
// is in progress at any time.
func (c *Cache) materialize(name string) (*Materialized, error) {
	if c.isClosed() {
		return nil, &Error{Name: name, Op: "open", Err: ErrClosed}
	}

	a, err := c.src.Asset(name)
	if err != nil {
		return nil, &Error{Name: name, Op: "load asset", Err: err}
	}
	if a.FileName == "" || a.FileName != filepath.Base(a.FileName) || a.FileName == "." || a.FileName == ".." {
		return nil, &Error{Name: name, Op: "load asset", Path: a.FileName, Err: ErrInvalidFileName}
	}
	if len(a.Primary) == 0 {
		return nil, &Error{Name: name, Op: "load asset", Err: ErrEmptyAsset}
	}

	dir, err := c.mkdirTemp(c.root, c.pattern)
	if err != nil {
		return nil, &Error{Name: name, Op: "create directory", Path: c.root, Err: err}
	}

	m := &Materialized{
		Name:    name,
		Dir:     dir,
		Primary: filepath.Join(dir, a.FileName),
	}
	m.Secondary = m.Primary + SecondarySuffix

	if err := c.writeFile(m.Primary, a.Primary, c.perm); err != nil {
		c.discard(dir)
		return nil, &Error{Name: name, Op: "write", Path: m.Primary, Err: err}
	}
	if err := c.writeFile(m.Secondary, a.Secondary, c.perm); err != nil {
		c.discard(dir)
		return nil, &Error{Name: name, Op: "write", Path: m.Secondary, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.discard(dir)
		return nil, &Error{Name: name, Op: "publish", Err: ErrClosed}
	}
	c.done.Store(name, m)
	logging.Debugf("Materialized model %s at %s", name, m.Primary)

	return m, nil
}

// discard removes a directory of a failed materialization.
func (c *Cache) discard(dir string) {
	if err := c.removeAll(dir); err != nil {
		logging.Warnf("Unable to remove %s: %s", dir, err)
	}
}
