// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fetch

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tarEntry describes one archive member, an empty Body with a trailing slash
// in Name is a directory.
type tarEntry struct {
	Name     string
	Body     string
	Typeflag byte
	Linkname string
}

func fixTarball(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o644, Size: int64(len(e.Body)), Typeflag: e.Typeflag, Linkname: e.Linkname}
		switch {
		case e.Typeflag == tar.TypeXGlobalHeader:
			// archive/tar accepts nothing but name and records in a global header.
			hdr = &tar.Header{
				Name:       e.Name,
				Typeflag:   tar.TypeXGlobalHeader,
				PAXRecords: map[string]string{"comment": "0123456789abcdef"},
			}
		case e.Typeflag == 0 && e.Name[len(e.Name)-1] == '/':
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		case e.Typeflag == 0:
			hdr.Typeflag = tar.TypeReg
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// vmafTarball mimics a GitHub tarball of the VMAF repository.
func vmafTarball(t *testing.T) []byte {
	return fixTarball(t, []tarEntry{
		{Name: "pax_global_header", Typeflag: tar.TypeXGlobalHeader},
		{Name: "Netflix-vmaf-1a2b3c4/"},
		{Name: "Netflix-vmaf-1a2b3c4/src/libvmaf/src/libvmaf.h", Body: "int compute_vmaf();\n"},
		{Name: "Netflix-vmaf-1a2b3c4/model/vmaf_v0.6.1.pkl", Body: "default pkl"},
		{Name: "Netflix-vmaf-1a2b3c4/model/vmaf_v0.6.1.pkl.model", Body: "default svm"},
		{Name: "Netflix-vmaf-1a2b3c4/model/vmaf_4k_v0.6.1.pkl", Body: "4k pkl"},
		{Name: "Netflix-vmaf-1a2b3c4/model/vmaf_4k_v0.6.1.pkl.model", Body: "4k svm"},
		{Name: "Netflix-vmaf-1a2b3c4/model/link.pkl", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"},
	})
}

// fixServer serves body after failing the first failures requests with status.
func fixServer(t *testing.T, body []byte, failures int64, status int) (*httptest.Server, *int64) {
	t.Helper()
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&hits, 1)
		if n <= failures {
			http.Error(w, "nope", status)
			return
		}
		w.Header().Set("Content-Type", "application/x-gzip")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func fixConfig(t *testing.T, url string) Config {
	t.Helper()
	t.Setenv(MakeEnv, "")
	root := t.TempDir()
	return Config{
		URL:         url,
		WorkDir:     filepath.Join(root, "work"),
		LibDir:      filepath.Join(root, "lib"),
		ModelsDir:   filepath.Join(root, "models"),
		MakeCmd:     `sh -c 'echo archive > src/libvmaf/libvmaf.a'`,
		Retries:     3,
		RetryBase:   time.Millisecond,
		LockTimeout: 200 * time.Millisecond,
	}
}

func TestConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		c := Config{}.withDefaults()
		assert.Equal(t, "v1.3.15", c.Ref)
		assert.Equal(t, "https://github.com/Netflix/vmaf/tarball/v1.3.15", c.URL)
		assert.Equal(t, DefaultMakeCmd, c.MakeCmd)
		assert.NotNil(t, c.Client)

		c = Config{Ref: "master"}.withDefaults()
		assert.Equal(t, "https://github.com/Netflix/vmaf/tarball/master", c.URL)
	})

	t.Run("Validate", func(t *testing.T) {
		err := Config{}.Validate()
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.ErrorContains(t, err, "empty work directory, empty lib directory, empty models directory")
		assert.NoError(t, Config{WorkDir: "w", LibDir: "l", ModelsDir: "m"}.Validate())
	})

	t.Run("Artifacts", func(t *testing.T) {
		got := Config{LibDir: "lib", ModelsDir: "assets"}.Artifacts()
		want := []Artifact{
			{Source: "src/libvmaf/src/libvmaf.h", Dest: filepath.Join("lib", "libvmaf.h")},
			{Source: "src/libvmaf/libvmaf.a", Dest: filepath.Join("lib", "libvmaf.a")},
			{Source: "model/vmaf_v0.6.1.pkl", Dest: filepath.Join("assets", "vmaf_v0.6.1.pkl")},
			{Source: "model/vmaf_v0.6.1.pkl.model", Dest: filepath.Join("assets", "vmaf_v0.6.1.pkl.model")},
			{Source: "model/vmaf_4k_v0.6.1.pkl", Dest: filepath.Join("assets", "vmaf_4k_v0.6.1.pkl")},
			{Source: "model/vmaf_4k_v0.6.1.pkl.model", Dest: filepath.Join("assets", "vmaf_4k_v0.6.1.pkl.model")},
		}
		assert.Equal(t, want, got)
	})
}

func TestRun(t *testing.T) {
	srv, hits := fixServer(t, vmafTarball(t), 0, 0)
	cfg := fixConfig(t, srv.URL)

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.EqualValues(t, 1, atomic.LoadInt64(hits))

	want := map[string]string{
		filepath.Join(cfg.LibDir, "libvmaf.h"):                   "int compute_vmaf();\n",
		filepath.Join(cfg.LibDir, "libvmaf.a"):                   "archive\n",
		filepath.Join(cfg.ModelsDir, "vmaf_v0.6.1.pkl"):          "default pkl",
		filepath.Join(cfg.ModelsDir, "vmaf_v0.6.1.pkl.model"):    "default svm",
		filepath.Join(cfg.ModelsDir, "vmaf_4k_v0.6.1.pkl"):       "4k pkl",
		filepath.Join(cfg.ModelsDir, "vmaf_4k_v0.6.1.pkl.model"): "4k svm",
	}
	var total int64
	for p, body := range want {
		got, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, body, string(got), p)
		total += int64(len(body))
	}
	assert.Equal(t, total, res.Bytes)

	assert.NoDirExists(t, filepath.Join(cfg.WorkDir, downloadDir))
	assert.NoDirExists(t, filepath.Join(cfg.WorkDir, sourceDir))

	t.Run("Second run is skipped", func(t *testing.T) {
		res, err := Run(context.Background(), cfg)
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.EqualValues(t, 1, atomic.LoadInt64(hits), "no download expected")
	})

	t.Run("Force rebuilds", func(t *testing.T) {
		cfg := cfg
		cfg.Force = true
		cfg.KeepWorkDir = true
		res, err := Run(context.Background(), cfg)
		require.NoError(t, err)
		assert.False(t, res.Skipped)
		assert.EqualValues(t, 2, atomic.LoadInt64(hits))
		assert.FileExists(t, filepath.Join(cfg.WorkDir, sourceDir, "src", "libvmaf", "libvmaf.a"))
	})
}

func TestRun_Retry(t *testing.T) {
	tests := map[string]struct {
		failures int64
		status   int
		retries  uint64
		wantHits int64
		wantErr  bool
	}{
		"Server errors are retried": {
			failures: 2, status: http.StatusServiceUnavailable, retries: 3,
			wantHits: 3,
		},
		"Retries exhausted": {
			failures: 10, status: http.StatusInternalServerError, retries: 2,
			wantHits: 3, wantErr: true,
		},
		"Client errors are not retried": {
			failures: 10, status: http.StatusNotFound, retries: 3,
			wantHits: 1, wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			srv, hits := fixServer(t, vmafTarball(t), tc.failures, tc.status)
			cfg := fixConfig(t, srv.URL)
			cfg.Retries = tc.retries

			_, err := Run(context.Background(), cfg)
			assert.EqualValues(t, tc.wantHits, atomic.LoadInt64(hits))
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tc.status, httpErr.StatusCode)
		})
	}
}

func TestRun_Failures(t *testing.T) {
	t.Run("Build failure reports output", func(t *testing.T) {
		srv, _ := fixServer(t, vmafTarball(t), 0, 0)
		cfg := fixConfig(t, srv.URL)
		cfg.MakeCmd = `sh -c 'echo compiler exploded; exit 3'`

		_, err := Run(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrBuild)
		assert.ErrorContains(t, err, "compiler exploded")
		assert.NoFileExists(t, filepath.Join(cfg.LibDir, "libvmaf.h"))
	})

	t.Run("Missing build tool", func(t *testing.T) {
		srv, _ := fixServer(t, vmafTarball(t), 0, 0)
		cfg := fixConfig(t, srv.URL)
		cfg.MakeCmd = "govmaf-no-such-make -C {{.SourceDir}}"

		_, err := Run(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrBuild)
	})

	t.Run("Missing artifact", func(t *testing.T) {
		srv, _ := fixServer(t, vmafTarball(t), 0, 0)
		cfg := fixConfig(t, srv.URL)
		cfg.MakeCmd = "true"

		_, err := Run(context.Background(), cfg)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.ErrorContains(t, err, "libvmaf.a")
	})

	t.Run("Unexpected layout", func(t *testing.T) {
		srv, _ := fixServer(t, fixTarball(t, []tarEntry{{Name: "a/"}, {Name: "b/"}}), 0, 0)
		cfg := fixConfig(t, srv.URL)

		_, err := Run(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrLayout)
	})

	t.Run("Locked work directory", func(t *testing.T) {
		srv, hits := fixServer(t, vmafTarball(t), 0, 0)
		cfg := fixConfig(t, srv.URL)
		require.NoError(t, os.MkdirAll(cfg.WorkDir, 0o755))

		other := flock.New(filepath.Join(cfg.WorkDir, lockFileName))
		locked, err := other.TryLock()
		require.NoError(t, err)
		require.True(t, locked)
		defer other.Unlock()

		_, err = Run(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrLocked)
		assert.EqualValues(t, 0, atomic.LoadInt64(hits))
	})

	t.Run("Invalid config", func(t *testing.T) {
		_, err := Run(context.Background(), Config{})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
