// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fetch

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, extract(bytes.NewReader(vmafTarball(t)), dir))

	top, err := singleTopDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "Netflix-vmaf-1a2b3c4", filepath.Base(top))

	got, err := os.ReadFile(filepath.Join(top, "model", "vmaf_4k_v0.6.1.pkl"))
	require.NoError(t, err)
	assert.Equal(t, "4k pkl", string(got))

	_, err = os.Lstat(filepath.Join(top, "model", "link.pkl"))
	assert.ErrorIs(t, err, os.ErrNotExist, "symlinks should be skipped")
	assert.NoFileExists(t, filepath.Join(dir, "pax_global_header"))
}

func TestExtract_Negative(t *testing.T) {
	tests := map[string]struct {
		entries []tarEntry
		want    error
	}{
		"Parent traversal": {
			entries: []tarEntry{{Name: "../evil.sh", Body: "rm -rf"}},
			want:    ErrUnsafePath,
		},
		"Nested traversal": {
			entries: []tarEntry{{Name: "vmaf/../../evil.sh", Body: "rm -rf"}},
			want:    ErrUnsafePath,
		},
		"Absolute path": {
			entries: []tarEntry{{Name: "/tmp/evil.sh", Body: "rm -rf"}},
			want:    ErrUnsafePath,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			err := extract(bytes.NewReader(fixTarball(t, tc.entries)), dir)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("Not gzip", func(t *testing.T) {
		err := extract(bytes.NewReader([]byte("<html>rate limited</html>")), t.TempDir())
		assert.ErrorContains(t, err, "gzip")
	})

	t.Run("Truncated archive", func(t *testing.T) {
		full := vmafTarball(t)
		err := extract(bytes.NewReader(full[:len(full)/2]), t.TempDir())
		assert.Error(t, err)
	})
}

func TestSafeJoin(t *testing.T) {
	dir := filepath.FromSlash("/work/download")
	tests := map[string]struct {
		name    string
		want    string
		wantErr bool
	}{
		"Plain":         {name: "vmaf/README.md", want: filepath.Join(dir, "vmaf", "README.md")},
		"Dot segments":  {name: "vmaf/./src/../README.md", want: filepath.Join(dir, "vmaf", "README.md")},
		"Dotdot prefix": {name: "..vmaf/file", want: filepath.Join(dir, "..vmaf", "file")},
		"Escape":        {name: "../x", wantErr: true},
		"Absolute":      {name: "/etc/passwd", wantErr: true},
		"Just parent":   {name: "..", wantErr: true},
		"Deep escape":   {name: "a/b/../../../x", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := safeJoin(dir, tc.name)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnsafePath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSingleTopDir(t *testing.T) {
	t.Run("File at top level", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), nil, 0o644))
		_, err := singleTopDir(dir)
		assert.ErrorIs(t, err, ErrLayout)
	})
	t.Run("Empty", func(t *testing.T) {
		_, err := singleTopDir(t.TempDir())
		assert.ErrorIs(t, err, ErrLayout)
	})
}

func TestBuildCommand(t *testing.T) {
	got, err := buildCommand(DefaultMakeCmd, "/work/source")
	require.NoError(t, err)
	assert.Equal(t, []string{"make", "-C", "/work/source"}, got)

	got, err = buildCommand(`make -C '{{.SourceDir}}' -j4`, "/work/source dir")
	require.NoError(t, err)
	assert.Equal(t, []string{"make", "-C", "/work/source dir", "-j4"}, got)

	_, err = buildCommand("   ", "/src")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = buildCommand("{{.Nope}}", "/src")
	assert.Error(t, err)

}
