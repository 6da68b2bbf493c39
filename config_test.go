// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Application Config related tests.
package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/evolution-gaming/govmaf/internal/tools"
	"github.com/evolution-gaming/govmaf/internal/vqm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func Test_loadDefaultConfig(t *testing.T) {
	ffmpeg, ffprobe := fixTools(t, 1920, 1080)
	t.Setenv(tools.FfmpegEnv, ffmpeg)
	t.Setenv(tools.FfprobeEnv, ffprobe)

	c := loadDefaultConfig()
	assert.Equal(t, ffmpeg, c.FfmpegPath.Value())
	assert.Equal(t, ffprobe, c.FfprobePath.Value())
	assert.Equal(t, vqm.DefaultFfmpegVMAFTemplate, c.FfmpegVMAFTemplate.Value())
	assert.Equal(t, modelAuto, c.Model.Value())
	assert.True(t, c.TempDir.IsNil())

	assert.NoError(t, c.Verify(), "DefaultConfig should be valid")
}

func Test_loadDefaultConfig_Negative(t *testing.T) {
	// Messing up PATH should result in failure detecting ffmpeg and ffprobe,
	// default config is still created but does not pass verification.
	t.Setenv("PATH", "")
	t.Setenv(tools.FfmpegEnv, "")
	t.Setenv(tools.FfprobeEnv, "")

	c := loadDefaultConfig()
	assert.True(t, c.FfmpegPath.IsNil())
	assert.True(t, c.FfprobePath.IsNil())

	err := c.Verify()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "invalid ffmpeg path, invalid ffprobe path")
	assert.NoError(t, c.VerifyModel(), "model options do not depend on tools")
}

func Test_loadConfigFile(t *testing.T) {
	// For this case we do not strictly need config that is valid as per Config.Verify(),
	// just verify that loading configuration from file works.
	tests := map[string]struct {
		want  Config
		ext   string
		given string
	}{
		"Full JSON": {
			ext: "json",
			given: `{
				"ffmpeg_path": "test_ffmpeg",
				"ffprobe_path": "test_ffprobe",
				"ffmpeg_vmaf_template": "test template",
				"report_file_name": "test_report.json",
				"model": "4k",
				"temp_dir": "/tmp/models"
			}`,
			want: Config{
				FfmpegPath:         NewConfigVal("test_ffmpeg"),
				FfprobePath:        NewConfigVal("test_ffprobe"),
				FfmpegVMAFTemplate: NewConfigVal("test template"),
				ReportFileName:     NewConfigVal("test_report.json"),
				Model:              NewConfigVal("4k"),
				TempDir:            NewConfigVal("/tmp/models"),
			},
		},
		"Partial JSON": {
			ext: "json",
			given: `{
				"ffmpeg_path": "test_ffmpeg",
				"ffmpeg_vmaf_template": "test template"
			}`,
			want: Config{
				FfmpegPath:         NewConfigVal("test_ffmpeg"),
				FfmpegVMAFTemplate: NewConfigVal("test template"),
			},
		},
		"Empty JSON": {
			ext:   "json",
			given: `{}`,
			want:  Config{},
		},
		"Full YAML": {
			ext: "yaml",
			given: `
ffmpeg_path: test_ffmpeg
ffprobe_path: test_ffprobe
ffmpeg_vmaf_template: test template
report_file_name: test_report.json
model: default
temp_dir: /tmp/models
`,
			want: Config{
				FfmpegPath:         NewConfigVal("test_ffmpeg"),
				FfprobePath:        NewConfigVal("test_ffprobe"),
				FfmpegVMAFTemplate: NewConfigVal("test template"),
				ReportFileName:     NewConfigVal("test_report.json"),
				Model:              NewConfigVal("default"),
				TempDir:            NewConfigVal("/tmp/models"),
			},
		},
		"Partial YML with explicit empty value": {
			ext:   "yml",
			given: "model: auto\ntemp_dir: \"\"\n",
			want: Config{
				Model:   NewConfigVal("auto"),
				TempDir: NewConfigVal(""),
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			confFile := fixConfigFile(t, tt.ext, tt.given)

			// Load config and assert contents are as expected.
			got, err := loadConfigFromFile(confFile)
			assert.NoError(t, err, "Should be no error loading configuration from file")

			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_loadConfigFile_Negative(t *testing.T) {
	tests := map[string]struct {
		ext     string
		given   string
		wantErr string
	}{
		"Unknown extension": {
			ext:     "toml",
			given:   `model = "4k"`,
			wantErr: "unknown config format: .toml",
		},
		"Empty file": {
			ext:     "json",
			given:   "",
			wantErr: "config file is empty",
		},
		"Malformed JSON": {
			ext:     "json",
			given:   `{"model": `,
			wantErr: "config from JSON document",
		},
		"Unknown YAML field": {
			ext:     "yaml",
			given:   "libvmaf_model_path: model.json\n",
			wantErr: "config from YAML document",
		},
		"Wrong YAML type": {
			ext:     "yaml",
			given:   "model: [default, 4k]\n",
			wantErr: "config from YAML document",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadConfigFromFile(fixConfigFile(t, tt.ext, tt.given))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	t.Run("Missing file", func(t *testing.T) {
		_, err := LoadConfig("does/not/exist.json")
		assert.ErrorContains(t, err, "config from file")
	})
}

func Test_Config_Verify(t *testing.T) {
	ffmpeg, ffprobe := fixTools(t, 1920, 1080)
	valid := func() Config {
		return Config{
			FfmpegPath:         NewConfigVal(ffmpeg),
			FfprobePath:        NewConfigVal(ffprobe),
			FfmpegVMAFTemplate: NewConfigVal(vqm.DefaultFfmpegVMAFTemplate),
			ReportFileName:     NewConfigVal("report.json"),
			Model:              NewConfigVal(modelAuto),
		}
	}

	tests := map[string]struct {
		mod     func(*Config)
		wantErr string
	}{
		"Valid":              {mod: func(*Config) {}},
		"Valid named model":  {mod: func(c *Config) { c.Model = NewConfigVal("4K") }},
		"Valid temp dir":     {mod: func(c *Config) { c.TempDir = NewConfigVal(t.TempDir()) }},
		"Unknown model":      {mod: func(c *Config) { c.Model = NewConfigVal("phone") }, wantErr: `invalid model "phone"`},
		"Missing temp dir":   {mod: func(c *Config) { c.TempDir = NewConfigVal("/does/not/exist") }, wantErr: "invalid temp dir"},
		"Temp dir is a file": {mod: func(c *Config) { c.TempDir = NewConfigVal(ffmpeg) }, wantErr: "invalid temp dir"},
		"Missing template":   {mod: func(c *Config) { c.FfmpegVMAFTemplate = ConfigVal[string]{} }, wantErr: "empty ffmpeg VMAF template"},
		"Missing report":     {mod: func(c *Config) { c.ReportFileName = ConfigVal[string]{} }, wantErr: "empty report file name"},
		"Ffmpeg is a dir":    {mod: func(c *Config) { c.FfmpegPath = NewConfigVal(t.TempDir()) }, wantErr: "invalid ffmpeg path"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			tc.mod(&c)
			err := c.Verify()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func Test_Config_Apply(t *testing.T) {
	// Models are materialized in TestMain, temp root can no longer change.
	c := Config{TempDir: NewConfigVal(t.TempDir())}
	assert.ErrorContains(t, c.Apply(), "temp dir: model: already initialized")

	assert.NoError(t, (&Config{}).Apply(), "empty temp dir leaves default in place")
}

func Test_Config_OverrideFrom(t *testing.T) {
	fixBaseConf := func() Config {
		return Config{
			FfmpegPath:         NewConfigVal("base_ffmpeg"),
			FfprobePath:        NewConfigVal("base_ffprobe"),
			FfmpegVMAFTemplate: NewConfigVal("base template"),
			ReportFileName:     NewConfigVal("base_report.json"),
			Model:              NewConfigVal("auto"),
			TempDir:            NewConfigVal("/tmp/base"),
		}
	}

	tests := map[string]struct {
		want        Config
		overrideSrc Config
	}{
		"Full config overrides all fields": {
			overrideSrc: Config{
				FfmpegPath:         NewConfigVal("test_ffmpeg"),
				FfprobePath:        NewConfigVal("test_ffprobe"),
				FfmpegVMAFTemplate: NewConfigVal("test template"),
				ReportFileName:     NewConfigVal("test_report.json"),
				Model:              NewConfigVal("4k"),
				TempDir:            NewConfigVal("/tmp/test"),
			},
			want: Config{
				FfmpegPath:         NewConfigVal("test_ffmpeg"),
				FfprobePath:        NewConfigVal("test_ffprobe"),
				FfmpegVMAFTemplate: NewConfigVal("test template"),
				ReportFileName:     NewConfigVal("test_report.json"),
				Model:              NewConfigVal("4k"),
				TempDir:            NewConfigVal("/tmp/test"),
			},
		},
		"Partial config overrides partial fields": {
			overrideSrc: Config{
				FfmpegPath: NewConfigVal("test_ffmpeg"),
				Model:      NewConfigVal("default"),
			},
			want: Config{
				// Overridden fields.
				FfmpegPath: NewConfigVal("test_ffmpeg"),
				Model:      NewConfigVal("default"),
				// Unmodified fields.
				FfprobePath:        NewConfigVal("base_ffprobe"),
				FfmpegVMAFTemplate: NewConfigVal("base template"),
				ReportFileName:     NewConfigVal("base_report.json"),
				TempDir:            NewConfigVal("/tmp/base"),
			},
		},
		"Explicit empty value overrides": {
			overrideSrc: Config{TempDir: NewConfigVal("")},
			want: func() Config {
				c := fixBaseConf()
				c.TempDir = NewConfigVal("")
				return c
			}(),
		},
		"Empty config does not override any fields": {
			overrideSrc: Config{},
			want:        fixBaseConf(),
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			// Create a base Config object. This is the Config that we shall attempt to
			// override.
			given := fixBaseConf()

			// Attempt to override config from overrideSrc.
			given.OverrideFrom(tt.overrideSrc)

			assert.Equal(t, tt.want, given)
		})
	}
}

func Test_ConfigVal_Marshal(t *testing.T) {
	c := Config{
		ReportFileName: NewConfigVal("r.json"),
		TempDir:        NewConfigVal(""),
	}

	t.Run("JSON", func(t *testing.T) {
		b, err := json.Marshal(c)
		require.NoError(t, err)
		// Unset values are not omitted by encoding/json, they marshal as zero value.
		assert.Contains(t, string(b), `"report_file_name":"r.json"`)
		assert.Contains(t, string(b), `"temp_dir":""`)
	})

	t.Run("YAML omits unset values", func(t *testing.T) {
		b, err := yaml.Marshal(c)
		require.NoError(t, err)
		assert.Equal(t, "report_file_name: r.json\ntemp_dir: \"\"\n", string(b))
	})
}

func Test_DumpConfApp_Run(t *testing.T) {
	ffmpeg, ffprobe := fixTools(t, 1920, 1080)
	t.Setenv(tools.FfmpegEnv, ffmpeg)
	t.Setenv(tools.FfprobeEnv, ffprobe)

	t.Run("JSON", func(t *testing.T) {
		commandOutput := &bytes.Buffer{}
		// This is one option we try to make sure is in dumped config file.
		want := `"report_file_name": "test_report.json"`
		confFile := fixConfigFile(t, "json", "{"+want+"}")

		cmd := CreateDumpConfCommand()
		// Redirect output to buffer
		cmd.out = commandOutput

		err := cmd.Run([]string{"-conf", confFile})
		assert.NoError(t, err, "Unexpected error running dump-conf")
		// Check that config dump contains options we specified in config file.
		assert.Contains(t, commandOutput.String(), want)
		assert.Contains(t, commandOutput.String(), `"model": "auto"`)
	})

	t.Run("YAML", func(t *testing.T) {
		commandOutput := &bytes.Buffer{}
		confFile := fixConfigFile(t, "yaml", "model: 4k\n")

		cmd := CreateDumpConfCommand()
		cmd.out = commandOutput

		err := cmd.Run([]string{"-conf", confFile, "-format", "yaml"})
		assert.NoError(t, err, "Unexpected error running dump-conf")

		var got map[string]string
		require.NoError(t, yaml.Unmarshal(commandOutput.Bytes(), &got))
		assert.Equal(t, "4k", got["model"])
		assert.Equal(t, ffmpeg, got["ffmpeg_path"])
		assert.NotContains(t, got, "temp_dir")
	})

	t.Run("Unknown format", func(t *testing.T) {
		cmd := CreateDumpConfCommand()
		cmd.out = &bytes.Buffer{}
		err := cmd.Run([]string{"-format", "xml"})
		var appErr *AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 2, appErr.ExitCode())
	})

	t.Run("Invalid configuration is reported", func(t *testing.T) {
		cmd := CreateDumpConfCommand()
		cmd.out = &bytes.Buffer{}
		err := cmd.Run([]string{"-conf", fixConfigFile(t, "yml", "model: phone\n")})
		assert.ErrorContains(t, err, "configuration validation")
		assert.Contains(t, cmd.out.(*bytes.Buffer).String(), `"model": "phone"`)
	})
}
