// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Application configuration structures.

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/evolution-gaming/govmaf/internal/logging"
	"github.com/evolution-gaming/govmaf/internal/tools"
	"github.com/evolution-gaming/govmaf/internal/vqm"
	"github.com/evolution-gaming/govmaf/model"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	defaultReportFile = "report.json"
)

// modelAuto selects the model by reference resolution.
const modelAuto = "auto"

// Config represent application configuration.
type Config struct {
	FfmpegPath         ConfigVal[string] `json:"ffmpeg_path,omitempty" yaml:"ffmpeg_path,omitempty"`
	FfprobePath        ConfigVal[string] `json:"ffprobe_path,omitempty" yaml:"ffprobe_path,omitempty"`
	FfmpegVMAFTemplate ConfigVal[string] `json:"ffmpeg_vmaf_template,omitempty" yaml:"ffmpeg_vmaf_template,omitempty"`
	ReportFileName     ConfigVal[string] `json:"report_file_name,omitempty" yaml:"report_file_name,omitempty"`
	// One of model names or "auto".
	Model ConfigVal[string] `json:"model,omitempty" yaml:"model,omitempty"`
	// Parent directory for materialized model files, empty means system temp dir.
	TempDir ConfigVal[string] `json:"temp_dir,omitempty" yaml:"temp_dir,omitempty"`
}

// Verify will check that configuration is valid.
//
// Will check that configuration option values are sensible.
func (c *Config) Verify() error {
	msgs := []string{}
	// Check that ffmpeg exists.
	if !fileExists(c.FfmpegPath.Value()) {
		msgs = append(msgs, "invalid ffmpeg path")
	}
	// Check that ffprobe exists.
	if !fileExists(c.FfprobePath.Value()) {
		msgs = append(msgs, "invalid ffprobe path")
	}
	// Template should not be nil.
	if c.FfmpegVMAFTemplate.IsNil() {
		msgs = append(msgs, "empty ffmpeg VMAF template")
	}
	// Report file should not be nil.
	if c.ReportFileName.IsNil() {
		msgs = append(msgs, "empty report file name")
	}
	msgs = append(msgs, c.modelProblems()...)

	if len(msgs) != 0 {
		return fmt.Errorf("%s: %w", strings.Join(msgs, ", "), ErrInvalidConfig)
	}
	return nil
}

// VerifyModel checks only the model related options, for commands that do not
// run ffmpeg.
func (c *Config) VerifyModel() error {
	if msgs := c.modelProblems(); len(msgs) != 0 {
		return fmt.Errorf("%s: %w", strings.Join(msgs, ", "), ErrInvalidConfig)
	}
	return nil
}

func (c *Config) modelProblems() []string {
	var msgs []string
	if m := c.Model.Value(); m != modelAuto {
		if _, err := model.ParseName(m); err != nil {
			msgs = append(msgs, fmt.Sprintf("invalid model %q", m))
		}
	}
	if d := c.TempDir.Value(); d != "" {
		if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
			msgs = append(msgs, "invalid temp dir")
		}
	}
	return msgs
}

// OverrideFrom copies every field that is set in src (see ConfigVal.IsNil). New
// fields have to be added here.
func (c *Config) OverrideFrom(src Config) {
	if !src.FfmpegPath.IsNil() {
		c.FfmpegPath = src.FfmpegPath
	}
	if !src.FfprobePath.IsNil() {
		c.FfprobePath = src.FfprobePath
	}
	if !src.FfmpegVMAFTemplate.IsNil() {
		c.FfmpegVMAFTemplate = src.FfmpegVMAFTemplate
	}
	if !src.ReportFileName.IsNil() {
		c.ReportFileName = src.ReportFileName
	}
	if !src.Model.IsNil() {
		c.Model = src.Model
	}
	if !src.TempDir.IsNil() {
		c.TempDir = src.TempDir
	}
}

// Apply pushes process wide settings from configuration. Must be called before
// any model is materialized.
func (c *Config) Apply() error {
	if d := c.TempDir.Value(); d != "" {
		if err := model.SetTempRoot(d); err != nil {
			return fmt.Errorf("temp dir: %w", err)
		}
	}
	return nil
}

// loadDefaultConfig will create a default configuration.
//
// For some configuration options a default value will be specified, for others an
// auto-detection mechanism will populate option values. Tools that are not found
// stay unset, Verify reports them.
func loadDefaultConfig() Config {
	cfg := Config{
		FfmpegVMAFTemplate: NewConfigVal(vqm.DefaultFfmpegVMAFTemplate),
		ReportFileName:     NewConfigVal(defaultReportFile),
		Model:              NewConfigVal(modelAuto),
	}

	// For default configuration attempt to locate ffmpeg binary.
	if ffmpeg, err := tools.FfmpegPath(); err == nil {
		cfg.FfmpegPath = NewConfigVal(ffmpeg)
	} else {
		logging.Debugf("DefaultConfig: %s", err)
	}

	// For default configuration attempt to locate ffprobe binary.
	if ffprobe, err := tools.FfprobePath(); err == nil {
		cfg.FfprobePath = NewConfigVal(ffprobe)
	} else {
		logging.Debugf("DefaultConfig: %s", err)
	}

	return cfg
}

// loadConfigFromFile will load configuration from file.
//
// JSON and YAML are supported, format is picked by file extension.
func loadConfigFromFile(f string) (cfg Config, err error) {
	fileExt := strings.ToLower(filepath.Ext(f))
	switch fileExt {
	case ".json":
		return loadJSON(f)
	case ".yaml", ".yml":
		return loadYAML(f)
	default:
		return cfg, fmt.Errorf("unknown config format: %s", fileExt)
	}
}

// LoadConfig will return merged default config and config from file. This is main
// function to use for config loading. Configuration file is optional e.g. can be "".
func LoadConfig(configFile string) (cfg Config, err error) {
	// Initialize default configuration.
	cfg = loadDefaultConfig()

	// Load configuration from file and override default configuration options.
	if configFile != "" {
		c, err := loadConfigFromFile(configFile)
		if err != nil {
			return cfg, err
		}
		// File may be partial, unset options keep their defaults.
		cfg.OverrideFrom(c)
	}

	return cfg, nil
}

func readConfigFile(f string) ([]byte, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("config from file: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("config file is empty: %w", ErrInvalidConfig)
	}
	return b, nil
}

func loadJSON(f string) (cfg Config, err error) {
	b, err := readConfigFile(f)
	if err != nil {
		return cfg, err
	}

	if err = json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config from JSON document: %w", err)
	}

	return cfg, nil
}

func loadYAML(f string) (cfg Config, err error) {
	b, err := readConfigFile(f)
	if err != nil {
		return cfg, err
	}

	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err = dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config from YAML document: %w", err)
	}

	return cfg, nil
}

// Config fields are wrapped into ConfigVal so that an option missing from a
// partial config file can be told apart from an option explicitly set to its zero
// value, e.g. `temp_dir: ""`.

// NewConfigVal wraps v into ConfigVal.
func NewConfigVal[T any](v T) ConfigVal[T] {
	return ConfigVal[T]{v: &v}
}

// ConfigVal is a wrapper for Config field value. Nil v means unset.
type ConfigVal[T any] struct {
	v *T
}

// Value returns wrapped value or zero value of T when unset.
func (o *ConfigVal[T]) Value() T {
	if o.IsNil() {
		var v T
		return v
	}
	return *o.v
}

// IsNil reports whether value is unset.
func (o *ConfigVal[T]) IsNil() bool {
	return o.v == nil
}

// IsZero implements yaml.IsZeroer so that unset values are omitted.
func (o ConfigVal[T]) IsZero() bool {
	return o.v == nil
}

// UnmarshalJSON implements json.Unmarshaler interface for ConfigVal.
func (o *ConfigVal[T]) UnmarshalJSON(b []byte) error {
	var val T
	err := json.Unmarshal(b, &val)
	if err != nil {
		return err
	}
	o.v = &val
	return nil
}

// MarshalJSON implements json.Marshaler interface for ConfigVal.
func (o ConfigVal[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value())
}

// UnmarshalYAML implements yaml.Unmarshaler interface for ConfigVal.
func (o *ConfigVal[T]) UnmarshalYAML(node *yaml.Node) error {
	var val T
	if err := node.Decode(&val); err != nil {
		return err
	}
	o.v = &val
	return nil
}

// MarshalYAML implements yaml.Marshaler interface for ConfigVal.
func (o ConfigVal[T]) MarshalYAML() (interface{}, error) {
	return o.Value(), nil
}

func CreateDumpConfCommand() *DumpConfApp {
	longHelp := `Command "dump-conf" will print actual application configuration taking into account
configuration file provided and default configuration values.

Examples:

	govmaf dump-conf
	govmaf dump-conf -conf path/to/config.json
	govmaf dump-conf -conf path/to/config.yaml -format yaml`

	app := &DumpConfApp{
		fs:  flag.NewFlagSet("dump-conf", flag.ContinueOnError),
		gf:  globalFlags{},
		out: os.Stdout,
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.format, "format", "json", "Output format: json or yaml")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

// Make sure DumpConfApp implements Commander interface.
var _ Commander = (*DumpConfApp)(nil)

// DumpConfApp is dump-conf subcommand context that implements Commander interface.
type DumpConfApp struct {
	out    io.Writer
	fs     *flag.FlagSet
	gf     globalFlags
	format string
}

func (d *DumpConfApp) Name() string {
	return d.fs.Name()
}

func (d *DumpConfApp) Help() {
	d.fs.Usage()
}

// Run is main entry point into DumpConfApp execution.
func (d *DumpConfApp) Run(args []string) error {
	if err := d.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      "usage error",
		}
	}

	if d.gf.Debug {
		logging.EnableDebugLogger()
	}

	// Load application configuration.
	cfg, err := LoadConfig(d.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	switch d.format {
	case "json":
		enc := json.NewEncoder(d.out)
		enc.SetIndent("", "  ")
		err = enc.Encode(cfg)
	case "yaml":
		enc := yaml.NewEncoder(d.out)
		enc.SetIndent(2)
		err = enc.Encode(cfg)
		if cErr := enc.Close(); err == nil {
			err = cErr
		}
	default:
		return &AppError{exitCode: 2, msg: fmt.Sprintf("unknown format %q", d.format)}
	}
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	// Also, report if configuration is valid.
	if err := cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("configuration validation: %s", err)}
	}

	return nil
}
