// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Contains implementation of VQM tool that uses ffmpeg and libvmaf along with
// related data structures and interfaces.

package vqm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"text/template"

	"github.com/evolution-gaming/govmaf/internal/logging"
	"github.com/evolution-gaming/govmaf/internal/tools"
	"github.com/evolution-gaming/govmaf/internal/video"
	"github.com/google/shlex"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultFfmpegVMAFTemplate targets ffmpeg builds linked against libvmaf 1.x,
// which take the model as a file path.
var DefaultFfmpegVMAFTemplate = "-hide_banner -i {{.CompressedFile}} -i {{.SourceFile}} " +
	"-lavfi libvmaf=log_path={{.ResultFile}}:log_fmt=json:psnr=1:ms_ssim=1:" +
	"model_path={{.ModelPath}}:n_threads={{.NThreads}} -f null -"

var (
	ErrAlreadyMeasured    = errors.New("Measure() already executed")
	ErrNotMeasured        = errors.New("GetMetrics() depends on Measure() called first")
	ErrFrameCountMismatch = errors.New("frame count mismatch")
	ErrNoFrames           = errors.New("no frames in libvmaf result")
)

// Measurer is the interface of a VQM tool.
type Measurer interface {
	Measure() error
	GetMetrics() (*AggregateMetric, error)
}

// FfmpegVMAFConfig exposes parameters for FfmpegVMAF creation.
type FfmpegVMAFConfig struct {
	FfmpegPath string
	// Empty means lookup via tools.FfprobePath.
	FfprobePath string
	// Materialized libvmaf model file.
	ModelPath          string
	FfmpegVMAFTemplate string
	ResultFile         string
	// 0 means min(runtime.NumCPU(), 32).
	Threads int
}

// NewFfmpegVMAF will initialize VQM Measurer based on ffmpeg and libvmaf.
func NewFfmpegVMAF(cfg *FfmpegVMAFConfig, compressedFile, sourceFile string) (*FfmpegVMAF, error) {
	var vqt *FfmpegVMAF

	nThreads := cfg.Threads
	if nThreads == 0 {
		// ffmpeg libvmaf filter is known to hang with very high thread counts.
		nThreads = 32
		if runtime.NumCPU() < nThreads {
			nThreads = runtime.NumCPU()
		}
	}

	tplText := cfg.FfmpegVMAFTemplate
	if tplText == "" {
		tplText = DefaultFfmpegVMAFTemplate
	}

	// Template requires a struct with exported fields.
	tplContext := struct {
		SourceFile     string
		CompressedFile string
		ResultFile     string
		ModelPath      string
		NThreads       int
	}{
		SourceFile:     sourceFile,
		CompressedFile: compressedFile,
		ResultFile:     cfg.ResultFile,
		ModelPath:      cfg.ModelPath,
		NThreads:       nThreads,
	}

	tpl, err := template.New("ffmpeg").Parse(tplText)
	if err != nil {
		return vqt, fmt.Errorf("NewFfmpegVMAF() parse template: %w", err)
	}
	var cmd strings.Builder
	if err := tpl.Execute(&cmd, tplContext); err != nil {
		return vqt, fmt.Errorf("NewFfmpegVMAF() execute template: %w", err)
	}
	ffmpegArgs, err := shlex.Split(cmd.String())
	if err != nil {
		return vqt, fmt.Errorf("NewFfmpegVMAF() prepare command: %w", err)
	}

	vqt = &FfmpegVMAF{
		exePath:        cfg.FfmpegPath,
		ffmpegArgs:     ffmpegArgs,
		sourceFile:     sourceFile,
		compressedFile: compressedFile,
		resultFile:     cfg.ResultFile,
		output:         []byte{},
		probe:          tools.FfprobeExtractMetadata,
	}
	if cfg.FfprobePath != "" {
		ffprobe := cfg.FfprobePath
		vqt.probe = func(f string) (video.Metadata, error) {
			return tools.ExtractMetadata(ffprobe, f)
		}
	}

	return vqt, nil
}

// FfmpegVMAF defines VQM tool and implements Measurer interface.
type FfmpegVMAF struct {
	// Path to ffmpeg executable
	exePath string
	// ffmpeg command arguments
	ffmpegArgs []string
	// Uncompressed source file
	sourceFile string
	// Compressed file that will be compared to sourceFile
	compressedFile string
	// libvmaf JSON log written by ffmpeg
	resultFile string
	output     []byte
	measured   bool
	// Metadata extractor, replaced in tests.
	probe func(string) (video.Metadata, error)
}

// Args returns ffmpeg arguments rendered from the template.
func (f *FfmpegVMAF) Args() []string {
	return f.ffmpegArgs
}

// Output returns combined output of the ffmpeg run.
func (f *FfmpegVMAF) Output() []byte {
	return f.output
}

func (f *FfmpegVMAF) Measure() error {
	var err error

	if f.measured {
		return ErrAlreadyMeasured
	}

	// libvmaf pairs frames by index, differing frame counts give meaningless scores.
	srcMeta, err := f.probe(f.sourceFile)
	if err != nil {
		return fmt.Errorf("source file metadata: %w", err)
	}
	compressedMeta, err := f.probe(f.compressedFile)
	if err != nil {
		return fmt.Errorf("compressed file metadata: %w", err)
	}
	if srcMeta.FrameCount != compressedMeta.FrameCount {
		return fmt.Errorf("%w: source %v != compressed %v", ErrFrameCountMismatch, srcMeta.FrameCount, compressedMeta.FrameCount)
	}

	cmd := exec.Command(f.exePath, f.ffmpegArgs...) //#nosec G204
	logging.Debugf("VQM tool command: %v", cmd.Args)
	f.output, err = cmd.CombinedOutput()
	if err != nil {
		logging.Infof("VQM tool execution failure:\n%s", cmd.String())
		logging.Infof("VQM tool output:\n%s", f.output)
		return fmt.Errorf("VQM calculation error: %w", err)
	}

	f.measured = true
	return nil
}

type AggregateMetric struct {
	VMAF    Metric
	PSNR    Metric
	MS_SSIM Metric
	// VMAF pooled by libvmaf, 0 when the log has none.
	PooledVMAF float64 `json:",omitempty"`
}

type Metric struct {
	Mean         float64
	HarmonicMean float64
	Min          float64
	Max          float64
	StDev        float64
	Variance     float64
}

func (f *FfmpegVMAF) GetMetrics() (*AggregateMetric, error) {
	res, err := f.result()
	if err != nil {
		return nil, err
	}

	agg, err := Aggregate(res.frameMetrics())
	if err != nil {
		return nil, err
	}
	agg.PooledVMAF = res.pooledVMAF()
	return agg, nil
}

// FrameMetrics returns per-frame metrics from libvmaf log.
func (f *FfmpegVMAF) FrameMetrics() (FrameMetrics, error) {
	res, err := f.result()
	if err != nil {
		return nil, err
	}
	return res.frameMetrics(), nil
}

func (f *FfmpegVMAF) result() (*ffmpegVMAFResult, error) {
	if !f.measured {
		return nil, ErrNotMeasured
	}

	j, err := os.Open(f.resultFile)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer j.Close()

	res, err := readResult(j)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.resultFile, err)
	}
	return res, nil
}

// Aggregate calculates summary statistics over per-frame metrics.
func Aggregate(metrics FrameMetrics) (*AggregateMetric, error) {
	if len(metrics) == 0 {
		return nil, ErrNoFrames
	}

	// Per metric vectors for gonum.
	m := struct {
		VMAF    []float64
		PSNR    []float64
		MS_SSIM []float64
	}{}
	for _, v := range metrics {
		m.VMAF = append(m.VMAF, v.VMAF)
		m.PSNR = append(m.PSNR, v.PSNR)
		m.MS_SSIM = append(m.MS_SSIM, v.MS_SSIM)
	}

	return &AggregateMetric{
		VMAF:    aggregate(m.VMAF),
		PSNR:    aggregate(m.PSNR),
		MS_SSIM: aggregate(m.MS_SSIM),
	}, nil
}

// aggregate expects a non-empty slice.
func aggregate(v []float64) Metric {
	var a Metric
	a.Min = floats.Min(v)
	a.Max = floats.Max(v)
	a.HarmonicMean = stat.HarmonicMean(v, nil)
	a.Variance = stat.Variance(v, nil)
	a.Mean, a.StDev = stat.MeanStdDev(v, nil)
	return a
}

// ffmpegVMAFResult and the types below decode libvmaf JSON log.
//
// libvmaf 1.x writes pooled scores as top level "VMAF score" style keys, 2.x
// nests them under "pooled_metrics". Both are accepted.
type ffmpegVMAFResult struct {
	Version       string        `json:"version"`
	Frames        []frame       `json:"frames"`
	PooledMetrics pooledMetrics `json:"pooled_metrics"`
	VMAFScore     float64       `json:"VMAF score"`
	PSNRScore     float64       `json:"PSNR score"`
	MSSSIMScore   float64       `json:"MS-SSIM score"`
}

// readResult parses libvmaf JSON log.
func readResult(r io.Reader) (*ffmpegVMAFResult, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}
	res := &ffmpegVMAFResult{}
	if err := json.Unmarshal(b, res); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return res, nil
}

// frameMetrics converts per-frame entries.
func (r *ffmpegVMAFResult) frameMetrics() FrameMetrics {
	fm := make(FrameMetrics, 0, len(r.Frames))
	for _, v := range r.Frames {
		fm = append(fm, FrameMetric{
			FrameNum: v.FrameNum,
			VMAF:     v.Metrics.VMAF,
			PSNR:     v.Metrics.PSNR,
			MS_SSIM:  v.Metrics.MS_SSIM,
		})
	}
	return fm
}

// pooledVMAF returns VMAF score as pooled by libvmaf itself, 0 when absent.
func (r *ffmpegVMAFResult) pooledVMAF() float64 {
	if r.VMAFScore != 0 {
		return r.VMAFScore
	}
	return r.PooledMetrics.VMAF.Mean
}

type frame struct {
	FrameNum uint   `json:"frameNum"`
	Metrics  metric `json:"metrics"`
}

type metric struct {
	VMAF    float64
	PSNR    float64
	MS_SSIM float64
}

// UnmarshalJSON implements json.Unmarshaler interface for metric.
//
// libvmaf renames metric keys between versions, see metricName.
func (m *metric) UnmarshalJSON(b []byte) error {
	return unmarshalMetrics(b, &m.VMAF, &m.PSNR, &m.MS_SSIM)
}

type pooledMetrics struct {
	VMAF    pMetric
	PSNR    pMetric
	MS_SSIM pMetric
}

// UnmarshalJSON implements json.Unmarshaler interface for pooledMetrics.
func (p *pooledMetrics) UnmarshalJSON(b []byte) error {
	return unmarshalMetrics(b, &p.VMAF, &p.PSNR, &p.MS_SSIM)
}

type pMetric struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	HarmonicMean float64 `json:"harmonic_mean"`
}

// metricName maps a libvmaf metric key to one of Metric* names, "" for keys
// that are not collected.
func metricName(key string) string {
	switch key {
	case "vmaf":
		return MetricVMAF
	case "psnr", "psnr_y":
		return MetricPSNR
	case "ms_ssim", "float_ms_ssim":
		return MetricMSSSIM
	default:
		return ""
	}
}

// unmarshalMetrics decodes JSON object keyed by libvmaf metric names into
// destinations. JSON null is ignored.
func unmarshalMetrics[T any](b []byte, vmaf, psnr, msssim *T) error {
	if string(b) == "null" {
		return nil
	}
	raw := make(map[string]T)
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		switch metricName(k) {
		case MetricVMAF:
			*vmaf = v
		case MetricPSNR:
			*psnr = v
		case MetricMSSSIM:
			*msssim = v
		}
	}
	return nil
}
