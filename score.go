// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// govmaf tool's score subcommand implementation.

package main

import (
	"encoding/csv"
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
	"github.com/jszwec/csvutil"
)

// Make sure ScoreApp implements Commander interface.
var _ Commander = (*ScoreApp)(nil)

// ScoreApp is score subcommand context that implements Commander interface.
type ScoreApp struct {
	out io.Writer
	// FlagSet instance
	fs *flag.FlagSet
	gf globalFlags
	// Reference (source) video file
	flRef string
	// Distorted (compressed) video file
	flDist string
	// Model name, overrides configuration
	flModel string
	// libvmaf per-frame log file
	flLog string
	// Report file, overrides configuration
	flReport string
	// CSV report file
	flCSV string
	// Per-frame metrics file
	flFrames string
	// libvmaf thread count
	flThreads int
}

// scoreReport is the result of score subcommand.
type scoreReport struct {
	SourceFile     string
	CompressedFile string
	Model          string
	ModelPath      string
	ResultFile     string
	Metrics        *vqm.AggregateMetric
}

// csvRow is flat representation of scoreReport for CSV output.
type csvRow struct {
	SourceFile     string  `csv:"source_file"`
	CompressedFile string  `csv:"compressed_file"`
	Model          string  `csv:"model"`
	VMAFMean       float64 `csv:"vmaf_mean"`
	VMAFHarmonic   float64 `csv:"vmaf_harmonic_mean"`
	VMAFMin        float64 `csv:"vmaf_min"`
	VMAFMax        float64 `csv:"vmaf_max"`
	VMAFStDev      float64 `csv:"vmaf_stdev"`
	PSNRMean       float64 `csv:"psnr_mean"`
	PSNRMin        float64 `csv:"psnr_min"`
	MSSSIMMean     float64 `csv:"ms_ssim_mean"`
	MSSSIMMin      float64 `csv:"ms_ssim_min"`
}

func (r *scoreReport) csvRow() csvRow {
	return csvRow{
		SourceFile:     r.SourceFile,
		CompressedFile: r.CompressedFile,
		Model:          r.Model,
		VMAFMean:       r.Metrics.VMAF.Mean,
		VMAFHarmonic:   r.Metrics.VMAF.HarmonicMean,
		VMAFMin:        r.Metrics.VMAF.Min,
		VMAFMax:        r.Metrics.VMAF.Max,
		VMAFStDev:      r.Metrics.VMAF.StDev,
		PSNRMean:       r.Metrics.PSNR.Mean,
		PSNRMin:        r.Metrics.PSNR.Min,
		MSSSIMMean:     r.Metrics.MS_SSIM.Mean,
		MSSSIMMin:      r.Metrics.MS_SSIM.Min,
	}
}

// writeCSV writes report as CSV file with header.
func (r *scoreReport) writeCSV(fPath string) (err error) {
	fd, err := os.Create(fPath)
	if err != nil {
		return fmt.Errorf("creating CSV report file: %w", err)
	}
	defer func() {
		if cErr := fd.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing CSV report file: %w", cErr)
		}
	}()

	w := csv.NewWriter(fd)
	if err := csvutil.NewEncoder(w).Encode([]csvRow{r.csvRow()}); err != nil {
		return fmt.Errorf("writing CSV report: %w", err)
	}
	w.Flush()
	return w.Error()
}

// writeFrames saves per-frame metrics of measured tool.
func writeFrames(tool *vqm.FfmpegVMAF, fPath string) (err error) {
	frames, err := tool.FrameMetrics()
	if err != nil {
		return fmt.Errorf("per-frame metrics: %w", err)
	}
	fd, err := os.Create(fPath)
	if err != nil {
		return fmt.Errorf("per-frame metrics: %w", err)
	}
	defer func() {
		if cerr := fd.Close(); err == nil {
			err = cerr
		}
	}()
	return frames.ToJSON(fd)
}

// CreateScoreCommand will create Commander instance from ScoreApp.
func CreateScoreCommand() *ScoreApp {
	longHelp := `Subcommand "score" calculates VMAF, PSNR and MS-SSIM of distorted video against
reference video using ffmpeg built with libvmaf 1.x. Model is picked by reference
resolution unless -model flag or "model" configuration option says otherwise.

Aggregated metrics are printed to stdout and saved to report file, per-frame
libvmaf log is kept in -log file for later plotting with "vqmplot". With -frames
per-frame VMAF, PSNR and MS-SSIM are also saved in govmaf's own JSON format.

Examples:

  govmaf score -ref source.mp4 -dist compressed.mp4
  govmaf score -ref source.mp4 -dist compressed.mp4 -model 4k -log vmaf.json`

	app := &ScoreApp{
		fs:  flag.NewFlagSet("score", flag.ContinueOnError),
		out: os.Stdout,
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flRef, "ref", "", "Reference video file (mandatory)")
	app.fs.StringVar(&app.flDist, "dist", "", "Distorted video file (mandatory)")
	app.fs.StringVar(&app.flModel, "model", "", `Model name: "default", "4k" or "auto" (optional)`)
	app.fs.StringVar(&app.flLog, "log", "", "libvmaf per-frame JSON log file (optional)")
	app.fs.StringVar(&app.flReport, "report", "", "Report file (optional)")
	app.fs.StringVar(&app.flCSV, "csv", "", "Also write report as CSV to this file (optional)")
	app.fs.StringVar(&app.flFrames, "frames", "", "Also write per-frame metrics as JSON to this file (optional)")
	app.fs.IntVar(&app.flThreads, "threads", 0, "libvmaf thread count, 0 for auto (optional)")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

func (a *ScoreApp) Name() string {
	return a.fs.Name()
}

func (a *ScoreApp) Help() {
	a.fs.Usage()
}

// init will do App state initialization.
func (a *ScoreApp) init(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.Name()),
		}
	}

	if a.flRef == "" {
		a.Help()
		return &AppError{exitCode: 2, msg: "mandatory option -ref is missing"}
	}
	if a.flDist == "" {
		a.Help()
		return &AppError{exitCode: 2, msg: "mandatory option -dist is missing"}
	}
	if a.flThreads < 0 {
		return &AppError{exitCode: 2, msg: "negative -threads"}
	}

	return nil
}

func (a *ScoreApp) Run(args []string) error {
	if err := a.init(args); err != nil {
		return err
	}

	cfg, err := loadAppConfig(a.gf)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	if err := cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	refMeta, err := tools.ExtractMetadata(cfg.FfprobePath.Value(), a.flRef)
	if err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("reference metadata: %s", err)}
	}

	name, err := resolveModel(cfg.Model.Value(), a.flModel, refMeta.Width, refMeta.Height)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	modelPath, err := model.Path(name)
	if err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("model: %s", err)}
	}

	reportFile := cfg.ReportFileName.Value()
	if a.flReport != "" {
		reportFile = a.flReport
	}
	resultFile := a.flLog
	if resultFile == "" {
		base := filepath.Base(a.flDist)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		resultFile = filepath.Join(filepath.Dir(reportFile), base+"_vmaf.json")
	}

	tool, err := vqm.NewFfmpegVMAF(&vqm.FfmpegVMAFConfig{
		FfmpegPath:         cfg.FfmpegPath.Value(),
		FfprobePath:        cfg.FfprobePath.Value(),
		ModelPath:          modelPath,
		FfmpegVMAFTemplate: cfg.FfmpegVMAFTemplate.Value(),
		ResultFile:         resultFile,
		Threads:            a.flThreads,
	}, a.flDist, a.flRef)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	logging.Infof("Measuring %s against %s with model %s", a.flDist, a.flRef, name)
	if err := tool.Measure(); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	metrics, err := tool.GetMetrics()
	if err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("libvmaf result: %s", err)}
	}

	r := scoreReport{
		SourceFile:     a.flRef,
		CompressedFile: a.flDist,
		Model:          name.String(),
		ModelPath:      modelPath,
		ResultFile:     resultFile,
		Metrics:        metrics,
	}
	if err := writeJSONFile(reportFile, r); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	logging.Infof("Report saved to %s", reportFile)
	if a.flCSV != "" {
		if err := r.writeCSV(a.flCSV); err != nil {
			return &AppError{exitCode: 1, msg: err.Error()}
		}
		logging.Infof("CSV report saved to %s", a.flCSV)
	}
	if a.flFrames != "" {
		if err := writeFrames(tool, a.flFrames); err != nil {
			return &AppError{exitCode: 1, msg: err.Error()}
		}
		logging.Infof("Per-frame metrics saved to %s", a.flFrames)
	}

	if err := writeJSON(a.out, r); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	return nil
}
