// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// govmaf tool's native subcommand implementation.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/evolution-gaming/govmaf/internal/logging"
	"github.com/evolution-gaming/govmaf/libvmaf"
	"github.com/evolution-gaming/govmaf/model"
)

// readBufferSize is the buffer size of raw YUV input readers.
const readBufferSize = 1 << 20

// Make sure NativeApp implements Commander interface.
var _ Commander = (*NativeApp)(nil)

// NativeApp is native subcommand context that implements Commander interface.
type NativeApp struct {
	out io.Writer
	// FlagSet instance
	fs *flag.FlagSet
	gf globalFlags

	flRef    string
	flDist   string
	flWidth  int
	flHeight int
	flFormat string
	flModel  string

	flLog       string
	flLogFormat string
	flPool      string
	flThreads   int
	flSubsample int

	flPSNR   bool
	flSSIM   bool
	flMSSSIM bool
	flCI     bool

	flDisableClip     bool
	flDisableAVX      bool
	flEnableTransform bool
	flPhoneModel      bool
}

// CreateNativeCommand will create Commander instance from NativeApp.
func CreateNativeCommand() *NativeApp {
	longHelp := `Subcommand "native" calculates VMAF of raw planar YUV files by calling libvmaf
linked into govmaf binary. Binary has to be built with cgo and "-tags libvmaf".
Model is picked by frame size unless -model flag or "model" configuration option
says otherwise.

Examples:

  govmaf native -ref ref.yuv -dist dist.yuv -w 1920 -h 1080
  govmaf native -ref ref.yuv -dist dist.yuv -w 3840 -h 2160 -fmt yuv420p10le -psnr -log vmaf.xml`

	app := &NativeApp{
		fs:  flag.NewFlagSet("native", flag.ContinueOnError),
		out: os.Stdout,
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flRef, "ref", "", "Reference raw YUV file (mandatory)")
	app.fs.StringVar(&app.flDist, "dist", "", "Distorted raw YUV file (mandatory)")
	app.fs.IntVar(&app.flWidth, "w", 0, "Frame width (mandatory)")
	app.fs.IntVar(&app.flHeight, "h", 0, "Frame height (mandatory)")
	app.fs.StringVar(&app.flFormat, "fmt", string(libvmaf.YUV420P), "Pixel format")
	app.fs.StringVar(&app.flModel, "model", "", `Model name: "default", "4k" or "auto" (optional)`)
	app.fs.StringVar(&app.flLog, "log", "", "Per-frame log file (optional)")
	app.fs.StringVar(&app.flLogFormat, "log-fmt", "", "Log format: xml, json or csv (optional)")
	app.fs.StringVar(&app.flPool, "pool", "", "Pooling method: mean, harmonic_mean or min (optional)")
	app.fs.IntVar(&app.flThreads, "threads", 0, "Thread count, 0 for auto")
	app.fs.IntVar(&app.flSubsample, "subsample", 1, "Compute every n-th frame")
	app.fs.BoolVar(&app.flPSNR, "psnr", false, "Also compute PSNR")
	app.fs.BoolVar(&app.flSSIM, "ssim", false, "Also compute SSIM")
	app.fs.BoolVar(&app.flMSSSIM, "ms-ssim", false, "Also compute MS-SSIM")
	app.fs.BoolVar(&app.flCI, "ci", false, "Compute confidence interval")
	app.fs.BoolVar(&app.flDisableClip, "disable-clip", false, "Disable clipping of VMAF values")
	app.fs.BoolVar(&app.flDisableAVX, "disable-avx", false, "Disable AVX instructions")
	app.fs.BoolVar(&app.flEnableTransform, "transform", false, "Enable score transform")
	app.fs.BoolVar(&app.flPhoneModel, "phone-model", false, "Use phone viewing condition transform")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

func (a *NativeApp) Name() string {
	return a.fs.Name()
}

func (a *NativeApp) Help() {
	a.fs.Usage()
}

// init will do App state initialization.
func (a *NativeApp) init(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.Name()),
		}
	}

	switch {
	case a.flRef == "":
		a.Help()
		return &AppError{exitCode: 2, msg: "mandatory option -ref is missing"}
	case a.flDist == "":
		a.Help()
		return &AppError{exitCode: 2, msg: "mandatory option -dist is missing"}
	case a.flWidth <= 0 || a.flHeight <= 0:
		a.Help()
		return &AppError{exitCode: 2, msg: "mandatory options -w and -h must be positive"}
	}
	if _, err := libvmaf.ParseFormat(a.flFormat); err != nil {
		return &AppError{exitCode: 2, msg: err.Error()}
	}

	return nil
}

// options builds libvmaf options from flags.
func (a *NativeApp) options(modelPath string) libvmaf.Options {
	return libvmaf.Options{
		Format:             libvmaf.Format(a.flFormat),
		Width:              a.flWidth,
		Height:             a.flHeight,
		ModelPath:          modelPath,
		LogPath:            a.flLog,
		LogFormat:          a.flLogFormat,
		DisableClip:        a.flDisableClip,
		DisableAVX:         a.flDisableAVX,
		EnableTransform:    a.flEnableTransform,
		PhoneModel:         a.flPhoneModel,
		PSNR:               a.flPSNR,
		SSIM:               a.flSSIM,
		MSSSIM:             a.flMSSSIM,
		PoolMethod:         a.flPool,
		Threads:            a.flThreads,
		Subsample:          a.flSubsample,
		ConfidenceInterval: a.flCI,
	}
}

func (a *NativeApp) Run(args []string) error {
	if err := a.init(args); err != nil {
		return err
	}

	if !libvmaf.Available {
		return &AppError{exitCode: 1, msg: libvmaf.ErrUnavailable.Error()}
	}

	cfg, err := loadAppConfig(a.gf)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	if err := cfg.VerifyModel(); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	name, err := resolveModel(cfg.Model.Value(), a.flModel, a.flWidth, a.flHeight)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	modelPath, err := model.Path(name)
	if err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("model: %s", err)}
	}

	ref, err := os.Open(a.flRef)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	defer ref.Close()
	dist, err := os.Open(a.flDist)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	defer dist.Close()

	format := libvmaf.Format(a.flFormat)
	if fi, err := ref.Stat(); err == nil {
		logging.Infof("Reference %s: %s, %d frames of %s",
			a.flRef, humanize.IBytes(uint64(fi.Size())),
			fi.Size()/int64(format.FrameSize(a.flWidth, a.flHeight)), format)
	}

	r, err := libvmaf.NewYUVReader(
		bufio.NewReaderSize(ref, readBufferSize),
		bufio.NewReaderSize(dist, readBufferSize),
		format, a.flWidth, a.flHeight)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	ctx, release := interruptibleContext(context.Background())
	score, err := libvmaf.Compute(ctx, a.options(modelPath), r)
	release()
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	logging.Infof("VMAF %.4f over %d frames with model %s", score.VMAF, score.Frames, name)

	if err := writeJSON(a.out, score); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	return nil
}
