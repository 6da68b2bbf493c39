// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Plots of per-frame libvmaf metrics.

package analysis

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"sort"
	"strings"

	"github.com/evolution-gaming/govmaf/internal/logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	defaultPlotWidth  = vg.Centimeter * 24
	defaultPlotHeight = vg.Centimeter * 7
	dashes            = []vg.Length{vg.Points(5), vg.Points(5)}
)

// ErrNoValues is returned when there is nothing to plot.
var ErrNoValues = errors.New("no values to plot")

// ColorPalette pairs a base color with its darker variant.
var ColorPalette = []color.RGBA{
	{R: 230, G: 57, B: 70, A: 255}, {R: 143, G: 35, B: 43, A: 255},   // red
	{R: 84, G: 184, B: 50, A: 255}, {R: 50, G: 110, B: 30, A: 255},   // green
	{R: 63, G: 55, B: 201, A: 255}, {R: 51, G: 45, B: 163, A: 255},   // blue
	{R: 86, G: 11, B: 173, A: 255}, {R: 62, G: 8, B: 125, A: 255},    // purple
	{R: 31, G: 180, B: 206, A: 255}, {R: 11, G: 123, B: 143, A: 255}, // cyan
	{R: 255, G: 174, B: 0, A: 255}, {R: 173, G: 118, B: 0, A: 255},   // orange
}

// metricRange returns the value range of a bounded metric. PSNR has no upper
// bound and reports ok=false.
func metricRange(metric string) (lo, hi float64, ok bool) {
	switch strings.ToUpper(strings.ReplaceAll(metric, "_", "-")) {
	case "VMAF":
		return 0, 100, true
	case "MS-SSIM", "SSIM":
		return 0, 1, true
	default:
		return 0, 0, false
	}
}

// sortedCopy returns a sorted copy so the caller's slice is left untouched.
func sortedCopy(values []float64) []float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	return s
}

// CreateCDFPlot creates Cumulative Distribution Function plot for given metric
// values with markers at low quantiles, median and mean.
func CreateCDFPlot(values []float64, name string) (*plot.Plot, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("CreateCDFPlot(): %w", ErrNoValues)
	}
	p := plot.New()
	p.X.Label.Text = name
	p.Y.Label.Text = "Probability"
	p.Y.Min, p.Y.Max = 0, 1

	sorted := sortedCopy(values)
	xys := make(plotter.XYs, len(sorted))
	for i, v := range sorted {
		xys[i] = plotter.XY{X: v, Y: stat.CDF(v, stat.Empirical, sorted, nil)}
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return p, fmt.Errorf("CreateCDFPlot() creating new Line: %w", err)
	}
	line.Color = ColorPalette[2]
	p.Add(line, plotter.NewGrid())

	markers, err := quantileMarkers(sorted, 0.01, 0.05, 0.5, 0.95)
	if err != nil {
		return p, fmt.Errorf("CreateCDFPlot() creating quantiles: %w", err)
	}
	p.Add(markers...)

	return p, nil
}

// CreateHistogramPlot creates histogram plot for given metric values.
func CreateHistogramPlot(values []float64, name string) (*plot.Plot, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("CreateHistogramPlot(): %w", ErrNoValues)
	}
	p := plot.New()
	p.X.Label.Text = name
	p.Y.Label.Text = "N"
	if lo, hi, ok := metricRange(name); ok {
		p.X.Min, p.X.Max = lo, hi
	}

	const bins = 100
	hist, err := plotter.NewHist(plotter.Values(sortedCopy(values)), bins)
	if err != nil {
		return p, fmt.Errorf("CreateHistogramPlot() creating new histogram: %w", err)
	}
	hist.Color = color.Transparent
	hist.FillColor = ColorPalette[7]
	p.Add(hist, plotter.NewGrid())

	return p, nil
}

// CreateVqmPlot creates a per-frame plot of metric values, index into values is
// the frame number.
//
// Scores pooled the way libvmaf pools them (mean, harmonic mean and min) are
// drawn as labeled horizontal lines. Harmonic mean is skipped when any value is
// not positive.
func CreateVqmPlot(values []float64, name string) (*plot.Plot, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("CreateVqmPlot(): %w", ErrNoValues)
	}
	p := plot.New()
	p.X.Label.Text = "Frame #"
	p.Y.Label.Text = name
	if lo, hi, ok := metricRange(name); ok {
		p.Y.Min, p.Y.Max = lo, hi
	}

	xys := make(plotter.XYs, len(values))
	for i, v := range values {
		xys[i] = plotter.XY{X: float64(i), Y: v}
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return p, fmt.Errorf("CreateVqmPlot() creating new line: %w", err)
	}
	line.Color = ColorPalette[0]
	p.Add(line, plotter.NewGrid())

	pooled, err := poolingLines(values, float64(len(values)-1))
	if err != nil {
		return p, fmt.Errorf("CreateVqmPlot() creating pooling lines: %w", err)
	}
	p.Add(pooled...)

	return p, nil
}

// pooled is a single pooled score drawn over per-frame plot.
type pooled struct {
	label string
	value float64
	color color.Color
}

// poolingLines creates horizontal lines for pooled scores spanning [0, xMax].
func poolingLines(values []float64, xMax float64) ([]plot.Plotter, error) {
	scores := []pooled{
		{label: "mean", value: stat.Mean(values, nil), color: ColorPalette[6]},
		{label: "min", value: floats.Min(values), color: ColorPalette[11]},
	}
	if floats.Min(values) > 0 {
		scores = append(scores, pooled{label: "harmonic_mean", value: stat.HarmonicMean(values, nil), color: ColorPalette[4]})
	}

	var plotters []plot.Plotter
	for _, s := range scores {
		l, err := plotter.NewLine(plotter.XYs{{X: 0, Y: s.value}, {X: xMax, Y: s.value}})
		if err != nil {
			return nil, err
		}
		l.Color = s.color
		l.LineStyle.Dashes = dashes
		lbl, err := newLabel(0, s.value, fmt.Sprintf("%s=%.3f", s.label, s.value), 5, 5)
		if err != nil {
			return nil, err
		}
		plotters = append(plotters, l, lbl)
	}
	return plotters, nil
}

// quantileMarkers creates vertical lines at given quantiles and at the mean of
// sorted values. Y spans CDF range [0, 1].
func quantileMarkers(sorted []float64, quantiles ...float64) ([]plot.Plotter, error) {
	var plotters []plot.Plotter
	mark := func(x, y float64, text string, c color.Color) error {
		l, err := plotter.NewLine(plotter.XYs{{X: x, Y: 0}, {X: x, Y: 1}})
		if err != nil {
			return err
		}
		l.LineStyle.Width = vg.Points(1)
		l.LineStyle.Dashes = dashes
		l.Color = c
		lbl, err := newLabel(x, y, text, 5, -5)
		if err != nil {
			return err
		}
		plotters = append(plotters, l, lbl)
		return nil
	}

	for i, q := range quantiles {
		x := stat.Quantile(q, stat.Empirical, sorted, nil)
		// Step of 5 through the palette, wrapping around.
		c := ColorPalette[i*5%len(ColorPalette)]
		if err := mark(x, q, fmt.Sprintf("q(%.2f)=%.3f", q, x), c); err != nil {
			return nil, err
		}
	}

	mean := stat.Mean(sorted, nil)
	y := stat.CDF(mean, stat.Empirical, sorted, nil)
	if err := mark(mean, y, fmt.Sprintf("mean=%.3f", mean), ColorPalette[len(ColorPalette)-1]); err != nil {
		return nil, err
	}

	return plotters, nil
}

// newLabel creates a single text label at (x, y) shifted by (dx, dy) points.
func newLabel(x, y float64, text string, dx, dy vg.Length) (*plotter.Labels, error) {
	l, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    plotter.XYs{{X: x, Y: y}},
		Labels: []string{text},
	})
	if err != nil {
		return nil, err
	}
	l.Offset.X = dx
	l.Offset.Y = dy
	return l, nil
}

// MultiPlotVqm creates per-frame plot, histogram and CDF of metric values on one
// canvas and saves it as PNG to outFile.
func MultiPlotVqm(values []float64, metric, title, outFile string) (err error) {
	builders := []func([]float64, string) (*plot.Plot, error){
		CreateVqmPlot,
		CreateHistogramPlot,
		CreateCDFPlot,
	}
	// plot.Align wants rows of columns, we have a single column.
	plots := make([][]*plot.Plot, len(builders))
	for i, build := range builders {
		p, err := build(values, metric)
		if err != nil {
			return err
		}
		plots[i] = []*plot.Plot{p}
	}

	// Tweak titles and labels to have better layout and make plots less busy.
	plots[0][0].Title.Text = title + "\n\nPer frame " + metric
	plots[1][0].Title.Text = metric + " Histogram"
	plots[1][0].X.Label.Text = ""
	plots[2][0].Title.Text = "Cumulative Distribution Function (CDF)"

	rows := len(plots)
	img := vgimg.New(defaultPlotWidth, defaultPlotHeight*vg.Length(rows))
	dc := draw.New(img)
	canvases := plot.Align(plots, draw.Tiles{Rows: rows, Cols: 1, PadY: vg.Points(10)}, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	w, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("MultiPlotVqm() creating png file: %w", err)
	}
	defer func() {
		if cErr := w.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("MultiPlotVqm() closing png file: %w", cErr)
		}
	}()
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("MultiPlotVqm() failed writing png file: %w", err)
	}
	logging.Debugf("Plot written to %s", outFile)

	return nil
}
