package plotting

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/casa.report/internal/casa"
)

// ErrNoVelocities is returned when a report has no determinate trajectory
// to plot.
var ErrNoVelocities = errors.New("report has no determinate trajectories")

const (
	DefaultHistogramBins = 20
	histogramWidth       = 8 * vg.Inch
	histogramHeight      = 5 * vg.Inch
)

var (
	histogramColor = color.RGBA{R: 0x2e, G: 0x7d, B: 0x32, A: 0xff}
	thresholdColor = color.RGBA{R: 0xc6, G: 0x28, B: 0x28, A: 0xff}
)

// vclValues returns the VCL of every determinate trajectory.
func vclValues(r *casa.Report) plotter.Values {
	var vs plotter.Values
	for _, m := range r.Trajectories {
		if m.Class == casa.ClassIndeterminate {
			continue
		}
		vs = append(vs, m.VCL)
	}
	return vs
}

// NewVCLHistogram builds a histogram of per-trajectory VCL with the
// immotile threshold marked.
func NewVCLHistogram(r *casa.Report, title string, bins int, immotileThreshold float64) (*plot.Plot, error) {
	vs := vclValues(r)
	if len(vs) == 0 {
		return nil, ErrNoVelocities
	}
	if bins <= 0 {
		bins = DefaultHistogramBins
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "VCL (µm/s)"
	p.Y.Label.Text = "Trajectories"

	h, err := plotter.NewHist(vs, bins)
	if err != nil {
		return nil, fmt.Errorf("failed to build histogram: %w", err)
	}
	h.FillColor = histogramColor
	h.LineStyle.Width = vg.Points(0.5)
	p.Add(h)

	if immotileThreshold > 0 {
		maxCount := tallestBin(h)
		line, err := plotter.NewLine(plotter.XYs{
			{X: immotileThreshold, Y: 0},
			{X: immotileThreshold, Y: maxCount},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build threshold line: %w", err)
		}
		line.Color = thresholdColor
		line.Width = vg.Points(1.5)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("immotile < %g µm/s", immotileThreshold), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func tallestBin(h *plotter.Histogram) float64 {
	var top float64
	for _, b := range h.Bins {
		top = max(top, b.Weight)
	}
	return top
}

// WriteVCLHistogram renders the VCL histogram as PNG to w.
func WriteVCLHistogram(w io.Writer, r *casa.Report, title string, immotileThreshold float64) error {
	p, err := NewVCLHistogram(r, title, DefaultHistogramBins, immotileThreshold)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(histogramWidth, histogramHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}
