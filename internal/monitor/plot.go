package monitor

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/grain-metrics/laguerre/internal/fit"
	"github.com/grain-metrics/laguerre/internal/fsutil"
)

// WritePlot renders the cost and sigma trajectories of a run as a PNG line
// chart at path. Iterations where variance was injected are marked with
// glyphs on the cost line.
func WritePlot(fsys fsutil.FileSystem, path string, trace []fit.Progress) error {
	if len(trace) == 0 {
		return fmt.Errorf("no progress recorded")
	}

	p := plot.New()
	p.Title.Text = "Fit convergence"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Value"

	costPts := make(plotter.XYs, 0, len(trace))
	coordPts := make(plotter.XYs, 0, len(trace))
	radiusPts := make(plotter.XYs, 0, len(trace))
	var injectPts plotter.XYs
	for _, s := range trace {
		x := float64(s.Iteration)
		costPts = append(costPts, plotter.XY{X: x, Y: s.MuCost})
		coordPts = append(coordPts, plotter.XY{X: x, Y: s.MaxSigmaCoord})
		radiusPts = append(radiusPts, plotter.XY{X: x, Y: s.MaxSigmaRadius})
		if s.Injected {
			injectPts = append(injectPts, plotter.XY{X: x, Y: s.MuCost})
		}
	}

	series := []struct {
		label string
		pts   plotter.XYs
		color color.RGBA
	}{
		{"cost", costPts, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
		{"max sigma (coord)", coordPts, color.RGBA{R: 44, G: 160, B: 44, A: 255}},
		{"max sigma (radius)", radiusPts, color.RGBA{R: 255, G: 127, B: 14, A: 255}},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return fmt.Errorf("build %s line: %w", s.label, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}

	if len(injectPts) > 0 {
		marks, err := plotter.NewScatter(injectPts)
		if err != nil {
			return fmt.Errorf("build injection markers: %w", err)
		}
		marks.GlyphStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		marks.GlyphStyle.Radius = vg.Points(3)
		p.Add(marks)
		p.Legend.Add("injection", marks)
	}

	p.Legend.Top = true
	p.Legend.Left = false

	wt, err := p.WriterTo(10*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write plot: %w", err)
	}
	return f.Close()
}
