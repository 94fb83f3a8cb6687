package monitor

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/grain-metrics/laguerre/internal/fit"
	"github.com/grain-metrics/laguerre/internal/fsutil"
	"github.com/grain-metrics/laguerre/internal/geom"
)

// viridisColors is the color ramp used for radius shading in the generator
// scatter.
var viridisColors = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// WriteReport renders an HTML fit report at path: cost and sigma line
// charts from the progress trace, plus a scatter of the fitted generator
// centers (projected to the XY plane, radius as the color dimension). Nil
// generators are omitted from the scatter.
func WriteReport(fsys fsutil.FileSystem, path string, trace []fit.Progress, gens []*geom.Weighted) error {
	if len(trace) == 0 {
		return fmt.Errorf("no progress recorded")
	}

	iters := make([]int, 0, len(trace))
	costData := make([]opts.LineData, 0, len(trace))
	coordData := make([]opts.LineData, 0, len(trace))
	radiusData := make([]opts.LineData, 0, len(trace))
	for _, s := range trace {
		iters = append(iters, s.Iteration)
		costData = append(costData, opts.LineData{Value: s.MuCost})
		coordData = append(coordData, opts.LineData{Value: s.MaxSigmaCoord})
		radiusData = append(radiusData, opts.LineData{Value: s.MaxSigmaRadius})
	}

	costLine := charts.NewLine()
	costLine.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Laguerre fit report", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Cost per iteration"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Iteration"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Cost"}),
	)
	costLine.SetXAxis(iters).
		AddSeries("cost", costData)

	sigmaLine := charts.NewLine()
	sigmaLine.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Sampling spread per iteration"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Iteration"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Max sigma"}),
	)
	sigmaLine.SetXAxis(iters).
		AddSeries("coord", coordData).
		AddSeries("radius", radiusData)

	page := components.NewPage()
	page.AddCharts(costLine, sigmaLine)

	if scatter := generatorScatter(gens); scatter != nil {
		page.AddCharts(scatter)
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if err := fsys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// generatorScatter builds the fitted-generator chart, or nil when there is
// nothing to plot.
func generatorScatter(gens []*geom.Weighted) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(gens))
	maxR := 0.0
	for i, g := range gens {
		if g == nil {
			continue
		}
		if g.R > maxR {
			maxR = g.R
		}
		data = append(data, opts.ScatterData{
			Name:  fmt.Sprintf("grain %d (r=%.3f)", i+1, g.R),
			Value: []interface{}{g.Center.X, g.Center.Y, g.R},
		})
	}
	if len(data) == 0 {
		return nil
	}
	if maxR == 0 {
		maxR = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "700px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Fitted generators", Subtitle: fmt.Sprintf("%d present, XY projection", len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (voxels)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (voxels)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxR),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)
	scatter.AddSeries("generators", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	return scatter
}
