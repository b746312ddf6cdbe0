package render

import (
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/starfield/internal/astro/pipeline"
	"github.com/banshee-data/starfield/internal/astro/platesolve"
	"github.com/banshee-data/starfield/internal/astro/segment"
)

// viridis, as used by the other debug charts.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

const maxHistogramBins = 40

// Report is what the HTML report shows. It can be built from a fresh run
// or from stored results, which carry no frame.
type Report struct {
	Title     string
	Subtitle  string
	Centroids []segment.Centroid
	Counts    []float64 // Positive frame counts; no histogram when empty
	Threshold float64
	Matches   []MatchRow
}

// MatchRow is a centroid paired with a catalogue star.
type MatchRow struct {
	Label            int
	X, Y             float64
	RADeg, DecDeg    float64
	SeparationArcsec float64
}

// ReportFromRun collects a run and an optional solve outcome.
func ReportFromRun(title string, res *pipeline.Result, outcome *pipeline.SolveOutcome) Report {
	r := Report{
		Title: title,
		Subtitle: fmt.Sprintf("%d events, %.1fs, drift (%.3f, %.3f) px/s, %d stars",
			res.Events, float64(res.Duration)/1e6, res.Velocity.VX, res.Velocity.VY, len(res.Centroids)),
		Centroids: res.Centroids,
		Counts:    res.Frame.Positive(),
		Threshold: res.Threshold,
	}
	if outcome != nil {
		r.Matches = MatchRows(outcome.Matches)
	}
	return r
}

// MatchRows flattens plate-solve matches.
func MatchRows(ms []platesolve.Match) []MatchRow {
	out := make([]MatchRow, len(ms))
	for i, m := range ms {
		out[i] = MatchRow{
			Label:            m.Point.Label,
			X:                m.Point.X,
			Y:                m.Point.Y,
			RADeg:            m.Star.RADeg,
			DecDeg:           m.Star.DecDeg,
			SeparationArcsec: m.Separation.Deg() * 3600,
		}
	}
	return out
}

// ReportHTML writes a page with a centroid scatter, coloured by event
// count, and a histogram of positive frame counts split at the threshold.
func ReportHTML(w io.Writer, r Report) error {
	page := components.NewPage()
	page.AddCharts(centroidScatter(r))
	if len(r.Counts) > 0 {
		page.AddCharts(countHistogram(r))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func centroidScatter(r Report) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(r.Centroids))
	maxEvents := 1
	for _, c := range r.Centroids {
		data = append(data, opts.ScatterData{
			Name:  fmt.Sprintf("star %d", c.Label),
			Value: []interface{}{c.X, c.Y, c.Events},
		})
		maxEvents = max(maxEvents, c.Events)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: r.Title, Theme: "dark", Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: r.Title, Subtitle: r.Subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "y (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxEvents),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("centroids", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	if len(r.Matches) > 0 {
		matched := make([]opts.ScatterData, 0, len(r.Matches))
		for _, m := range r.Matches {
			matched = append(matched, opts.ScatterData{
				Name:  fmt.Sprintf("star %d: %.4f %+.4f (%.1f\")", m.Label, m.RADeg, m.DecDeg, m.SeparationArcsec),
				Value: []interface{}{m.X, m.Y, maxEvents},
			})
		}
		scatter.AddSeries("catalogue matches", matched, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))
	}
	return scatter
}

func countHistogram(r Report) *charts.Bar {
	dividers, hist := histogram(r.Counts, maxHistogramBins)

	x := make([]string, len(hist))
	below := make([]opts.BarData, len(hist))
	above := make([]opts.BarData, len(hist))
	for i, n := range hist {
		x[i] = fmt.Sprintf("%.1f", dividers[i])
		if dividers[i] > r.Threshold {
			above[i] = opts.BarData{Value: n}
		} else {
			below[i] = opts.BarData{Value: n}
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Frame counts", Subtitle: fmt.Sprintf("%d positive cells, threshold %.2f", len(r.Counts), r.Threshold)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "cells", Type: "log"}),
	)
	bar.SetXAxis(x).
		AddSeries("below threshold", below, charts.WithBarChartOpts(opts.BarChart{Stack: "cells"})).
		AddSeries("above threshold", above, charts.WithBarChartOpts(opts.BarChart{Stack: "cells"}))
	return bar
}

// histogram bins values into at most bins equal-width bins spanning their
// range. dividers has one more entry than hist.
func histogram(values []float64, bins int) (dividers, hist []float64) {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi == lo {
		hi = lo + 1
	}
	bins = max(1, min(bins, len(sorted)))
	dividers = floats.Span(make([]float64, bins+1), lo, hi)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	return dividers, stat.Histogram(nil, dividers, sorted, nil)
}
