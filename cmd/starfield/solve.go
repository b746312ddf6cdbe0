package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/soniakeys/unit"

	"github.com/banshee-data/starfield/internal/aer"
	"github.com/banshee-data/starfield/internal/astro/dewarp"
	"github.com/banshee-data/starfield/internal/astro/frame"
	"github.com/banshee-data/starfield/internal/astro/pipeline"
	"github.com/banshee-data/starfield/internal/astro/platesolve"
	"github.com/banshee-data/starfield/internal/astro/render"
	"github.com/banshee-data/starfield/internal/config"
	"github.com/banshee-data/starfield/internal/db"
	"github.com/banshee-data/starfield/internal/fsutil"
	"github.com/banshee-data/starfield/internal/security"
	"github.com/banshee-data/starfield/internal/units"
)

// solveOptions are the parsed solve flags layered over the tuning file.
type solveOptions struct {
	In       string
	Tuning   *config.TuningConfig
	Pipeline pipeline.Config
	Load     aer.LoadOptions
	Estimate bool

	DBPath     string
	PNGPath    string
	PNGScale   int
	PlotPath   string
	ReportPath string

	SolverURL string
	Hints     pipeline.Hints
	Tolerance unit.Angle
}

func parseSolveFlags(args []string) (*solveOptions, error) {
	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	in := fs.String("in", "", "Event file to process (.dat, .csv, .pcap) (required)")
	configPath := fs.String("config", "", "Tuning config JSON (default: "+config.DefaultConfigPath+" when present)")
	vx := fs.Float64("vx", 0, "Sidereal drift along x in -velocity-units")
	vy := fs.Float64("vy", 0, "Sidereal drift along y in -velocity-units")
	velocityUnits := fs.String("velocity-units", "", "Units of -vx/-vy and the config drift: "+units.GetValidVelocityUnitsString()+" (default px/s)")
	polarity := fs.String("polarity", "", "Keep only events of this polarity: on, off or both (default both)")
	estimate := fs.Bool("estimate-velocity", false, "Estimate the drift from the recording instead of -vx/-vy")
	percentile := fs.Float64("percentile", frame.DefaultPercentile, "Threshold percentile of positive frame counts")
	level := fs.Float64("threshold", 0, "Fixed threshold level; overrides -percentile when set")
	median := fs.Int("median", 0, "Median filter radius applied to the frame (0 disables)")
	minEvents := fs.Int("min-events", 1, "Drop stars with fewer events")
	hotSigma := fs.Float64("hot-pixel-sigma", 0, "Drop pixels firing this many sigma above the mean (0 disables)")
	window := fs.Int64("neighbour-window", 0, "Drop events without a neighbour within this many microseconds (0 disables)")
	sortEvents := fs.Bool("sort", false, "Sort out-of-order events instead of rejecting the file")
	width := fs.Int("width", 0, "Override sensor width")
	height := fs.Int("height", 0, "Override sensor height")
	udpPort := fs.Int("udp-port", 0, "UDP port to read from PCAP captures (-1 for any)")
	dbPath := fs.String("db", "", "Store the run in this database")
	pngPath := fs.String("png", "", "Write the accumulated frame as a PNG")
	pngScale := fs.Int("png-scale", 2, "Upscale factor for -png")
	plotPath := fs.String("plot", "", "Write a heat map with centroids (.png, .svg or .pdf)")
	reportPath := fs.String("report", "", "Write an HTML report")
	solverURL := fs.String("solver-url", "", "Plate solver base URL (default: from config; empty skips solving)")
	scaleLower := fs.Float64("scale-lower", 0, "Lower image scale hint")
	scaleUpper := fs.Float64("scale-upper", 0, "Upper image scale hint (0 for none)")
	scaleUnits := fs.String("scale-units", "", "Scale hint units: "+units.GetValidScaleUnitsString())
	ra := fs.Float64("ra", 0, "Position hint right ascension in degrees")
	dec := fs.Float64("dec", 0, "Position hint declination in degrees")
	radius := fs.Float64("radius", 0, "Position hint search radius in degrees (0 for none)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *in == "" {
		return nil, errors.New("-in is required")
	}
	if *width < 0 || *width > 0xffff || *height < 0 || *height > 0xffff {
		return nil, fmt.Errorf("sensor geometry %dx%d out of range", *width, *height)
	}
	if *pngScale < 1 {
		return nil, fmt.Errorf("-png-scale must be at least 1, got %d", *pngScale)
	}
	outputs := []outputPath{
		{*pngPath, []string{".png"}},
		{*plotPath, []string{".png", ".svg", ".pdf"}},
		{*reportPath, []string{".html"}},
	}
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		if err := security.ValidateOutputPath(o.path, o.exts...); err != nil {
			return nil, err
		}
	}

	tc, err := loadTuning(*configPath)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["vx"] {
		tc.VelocityX = vx
	}
	if set["vy"] {
		tc.VelocityY = vy
	}
	if set["velocity-units"] {
		tc.VelocityUnits = velocityUnits
	}
	if set["polarity"] {
		tc.Polarity = polarity
	}
	if err := tc.Validate(); err != nil {
		return nil, err
	}

	cfg := pipeline.ConfigFromTuning(tc)
	if set["percentile"] {
		if *percentile < 0 || *percentile > 100 {
			return nil, fmt.Errorf("-percentile must be between 0 and 100, got %g", *percentile)
		}
		cfg.Percentile = *percentile
	}
	if set["threshold"] {
		cfg.Level = level
	}
	if set["median"] {
		if *median < 0 {
			return nil, fmt.Errorf("-median must be non-negative, got %d", *median)
		}
		cfg.Smoother = nil
		if *median > 0 {
			cfg.Smoother = frame.MedianFilter{Radius: *median}
		}
	}
	if set["min-events"] {
		cfg.MinEvents = *minEvents
	}
	if set["hot-pixel-sigma"] {
		cfg.HotPixelSigma = *hotSigma
	}
	if set["neighbour-window"] {
		if *window < 0 {
			return nil, fmt.Errorf("-neighbour-window must be non-negative, got %d", *window)
		}
		cfg.NeighbourWindow = uint64(*window)
	}

	url := tc.GetSolverURL()
	if set["solver-url"] {
		url = *solverURL
	}

	scale := &platesolve.ScaleHint{Lower: tc.GetScaleLower(), Upper: tc.GetScaleUpper(), Units: tc.GetScaleUnits()}
	if set["scale-lower"] {
		scale.Lower = *scaleLower
	}
	if set["scale-upper"] {
		scale.Upper = *scaleUpper
	}
	if set["scale-units"] {
		scale.Units = *scaleUnits
	}
	hints, err := buildHints(scale, *ra, *dec, *radius)
	if err != nil {
		return nil, err
	}

	return &solveOptions{
		In:       *in,
		Tuning:   tc,
		Pipeline: cfg,
		Load: aer.LoadOptions{
			Width:      uint16(*width),
			Height:     uint16(*height),
			SortByTime: *sortEvents,
			UDPPort:    *udpPort,
		},
		Estimate:   *estimate,
		DBPath:     *dbPath,
		PNGPath:    *pngPath,
		PNGScale:   *pngScale,
		PlotPath:   *plotPath,
		ReportPath: *reportPath,
		SolverURL:  url,
		Hints:      hints,
		Tolerance:  unit.AngleFromSec(tc.GetMatchToleranceArcsec()),
	}, nil
}

// loadTuning reads path, or the default tuning file when path is empty.
// No default file at all means built-in defaults. The result is a private
// copy the caller may modify.
func loadTuning(path string) (*config.TuningConfig, error) {
	if path != "" {
		return config.LoadTuningConfig(path)
	}
	tc, _, err := config.LoadDefaultConfig()
	if errors.Is(err, config.ErrNoDefaultConfig) {
		return config.EmptyTuningConfig(), nil
	}
	return tc, err
}

type outputPath struct {
	path string
	exts []string
}

// buildHints validates the optional solver hints. A scale hint with no
// upper bound and a position with no radius are left out.
func buildHints(scale *platesolve.ScaleHint, ra, dec, radius float64) (pipeline.Hints, error) {
	var hints pipeline.Hints
	if scale != nil && scale.Upper > 0 {
		if !units.IsValidScale(scale.Units) {
			return hints, fmt.Errorf("invalid scale units %q: must be one of %s", scale.Units, units.GetValidScaleUnitsString())
		}
		if scale.Lower < 0 || scale.Lower > scale.Upper {
			return hints, fmt.Errorf("invalid scale range [%g, %g]", scale.Lower, scale.Upper)
		}
		hints.Scale = scale
	}
	if radius < 0 {
		return hints, fmt.Errorf("position radius must be non-negative, got %g", radius)
	}
	if radius > 0 {
		if ra < 0 || ra >= 360 || dec < -90 || dec > 90 {
			return hints, fmt.Errorf("position (%g, %g) out of range", ra, dec)
		}
		hints.Position = &platesolve.PositionHint{RADeg: ra, DecDeg: dec, RadiusDeg: radius}
	}
	return hints, nil
}

func handleSolve(args []string) error {
	opts, err := parseSolveFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runSolve(ctx, opts, os.Stdout)
}

// runSolve loads the event file, runs the pipeline, optionally plate-solves
// and writes whichever outputs were requested.
func runSolve(ctx context.Context, opts *solveOptions, out io.Writer) error {
	stream, err := aer.Load(fsutil.OSFileSystem{}, opts.In, opts.Load)
	if err != nil {
		return err
	}

	cfg := opts.Pipeline
	if opts.Estimate {
		v, err := dewarp.EstimateVelocity(stream, dewarp.EstimateOptions{})
		if err != nil {
			return fmt.Errorf("failed to estimate drift: %w", err)
		}
		fmt.Fprintf(out, "estimated drift: (%.4f, %.4f) px/s\n", v.VX, v.VY)
		cfg.Velocity = v
	}

	res, err := pipeline.Run(stream, cfg)
	if err != nil {
		return err
	}
	printCentroids(out, res)

	var outcome *pipeline.SolveOutcome
	if opts.SolverURL != "" {
		tc := opts.Tuning
		solver := platesolve.NewHTTPSolver(opts.SolverURL, tc.GetSolverTimeout(), tc.GetSolverMaxStars())
		if outcome, err = pipeline.Solve(ctx, solver, res, opts.Hints, opts.Tolerance); err != nil {
			return err
		}
		printSolution(out, outcome)
	}

	if opts.DBPath != "" {
		if err := storeRun(opts, res, outcome, out); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := render.SavePNG(render.FrameImage(res.Frame), opts.PNGPath, opts.PNGScale); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", opts.PNGPath)
	}

	title := filepath.Base(opts.In)
	if opts.PlotPath != "" {
		if err := render.PlotFrame(res.Frame, res.Centroids, title, opts.PlotPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", opts.PlotPath)
	}

	if opts.ReportPath != "" {
		if err := writeReport(opts.ReportPath, render.ReportFromRun(title, res, outcome)); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", opts.ReportPath)
	}
	return nil
}

func storeRun(opts *solveOptions, res *pipeline.Result, outcome *pipeline.SolveOutcome, out io.Writer) error {
	store, err := db.NewDB(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	run := db.NewRun(opts.In, res)
	if err := store.InsertRun(run, res.Centroids); err != nil {
		return err
	}
	if outcome != nil {
		if err := store.InsertMatches(run.ID, outcome.Solution, outcome.Matches); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "stored run %s in %s\n", run.ID, opts.DBPath)
	return nil
}

func writeReport(path string, r render.Report) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return render.ReportHTML(f, r)
}

func printCentroids(out io.Writer, res *pipeline.Result) {
	fmt.Fprintf(out, "%d events, frame %dx%d, threshold %.3f, %d stars\n",
		res.Events, res.Extent.Cols, res.Extent.Rows, res.Threshold, len(res.Centroids))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "label\tx\ty\tevents\t")
	for _, c := range res.Centroids {
		fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%d\t\n", c.Label, c.X, c.Y, c.Events)
	}
	tw.Flush()
}

func printSolution(out io.Writer, o *pipeline.SolveOutcome) {
	if !o.Solution.Matched {
		fmt.Fprintln(out, "plate solve: no match")
		return
	}
	fmt.Fprintf(out, "plate solve: matched at %.2f arcsec/px, %d stars paired\n",
		o.Solution.WCS.PixelScale(), len(o.Matches))
	for _, m := range o.Matches {
		ra, dec := platesolve.FormatRADec(unit.AngleFromDeg(m.Star.RADeg), unit.AngleFromDeg(m.Star.DecDeg))
		fmt.Fprintf(out, "  star %d (%.2f, %.2f) -> %s %s (%.1f\")\n",
			m.Point.Label, m.Point.X, m.Point.Y, ra, dec, m.Separation.Deg()*3600)
	}
}
