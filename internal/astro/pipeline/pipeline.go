// Package pipeline chains the layers into one run: optional event
// filtering, dewarp, accumulation, optional smoothing, threshold,
// labelling, projection and centroid extraction, with an optional hand-off
// to a plate solver.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soniakeys/unit"

	"github.com/banshee-data/starfield/internal/aer"
	"github.com/banshee-data/starfield/internal/astro"
	"github.com/banshee-data/starfield/internal/astro/dewarp"
	"github.com/banshee-data/starfield/internal/astro/frame"
	"github.com/banshee-data/starfield/internal/astro/platesolve"
	"github.com/banshee-data/starfield/internal/astro/segment"
	"github.com/banshee-data/starfield/internal/config"
	"github.com/banshee-data/starfield/internal/monitoring"
)

var logf = monitoring.Component("Pipeline")

// Config controls one run.
type Config struct {
	Velocity   dewarp.Velocity
	Percentile float64
	Level      *float64       // Fixed threshold; overrides Percentile when set
	Smoother   frame.Smoother // nil disables smoothing
	MinEvents  int            // Centroids with fewer events are dropped

	// Upstream filters, disabled when zero.
	HotPixelSigma   float64
	NeighbourWindow uint64 // Microseconds
	Polarity        *bool  // Keep only events of this polarity when set
}

// DefaultConfig returns a zero-drift config with the default percentile.
func DefaultConfig() Config {
	return Config{Percentile: frame.DefaultPercentile, MinEvents: 1}
}

// ConfigFromTuning builds a Config from tuning values, falling back to
// defaults for anything unset.
func ConfigFromTuning(tc *config.TuningConfig) Config {
	if tc == nil {
		tc = config.EmptyTuningConfig()
	}
	vx, vy := tc.GetVelocityPxPerSec()
	cfg := Config{
		Velocity:        dewarp.Velocity{VX: vx, VY: vy},
		Percentile:      tc.GetThresholdPercentile(),
		MinEvents:       tc.GetMinEvents(),
		HotPixelSigma:   tc.GetHotPixelSigma(),
		NeighbourWindow: uint64(tc.GetNeighbourWindowUs()),
	}
	if r := tc.GetMedianRadius(); r > 0 {
		cfg.Smoother = frame.MedianFilter{Radius: r}
	}
	switch tc.GetPolarity() {
	case config.PolarityOn:
		cfg.Polarity = ptrBool(true)
	case config.PolarityOff:
		cfg.Polarity = ptrBool(false)
	}
	return cfg
}

func ptrBool(v bool) *bool { return &v }

// Result holds the final products of a run.
type Result struct {
	Width      uint16
	Height     uint16
	Velocity   dewarp.Velocity
	Extent     dewarp.Extent
	Frame      *frame.Frame
	Threshold  float64
	Percentile float64 // 0 when FixedLevel
	FixedLevel bool    // Threshold came from Config.Level
	Mask       *frame.Mask
	Labels     *segment.LabelMap
	Centroids  []segment.Centroid
	Events     int    // Events that reached the dewarper
	Dropped    int    // Events removed by the upstream filters
	Start      uint64 // Microseconds
	Duration   uint64 // Microseconds
	Elapsed    time.Duration
}

// Run processes a time-ordered stream. It returns either a complete
// result or an error; every stage failure is an *astro.StageError.
func Run(stream *aer.Stream, cfg Config) (*Result, error) {
	started := time.Now()
	if stream == nil || stream.Len() == 0 {
		return nil, astro.NewStageError(astro.StageDewarp, astro.ErrEmptyInput)
	}
	if err := stream.Validate(); err != nil {
		return nil, astro.NewStageError(astro.StageDewarp, err)
	}

	filtered, dropped := prefilter(stream, cfg)
	if filtered.Len() == 0 {
		return nil, astro.NewStageError(astro.StageDewarp, fmt.Errorf("all %d events filtered out: %w", stream.Len(), astro.ErrEmptyInput))
	}

	t0, duration := dewarp.Span(filtered.Events)
	ext, err := dewarp.FrameSize(filtered.Width, filtered.Height, cfg.Velocity, duration)
	if err != nil {
		return nil, astro.NewStageError(astro.StageDewarp, err)
	}
	logf("%d events over %.3fs, drift (%.3f, %.3f) px/s, frame %dx%d",
		filtered.Len(), float64(duration)/1e6, cfg.Velocity.VX, cfg.Velocity.VY, ext.Cols, ext.Rows)

	warped, err := dewarp.Dewarp(filtered.Events, cfg.Velocity)
	if err != nil {
		return nil, err
	}
	f, err := frame.Accumulate(warped, ext)
	if err != nil {
		return nil, err
	}
	if cfg.Smoother != nil {
		f = cfg.Smoother.Apply(f)
	}
	level, mask, err := threshold(f, cfg)
	if err != nil {
		return nil, err
	}
	labels := segment.Label(mask)
	projected, err := segment.Project(warped, labels)
	if err != nil {
		return nil, err
	}
	centroids, err := segment.Centroids(projected, labels.MaxLabel)
	if err != nil {
		return nil, err
	}
	kept := segment.FilterMinEvents(centroids, cfg.MinEvents)

	res := &Result{
		Width:      filtered.Width,
		Height:     filtered.Height,
		Velocity:   cfg.Velocity,
		Extent:     ext,
		Frame:      f,
		Threshold:  level,
		FixedLevel: cfg.Level != nil,
		Mask:       mask,
		Labels:     labels,
		Centroids:  kept,
		Events:     len(warped),
		Dropped:    dropped,
		Start:      t0,
		Duration:   duration,
		Elapsed:    time.Since(started),
	}
	if !res.FixedLevel {
		res.Percentile = cfg.Percentile
	}
	logf("threshold %.2f, %d regions, %d centroids kept (min %d events) in %v",
		level, labels.MaxLabel, len(kept), cfg.MinEvents, res.Elapsed)
	return res, nil
}

func threshold(f *frame.Frame, cfg Config) (float64, *frame.Mask, error) {
	if cfg.Level == nil {
		return frame.Threshold(f, cfg.Percentile)
	}
	if len(f.Positive()) == 0 {
		return 0, nil, astro.NewStageError(astro.StageThreshold, astro.ErrDegenerateThreshold)
	}
	return *cfg.Level, frame.MaskAbove(f, *cfg.Level), nil
}

func prefilter(s *aer.Stream, cfg Config) (*aer.Stream, int) {
	out := s
	if cfg.HotPixelSigma > 0 {
		var hot int
		out, hot = aer.FilterHotPixels(out, cfg.HotPixelSigma)
		logf("hot pixel filter: %d pixels removed", hot)
	}
	if cfg.Polarity != nil {
		out = aer.FilterPolarity(out, *cfg.Polarity)
	}
	if cfg.NeighbourWindow > 0 {
		out = aer.FilterNeighbourSupport(out, cfg.NeighbourWindow)
	}
	return out, s.Len() - out.Len()
}

// Hints are the optional solver hints.
type Hints struct {
	Scale    *platesolve.ScaleHint
	Position *platesolve.PositionHint
}

// SolveOutcome is a solver reply with centroids paired to catalogue stars.
type SolveOutcome struct {
	Solution *platesolve.Solution
	Matches  []platesolve.Match
}

// Solve hands the run's centroids to solver and, on a match, pairs them
// with the returned catalogue stars within tolerance.
func Solve(ctx context.Context, solver platesolve.Solver, res *Result, hints Hints, tolerance unit.Angle) (*SolveOutcome, error) {
	if solver == nil {
		return nil, errors.New("no plate solver configured")
	}
	points := platesolve.PointsFromCentroids(res.Centroids)
	req := platesolve.Request{
		Centroids: points,
		Width:     res.Extent.Cols,
		Height:    res.Extent.Rows,
		Scale:     hints.Scale,
		Position:  hints.Position,
	}
	sol, err := solver.Solve(ctx, req)
	if err != nil {
		return nil, astro.NewStageError(astro.StageSolve, err)
	}
	if sol == nil {
		return nil, astro.NewStageError(astro.StageSolve, fmt.Errorf("solver returned no solution: %w", platesolve.ErrNoWCS))
	}
	if sol.Matched {
		if sol.WCS == nil {
			return nil, astro.NewStageError(astro.StageSolve, platesolve.ErrNoWCS)
		}
		if err := sol.WCS.Validate(); err != nil {
			return nil, astro.NewStageError(astro.StageSolve, fmt.Errorf("%w: %v", platesolve.ErrNoWCS, err))
		}
	}
	out := &SolveOutcome{Solution: sol}
	if !sol.Matched {
		logf("plate solve: no match for %d centroids", len(points))
		return out, nil
	}
	out.Matches = platesolve.MatchStars(sol, points, tolerance)
	ra, dec := sol.WCS.PixelToSky(float64(res.Extent.Cols)/2, float64(res.Extent.Rows)/2)
	raStr, decStr := platesolve.FormatRADec(ra, dec)
	logf("plate solve: matched, centre %s %s, %.2f arcsec/px, %d of %d centroids paired",
		raStr, decStr, sol.WCS.PixelScale(), len(out.Matches), len(points))
	return out, nil
}
