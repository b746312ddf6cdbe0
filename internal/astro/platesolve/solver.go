// Package platesolve owns Layer 5 (Plate solve): the boundary to an external
// astrometric solver. It defines what the pipeline hands over (centroids
// plus optional scale and position hints) and what comes back (a match
// flag, a WCS and catalogue stars), a JSON-over-HTTP client for a solve
// service, the TAN projection the WCS describes, and matching of
// centroids to catalogue stars.
package platesolve

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/banshee-data/starfield/internal/astro/segment"
	"github.com/banshee-data/starfield/internal/units"
)

// Point is one star position handed to the solver.
type Point struct {
	Label  int
	X      float64
	Y      float64
	Events int
}

// PointsFromCentroids converts centroids, keeping label order.
func PointsFromCentroids(cs []segment.Centroid) []Point {
	out := make([]Point, len(cs))
	for i, c := range cs {
		out[i] = Point{Label: c.Label, X: c.X, Y: c.Y, Events: c.Events}
	}
	return out
}

// Brightest returns up to n points ordered by event count, highest first.
// Equal counts keep their input order. n <= 0 keeps every point.
func Brightest(points []Point, n int) []Point {
	out := slices.Clone(points)
	slices.SortStableFunc(out, func(a, b Point) int { return cmp.Compare(b.Events, a.Events) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ScaleHint bounds the image scale. Units is one of the units package
// scale units.
type ScaleHint struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Units string  `json:"units"`
}

// ArcsecPerPixRange converts the hint to arcseconds per pixel for an
// image width px wide.
func (h *ScaleHint) ArcsecPerPixRange(width int) (lo, hi float64, err error) {
	if lo, err = units.ScaleToArcsecPerPix(h.Lower, h.Units, width); err != nil {
		return 0, 0, err
	}
	if hi, err = units.ScaleToArcsecPerPix(h.Upper, h.Units, width); err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

// PositionHint centres the sky search.
type PositionHint struct {
	RADeg     float64 `json:"ra_deg"`
	DecDeg    float64 `json:"dec_deg"`
	RadiusDeg float64 `json:"radius_deg"`
}

// Request is everything a solver receives. Scale and Position are optional.
type Request struct {
	Centroids []Point
	Width     int
	Height    int
	Scale     *ScaleHint
	Position  *PositionHint
}

// CatalogStar is a reference star returned with a solution.
type CatalogStar struct {
	RADeg    float64            `json:"ra_deg"`
	DecDeg   float64            `json:"dec_deg"`
	Metadata map[string]float64 `json:"metadata,omitempty"`
}

// Magnitude returns the catalogue magnitude when the solver supplied one.
func (s CatalogStar) Magnitude() (float64, bool) {
	for _, key := range []string{"mag", "magnitude", "phot_g_mean_mag"} {
		if m, ok := s.Metadata[key]; ok {
			return m, true
		}
	}
	return 0, false
}

// Solution is a solver's answer. WCS and Stars are set only when Matched.
type Solution struct {
	Matched bool
	WCS     *WCS
	Stars   []CatalogStar
}

// Solver matches centroids against a star catalogue.
type Solver interface {
	Solve(ctx context.Context, req Request) (*Solution, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, req Request) (*Solution, error)

// Solve calls f.
func (f SolverFunc) Solve(ctx context.Context, req Request) (*Solution, error) {
	return f(ctx, req)
}

// Validate checks that a request can be sent.
func (r Request) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", r.Width, r.Height)
	}
	if r.Scale != nil {
		if !units.IsValidScale(r.Scale.Units) {
			return fmt.Errorf("invalid scale units %q: must be one of %s", r.Scale.Units, units.GetValidScaleUnitsString())
		}
		if r.Scale.Lower <= 0 || r.Scale.Upper < r.Scale.Lower {
			return fmt.Errorf("invalid scale range [%g, %g]", r.Scale.Lower, r.Scale.Upper)
		}
	}
	if r.Position != nil && (r.Position.DecDeg < -90 || r.Position.DecDeg > 90 || r.Position.RadiusDeg < 0) {
		return fmt.Errorf("invalid position hint %+v", *r.Position)
	}
	return nil
}
