package platesolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/starfield/internal/httputil"
	"github.com/banshee-data/starfield/internal/monitoring"
)

// SolvePath is appended to the solver base URL.
const SolvePath = "/api/solve"

// DefaultMaxStars caps the centroids sent per request.
const DefaultMaxStars = 50

// ErrNoWCS means the solver claimed a match without a usable WCS.
var ErrNoWCS = errors.New("matched solution has no WCS")

var logf = monitoring.Component("Solver")

// HTTPSolver posts centroids to a JSON solve service.
type HTTPSolver struct {
	BaseURL  string
	Client   httputil.HTTPClient
	MaxStars int
}

// NewHTTPSolver returns a solver for baseURL whose requests time out
// after timeout.
func NewHTTPSolver(baseURL string, timeout time.Duration, maxStars int) *HTTPSolver {
	return &HTTPSolver{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Client:   httputil.NewStandardClient(&http.Client{Timeout: timeout}),
		MaxStars: maxStars,
	}
}

type wireRequest struct {
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Centroids [][2]float64  `json:"centroids"`
	Scale     *ScaleHint    `json:"scale,omitempty"`
	Position  *PositionHint `json:"position,omitempty"`
}

type wireResponse struct {
	Matched bool          `json:"matched"`
	WCS     *WCS          `json:"wcs,omitempty"`
	Stars   []CatalogStar `json:"stars,omitempty"`
}

// Solve sends the brightest MaxStars centroids and decodes the reply.
func (s *HTTPSolver) Solve(ctx context.Context, req Request) (*Solution, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	maxStars := s.MaxStars
	if maxStars == 0 {
		maxStars = DefaultMaxStars
	}
	points := Brightest(req.Centroids, maxStars)

	body := wireRequest{
		Width:     req.Width,
		Height:    req.Height,
		Centroids: make([][2]float64, len(points)),
		Scale:     req.Scale,
		Position:  req.Position,
	}
	for i, p := range points {
		body.Centroids[i] = [2]float64{p.X, p.Y}
	}

	var reply wireResponse
	url := s.BaseURL + SolvePath
	logf("sending %d of %d centroids to %s", len(points), len(req.Centroids), url)
	if err := httputil.PostJSON(ctx, s.Client, url, body, &reply); err != nil {
		return nil, fmt.Errorf("plate solve request failed: %w", err)
	}

	sol := &Solution{Matched: reply.Matched}
	if !reply.Matched {
		logf("no match for %d centroids", len(points))
		return sol, nil
	}
	if reply.WCS == nil {
		return nil, ErrNoWCS
	}
	if err := reply.WCS.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoWCS, err)
	}
	sol.WCS = reply.WCS
	sol.Stars = reply.Stars

	logf("matched: %.2f arcsec/px, %d catalogue stars", sol.WCS.PixelScale(), len(sol.Stars))
	if req.Scale != nil {
		lo, hi, err := req.Scale.ArcsecPerPixRange(req.Width)
		if err == nil && (sol.WCS.PixelScale() < lo || sol.WCS.PixelScale() > hi) {
			logf("warning: solved scale %.2f arcsec/px outside hint [%.2f, %.2f]", sol.WCS.PixelScale(), lo, hi)
		}
	}
	return sol, nil
}
