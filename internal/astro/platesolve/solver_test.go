package platesolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/starfield/internal/astro/segment"
)

func TestPointsFromCentroids(t *testing.T) {
	t.Parallel()

	cs := []segment.Centroid{
		{Label: 1, X: 4, Y: 5, Events: 3},
		{Label: 2, X: 10.5, Y: 1, Events: 9},
	}
	got := PointsFromCentroids(cs)
	require.Len(t, got, 2)
	assert.Equal(t, Point{Label: 2, X: 10.5, Y: 1, Events: 9}, got[1])
}

func TestBrightest(t *testing.T) {
	t.Parallel()

	points := []Point{
		{Label: 1, Events: 5},
		{Label: 2, Events: 20},
		{Label: 3, Events: 5},
		{Label: 4, Events: 11},
	}

	labels := func(ps []Point) []int {
		out := make([]int, len(ps))
		for i, p := range ps {
			out[i] = p.Label
		}
		return out
	}

	assert.Equal(t, []int{2, 4, 1, 3}, labels(Brightest(points, 0)))
	assert.Equal(t, []int{2, 4}, labels(Brightest(points, 2)))
	assert.Equal(t, []int{2, 4, 1, 3}, labels(Brightest(points, 10)))
	assert.Equal(t, 1, points[0].Label, "input must not be reordered")
}

func TestRequestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"minimal", Request{Width: 320, Height: 240}, false},
		{"zero width", Request{Width: 0, Height: 240}, true},
		{"good scale", Request{Width: 320, Height: 240, Scale: &ScaleHint{Lower: 10, Upper: 40, Units: "arcsecperpix"}}, false},
		{"bad units", Request{Width: 320, Height: 240, Scale: &ScaleHint{Lower: 10, Upper: 40, Units: "mm"}}, true},
		{"inverted scale", Request{Width: 320, Height: 240, Scale: &ScaleHint{Lower: 40, Upper: 10, Units: "degwidth"}}, true},
		{"good position", Request{Width: 320, Height: 240, Position: &PositionHint{RADeg: 83.6, DecDeg: 22, RadiusDeg: 5}}, false},
		{"dec out of range", Request{Width: 320, Height: 240, Position: &PositionHint{DecDeg: 95}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScaleHintRange(t *testing.T) {
	t.Parallel()

	h := &ScaleHint{Lower: 1, Upper: 2, Units: "degwidth"}
	lo, hi, err := h.ArcsecPerPixRange(360)
	require.NoError(t, err)
	assert.InDelta(t, 10, lo, 1e-9)
	assert.InDelta(t, 20, hi, 1e-9)
}

func TestCatalogStarMagnitude(t *testing.T) {
	t.Parallel()

	m, ok := CatalogStar{Metadata: map[string]float64{"phot_g_mean_mag": 8.2}}.Magnitude()
	assert.True(t, ok)
	assert.Equal(t, 8.2, m)

	_, ok = CatalogStar{}.Magnitude()
	assert.False(t, ok)
}

func TestSolverFunc(t *testing.T) {
	t.Parallel()

	var s Solver = SolverFunc(func(ctx context.Context, req Request) (*Solution, error) {
		return &Solution{Matched: len(req.Centroids) > 0}, nil
	})
	sol, err := s.Solve(context.Background(), Request{Centroids: []Point{{Label: 1}}})
	require.NoError(t, err)
	assert.True(t, sol.Matched)
}
