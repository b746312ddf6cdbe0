package platesolve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/starfield/internal/httputil"
)

const matchedReply = `{
  "matched": true,
  "wcs": {"crpix": [160, 120], "crval": [83.633, 22.0145], "cd": [[-0.001, 0], [0, 0.001]]},
  "stars": [{"ra_deg": 83.633, "dec_deg": 22.0145, "metadata": {"mag": 8.4}}]
}`

func newMockSolver(maxStars int) (*HTTPSolver, *httputil.MockHTTPClient) {
	mock := httputil.NewMockHTTPClient()
	return &HTTPSolver{BaseURL: "http://solver.local", Client: mock, MaxStars: maxStars}, mock
}

func solveRequest() Request {
	return Request{
		Width:  320,
		Height: 240,
		Centroids: []Point{
			{Label: 1, X: 10, Y: 10, Events: 4},
			{Label: 2, X: 50, Y: 60, Events: 40},
			{Label: 3, X: 100, Y: 30, Events: 12},
		},
		Scale: &ScaleHint{Lower: 3, Upper: 4, Units: "arcsecperpix"},
	}
}

func TestHTTPSolverMatched(t *testing.T) {
	solver, mock := newMockSolver(2)
	mock.AddResponse(http.StatusOK, matchedReply)

	sol, err := solver.Solve(context.Background(), solveRequest())
	require.NoError(t, err)
	require.True(t, sol.Matched)
	require.NotNil(t, sol.WCS)
	assert.InDelta(t, 3.6, sol.WCS.PixelScale(), 1e-9)
	require.Len(t, sol.Stars, 1)
	mag, ok := sol.Stars[0].Magnitude()
	assert.True(t, ok)
	assert.Equal(t, 8.4, mag)

	require.Equal(t, 1, mock.RequestCount())
	req := mock.GetRequest(0)
	assert.Equal(t, "http://solver.local/api/solve", req.URL.String())
	assert.Equal(t, http.MethodPost, req.Method)

	var sent wireRequest
	require.NoError(t, json.Unmarshal(mock.RequestBody(0), &sent))
	assert.Equal(t, 320, sent.Width)
	assert.Equal(t, [][2]float64{{50, 60}, {100, 30}}, sent.Centroids, "brightest first, capped")
	require.NotNil(t, sent.Scale)
	assert.Equal(t, "arcsecperpix", sent.Scale.Units)
	assert.Nil(t, sent.Position)
}

func TestHTTPSolverDefaultCap(t *testing.T) {
	solver, mock := newMockSolver(0)
	mock.AddResponse(http.StatusOK, `{"matched": false}`)

	req := Request{Width: 100, Height: 100}
	for i := 0; i < DefaultMaxStars+10; i++ {
		req.Centroids = append(req.Centroids, Point{Label: i + 1, X: float64(i), Y: 1, Events: i})
	}
	_, err := solver.Solve(context.Background(), req)
	require.NoError(t, err)

	var sent wireRequest
	require.NoError(t, json.Unmarshal(mock.RequestBody(0), &sent))
	assert.Len(t, sent.Centroids, DefaultMaxStars)
}

func TestHTTPSolverUnmatched(t *testing.T) {
	solver, mock := newMockSolver(10)
	mock.AddResponse(http.StatusOK, `{"matched": false}`)

	sol, err := solver.Solve(context.Background(), solveRequest())
	require.NoError(t, err)
	assert.False(t, sol.Matched)
	assert.Nil(t, sol.WCS)
	assert.Empty(t, sol.Stars)
}

func TestHTTPSolverMissingWCS(t *testing.T) {
	solver, mock := newMockSolver(10)
	mock.AddResponse(http.StatusOK, `{"matched": true}`)

	_, err := solver.Solve(context.Background(), solveRequest())
	assert.ErrorIs(t, err, ErrNoWCS)
}

func TestHTTPSolverSingularWCS(t *testing.T) {
	solver, mock := newMockSolver(10)
	mock.AddResponse(http.StatusOK, `{"matched": true, "wcs": {"crpix": [0, 0], "crval": [0, 0], "cd": [[0, 0], [0, 0]]}}`)

	_, err := solver.Solve(context.Background(), solveRequest())
	assert.ErrorIs(t, err, ErrNoWCS)
}

func TestHTTPSolverServerError(t *testing.T) {
	solver, mock := newMockSolver(10)
	mock.AddResponse(http.StatusBadGateway, "upstream down")

	_, err := solver.Solve(context.Background(), solveRequest())
	var se *httputil.StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestHTTPSolverInvalidRequest(t *testing.T) {
	solver, mock := newMockSolver(10)

	_, err := solver.Solve(context.Background(), Request{Width: -1, Height: 10})
	assert.Error(t, err)
	assert.Zero(t, mock.RequestCount(), "invalid requests must not be sent")
}

func TestNewHTTPSolver(t *testing.T) {
	s := NewHTTPSolver("http://localhost:8090/", 5*time.Second, 25)
	assert.Equal(t, "http://localhost:8090", s.BaseURL)
	assert.Equal(t, 25, s.MaxStars)
	std, ok := s.Client.(*httputil.StandardClient)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, std.Timeout)
}
