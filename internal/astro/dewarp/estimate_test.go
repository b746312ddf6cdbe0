package dewarp

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/starfield/internal/aer"
	"github.com/banshee-data/starfield/internal/astro"
)

func TestEstimateVelocity(t *testing.T) {
	tests := []struct {
		name   string
		vx, vy float64
	}{
		{"default drift", 0.4, -0.15},
		{"static field", 0, 0},
		{"fast negative", -0.8, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := aer.DefaultSynthOptions()
			opts.VX, opts.VY = tt.vx, tt.vy
			s, _, err := aer.Synthesize(opts)
			if err != nil {
				t.Fatalf("Synthesize: %v", err)
			}

			v, err := EstimateVelocity(s, EstimateOptions{})
			if err != nil {
				t.Fatalf("EstimateVelocity: %v", err)
			}
			const tol = 0.06
			if math.Abs(v.VX-tt.vx) > tol || math.Abs(v.VY-tt.vy) > tol {
				t.Errorf("estimated %+v, want (%.2f, %.2f) within %.2f", v, tt.vx, tt.vy, tol)
			}
		})
	}
}

func TestEstimateVelocityErrors(t *testing.T) {
	_, err := EstimateVelocity(&aer.Stream{Width: 4, Height: 4}, EstimateOptions{})
	if !errors.Is(err, astro.ErrEmptyInput) {
		t.Errorf("empty stream: got %v, want ErrEmptyInput", err)
	}

	instant := &aer.Stream{Width: 4, Height: 4, Events: []aer.Event{{T: 9, X: 1, Y: 1}, {T: 9, X: 2, Y: 2}}}
	_, err = EstimateVelocity(instant, EstimateOptions{})
	if !errors.Is(err, ErrNoDriftEstimate) {
		t.Errorf("zero-duration stream: got %v, want ErrNoDriftEstimate", err)
	}

	// Lone events at each end never reach the minimum peak weight.
	sparse := &aer.Stream{Width: 32, Height: 32, Events: []aer.Event{{T: 0, X: 1, Y: 1}, {T: 1_000_000, X: 30, Y: 30}}}
	_, err = EstimateVelocity(sparse, EstimateOptions{})
	if !errors.Is(err, ErrNoDriftEstimate) {
		t.Errorf("sparse stream: got %v, want ErrNoDriftEstimate", err)
	}
}

func TestConsensusDisplacement(t *testing.T) {
	a := []peak{{x: 10, y: 10}, {x: 50, y: 20}, {x: 30, y: 70}}
	b := []peak{{x: 13, y: 9}, {x: 53.2, y: 19}, {x: 33, y: 68.8}}
	dx, dy, ok := consensusDisplacement(a, b, 1.5)
	if !ok {
		t.Fatal("expected a consensus")
	}
	if math.Abs(dx-3.0667) > 1e-3 || math.Abs(dy+1.0667) > 1e-3 {
		t.Errorf("displacement = (%.4f, %.4f), want (3.0667, -1.0667)", dx, dy)
	}
}
