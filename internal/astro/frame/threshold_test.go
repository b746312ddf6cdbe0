package frame

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/starfield/internal/astro"
	"github.com/banshee-data/starfield/internal/astro/dewarp"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{"median of even", []float64{4, 1, 3, 2}, 50, 2.5},
		{"minimum", []float64{4, 1, 3, 2}, 0, 1},
		{"maximum", []float64{4, 1, 3, 2}, 100, 4},
		{"single value", []float64{5}, 99.5, 5},
		{"interpolated tail", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 99.5, 9.955},
		{"ties", []float64{1, 1, 1, 1, 9}, 50, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Percentile(tt.values, tt.p)
			if err != nil {
				t.Fatalf("Percentile: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.values, tt.p, got, tt.want)
			}
		})
	}
}

func TestPercentileErrors(t *testing.T) {
	if _, err := Percentile(nil, 50); !errors.Is(err, ErrEmptySample) {
		t.Errorf("empty: got %v, want ErrEmptySample", err)
	}
	for _, p := range []float64{-1, 100.01, math.NaN()} {
		if _, err := Percentile([]float64{1, 2}, p); err == nil {
			t.Errorf("Percentile(p=%v) should fail", p)
		}
	}
}

func TestPercentileDoesNotSortInput(t *testing.T) {
	values := []float64{3, 1, 2}
	if _, err := Percentile(values, 50); err != nil {
		t.Fatal(err)
	}
	if values[0] != 3 || values[1] != 1 || values[2] != 2 {
		t.Errorf("input reordered: %v", values)
	}
}

func TestThreshold(t *testing.T) {
	f := &Frame{Rows: 2, Cols: 5, Counts: []float64{
		0, 1, 1, 1, 0,
		0, 1, 9, 1, 0,
	}}
	// Positive cells: six values [1 1 1 1 1 9]; the 80th percentile sits at
	// rank 4 = 1, so only the 9 is above it.
	level, m, err := Threshold(f, 80)
	if err != nil {
		t.Fatalf("Threshold: %v", err)
	}
	if level != 1 {
		t.Errorf("level = %v, want 1", level)
	}
	if m.Count() != 1 || !m.At(1, 2) {
		t.Errorf("mask = %v, want only (1,2)", m.Cells)
	}
}

func TestThresholdDegenerate(t *testing.T) {
	f := New(dewarp.Extent{Rows: 3, Cols: 3})
	_, _, err := Threshold(f, DefaultPercentile)
	if !errors.Is(err, astro.ErrDegenerateThreshold) {
		t.Fatalf("Threshold(all zero) = %v, want ErrDegenerateThreshold", err)
	}
	var se *astro.StageError
	if !errors.As(err, &se) || se.Stage != astro.StageThreshold {
		t.Errorf("want StageError for threshold stage, got %#v", err)
	}
}

func TestMaskAboveScenario(t *testing.T) {
	f := &Frame{Rows: 10, Cols: 10, Counts: make([]float64, 100)}
	f.Counts[4*10+5] = 2
	f.Counts[4*10+6] = 1
	m := MaskAbove(f, 0.5)
	if m.Count() != 2 || !m.At(4, 5) || !m.At(4, 6) {
		t.Errorf("mask below 1 should hold both cells, got %d set", m.Count())
	}
}
