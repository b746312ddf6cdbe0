package frame

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/banshee-data/starfield/internal/astro"
	"github.com/banshee-data/starfield/internal/astro/dewarp"
)

func TestAccumulateScenario(t *testing.T) {
	warped := []dewarp.Event{
		{T: 0, X: 5, Y: 5, Polarity: true},
		{T: 10, X: 5, Y: 5, Polarity: true},
		{T: 1_000_000, X: 6, Y: 5},
	}
	ext := dewarp.Extent{Rows: 10, Cols: 10}
	f, err := Accumulate(warped, ext)
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	// y=5 lands on row 10-1-5 = 4.
	if got := f.At(4, 5); got != 2 {
		t.Errorf("cell (4,5) = %v, want 2", got)
	}
	if got := f.At(4, 6); got != 1 {
		t.Errorf("cell (4,6) = %v, want 1", got)
	}
	if got := f.Total(); got != 3 {
		t.Errorf("Total() = %v, want 3", got)
	}
	if got := len(f.Positive()); got != 2 {
		t.Errorf("%d positive cells, want 2", got)
	}
}

func TestAccumulateTotalMatchesEventCount(t *testing.T) {
	rng := rand.New(rand.NewPCG(21, 22))
	ext := dewarp.Extent{Rows: 37, Cols: 53}
	warped := make([]dewarp.Event, 10_000)
	for i := range warped {
		warped[i] = dewarp.Event{T: uint64(i), X: rng.IntN(ext.Cols), Y: rng.IntN(ext.Rows)}
	}
	f, err := Accumulate(warped, ext)
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if f.Total() != float64(len(warped)) {
		t.Errorf("Total() = %v, want %d", f.Total(), len(warped))
	}
}

func TestAccumulateOutOfBounds(t *testing.T) {
	ext := dewarp.Extent{Rows: 4, Cols: 4}
	tests := []struct {
		name  string
		event dewarp.Event
	}{
		{"x too large", dewarp.Event{X: 4, Y: 0}},
		{"y too large", dewarp.Event{X: 0, Y: 4}},
		{"negative x", dewarp.Event{X: -1, Y: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warped := []dewarp.Event{{X: 1, Y: 1}, tt.event}
			_, err := Accumulate(warped, ext)
			if !errors.Is(err, astro.ErrOutOfBounds) {
				t.Fatalf("Accumulate() = %v, want ErrOutOfBounds", err)
			}
			var se *astro.StageError
			if !errors.As(err, &se) || se.Index != 1 || se.Stage != astro.StageAccumulate {
				t.Errorf("want StageError at index 1, got %#v", err)
			}
		})
	}
}

func TestAccumulateEmpty(t *testing.T) {
	_, err := Accumulate(nil, dewarp.Extent{Rows: 2, Cols: 2})
	if !errors.Is(err, astro.ErrEmptyInput) {
		t.Errorf("Accumulate(nil) = %v, want ErrEmptyInput", err)
	}
}

func TestAccumulateRejectsOversizedGrid(t *testing.T) {
	warped := []dewarp.Event{{X: 0, Y: 0}}
	tests := []struct {
		name   string
		ext    dewarp.Extent
		target error
	}{
		{"over limit", dewarp.Extent{Rows: dewarp.MaxFrameCells, Cols: 2}, astro.ErrFrameTooLarge},
		{"overflowing", dewarp.Extent{Rows: 1 << 40, Cols: 1 << 40}, astro.ErrFrameTooLarge},
		{"negative", dewarp.Extent{Rows: -5, Cols: 10}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Accumulate(warped, tt.ext)
			if err == nil || f != nil {
				t.Fatalf("Accumulate(%+v) = %v, %v; want error", tt.ext, f, err)
			}
			var se *astro.StageError
			if !errors.As(err, &se) || se.Stage != astro.StageAccumulate {
				t.Errorf("error %v is not an accumulate StageError", err)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("error %v, want %v", err, tt.target)
			}
		})
	}
}

func TestCellFlipsY(t *testing.T) {
	ext := dewarp.Extent{Rows: 3, Cols: 5}
	tests := []struct {
		x, y    int
		wantIdx int
		wantOK  bool
	}{
		{0, 0, 10, true}, // bottom-left is the last row
		{4, 2, 4, true},  // top-right is the first row
		{2, 1, 7, true},
		{5, 0, 0, false},
		{0, 3, 0, false},
		{0, -1, 0, false},
	}
	for _, tt := range tests {
		idx, ok := Cell(ext, tt.x, tt.y)
		if idx != tt.wantIdx || ok != tt.wantOK {
			t.Errorf("Cell(%d,%d) = %d,%v; want %d,%v", tt.x, tt.y, idx, ok, tt.wantIdx, tt.wantOK)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	f := New(dewarp.Extent{Rows: 2, Cols: 2})
	c := f.Clone()
	c.Counts[0] = 7
	if f.Counts[0] != 0 {
		t.Error("Clone shares storage with the original")
	}
	if c.Extent() != f.Extent() {
		t.Errorf("Extent mismatch: %+v vs %+v", c.Extent(), f.Extent())
	}
}
