package frame

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/banshee-data/starfield/internal/astro"
)

// DefaultPercentile is the threshold percentile over positive cells.
const DefaultPercentile = 99.5

// ErrEmptySample is returned by Percentile for an empty input.
var ErrEmptySample = errors.New("percentile of empty sample")

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between the closest ranks, rank = p/100*(n-1). values is
// not modified.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptySample
	}
	if p < 0 || p > 100 || math.IsNaN(p) {
		return 0, fmt.Errorf("percentile %v outside [0, 100]", p)
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := min(lo+1, len(sorted)-1)
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo]), nil
}

// Mask marks the cells that belong to candidate stars.
type Mask struct {
	Rows  int
	Cols  int
	Cells []bool
}

// At reports whether (row, col) is set.
func (m *Mask) At(row, col int) bool { return m.Cells[row*m.Cols+col] }

// Count returns the number of set cells.
func (m *Mask) Count() int {
	n := 0
	for _, c := range m.Cells {
		if c {
			n++
		}
	}
	return n
}

// Threshold computes the given percentile over the frame's strictly
// positive cells and masks every cell above it. Zero cells are left out
// of the percentile so the dark background cannot dominate it.
func Threshold(f *Frame, percentile float64) (float64, *Mask, error) {
	positive := f.Positive()
	if len(positive) == 0 {
		return 0, nil, astro.NewStageError(astro.StageThreshold, astro.ErrDegenerateThreshold)
	}
	level, err := Percentile(positive, percentile)
	if err != nil {
		return 0, nil, astro.NewStageError(astro.StageThreshold, err)
	}
	return level, MaskAbove(f, level), nil
}

// MaskAbove masks every cell strictly greater than level.
func MaskAbove(f *Frame, level float64) *Mask {
	m := &Mask{Rows: f.Rows, Cols: f.Cols, Cells: make([]bool, len(f.Counts))}
	for i, c := range f.Counts {
		m.Cells[i] = c > level
	}
	return m
}
