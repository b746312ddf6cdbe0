// Package frame owns Layer 3 (Frame): binning dewarped events into a 2D
// histogram, optional smoothing, and the percentile threshold that turns
// the histogram into a binary star mask.
//
// Frames are row-major with row 0 at the top, so event y maps to row
// Rows-1-y.
package frame

import (
	"fmt"

	"github.com/banshee-data/starfield/internal/astro"
	"github.com/banshee-data/starfield/internal/astro/dewarp"
)

// Frame is an accumulated event-count image.
type Frame struct {
	Rows   int
	Cols   int
	Counts []float64
}

// New returns an all-zero frame of the given size.
func New(ext dewarp.Extent) *Frame {
	return &Frame{Rows: ext.Rows, Cols: ext.Cols, Counts: make([]float64, ext.Cells())}
}

// Extent returns the frame size.
func (f *Frame) Extent() dewarp.Extent { return dewarp.Extent{Rows: f.Rows, Cols: f.Cols} }

// At returns the count at (row, col).
func (f *Frame) At(row, col int) float64 { return f.Counts[row*f.Cols+col] }

// Total returns the sum of all counts.
func (f *Frame) Total() float64 {
	var sum float64
	for _, c := range f.Counts {
		sum += c
	}
	return sum
}

// Positive returns the strictly-positive counts in row-major order.
func (f *Frame) Positive() []float64 {
	var out []float64
	for _, c := range f.Counts {
		if c > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	c := &Frame{Rows: f.Rows, Cols: f.Cols, Counts: make([]float64, len(f.Counts))}
	copy(c.Counts, f.Counts)
	return c
}

// Cell maps event coordinates to a row-major cell index, flipping y.
// ok is false when (x, y) lies outside ext.
func Cell(ext dewarp.Extent, x, y int) (idx int, ok bool) {
	if x < 0 || y < 0 || x >= ext.Cols || y >= ext.Rows {
		return 0, false
	}
	return (ext.Rows-1-y)*ext.Cols + x, true
}

// Accumulate counts warped events into a frame of size ext. An event that
// falls outside ext is a sizing error and fails the whole accumulation, as
// does an ext over dewarp.MaxFrameCells.
func Accumulate(warped []dewarp.Event, ext dewarp.Extent) (*Frame, error) {
	if len(warped) == 0 {
		return nil, astro.NewStageError(astro.StageAccumulate, astro.ErrEmptyInput)
	}
	if err := ext.Check(); err != nil {
		return nil, astro.NewStageError(astro.StageAccumulate, err)
	}
	f := New(ext)
	for i, e := range warped {
		idx, ok := Cell(ext, e.X, e.Y)
		if !ok {
			return nil, astro.IndexError(astro.StageAccumulate, i,
				fmt.Errorf("(%d,%d) outside %dx%d frame: %w", e.X, e.Y, ext.Cols, ext.Rows, astro.ErrOutOfBounds))
		}
		f.Counts[idx]++
	}
	return f, nil
}
