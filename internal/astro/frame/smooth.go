package frame

import "slices"

// Smoother is an optional denoising pass between accumulation and
// thresholding. Implementations return a new frame.
type Smoother interface {
	Apply(f *Frame) *Frame
	Name() string
}

// MedianFilter replaces each cell with the median of its
// (2*Radius+1)x(2*Radius+1) neighbourhood, replicating edge cells beyond
// the border. It removes isolated single-pixel noise and thin trails.
type MedianFilter struct {
	Radius int
}

func (m MedianFilter) Name() string { return "median" }

func (m MedianFilter) Apply(f *Frame) *Frame {
	if m.Radius <= 0 {
		return f.Clone()
	}
	out := &Frame{Rows: f.Rows, Cols: f.Cols, Counts: make([]float64, len(f.Counts))}
	side := 2*m.Radius + 1
	window := make([]float64, 0, side*side)

	for row := 0; row < f.Rows; row++ {
		for col := 0; col < f.Cols; col++ {
			window = window[:0]
			for dr := -m.Radius; dr <= m.Radius; dr++ {
				r := min(max(row+dr, 0), f.Rows-1)
				for dc := -m.Radius; dc <= m.Radius; dc++ {
					c := min(max(col+dc, 0), f.Cols-1)
					window = append(window, f.Counts[r*f.Cols+c])
				}
			}
			slices.Sort(window)
			out.Counts[row*f.Cols+col] = window[len(window)/2]
		}
	}
	return out
}
