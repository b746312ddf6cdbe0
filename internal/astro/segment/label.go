// Package segment owns Layer 4 (Segment): connected-component labelling of
// the star mask, projecting labels back onto events, and reducing each
// labelled region to a centroid.
package segment

import (
	"fmt"

	"github.com/banshee-data/starfield/internal/astro"
	"github.com/banshee-data/starfield/internal/astro/dewarp"
	"github.com/banshee-data/starfield/internal/astro/frame"
)

// LabelMap assigns each mask cell a region label. 0 is background; regions
// are numbered 1..MaxLabel with no gaps.
type LabelMap struct {
	Rows     int
	Cols     int
	Labels   []int
	MaxLabel int
}

// At returns the label at (row, col).
func (lm *LabelMap) At(row, col int) int { return lm.Labels[row*lm.Cols+col] }

// Extent returns the map size.
func (lm *LabelMap) Extent() dewarp.Extent { return dewarp.Extent{Rows: lm.Rows, Cols: lm.Cols} }

// Sizes returns the cell count of every label, indexed by label. Sizes()[0]
// is the background.
func (lm *LabelMap) Sizes() []int {
	sizes := make([]int, lm.MaxLabel+1)
	for _, l := range lm.Labels {
		sizes[l]++
	}
	return sizes
}

// unionFind is a disjoint-set forest over provisional labels.
type unionFind struct {
	parent []int
}

func (u *unionFind) add() int {
	u.parent = append(u.parent, len(u.parent))
	return len(u.parent) - 1
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	switch {
	case ra < rb:
		u.parent[rb] = ra
	case rb < ra:
		u.parent[ra] = rb
	}
}

// Label finds the 4-connected regions of set cells in m. The first pass
// scans in raster order, giving each cell its up or left neighbour's
// provisional label and recording equivalences where both are set. The
// second pass resolves every cell to its root and renumbers roots in
// order of first appearance.
func Label(m *frame.Mask) *LabelMap {
	lm := &LabelMap{Rows: m.Rows, Cols: m.Cols, Labels: make([]int, len(m.Cells))}
	uf := &unionFind{}
	uf.add() // 0 = background

	for row := 0; row < m.Rows; row++ {
		for col := 0; col < m.Cols; col++ {
			idx := row*m.Cols + col
			if !m.Cells[idx] {
				continue
			}
			up, left := 0, 0
			if row > 0 {
				up = lm.Labels[idx-m.Cols]
			}
			if col > 0 {
				left = lm.Labels[idx-1]
			}
			switch {
			case up == 0 && left == 0:
				lm.Labels[idx] = uf.add()
			case up != 0 && left != 0:
				lm.Labels[idx] = min(up, left)
				uf.union(up, left)
			default:
				lm.Labels[idx] = max(up, left)
			}
		}
	}

	final := make([]int, len(uf.parent))
	for idx, l := range lm.Labels {
		if l == 0 {
			continue
		}
		root := uf.find(l)
		if final[root] == 0 {
			lm.MaxLabel++
			final[root] = lm.MaxLabel
		}
		lm.Labels[idx] = final[root]
	}
	return lm
}

// LabelledEvent is a dewarped event tagged with the region it landed in.
type LabelledEvent struct {
	dewarp.Event
	Label int
}

// Project tags every warped event with the label of its cell, using the
// same y flip as accumulation. Events on background cells get label 0.
func Project(warped []dewarp.Event, lm *LabelMap) ([]LabelledEvent, error) {
	ext := lm.Extent()
	out := make([]LabelledEvent, len(warped))
	for i, e := range warped {
		idx, ok := frame.Cell(ext, e.X, e.Y)
		if !ok {
			return nil, astro.IndexError(astro.StageProject, i,
				fmt.Errorf("(%d,%d) outside %dx%d label map: %w", e.X, e.Y, ext.Cols, ext.Rows, astro.ErrOutOfBounds))
		}
		out[i] = LabelledEvent{Event: e, Label: lm.Labels[idx]}
	}
	return out, nil
}
