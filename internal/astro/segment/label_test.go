package segment

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/banshee-data/starfield/internal/astro"
	"github.com/banshee-data/starfield/internal/astro/dewarp"
	"github.com/banshee-data/starfield/internal/astro/frame"
)

// maskFromRows builds a mask from strings, '#' for set cells.
func maskFromRows(rows ...string) *frame.Mask {
	m := &frame.Mask{Rows: len(rows), Cols: len(rows[0])}
	for _, r := range rows {
		for _, ch := range r {
			m.Cells = append(m.Cells, ch == '#')
		}
	}
	return m
}

func TestLabelFourConnectivity(t *testing.T) {
	// Diagonal neighbours are separate regions.
	lm := Label(maskFromRows(
		"#.",
		".#",
	))
	if lm.MaxLabel != 2 {
		t.Fatalf("MaxLabel = %d, want 2", lm.MaxLabel)
	}
	if lm.At(0, 0) == lm.At(1, 1) {
		t.Error("diagonal cells share a label")
	}
}

func TestLabelMergesUShape(t *testing.T) {
	// The two arms get different provisional labels until the base joins them.
	lm := Label(maskFromRows(
		"#...#",
		"#...#",
		"#####",
	))
	if lm.MaxLabel != 1 {
		t.Fatalf("MaxLabel = %d, want 1", lm.MaxLabel)
	}
	if sizes := lm.Sizes(); sizes[1] != 9 || sizes[0] != 6 {
		t.Errorf("Sizes() = %v, want [6 9]", sizes)
	}
}

func TestLabelSeparateRegions(t *testing.T) {
	lm := Label(maskFromRows(
		"##..#",
		"##..#",
		".....",
		"..#..",
	))
	if lm.MaxLabel != 3 {
		t.Fatalf("MaxLabel = %d, want 3", lm.MaxLabel)
	}
	// Membership, not numbering.
	if lm.At(0, 0) != lm.At(1, 1) {
		t.Error("square split across labels")
	}
	if lm.At(0, 4) != lm.At(1, 4) {
		t.Error("bar split across labels")
	}
	seen := map[int]bool{lm.At(0, 0): true, lm.At(0, 4): true, lm.At(3, 2): true}
	if len(seen) != 3 {
		t.Errorf("regions share labels: %v", seen)
	}
}

func TestLabelEmptyAndFullMasks(t *testing.T) {
	empty := Label(maskFromRows("...", "..."))
	if empty.MaxLabel != 0 {
		t.Errorf("empty mask MaxLabel = %d", empty.MaxLabel)
	}
	full := Label(maskFromRows("###", "###"))
	if full.MaxLabel != 1 || full.Sizes()[0] != 0 {
		t.Errorf("full mask: MaxLabel=%d sizes=%v", full.MaxLabel, full.Sizes())
	}
}

// floodCount counts 4-connected components independently of Label.
func floodCount(m *frame.Mask) int {
	seen := make([]bool, len(m.Cells))
	count := 0
	for start := range m.Cells {
		if !m.Cells[start] || seen[start] {
			continue
		}
		count++
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			r, c := idx/m.Cols, idx%m.Cols
			for _, d := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nr, nc := r+d[0], c+d[1]
				if nr < 0 || nc < 0 || nr >= m.Rows || nc >= m.Cols {
					continue
				}
				n := nr*m.Cols + nc
				if m.Cells[n] && !seen[n] {
					seen[n] = true
					stack = append(stack, n)
				}
			}
		}
	}
	return count
}

func TestLabelPartitionsMask(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for trial := 0; trial < 50; trial++ {
		m := &frame.Mask{Rows: 1 + rng.IntN(30), Cols: 1 + rng.IntN(30)}
		density := rng.Float64()
		m.Cells = make([]bool, m.Rows*m.Cols)
		for i := range m.Cells {
			m.Cells[i] = rng.Float64() < density
		}

		lm := Label(m)
		sizes := lm.Sizes()

		total := 0
		for l := 1; l <= lm.MaxLabel; l++ {
			if sizes[l] == 0 {
				t.Fatalf("trial %d: label %d empty; labels must be contiguous", trial, l)
			}
			total += sizes[l]
		}
		if total != m.Count() {
			t.Fatalf("trial %d: region sizes sum to %d, mask has %d cells", trial, total, m.Count())
		}
		if (sizes[0] > 0) != (m.Count() < len(m.Cells)) {
			t.Fatalf("trial %d: background label present=%v, unset cells=%d", trial, sizes[0] > 0, len(m.Cells)-m.Count())
		}
		if want := floodCount(m); lm.MaxLabel != want {
			t.Fatalf("trial %d: MaxLabel = %d, flood fill found %d", trial, lm.MaxLabel, want)
		}
		for idx, set := range m.Cells {
			if set != (lm.Labels[idx] > 0) {
				t.Fatalf("trial %d: cell %d set=%v label=%d", trial, idx, set, lm.Labels[idx])
			}
			r, c := idx/m.Cols, idx%m.Cols
			if set && c+1 < m.Cols && m.Cells[idx+1] && lm.Labels[idx+1] != lm.Labels[idx] {
				t.Fatalf("trial %d: horizontal neighbours at (%d,%d) differ", trial, r, c)
			}
			if set && r+1 < m.Rows && m.Cells[idx+m.Cols] && lm.Labels[idx+m.Cols] != lm.Labels[idx] {
				t.Fatalf("trial %d: vertical neighbours at (%d,%d) differ", trial, r, c)
			}
		}
	}
}

func TestProject(t *testing.T) {
	lm := Label(maskFromRows(
		"....",
		".#..",
		"....",
	))
	// Row 1 of a 3-row map is y = 1.
	warped := []dewarp.Event{{X: 1, Y: 1}, {X: 0, Y: 0}, {X: 1, Y: 2}}
	got, err := Project(warped, lm)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	want := []int{1, 0, 0}
	for i, e := range got {
		if e.Label != want[i] {
			t.Errorf("event %d label = %d, want %d", i, e.Label, want[i])
		}
		if e.Event != warped[i] {
			t.Errorf("event %d changed: %+v", i, e.Event)
		}
	}
}

func TestProjectOutOfBounds(t *testing.T) {
	lm := Label(maskFromRows("..", ".."))
	_, err := Project([]dewarp.Event{{X: 0, Y: 0}, {X: 0, Y: 0}, {X: 2, Y: 0}}, lm)
	if !errors.Is(err, astro.ErrOutOfBounds) {
		t.Fatalf("Project() = %v, want ErrOutOfBounds", err)
	}
	var se *astro.StageError
	if !errors.As(err, &se) || se.Index != 2 || se.Stage != astro.StageProject {
		t.Errorf("want project StageError at index 2, got %#v", err)
	}
}
