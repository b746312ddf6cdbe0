package segment

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/starfield/internal/astro"
)

// Centroid is the mean event position of one labelled region.
type Centroid struct {
	Label   int
	X       float64
	Y       float64
	Events  int
	SpreadX float64 // Sample standard deviation of x, 0 for a single event
	SpreadY float64
}

// Centroids averages event positions per label for labels 1..maxLabel, in
// label order. Background events are ignored. A label with no events fails
// the whole extraction; that happens when smoothing masks cells that
// received no events.
func Centroids(events []LabelledEvent, maxLabel int) ([]Centroid, error) {
	if maxLabel <= 0 {
		return []Centroid{}, nil
	}
	xs := make([][]float64, maxLabel+1)
	ys := make([][]float64, maxLabel+1)
	for i, e := range events {
		if e.Label < 0 || e.Label > maxLabel {
			return nil, astro.IndexError(astro.StageCentroid, i, fmt.Errorf("label %d outside 0..%d", e.Label, maxLabel))
		}
		if e.Label == 0 {
			continue
		}
		xs[e.Label] = append(xs[e.Label], float64(e.X))
		ys[e.Label] = append(ys[e.Label], float64(e.Y))
	}

	out := make([]Centroid, 0, maxLabel)
	for label := 1; label <= maxLabel; label++ {
		n := len(xs[label])
		if n == 0 {
			return nil, astro.LabelError(astro.StageCentroid, label, astro.ErrEmptyRegion)
		}
		c := Centroid{Label: label, Events: n}
		if n == 1 {
			c.X, c.Y = xs[label][0], ys[label][0]
		} else {
			c.X, c.SpreadX = stat.MeanStdDev(xs[label], nil)
			c.Y, c.SpreadY = stat.MeanStdDev(ys[label], nil)
		}
		out = append(out, c)
	}
	return out, nil
}

// FilterMinEvents drops centroids supported by fewer than minEvents events.
func FilterMinEvents(cs []Centroid, minEvents int) []Centroid {
	out := make([]Centroid, 0, len(cs))
	for _, c := range cs {
		if c.Events >= minEvents {
			out = append(out, c)
		}
	}
	return out
}
