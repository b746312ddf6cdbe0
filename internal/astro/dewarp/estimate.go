package dewarp

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/banshee-data/starfield/internal/aer"
	"github.com/banshee-data/starfield/internal/astro"
	"github.com/banshee-data/starfield/internal/units"
)

// ErrNoDriftEstimate means the stream has no bright features common to its
// start and end.
var ErrNoDriftEstimate = errors.New("no consistent star displacement found")

// EstimateOptions tunes EstimateVelocity. Zero values pick defaults.
type EstimateOptions struct {
	SliceFraction float64 // Share of the recording in each end slice (default 0.1)
	Peaks         int     // Brightest peaks compared per slice (default 12)
	Tolerance     float64 // Displacement agreement in pixels (default 1.5)
}

func (o EstimateOptions) withDefaults() EstimateOptions {
	if o.SliceFraction <= 0 || o.SliceFraction > 0.5 {
		o.SliceFraction = 0.1
	}
	if o.Peaks <= 0 {
		o.Peaks = 12
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1.5
	}
	return o
}

type peak struct {
	x, y   float64
	weight float64
}

// EstimateVelocity measures the field drift from the stream itself. It
// accumulates a short slice at each end of the recording, finds the
// brightest peaks in both, and takes the displacement that the most peak
// pairs agree on, divided by the time between the slices.
func EstimateVelocity(s *aer.Stream, opts EstimateOptions) (Velocity, error) {
	if len(s.Events) == 0 {
		return Velocity{}, astro.NewStageError(astro.StageDewarp, astro.ErrEmptyInput)
	}
	opts = opts.withDefaults()

	t0, duration := Span(s.Events)
	if duration == 0 {
		return Velocity{}, fmt.Errorf("zero-duration stream: %w", ErrNoDriftEstimate)
	}
	window := uint64(float64(duration) * opts.SliceFraction)

	first, tFirst := sliceCounts(s, t0, t0+window)
	last, tLast := sliceCounts(s, t0+duration-window, t0+duration)
	if tLast <= tFirst {
		return Velocity{}, fmt.Errorf("slices do not separate in time: %w", ErrNoDriftEstimate)
	}

	a := findPeaks(first, int(s.Width), int(s.Height), opts.Peaks)
	b := findPeaks(last, int(s.Width), int(s.Height), opts.Peaks)
	dx, dy, ok := consensusDisplacement(a, b, opts.Tolerance)
	if !ok {
		return Velocity{}, ErrNoDriftEstimate
	}

	seconds := (tLast - tFirst) / units.MicrosPerSecond
	return Velocity{VX: dx / seconds, VY: dy / seconds}, nil
}

// sliceCounts accumulates events with from <= T <= to into a sensor-sized
// grid and returns it with the mean event time.
func sliceCounts(s *aer.Stream, from, to uint64) ([]float64, float64) {
	counts := make([]float64, int(s.Width)*int(s.Height))
	var sumT float64
	n := 0
	for _, e := range s.Events {
		if e.T < from || e.T > to {
			continue
		}
		counts[int(e.Y)*int(s.Width)+int(e.X)]++
		sumT += float64(e.T)
		n++
	}
	if n == 0 {
		return counts, 0
	}
	return counts, sumT / float64(n)
}

// findPeaks returns up to k local maxima of the 3x3 box sum, brightest
// first, each refined to the weighted centre of its window.
func findPeaks(counts []float64, width, height, k int) []peak {
	at := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= width || y >= height {
			return 0
		}
		return counts[y*width+x]
	}
	box := make([]float64, len(counts))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += at(x+dx, y+dy)
				}
			}
			box[y*width+x] = sum
		}
	}

	var peaks []peak
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := box[y*width+x]
			if v < 2 || !isLocalMax(box, width, height, x, y) {
				continue
			}
			var sx, sy float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					w := at(x+dx, y+dy)
					sx += w * float64(x+dx)
					sy += w * float64(y+dy)
				}
			}
			peaks = append(peaks, peak{x: sx / v, y: sy / v, weight: v})
		}
	}
	slices.SortFunc(peaks, func(a, b peak) int { return cmp.Compare(b.weight, a.weight) })
	if len(peaks) > k {
		peaks = peaks[:k]
	}
	return peaks
}

// isLocalMax breaks plateaus by raster order so each plateau yields one peak.
func isLocalMax(box []float64, width, height, x, y int) bool {
	v := box[y*width+x]
	for dy := -2; dy <= 2; dy++ {
		for dx := -2; dx <= 2; dx++ {
			nx, ny := x+dx, y+dy
			if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= width || ny >= height {
				continue
			}
			n := box[ny*width+nx]
			if n > v || (n == v && (ny < y || (ny == y && nx < x))) {
				return false
			}
		}
	}
	return true
}

// consensusDisplacement tries every pairing of a start peak with an end
// peak and keeps the displacement the most other pairings agree with,
// averaged over those agreeing pairings.
func consensusDisplacement(a, b []peak, tol float64) (dx, dy float64, ok bool) {
	type disp struct{ dx, dy float64 }
	var ds []disp
	for _, p := range a {
		for _, q := range b {
			ds = append(ds, disp{q.x - p.x, q.y - p.y})
		}
	}

	bestSupport := 0
	for _, d := range ds {
		var sx, sy float64
		support := 0
		for _, o := range ds {
			if math.Hypot(o.dx-d.dx, o.dy-d.dy) <= tol {
				sx += o.dx
				sy += o.dy
				support++
			}
		}
		if support > bestSupport {
			bestSupport = support
			dx, dy = sx/float64(support), sy/float64(support)
		}
	}
	// A lone pairing is as likely to be chance as drift.
	if bestSupport < 2 {
		return 0, 0, false
	}
	return dx, dy, true
}
