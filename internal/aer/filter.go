package aer

import (
	"slices"

	"gonum.org/v1/gonum/stat"
)

// FilterHotPixels drops every event from pixels whose event count exceeds
// mean + sigma*stddev of the counts over all active pixels. It returns the
// filtered stream and the number of pixels removed. sigma <= 0 disables
// the filter.
func FilterHotPixels(s *Stream, sigma float64) (*Stream, int) {
	if sigma <= 0 || len(s.Events) == 0 {
		return s.withEvents(slices.Clone(s.Events)), 0
	}

	width := int(s.Width)
	counts := make(map[int]float64)
	for _, e := range s.Events {
		counts[int(e.Y)*width+int(e.X)]++
	}

	values := make([]float64, 0, len(counts))
	for _, c := range counts {
		values = append(values, c)
	}
	mean, std := stat.MeanStdDev(values, nil)
	limit := mean + sigma*std

	hot := make(map[int]bool)
	for idx, c := range counts {
		if c > limit {
			hot[idx] = true
		}
	}
	if len(hot) == 0 {
		return s.withEvents(slices.Clone(s.Events)), 0
	}

	kept := make([]Event, 0, len(s.Events))
	for _, e := range s.Events {
		if !hot[int(e.Y)*width+int(e.X)] {
			kept = append(kept, e)
		}
	}
	logf("hot pixel filter: %d pixels above %.1f events, dropped %d events", len(hot), limit, len(s.Events)-len(kept))
	return s.withEvents(kept), len(hot)
}

// FilterNeighbourSupport keeps an event only if one of its eight neighbours
// fired within window microseconds before it. Isolated noise events have no
// such support; events from a moving or twinkling star usually do. The
// stream must be time-ordered. window == 0 disables the filter.
func FilterNeighbourSupport(s *Stream, window uint64) *Stream {
	if window == 0 || len(s.Events) == 0 {
		return s.withEvents(slices.Clone(s.Events))
	}

	width, height := int(s.Width), int(s.Height)
	// last holds 1 + the most recent timestamp per pixel; 0 means never fired.
	last := make([]uint64, width*height)

	kept := make([]Event, 0, len(s.Events))
	for _, e := range s.Events {
		x, y := int(e.X), int(e.Y)
		supported := false
		for dy := -1; dy <= 1 && !supported; dy++ {
			ny := y + dy
			if ny < 0 || ny >= height {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				nx := x + dx
				if (dx == 0 && dy == 0) || nx < 0 || nx >= width {
					continue
				}
				if t := last[ny*width+nx]; t != 0 && e.T-(t-1) <= window {
					supported = true
					break
				}
			}
		}
		if supported {
			kept = append(kept, e)
		}
		last[y*width+x] = e.T + 1
	}
	return s.withEvents(kept)
}

// FilterPolarity keeps only events with the given polarity.
func FilterPolarity(s *Stream, on bool) *Stream {
	kept := make([]Event, 0, len(s.Events))
	for _, e := range s.Events {
		if e.Polarity == on {
			kept = append(kept, e)
		}
	}
	return s.withEvents(kept)
}
