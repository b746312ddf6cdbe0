package aer

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrUnsorted means event timestamps decrease somewhere in the stream.
	ErrUnsorted = errors.New("event timestamps are not non-decreasing")
	// ErrOutsideSensor means an event address lies outside the sensor geometry.
	ErrOutsideSensor = errors.New("event address outside sensor geometry")
	// ErrGeometryOverflow means an inferred sensor dimension does not fit
	// in 16 bits.
	ErrGeometryOverflow = errors.New("inferred sensor geometry exceeds 65535")
)

// Event is one address event: a pixel brightness change at time T.
type Event struct {
	T        uint64 // Microseconds
	X        uint16
	Y        uint16
	Polarity bool // true = brightness increase
}

// Stream is an ordered, in-memory event sequence from one sensor.
// Invariant: T is non-decreasing in sequence order (ties allowed).
type Stream struct {
	Width  uint16
	Height uint16
	Events []Event
}

// Len returns the number of events.
func (s *Stream) Len() int { return len(s.Events) }

// Start returns the first event's timestamp, or 0 for an empty stream.
func (s *Stream) Start() uint64 {
	if len(s.Events) == 0 {
		return 0
	}
	return s.Events[0].T
}

// Duration returns last.T - first.T in microseconds, or 0 for fewer than two events.
func (s *Stream) Duration() uint64 {
	if len(s.Events) < 2 {
		return 0
	}
	return s.Events[len(s.Events)-1].T - s.Events[0].T
}

// Validate checks the ordering invariant and that every address fits the
// sensor geometry. The first violation is reported with its index.
func (s *Stream) Validate() error {
	if s.Width == 0 || s.Height == 0 {
		return fmt.Errorf("invalid sensor geometry %dx%d", s.Width, s.Height)
	}
	for i, e := range s.Events {
		if e.X >= s.Width || e.Y >= s.Height {
			return fmt.Errorf("event %d at (%d,%d) for %dx%d sensor: %w", i, e.X, e.Y, s.Width, s.Height, ErrOutsideSensor)
		}
		if i > 0 && e.T < s.Events[i-1].T {
			return fmt.Errorf("event %d at t=%d after t=%d: %w", i, e.T, s.Events[i-1].T, ErrUnsorted)
		}
	}
	return nil
}

// SortByTime returns a copy of the stream stably sorted by timestamp, so
// events sharing a timestamp keep their file order.
func (s *Stream) SortByTime() *Stream {
	events := slices.Clone(s.Events)
	slices.SortStableFunc(events, func(a, b Event) int {
		switch {
		case a.T < b.T:
			return -1
		case a.T > b.T:
			return 1
		default:
			return 0
		}
	})
	return &Stream{Width: s.Width, Height: s.Height, Events: events}
}

// withEvents returns a stream sharing this stream's geometry.
func (s *Stream) withEvents(events []Event) *Stream {
	return &Stream{Width: s.Width, Height: s.Height, Events: events}
}

// inferGeometry returns the smallest geometry that holds every event.
// An address of 65535 on either axis has no 16-bit geometry.
func inferGeometry(events []Event) (width, height uint16, err error) {
	var maxX, maxY int
	for _, e := range events {
		maxX = max(maxX, int(e.X))
		maxY = max(maxY, int(e.Y))
	}
	w, h := maxX+1, maxY+1
	if w > math.MaxUint16 || h > math.MaxUint16 {
		return 0, 0, fmt.Errorf("%w: need %dx%d", ErrGeometryOverflow, w, h)
	}
	return uint16(w), uint16(h), nil
}
