// Package dewarp owns Layer 2 (Dewarp): removing uniform sidereal drift so
// that a star fixed on the sky lands on a fixed pixel.
//
// Each axis is anchored by the sign of its velocity. A positive drift is
// shifted forward by the time remaining in the recording, so a star lands
// on its final position; a non-positive drift is shifted by the time
// elapsed, so it lands on its initial position. Either way every shift is
// non-negative and the shifted coordinates fit in a frame enlarged by the
// drift extent, with no clamping.
package dewarp

import (
	"fmt"
	"math"

	"github.com/banshee-data/starfield/internal/aer"
	"github.com/banshee-data/starfield/internal/astro"
	"github.com/banshee-data/starfield/internal/units"
)

// Velocity is the apparent drift of the star field in pixels per second.
type Velocity struct {
	VX float64
	VY float64
}

// IsZero reports whether neither axis drifts.
func (v Velocity) IsZero() bool { return v.VX == 0 && v.VY == 0 }

// Validate rejects NaN and infinite rates.
func (v Velocity) Validate() error {
	for _, r := range []float64{v.VX, v.VY} {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return fmt.Errorf("(%g, %g) px/s: %w", v.VX, v.VY, astro.ErrInvalidVelocity)
		}
	}
	return nil
}

// MaxFrameCells bounds the accumulation grid: 64 Mi cells, 512 MiB of
// float64 counts.
const MaxFrameCells = 1 << 26

// Event is an event with its coordinates moved onto the anchored frame.
// Coordinates are ints because long drifts exceed the sensor's uint16 range.
type Event struct {
	T        uint64
	X        int
	Y        int
	Polarity bool
}

// Extent is a frame size in cells.
type Extent struct {
	Rows int
	Cols int
}

// Cells returns Rows*Cols.
func (e Extent) Cells() int { return e.Rows * e.Cols }

// Check reports whether e is a non-empty grid of at most MaxFrameCells.
func (e Extent) Check() error {
	if e.Rows <= 0 || e.Cols <= 0 {
		return fmt.Errorf("empty %dx%d frame", e.Cols, e.Rows)
	}
	if e.Rows > MaxFrameCells/e.Cols {
		return fmt.Errorf("%dx%d frame over %d cells: %w", e.Cols, e.Rows, MaxFrameCells, astro.ErrFrameTooLarge)
	}
	return nil
}

// checkDrift rejects velocities whose drift over duration cannot fit any
// frame, before the integer shifts overflow.
func checkDrift(v Velocity, duration uint64) error {
	if err := v.Validate(); err != nil {
		return err
	}
	for _, r := range []float64{v.VX, v.VY} {
		if d := math.Abs(r) / units.MicrosPerSecond * float64(duration); d > MaxFrameCells {
			return fmt.Errorf("drift of %.3g px at %g px/s over %.3fs: %w",
				d, r, float64(duration)/units.MicrosPerSecond, astro.ErrFrameTooLarge)
		}
	}
	return nil
}

// shift is the non-negative displacement applied to one axis of an event
// elapsed microseconds into a recording lasting duration.
func shift(v float64, elapsed, duration uint64) int {
	if v > 0 {
		return units.DriftPixels(v, duration-elapsed)
	}
	return units.DriftPixels(v, elapsed)
}

// Span returns the first timestamp and last-minus-first of a time-ordered
// event slice.
func Span(events []aer.Event) (t0, duration uint64) {
	if len(events) == 0 {
		return 0, 0
	}
	t0 = events[0].T
	return t0, events[len(events)-1].T - t0
}

// Dewarp shifts every event onto the anchored frame. events must be time
// ordered, as aer.Stream guarantees. The result is a new slice of the same
// length and order with T and Polarity unchanged. Non-finite velocities and
// drifts too long for any frame fail before any event is shifted.
func Dewarp(events []aer.Event, v Velocity) ([]Event, error) {
	if len(events) == 0 {
		return nil, astro.NewStageError(astro.StageDewarp, astro.ErrEmptyInput)
	}
	t0, duration := Span(events)
	if err := checkDrift(v, duration); err != nil {
		return nil, astro.NewStageError(astro.StageDewarp, err)
	}

	out := make([]Event, len(events))
	for i, e := range events {
		elapsed := e.T - t0
		out[i] = Event{
			T:        e.T,
			X:        int(e.X) + shift(v.VX, elapsed, duration),
			Y:        int(e.Y) + shift(v.VY, elapsed, duration),
			Polarity: e.Polarity,
		}
	}
	return out, nil
}

// Undewarp applies the inverse shift with the same anchors. t0 and
// duration must be the values Dewarp saw; Undewarp(Dewarp(e)) returns the
// original coordinates exactly.
func Undewarp(warped []Event, v Velocity, t0, duration uint64) []Event {
	out := make([]Event, len(warped))
	for i, e := range warped {
		elapsed := e.T - t0
		out[i] = Event{
			T:        e.T,
			X:        e.X - shift(v.VX, elapsed, duration),
			Y:        e.Y - shift(v.VY, elapsed, duration),
			Polarity: e.Polarity,
		}
	}
	return out
}

// DriftExtent is how far the field moves over duration, in whole pixels
// per axis. v must have passed FrameSize or Dewarp.
func DriftExtent(v Velocity, duration uint64) Extent {
	return Extent{
		Rows: units.DriftPixels(v.VY, duration),
		Cols: units.DriftPixels(v.VX, duration),
	}
}

// FrameSize is the sensor enlarged by the drift extent: the smallest grid
// that holds every dewarped event. It fails with astro.ErrInvalidVelocity
// or astro.ErrFrameTooLarge.
func FrameSize(width, height uint16, v Velocity, duration uint64) (Extent, error) {
	if err := checkDrift(v, duration); err != nil {
		return Extent{}, err
	}
	d := DriftExtent(v, duration)
	ext := Extent{
		Rows: int(height) + d.Rows,
		Cols: int(width) + d.Cols,
	}
	if err := ext.Check(); err != nil {
		return Extent{}, err
	}
	return ext, nil
}
