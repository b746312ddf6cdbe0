package aer

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/banshee-data/starfield/internal/units"
)

// SynthOptions describes a synthetic drifting star field.
type SynthOptions struct {
	Width, Height uint16
	Stars         int
	VX, VY        float64 // Drift in pixels per second
	Start         uint64  // Timestamp of the first event, microseconds
	Duration      uint64  // Microseconds
	EventsPerStar int     // Mean; each star gets between 0.5x and 1.5x
	NoiseEvents   int     // Uniform background events
	PSFSigma      float64 // Gaussian spread of star events in pixels
	MinSeparation float64 // Minimum distance between anchored stars in pixels
	Seed          uint64
}

// DefaultSynthOptions returns a small field that the default pipeline resolves.
func DefaultSynthOptions() SynthOptions {
	return SynthOptions{
		Width:         320,
		Height:        240,
		Stars:         12,
		VX:            0.4,
		VY:            -0.15,
		Duration:      30_000_000,
		EventsPerStar: 400,
		NoiseEvents:   2000,
		PSFSigma:      0.6,
		MinSeparation: 12,
		Seed:          1,
	}
}

// StarTruth is an injected star at its anchored position, the position
// the dewarped field places it at.
type StarTruth struct {
	X, Y   float64
	Events int
}

var errFieldTooSmall = errors.New("sensor too small for requested drift and stars")

// Synthesize generates a time-ordered stream of stars drifting at (VX, VY)
// plus uniform noise, together with the anchored star positions. The first
// and last star events fall exactly at Start and Start+Duration. Output is
// deterministic for a given Seed.
func Synthesize(opts SynthOptions) (*Stream, []StarTruth, error) {
	if opts.Width == 0 || opts.Height == 0 {
		return nil, nil, fmt.Errorf("invalid sensor geometry %dx%d", opts.Width, opts.Height)
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9E3779B97F4A7C15))

	driftX := units.DriftPixels(opts.VX, opts.Duration)
	driftY := units.DriftPixels(opts.VY, opts.Duration)
	margin := int(math.Ceil(4*opts.PSFSigma)) + 1

	// The anchored position sits at the right (top) end of its trail, so
	// the whole trail fits when the anchor is at least drift+margin in.
	loX, hiX := driftX+margin, int(opts.Width)-1-margin
	loY, hiY := driftY+margin, int(opts.Height)-1-margin
	if opts.Stars > 0 && (loX > hiX || loY > hiY) {
		return nil, nil, fmt.Errorf("%dx%d with drift (%d,%d): %w", opts.Width, opts.Height, driftX, driftY, errFieldTooSmall)
	}

	stars := make([]StarTruth, 0, opts.Stars)
	const maxAttempts = 1000
	for attempts := 0; len(stars) < opts.Stars; attempts++ {
		if attempts == maxAttempts {
			return nil, nil, fmt.Errorf("placed %d of %d stars: %w", len(stars), opts.Stars, errFieldTooSmall)
		}
		cand := StarTruth{
			X: float64(loX + rng.IntN(hiX-loX+1)),
			Y: float64(loY + rng.IntN(hiY-loY+1)),
		}
		if tooClose(stars, cand, opts.MinSeparation) {
			continue
		}
		cand.Events = max(2, int(float64(opts.EventsPerStar)*(0.5+rng.Float64())))
		stars = append(stars, cand)
	}

	events := make([]Event, 0, opts.Stars*opts.EventsPerStar*3/2+opts.NoiseEvents)
	for i, star := range stars {
		for k := 0; k < star.Events; k++ {
			var elapsed uint64
			switch {
			case i == 0 && k == 0:
				elapsed = 0
			case i == 0 && k == 1:
				elapsed = opts.Duration
			case opts.Duration > 0:
				elapsed = rng.Uint64N(opts.Duration + 1)
			}
			x := int(star.X) - trailOffset(opts.VX, elapsed, opts.Duration) + jitter(rng, opts.PSFSigma)
			y := int(star.Y) - trailOffset(opts.VY, elapsed, opts.Duration) + jitter(rng, opts.PSFSigma)
			events = append(events, Event{
				T:        opts.Start + elapsed,
				X:        uint16(x),
				Y:        uint16(y),
				Polarity: rng.IntN(2) == 0,
			})
		}
	}

	for range opts.NoiseEvents {
		var elapsed uint64
		if opts.Duration > 0 {
			elapsed = rng.Uint64N(opts.Duration + 1)
		}
		events = append(events, Event{
			T:        opts.Start + elapsed,
			X:        uint16(rng.IntN(int(opts.Width))),
			Y:        uint16(rng.IntN(int(opts.Height))),
			Polarity: rng.IntN(2) == 0,
		})
	}

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
	return &Stream{Width: opts.Width, Height: opts.Height, Events: events}, stars, nil
}

// trailOffset is how far behind its anchor a star sits elapsed
// microseconds into a recording of the given duration. Positive drift
// anchors at the end of the recording, non-positive at the start.
func trailOffset(v float64, elapsed, duration uint64) int {
	if v > 0 {
		return units.DriftPixels(v, duration-elapsed)
	}
	return units.DriftPixels(v, elapsed)
}

// jitter draws a rounded Gaussian offset, clipped to four sigma.
func jitter(rng *rand.Rand, sigma float64) int {
	if sigma <= 0 {
		return 0
	}
	d := rng.NormFloat64() * sigma
	d = math.Max(-4*sigma, math.Min(4*sigma, d))
	return int(math.Round(d))
}

func tooClose(stars []StarTruth, cand StarTruth, minSep float64) bool {
	for _, s := range stars {
		if math.Hypot(s.X-cand.X, s.Y-cand.Y) < minSep {
			return true
		}
	}
	return false
}
