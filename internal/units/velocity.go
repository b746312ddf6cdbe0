package units

import "math"

// Velocity unit constants for sidereal drift rates
const (
	PxPerSec = "px/s"
	PxPerMin = "px/min"
	PxPerHr  = "px/h"
)

// MicrosPerSecond is the number of event timestamp ticks per second.
const MicrosPerSecond = 1e6

// MaxDriftPxPerSec bounds configured drift rates.
const MaxDriftPxPerSec = 1e4

// ValidVelocityUnits contains all valid velocity unit values
var ValidVelocityUnits = []string{PxPerSec, PxPerMin, PxPerHr}

// IsValidVelocity checks if the given unit is in the list of valid velocity units
func IsValidVelocity(unit string) bool {
	for _, validUnit := range ValidVelocityUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidVelocityUnitsString returns a comma-separated string of valid velocity units for error messages
func GetValidVelocityUnitsString() string {
	return "px/s, px/min, px/h"
}

// ToPxPerSec converts a drift rate in the given units to pixels per second.
// Unknown units are returned unchanged.
func ToPxPerSec(v float64, unit string) float64 {
	switch unit {
	case PxPerMin:
		return v / 60
	case PxPerHr:
		return v / 3600
	default:
		return v
	}
}

// PxPerMicrosecond converts pixels per second to pixels per microsecond,
// the rate used against event timestamps.
func PxPerMicrosecond(pxPerSec float64) float64 {
	return pxPerSec / MicrosPerSecond
}

// DriftPixels returns the whole-pixel distance covered in micros
// microseconds at pxPerSec, floor(|v|/1e6 * micros). The sign of the
// velocity is ignored; callers pick the direction.
func DriftPixels(pxPerSec float64, micros uint64) int {
	return int(math.Floor(math.Abs(PxPerMicrosecond(pxPerSec)) * float64(micros)))
}
