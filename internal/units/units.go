// Package units provides shared constants and validation for image scale
// and drift velocity units
package units

import "fmt"

// Scale unit constants, as accepted by astrometric plate solvers
const (
	DegWidth     = "degwidth"
	ArcminWidth  = "arcminwidth"
	ArcsecPerPix = "arcsecperpix"
)

// ValidScaleUnits contains all valid scale unit values
var ValidScaleUnits = []string{DegWidth, ArcminWidth, ArcsecPerPix}

// IsValidScale checks if the given unit is in the list of valid scale units
func IsValidScale(unit string) bool {
	for _, validUnit := range ValidScaleUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidScaleUnitsString returns a comma-separated string of valid scale units for error messages
func GetValidScaleUnitsString() string {
	return "degwidth, arcminwidth, arcsecperpix"
}

// ScaleToArcsecPerPix converts a scale value in the given units to arcseconds
// per pixel. Width-based units need the image width in pixels.
func ScaleToArcsecPerPix(value float64, unit string, widthPx int) (float64, error) {
	switch unit {
	case ArcsecPerPix:
		return value, nil
	case DegWidth, ArcminWidth:
		if widthPx <= 0 {
			return 0, fmt.Errorf("image width must be positive for %s, got %d", unit, widthPx)
		}
		arcsec := value * 3600
		if unit == ArcminWidth {
			arcsec = value * 60
		}
		return arcsec / float64(widthPx), nil
	default:
		return 0, fmt.Errorf("unknown scale unit %q (valid: %s)", unit, GetValidScaleUnitsString())
	}
}
