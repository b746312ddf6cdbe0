package platesolve

import (
	"fmt"
	"math"

	"github.com/soniakeys/meeus/v3/angle"
	sexa "github.com/soniakeys/sexagesimal"
	"github.com/soniakeys/unit"
)

// Match pairs a centroid with its nearest catalogue star.
type Match struct {
	Point      Point
	Star       CatalogStar
	RA         unit.Angle // Sky position of the centroid
	Dec        unit.Angle
	Separation unit.Angle
}

// MatchStars projects every point through the solution's WCS and pairs it with
// the nearest catalogue star no further than tolerance. Unpaired points
// are left out. A solution without a match yields nil.
func MatchStars(sol *Solution, points []Point, tolerance unit.Angle) []Match {
	if sol == nil || !sol.Matched || sol.WCS == nil {
		return nil
	}
	var out []Match
	for _, p := range points {
		ra, dec := sol.WCS.PixelToSky(p.X, p.Y)

		best := -1
		bestSep := unit.Angle(math.Inf(1))
		for i, s := range sol.Stars {
			sep := angle.Sep(ra, dec, unit.AngleFromDeg(s.RADeg), unit.AngleFromDeg(s.DecDeg))
			if sep < bestSep {
				best, bestSep = i, sep
			}
		}
		if best >= 0 && bestSep <= tolerance {
			out = append(out, Match{Point: p, Star: sol.Stars[best], RA: ra, Dec: dec, Separation: bestSep})
		}
	}
	return out
}

// FormatRADec renders a sky position in sexagesimal, RA in hours and
// Dec in degrees.
func FormatRADec(ra, dec unit.Angle) (string, string) {
	return fmt.Sprintf("%.1d", sexa.FmtRA(unit.RA(normalizeRA(ra)))),
		fmt.Sprintf("%.0d", sexa.FmtAngle(dec))
}
