package platesolve

import (
	"fmt"
	"math"

	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"
)

// WCS is a gnomonic (TAN) world coordinate system: pixel offsets from
// CRPIX are mapped through the CD matrix (degrees per pixel) onto the
// tangent plane at CRVAL (RA, Dec in degrees).
type WCS struct {
	CRPIX [2]float64    `json:"crpix"`
	CRVAL [2]float64    `json:"crval"`
	CD    [2][2]float64 `json:"cd"`
}

func (w *WCS) cd() *mat.Dense {
	return mat.NewDense(2, 2, []float64{w.CD[0][0], w.CD[0][1], w.CD[1][0], w.CD[1][1]})
}

// Validate rejects a singular CD matrix.
func (w *WCS) Validate() error {
	if mat.Det(w.cd()) == 0 {
		return fmt.Errorf("singular CD matrix %v", w.CD)
	}
	return nil
}

// PixelScale returns the mean pixel size in arcseconds.
func (w *WCS) PixelScale() float64 {
	return math.Sqrt(math.Abs(mat.Det(w.cd()))) * 3600
}

// PixelToSky maps a pixel position to right ascension and declination.
func (w *WCS) PixelToSky(x, y float64) (ra, dec unit.Angle) {
	pix := mat.NewVecDense(2, []float64{x - w.CRPIX[0], y - w.CRPIX[1]})
	var plane mat.VecDense
	plane.MulVec(w.cd(), pix)

	xi := unit.AngleFromDeg(plane.AtVec(0)).Rad()
	eta := unit.AngleFromDeg(plane.AtVec(1)).Rad()
	ra0 := unit.AngleFromDeg(w.CRVAL[0])
	dec0 := unit.AngleFromDeg(w.CRVAL[1])

	denom := dec0.Cos() - eta*dec0.Sin()
	ra = ra0 + unit.Angle(math.Atan2(xi, denom))
	dec = unit.Angle(math.Atan2(dec0.Sin()+eta*dec0.Cos(), math.Hypot(xi, denom)))
	return normalizeRA(ra), dec
}

// SkyToPixel is the inverse of PixelToSky. ok is false for points on or
// behind the tangent plane's horizon, or when CD is singular.
func (w *WCS) SkyToPixel(ra, dec unit.Angle) (x, y float64, ok bool) {
	ra0 := unit.AngleFromDeg(w.CRVAL[0])
	dec0 := unit.AngleFromDeg(w.CRVAL[1])
	dra := ra - ra0

	cosc := dec0.Sin()*dec.Sin() + dec0.Cos()*dec.Cos()*dra.Cos()
	if cosc <= 0 {
		return 0, 0, false
	}
	xi := unit.Angle(dec.Cos() * dra.Sin() / cosc).Deg()
	eta := unit.Angle((dec0.Cos()*dec.Sin() - dec0.Sin()*dec.Cos()*dra.Cos()) / cosc).Deg()

	var inv mat.Dense
	if err := inv.Inverse(w.cd()); err != nil {
		return 0, 0, false
	}
	var pix mat.VecDense
	pix.MulVec(&inv, mat.NewVecDense(2, []float64{xi, eta}))
	return pix.AtVec(0) + w.CRPIX[0], pix.AtVec(1) + w.CRPIX[1], true
}

func normalizeRA(ra unit.Angle) unit.Angle {
	r := math.Mod(ra.Rad(), 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	return unit.Angle(r)
}
