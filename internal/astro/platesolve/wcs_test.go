package platesolve

import (
	"math"
	"testing"

	"github.com/soniakeys/unit"
)

func testWCS() *WCS {
	return &WCS{
		CRPIX: [2]float64{160, 120},
		CRVAL: [2]float64{83.633, 22.0145},
		CD:    [2][2]float64{{-0.001, 0.00002}, {0.00001, 0.001}},
	}
}

func TestWCSReferencePixel(t *testing.T) {
	w := testWCS()
	ra, dec := w.PixelToSky(160, 120)
	if math.Abs(ra.Deg()-83.633) > 1e-9 || math.Abs(dec.Deg()-22.0145) > 1e-9 {
		t.Errorf("PixelToSky(CRPIX) = (%f, %f), want CRVAL", ra.Deg(), dec.Deg())
	}
}

func TestWCSRoundTrip(t *testing.T) {
	w := testWCS()
	for _, p := range [][2]float64{{0, 0}, {319, 239}, {12.5, 200.25}, {160, 0}, {300, 17}} {
		ra, dec := w.PixelToSky(p[0], p[1])
		x, y, ok := w.SkyToPixel(ra, dec)
		if !ok {
			t.Fatalf("SkyToPixel(%v) not ok", p)
		}
		if math.Abs(x-p[0]) > 1e-6 || math.Abs(y-p[1]) > 1e-6 {
			t.Errorf("round trip %v -> (%f, %f)", p, x, y)
		}
	}
}

func TestWCSWrapsRA(t *testing.T) {
	w := &WCS{CRPIX: [2]float64{0, 0}, CRVAL: [2]float64{0.01, 0}, CD: [2][2]float64{{0.001, 0}, {0, 0.001}}}
	ra, _ := w.PixelToSky(-100, 0)
	if ra < 0 || ra.Rad() >= 2*math.Pi {
		t.Errorf("RA %f rad not normalised", ra.Rad())
	}
	if math.Abs(ra.Deg()-359.91) > 1e-4 {
		t.Errorf("RA = %f deg, want ~359.91", ra.Deg())
	}
}

func TestWCSBehindTangentPlane(t *testing.T) {
	w := testWCS()
	if _, _, ok := w.SkyToPixel(unit.AngleFromDeg(83.633+180), unit.AngleFromDeg(-22)); ok {
		t.Error("antipode should not project")
	}
}

func TestWCSPixelScale(t *testing.T) {
	w := &WCS{CD: [2][2]float64{{-0.001, 0}, {0, 0.001}}}
	if got := w.PixelScale(); math.Abs(got-3.6) > 1e-9 {
		t.Errorf("PixelScale() = %f, want 3.6", got)
	}
}

func TestWCSValidate(t *testing.T) {
	if err := testWCS().Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	singular := &WCS{CD: [2][2]float64{{0.001, 0.002}, {0.0005, 0.001}}}
	if err := singular.Validate(); err == nil {
		t.Error("singular CD should fail")
	}
	if _, _, ok := singular.SkyToPixel(0, 0); ok {
		t.Error("singular CD should not invert")
	}
}
