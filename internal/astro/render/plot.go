package render

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/starfield/internal/astro/frame"
	"github.com/banshee-data/starfield/internal/astro/segment"
)

// frameGrid exposes a frame as a plotter.GridXYZ in event coordinates:
// column c is x, grid row r is y, so y grows upwards.
type frameGrid struct {
	f *frame.Frame
}

func (g frameGrid) Dims() (c, r int) { return g.f.Cols, g.f.Rows }
func (g frameGrid) X(c int) float64  { return float64(c) }
func (g frameGrid) Y(r int) float64  { return float64(r) }

func (g frameGrid) Z(c, r int) float64 {
	return math.Log1p(g.f.At(g.f.Rows-1-r, c))
}

// centroidXYs adapts centroids to plotter.XYer.
type centroidXYs []segment.Centroid

func (cs centroidXYs) Len() int                { return len(cs) }
func (cs centroidXYs) XY(i int) (x, y float64) { return cs[i].X, cs[i].Y }

// PlotFrame draws the frame as a log-scaled heat map with centroids
// circled, and saves it to path. The format follows the extension
// (.png, .svg, .pdf).
func PlotFrame(f *frame.Frame, centroids []segment.Centroid, title, path string) error {
	if f.Rows < 2 || f.Cols < 2 {
		return fmt.Errorf("frame %dx%d too small to plot", f.Cols, f.Rows)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	p.BackgroundColor = color.Black

	heat := plotter.NewHeatMap(frameGrid{f: f}, palette.Heat(64, 1))
	p.Add(heat)

	if len(centroids) > 0 {
		s, err := plotter.NewScatter(centroidXYs(centroids))
		if err != nil {
			return fmt.Errorf("failed to build centroid overlay: %w", err)
		}
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(4)
		s.GlyphStyle.Color = color.RGBA{R: 0, G: 200, B: 255, A: 255}
		p.Add(s)
	}

	// Keep cells square.
	width := 8 * vg.Inch
	height := width * vg.Length(float64(f.Rows)/float64(f.Cols))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}
