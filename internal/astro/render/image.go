// Package render turns pipeline results into pictures: a grey-scale image
// of the accumulated frame, a heat map plot with centroids overlaid, and
// an HTML report of the extracted stars.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/starfield/internal/astro/frame"
)

// FrameImage renders counts on a log scale, brightest cell white. Row 0
// of the frame is the top of the image.
func FrameImage(f *frame.Frame) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Cols, f.Rows))
	peak := 0.0
	for _, c := range f.Counts {
		peak = math.Max(peak, c)
	}
	if peak == 0 {
		return img
	}
	norm := math.Log1p(peak)
	for row := 0; row < f.Rows; row++ {
		for col := 0; col < f.Cols; col++ {
			v := math.Log1p(f.At(row, col)) / norm
			img.SetGray(col, row, color.Gray{Y: uint8(math.Round(v * 255))})
		}
	}
	return img
}

// SavePNG upscales img by an integer factor with nearest-neighbour
// sampling, so single cells stay sharp, and writes it to path. The image
// format follows the extension.
func SavePNG(img image.Image, path string, scale int) error {
	if scale < 1 {
		return fmt.Errorf("invalid scale %d", scale)
	}
	var out image.Image = img
	if scale > 1 {
		b := img.Bounds()
		out = imaging.Resize(img, b.Dx()*scale, b.Dy()*scale, imaging.NearestNeighbor)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := imaging.Save(out, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
