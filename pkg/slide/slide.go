// Package slide abstracts where slide pixels come from: scanner-exported
// image files or a deterministic synthetic generator used for simulated
// cohorts and tests. The pipeline depends only on the Slide interface.
package slide

import (
	"fmt"
	"image"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/models"
)

// Slide is an open slide that can supply pixel data at a requested physical
// resolution.
type Slide interface {
	// ImageAtResolution decodes the slide at the given resolution in
	// microns per pixel.
	ImageAtResolution(micronsPerPixel float64) (*models.SlideImage, error)

	// Path returns the slide's source path.
	Path() string
}

// Opener opens slides by path. Open failures (missing, corrupt or
// undecodable files) are per-slide errors: the batch processor records them
// and moves on.
type Opener interface {
	Open(path string) (Slide, error)
}

// fromImage converts a decoded image into the flat float representation the
// unmixer consumes.
func fromImage(img image.Image, micronsPerPixel float64) *models.SlideImage {
	bounds := img.Bounds()
	out := models.NewSlideImage(bounds.Dx(), bounds.Dy(), 3)
	out.MicronsPerPixel = micronsPerPixel
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			out.Set(x, y, 0, float64(r)/65535.0)
			out.Set(x, y, 1, float64(g)/65535.0)
			out.Set(x, y, 2, float64(b)/65535.0)
		}
	}
	return out
}

// validateResolution rejects non-positive resolutions before any decode
// work happens.
func validateResolution(micronsPerPixel float64) error {
	if micronsPerPixel <= 0 {
		return fmt.Errorf("slide: resolution must be positive, got %g microns/pixel", micronsPerPixel)
	}
	return nil
}
