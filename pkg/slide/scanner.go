package slide

import (
	"fmt"
	"image"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/models"
)

// ScannerOpener opens slides exported by the scanner as ordinary image
// files (jpeg/png/tiff/webp) captured at a known base resolution.
type ScannerOpener struct {
	// BaseMicronsPerPixel is the physical resolution the exported files
	// were captured at.
	BaseMicronsPerPixel float64
}

// NewScannerOpener returns an opener for scanner exports captured at
// baseMicronsPerPixel.
func NewScannerOpener(baseMicronsPerPixel float64) *ScannerOpener {
	return &ScannerOpener{BaseMicronsPerPixel: baseMicronsPerPixel}
}

// Open decodes the slide file. Missing or corrupt files fail here, not
// deeper in the pipeline.
func (o *ScannerOpener) Open(path string) (Slide, error) {
	img, err := decodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("slide: failed to open %s: %w", path, err)
	}
	return &scannerSlide{path: path, img: img, baseMPP: o.BaseMicronsPerPixel}, nil
}

// decodeFile tries the registered decoders first and falls back to an
// explicit webp decode for files the standard path rejects.
func decodeFile(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if img, err := webp.Decode(f); err == nil {
		return img, nil
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("unknown or unsupported image format")
}

type scannerSlide struct {
	path    string
	img     image.Image
	baseMPP float64
}

func (s *scannerSlide) Path() string { return s.path }

// ImageAtResolution resamples the decoded slide from its base resolution to
// the requested one with a Lanczos filter. Requesting a coarser resolution
// than the base shrinks the image; the base resolution returns it as-is.
func (s *scannerSlide) ImageAtResolution(micronsPerPixel float64) (*models.SlideImage, error) {
	if err := validateResolution(micronsPerPixel); err != nil {
		return nil, err
	}

	img := s.img
	if micronsPerPixel != s.baseMPP {
		scale := s.baseMPP / micronsPerPixel
		w := int(float64(img.Bounds().Dx())*scale + 0.5)
		h := int(float64(img.Bounds().Dy())*scale + 0.5)
		if w < 1 || h < 1 {
			return nil, fmt.Errorf("slide: %s collapses to %dx%d at %g microns/pixel",
				s.path, w, h, micronsPerPixel)
		}
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}
	return fromImage(img, micronsPerPixel), nil
}
