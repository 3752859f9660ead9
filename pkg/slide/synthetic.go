package slide

import (
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/models"
)

// SyntheticOpener generates slides instead of reading them. A slide's path
// seeds the generator, so the same path always yields the same pixels at
// the same resolution; this backs the simulated cohorts and the tests.
type SyntheticOpener struct {
	// WidthMicrons and HeightMicrons fix the physical extent of the
	// generated tissue section.
	WidthMicrons  float64
	HeightMicrons float64

	// Background is the unstained tissue colour and Stain the deposit
	// colour, both RGB in [0, 1].
	Background [3]float64
	Stain      [3]float64

	// Deposits is the number of stain blobs scattered over the section.
	// Zero produces a clean control slide.
	Deposits int
}

// NewSyntheticOpener returns a generator producing sections of the given
// physical size with the given number of stain deposits, using tissue and
// DAB-like default colours.
func NewSyntheticOpener(widthMicrons, heightMicrons float64, deposits int) *SyntheticOpener {
	return &SyntheticOpener{
		WidthMicrons:  widthMicrons,
		HeightMicrons: heightMicrons,
		Background:    [3]float64{0.91, 0.76, 0.80},
		Stain:         [3]float64{0.42, 0.28, 0.16},
		Deposits:      deposits,
	}
}

// Open never touches the filesystem; the path only seeds the generator and
// names downstream artifacts.
func (o *SyntheticOpener) Open(path string) (Slide, error) {
	h := fnv.New64a()
	h.Write([]byte(path))
	return &syntheticSlide{opener: o, path: path, seed: int64(h.Sum64())}, nil
}

type syntheticSlide struct {
	opener *SyntheticOpener
	path   string
	seed   int64
}

func (s *syntheticSlide) Path() string { return s.path }

// ImageAtResolution renders the section at the requested resolution. Blob
// placement is in physical coordinates, so the same slide rendered at two
// resolutions shows the same anatomy at different pixel scales.
func (s *syntheticSlide) ImageAtResolution(micronsPerPixel float64) (*models.SlideImage, error) {
	if err := validateResolution(micronsPerPixel); err != nil {
		return nil, err
	}

	o := s.opener
	width := int(o.WidthMicrons/micronsPerPixel + 0.5)
	height := int(o.HeightMicrons/micronsPerPixel + 0.5)
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	out := models.NewSlideImage(width, height, 3)
	out.MicronsPerPixel = micronsPerPixel

	rng := rand.New(rand.NewSource(s.seed))

	type blob struct{ cx, cy, radius float64 } // physical microns
	blobs := make([]blob, o.Deposits)
	for i := range blobs {
		blobs[i] = blob{
			cx:     rng.Float64() * o.WidthMicrons,
			cy:     rng.Float64() * o.HeightMicrons,
			radius: 20 + rng.Float64()*60,
		}
	}

	for y := 0; y < height; y++ {
		py := (float64(y) + 0.5) * micronsPerPixel
		for x := 0; x < width; x++ {
			px := (float64(x) + 0.5) * micronsPerPixel

			// Stain weight is the strongest blob contribution at
			// this point.
			var w float64
			for _, b := range blobs {
				dx := (px - b.cx) / b.radius
				dy := (py - b.cy) / b.radius
				g := math.Exp(-0.5 * (dx*dx + dy*dy))
				if g > w {
					w = g
				}
			}

			for c := 0; c < 3; c++ {
				v := (1-w)*o.Background[c] + w*o.Stain[c]
				out.Set(x, y, c, v)
			}
		}
	}
	return out, nil
}
