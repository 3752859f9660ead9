package models

// SlideImage holds decoded slide pixel data as a flat float64 array in
// row-major order (y, then x, then channel), intensities in the 0-1 range.
type SlideImage struct {
	// Pix is the pixel data, len = Width*Height*Channels
	Pix []float64

	// Width and Height are the image dimensions in pixels
	Width  int
	Height int

	// Channels is the number of sensor channels per pixel (3 for RGB)
	Channels int

	// MicronsPerPixel is the physical resolution the image was decoded at
	MicronsPerPixel float64
}

// NewSlideImage allocates a zeroed slide image with the given dimensions.
func NewSlideImage(width, height, channels int) *SlideImage {
	return &SlideImage{
		Pix:      make([]float64, width*height*channels),
		Width:    width,
		Height:   height,
		Channels: channels,
	}
}

// At returns the intensity of channel c at pixel (x, y).
func (s *SlideImage) At(x, y, c int) float64 {
	return s.Pix[(y*s.Width+x)*s.Channels+c]
}

// Set writes the intensity of channel c at pixel (x, y).
func (s *SlideImage) Set(x, y, c int, v float64) {
	s.Pix[(y*s.Width+x)*s.Channels+c] = v
}

// Plane is a single-channel 2D map over the slide, one scalar per pixel,
// stored row-major. Weight maps, raw signal maps and stain masks all share
// this shape.
type Plane struct {
	// Pix is the scalar data, len = Width*Height
	Pix []float64

	// Width and Height are the plane dimensions in pixels
	Width  int
	Height int
}

// NewPlane allocates a zeroed plane with the given dimensions.
func NewPlane(width, height int) *Plane {
	return &Plane{
		Pix:    make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the value at (x, y).
func (p *Plane) At(x, y int) float64 {
	return p.Pix[y*p.Width+x]
}

// Set writes the value at (x, y).
func (p *Plane) Set(x, y int, v float64) {
	p.Pix[y*p.Width+x] = v
}

// SlideDescriptor identifies one slide queued for batch processing.
type SlideDescriptor struct {
	// Path is the slide file path. For simulated slides it only seeds the
	// generator and names the outputs.
	Path string

	// Condition is the cohort subfolder the slide belongs to
	// (e.g. "PD" or "Control"); outputs are grouped under it.
	Condition string

	// Simulated selects the synthetic slide source instead of the
	// scanner-backed decoder.
	Simulated bool
}

// SlideFailure records a slide that could not be processed.
type SlideFailure struct {
	Path string
	Err  error
}

// BatchReport summarises a batch run: which slides produced artifacts and
// which failed. A batch always completes; failures never abort it.
type BatchReport struct {
	// Succeeded lists the paths of slides that were fully processed,
	// whether or not any ROI was found.
	Succeeded []string

	// Failed lists slides that could not be opened or whose outputs could
	// not be written.
	Failed []SlideFailure
}
