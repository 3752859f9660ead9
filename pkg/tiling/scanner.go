// Package tiling partitions a slide into a fixed-stride scan grid and
// decides per tile whether it holds enough stain activation to qualify as a
// region of interest.
package tiling

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/models"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/stain"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/visualization"
)

// Mode selects which inclusion policy the scanner applies. The two policies
// use different statistics and were calibrated independently; their
// thresholds are not comparable.
type Mode int

const (
	// ModeRaw includes a tile when the mean stain-mask value (fraction of
	// pixels below the raw threshold) exceeds RawActivationFraction.
	ModeRaw Mode = iota

	// ModeDifferential includes a tile when the fraction of pixels whose
	// colormapped raw signal has |red - blue| above ColorThreshold
	// exceeds AreaFraction.
	ModeDifferential
)

// Policy holds the inclusion thresholds for both modes.
type Policy struct {
	Mode Mode

	// RawActivationFraction is the tile mask-fraction cutoff in raw mode.
	RawActivationFraction float64

	// AreaFraction and ColorThreshold are the differential-mode cutoffs.
	AreaFraction   float64
	ColorThreshold float64
}

// Tile is one window of the scan grid. Boundary tiles are clipped to the
// image edge and may be smaller than the stride.
type Tile struct {
	X0, Y0        int
	Width, Height int
}

// Decision is the scanner's verdict for one tile: the continuous activation
// fraction, recorded for every tile, and whether the tile passed the
// inclusion policy.
type Decision struct {
	Tile     Tile
	Included bool
	Fraction float64
}

// GridShape returns the scan grid dimensions ceil(W/stride) x ceil(H/stride).
func GridShape(width, height, stride int) (xPass, yPass int) {
	xPass = int(math.Ceil(float64(width) / float64(stride)))
	yPass = int(math.Ceil(float64(height) / float64(stride)))
	return xPass, yPass
}

// Scanner generates per-tile decisions. It has no side effects; the emitter
// consumes its output.
type Scanner struct {
	stride int
	policy Policy
}

// NewScanner returns a scanner with the given stride and inclusion policy.
func NewScanner(stride int, policy Policy) (*Scanner, error) {
	if stride <= 0 {
		return nil, fmt.Errorf("tiling: stride must be positive, got %d", stride)
	}
	return &Scanner{stride: stride, policy: policy}, nil
}

// Stride returns the tile edge length in pixels.
func (s *Scanner) Stride() int { return s.stride }

// Scan walks the grid x-major (outer loop over x, inner over y) and returns
// one decision per tile in that order. The order is load-bearing: it fixes
// the dump-index assignment for emitted crops. raw is the signed raw signal
// map and mask its thresholded 0/1 presence mask; both must share a shape.
func (s *Scanner) Scan(raw, mask *models.Plane) ([]Decision, error) {
	if raw.Width != mask.Width || raw.Height != mask.Height {
		return nil, fmt.Errorf("tiling: raw %dx%d and mask %dx%d shapes differ",
			raw.Width, raw.Height, mask.Width, mask.Height)
	}

	activation, cutoff := s.activation(raw, mask)

	xPass, yPass := GridShape(raw.Width, raw.Height, s.stride)
	decisions := make([]Decision, 0, xPass*yPass)
	buf := make([]float64, 0, s.stride*s.stride)

	for x := 0; x < raw.Width; x += s.stride {
		for y := 0; y < raw.Height; y += s.stride {
			tile := Tile{X0: x, Y0: y, Width: s.stride, Height: s.stride}
			if x+tile.Width > raw.Width {
				tile.Width = raw.Width - x
			}
			if y+tile.Height > raw.Height {
				tile.Height = raw.Height - y
			}

			buf = buf[:0]
			for ty := tile.Y0; ty < tile.Y0+tile.Height; ty++ {
				row := activation.Pix[ty*activation.Width+tile.X0 : ty*activation.Width+tile.X0+tile.Width]
				buf = append(buf, row...)
			}
			frac := stat.Mean(buf, nil)

			decisions = append(decisions, Decision{
				Tile:     tile,
				Included: frac > cutoff,
				Fraction: frac,
			})
		}
	}
	return decisions, nil
}

// activation reduces the inputs to a single 0/1 indicator plane whose tile
// mean is the activation fraction, plus the fraction cutoff for the active
// mode. This keeps both policies shape-equivalent so callers switch mode
// with a flag.
func (s *Scanner) activation(raw, mask *models.Plane) (*models.Plane, float64) {
	if s.policy.Mode == ModeRaw {
		return mask, s.policy.RawActivationFraction
	}

	// Differential mode: colormap the normalised raw signal and flag
	// pixels whose red/blue separation exceeds the per-pixel threshold.
	norm := stain.Normalise(raw)
	ind := models.NewPlane(raw.Width, raw.Height)
	for i, v := range norm.Pix {
		r, _, b := visualization.Seismic(v)
		if math.Abs(r-b) > s.policy.ColorThreshold {
			ind.Pix[i] = 1
		}
	}
	return ind, s.policy.AreaFraction
}
