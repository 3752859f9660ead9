// Package stain turns unmixed chromophore weight maps into a signed raw
// signal map and a thresholded stain-presence mask.
package stain

import (
	"math"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/models"
)

// Detection is on the negative side of the raw signal: the raw signal is
// Normalise(target) - Normalise(background), and after normalisation the
// background term dominates the baseline, so more negative values mean
// stronger relative target-stain presence. The downstream thresholds were
// tuned against exactly this convention; changing the subtraction order
// silently flips it.
//
// DetectBelowThreshold names the convention so callers and tests state it
// explicitly instead of relying on a bare comparison direction.
const DetectBelowThreshold = true

// Normalise maps a plane into [0, 1] by shifting it with the larger of
// |min| and |max| and dividing by the new maximum:
//
//	shifted = F + max(|min F|, |max F|)
//	out     = shifted / max(shifted)
//
// This is not a min-max rescale: it preserves rank order but is not
// symmetric around the data range, and downstream thresholds depend on the
// exact formula. Applying it twice still yields a maximum of exactly 1.
// The input plane is not modified.
func Normalise(p *models.Plane) *models.Plane {
	out := models.NewPlane(p.Width, p.Height)
	if len(p.Pix) == 0 {
		return out
	}

	lo, hi := p.Pix[0], p.Pix[0]
	for _, v := range p.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	shift := math.Max(math.Abs(lo), math.Abs(hi))
	maxShifted := hi + shift
	if maxShifted == 0 {
		// All-zero plane stays all zero.
		return out
	}
	for i, v := range p.Pix {
		out.Pix[i] = (v + shift) / maxShifted
	}
	return out
}

// BuildMask combines the target-stain and background-tissue weight maps into
// the signed raw signal map and its boolean presence mask. The mask is
// returned as a plane holding 0 or 1 so tile statistics can average it
// directly. Pure: identical inputs always produce identical outputs.
func BuildMask(target, background *models.Plane, rawThreshold float64) (raw, mask *models.Plane) {
	nt := Normalise(target)
	nb := Normalise(background)

	raw = models.NewPlane(target.Width, target.Height)
	mask = models.NewPlane(target.Width, target.Height)
	for i := range raw.Pix {
		v := nt.Pix[i] - nb.Pix[i]
		raw.Pix[i] = v
		if v < rawThreshold {
			mask.Pix[i] = 1
		}
	}
	return raw, mask
}
