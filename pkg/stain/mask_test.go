package stain

import (
	"math"
	"testing"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/models"
)

func planeFrom(width, height int, values []float64) *models.Plane {
	p := models.NewPlane(width, height)
	copy(p.Pix, values)
	return p
}

// TestNormaliseFormula verifies the exact shift-then-scale policy:
// shifted = F + max(|min|, |max|), out = shifted / max(shifted). The
// downstream thresholds were tuned against this formula, so it must be
// reproduced exactly rather than replaced by a min-max rescale.
func TestNormaliseFormula(t *testing.T) {
	p := planeFrom(3, 1, []float64{-2, 0, 1})
	out := Normalise(p)

	// shift = max(2, 1) = 2, shifted = [0, 2, 3], max = 3.
	want := []float64{0, 2.0 / 3.0, 1}
	for i, v := range out.Pix {
		if math.Abs(v-want[i]) > 1e-12 {
			t.Errorf("Pixel %d: expected %f, got %f", i, want[i], v)
		}
	}

	// A min-max rescale would give [0, 2/3, 1] only when |min| >= |max|;
	// check the asymmetric case too.
	p2 := planeFrom(3, 1, []float64{-1, 0, 3})
	out2 := Normalise(p2)
	// shift = 3, shifted = [2, 3, 6], max = 6.
	want2 := []float64{2.0 / 6.0, 3.0 / 6.0, 1}
	for i, v := range out2.Pix {
		if math.Abs(v-want2[i]) > 1e-12 {
			t.Errorf("Asymmetric pixel %d: expected %f, got %f", i, want2[i], v)
		}
	}
}

// TestNormaliseIdempotentShape verifies that applying Normalise twice still
// yields a maximum of exactly 1.0 and preserves the rank ordering of
// elements.
func TestNormaliseIdempotentShape(t *testing.T) {
	values := []float64{-3.5, -1.2, 0.0, 0.4, 2.2, 7.9, -0.1, 5.0}
	p := planeFrom(len(values), 1, values)

	once := Normalise(p)
	twice := Normalise(once)

	max := twice.Pix[0]
	for _, v := range twice.Pix {
		if v > max {
			max = v
		}
	}
	if math.Abs(max-1.0) > 1e-12 {
		t.Errorf("Double-normalised max: expected 1.0, got %g", max)
	}

	for i := range values {
		for j := range values {
			if values[i] < values[j] && twice.Pix[i] >= twice.Pix[j] {
				t.Errorf("Rank order broken between elements %d and %d", i, j)
			}
		}
	}
}

// TestNormaliseAllZero verifies that an all-zero plane stays all zero
// instead of dividing by zero.
func TestNormaliseAllZero(t *testing.T) {
	p := models.NewPlane(4, 4)
	out := Normalise(p)
	for i, v := range out.Pix {
		if v != 0 {
			t.Fatalf("Pixel %d: expected 0, got %f", i, v)
		}
	}
}

// TestNormaliseDoesNotMutateInput verifies the input plane is left intact.
func TestNormaliseDoesNotMutateInput(t *testing.T) {
	values := []float64{-1, 2, 3}
	p := planeFrom(3, 1, values)
	Normalise(p)
	for i, v := range p.Pix {
		if v != values[i] {
			t.Errorf("Input pixel %d mutated: %f -> %f", i, values[i], v)
		}
	}
}

// TestBuildMaskSignConvention verifies that detection is on the negative
// side of rawSignal = Normalise(target) - Normalise(background): pixels
// strictly below the threshold are flagged, pixels at or above are not.
func TestBuildMaskSignConvention(t *testing.T) {
	target := planeFrom(2, 2, []float64{0.0, 1.0, 0.2, 0.8})
	background := planeFrom(2, 2, []float64{1.0, 0.0, 0.9, 0.1})

	raw, mask := BuildMask(target, background, -0.5)

	if raw.Width != 2 || raw.Height != 2 {
		t.Fatalf("Raw signal shape %dx%d, want 2x2", raw.Width, raw.Height)
	}
	for i := range raw.Pix {
		flagged := mask.Pix[i] == 1
		if (raw.Pix[i] < -0.5) != flagged {
			t.Errorf("Pixel %d: raw %f, flagged %v", i, raw.Pix[i], flagged)
		}
	}
}

// TestBuildMaskDeterministic verifies that identical inputs always produce
// identical outputs.
func TestBuildMaskDeterministic(t *testing.T) {
	target := planeFrom(3, 1, []float64{0.1, -0.4, 0.9})
	background := planeFrom(3, 1, []float64{0.5, 0.5, 0.2})

	raw1, mask1 := BuildMask(target, background, -0.2)
	raw2, mask2 := BuildMask(target, background, -0.2)

	for i := range raw1.Pix {
		if raw1.Pix[i] != raw2.Pix[i] || mask1.Pix[i] != mask2.Pix[i] {
			t.Fatalf("Nondeterministic output at pixel %d", i)
		}
	}
}
