package spectral

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/models"
)

// ErrDegenerateFit reports a response matrix too close to rank-deficient for
// the least-squares solver to produce meaningful weights. It indicates a
// misconfigured response model and is fatal to the whole run, not to a
// single slide.
var ErrDegenerateFit = errors.New("spectral: degenerate response matrix")

// condLimit is the condition number above which the response matrix is
// treated as rank-deficient.
const condLimit = 1e12

// Unmixer decomposes slide pixels into per-chromophore weights against a
// fixed response matrix.
type Unmixer struct {
	matrix *ResponseMatrix

	// coeff is the transposed response matrix (channels x chromophores),
	// the coefficient matrix of every per-pixel system.
	coeff *mat.Dense
}

// NewUnmixer validates the response matrix conditioning once up front and
// returns an unmixer bound to it.
func NewUnmixer(matrix *ResponseMatrix) (*Unmixer, error) {
	rows := matrix.Rows()
	channels := matrix.Channels()

	coeff := mat.NewDense(channels, rows, nil)
	for r := 0; r < rows; r++ {
		row := matrix.rows[r]
		for c := 0; c < channels; c++ {
			coeff.Set(c, r, row[c])
		}
	}

	cond := mat.Cond(coeff, 2)
	if cond > condLimit {
		return nil, fmt.Errorf("%w: condition number %.3g", ErrDegenerateFit, cond)
	}

	return &Unmixer{matrix: matrix, coeff: coeff}, nil
}

// Matrix returns the response matrix the unmixer was built from.
func (u *Unmixer) Matrix() *ResponseMatrix { return u.matrix }

// Unmix solves the batched least-squares system
//
//	coeff (C x R) . weights (R x N) ~= pixels (C x N)
//
// where N = H*W, reusing the same coefficient matrix for every pixel, and
// returns one H x W weight plane per chromophore row. The image is consumed
// as a read-only view; no pixel data is mutated.
func (u *Unmixer) Unmix(img *models.SlideImage) ([]*models.Plane, error) {
	channels := u.matrix.Channels()
	if img.Channels != channels {
		return nil, fmt.Errorf("spectral: image has %d channels, response matrix expects %d", img.Channels, channels)
	}

	n := img.Width * img.Height

	// View the image buffer as an N x C pixel list, transposed into the
	// C x N observation matrix the solver wants.
	obs := mat.NewDense(channels, n, nil)
	for i := 0; i < n; i++ {
		base := i * channels
		for c := 0; c < channels; c++ {
			obs.Set(c, i, img.Pix[base+c])
		}
	}

	var weights mat.Dense
	if err := weights.Solve(u.coeff, obs); err != nil {
		// A Condition error carries a usable solution; anything else
		// means the solver gave up.
		if _, ok := err.(mat.Condition); !ok {
			return nil, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
		}
	}

	maps := make([]*models.Plane, u.matrix.Rows())
	for r := range maps {
		plane := models.NewPlane(img.Width, img.Height)
		for i := 0; i < n; i++ {
			plane.Pix[i] = weights.At(r, i)
		}
		maps[r] = plane
	}
	return maps, nil
}
