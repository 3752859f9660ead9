package visualization

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/models"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/stain"
)

// RenderGrid renders a density grid (values in [0, 1], indexed [row][col])
// as a heatmap image with cellSize x cellSize pixels per cell.
func RenderGrid(cells [][]float64, cellSize int) (*image.NRGBA, error) {
	if len(cells) == 0 || len(cells[0]) == 0 {
		return nil, fmt.Errorf("visualization: empty grid")
	}
	if cellSize < 1 {
		cellSize = 1
	}
	rows := len(cells)
	cols := len(cells[0])

	img := image.NewNRGBA(image.Rect(0, 0, cols*cellSize, rows*cellSize))
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			c := seismicColor(cells[row][col])
			for dy := 0; dy < cellSize; dy++ {
				for dx := 0; dx < cellSize; dx++ {
					img.SetNRGBA(col*cellSize+dx, row*cellSize+dy, c)
				}
			}
		}
	}
	return img, nil
}

// RenderSignal renders a raw signal plane as a heatmap, normalising it to
// [0, 1] with the pipeline's normalisation policy so the rendered colours
// match what the differential policy evaluates.
func RenderSignal(p *models.Plane) *image.NRGBA {
	norm := stain.Normalise(p)
	img := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			img.SetNRGBA(x, y, seismicColor(norm.At(x, y)))
		}
	}
	return img
}

func seismicColor(v float64) color.NRGBA {
	r, g, b := Seismic(v)
	return color.NRGBA{
		R: uint8(r*255 + 0.5),
		G: uint8(g*255 + 0.5),
		B: uint8(b*255 + 0.5),
		A: 255,
	}
}
