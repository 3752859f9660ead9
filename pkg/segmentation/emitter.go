// Package segmentation persists the products of a tile scan: image crops
// for included tiles and a per-slide density map recording the activation
// fraction of every tile.
package segmentation

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/models"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/tiling"
)

// DensityMap is the per-slide tile grid of activation fractions. Cells is
// indexed [row][col] matching the scan grid (ceil(H/stride) rows,
// ceil(W/stride) cols); values are in [0, 1]. A density map is mutated only
// during its slide's scan and frozen once persisted.
type DensityMap struct {
	Cells    [][]float64
	ROICount int
}

// NewDensityMap allocates a zeroed grid with yPass rows and xPass columns.
func NewDensityMap(xPass, yPass int) *DensityMap {
	cells := make([][]float64, yPass)
	for i := range cells {
		cells[i] = make([]float64, xPass)
	}
	return &DensityMap{Cells: cells}
}

// Shape returns (xPass, yPass).
func (m *DensityMap) Shape() (xPass, yPass int) {
	if len(m.Cells) == 0 {
		return 0, 0
	}
	return len(m.Cells[0]), len(m.Cells)
}

// sidecar is the JSON metadata written next to the density array. Reloading
// it must reconstruct the same grid shape used downstream.
type sidecar struct {
	Densities [][]float64 `json:"densities"`
	ROICount  int         `json:"roi_count"`
}

// WriteArtifacts persists the density map as prefix.bin (row-major
// little-endian float64) and prefix.json (densities plus ROI count).
func (m *DensityMap) WriteArtifacts(prefix string) error {
	f, err := os.Create(prefix + ".bin")
	if err != nil {
		return fmt.Errorf("failed to create density array: %w", err)
	}
	for _, row := range m.Cells {
		if err := binary.Write(f, binary.LittleEndian, row); err != nil {
			f.Close()
			return fmt.Errorf("failed to write density array: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close density array: %w", err)
	}

	data, err := json.Marshal(sidecar{Densities: m.Cells, ROICount: m.ROICount})
	if err != nil {
		return fmt.Errorf("failed to marshal density metadata: %w", err)
	}
	if err := os.WriteFile(prefix+".json", data, 0644); err != nil {
		return fmt.Errorf("failed to write density metadata: %w", err)
	}
	return nil
}

// LoadDensityMap reloads a density map from its JSON sidecar.
func LoadDensityMap(path string) (*DensityMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read density metadata: %w", err)
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse density metadata: %w", err)
	}
	return &DensityMap{Cells: sc.Densities, ROICount: sc.ROICount}, nil
}

// Emitter writes ROI crops and accumulates density maps for one slide at a
// time. Safe for one slide per goroutine; slides never share a destination
// prefix.
type Emitter struct {
	stride  int
	format  string
	quality int
}

// NewEmitter returns an emitter cutting crops on the given stride grid and
// encoding them in the given format ("jpg", "png" or "webp").
func NewEmitter(stride int, format string, quality int) *Emitter {
	return &Emitter{stride: stride, format: format, quality: quality}
}

// Emit walks the decisions in scan order, writing one crop per included
// tile as {destPrefix}{dumpIndex}.{format} with a per-slide monotonic dump
// index, and records every tile's activation fraction in the density map at
// grid cell (x/stride, y/stride). The density map covers all tiles, not
// only included ones; it is the dataset for downstream histogram and ROC
// analysis. A write failure aborts the slide.
func (e *Emitter) Emit(decisions []tiling.Decision, img *models.SlideImage, destPrefix string) (*DensityMap, error) {
	xPass, yPass := tiling.GridShape(img.Width, img.Height, e.stride)
	density := NewDensityMap(xPass, yPass)

	dumpIndex := 0
	for _, d := range decisions {
		col := d.Tile.X0 / e.stride
		row := d.Tile.Y0 / e.stride
		density.Cells[row][col] = d.Fraction

		if !d.Included {
			continue
		}
		crop := cropTile(img, d.Tile)
		path := fmt.Sprintf("%s%d.%s", destPrefix, dumpIndex, e.format)
		if err := e.saveCrop(crop, path); err != nil {
			return nil, fmt.Errorf("failed to write crop %s: %w", path, err)
		}
		dumpIndex++
	}
	density.ROICount = dumpIndex
	return density, nil
}

// cropTile cuts the tile's exact pixel bounds from the slide image,
// including partial boundary tiles.
func cropTile(img *models.SlideImage, t tiling.Tile) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, t.Width, t.Height))
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			var rgb [3]uint8
			for c := 0; c < 3 && c < img.Channels; c++ {
				v := img.At(t.X0+x, t.Y0+y, c)
				if v < 0 {
					v = 0
				}
				if v > 1 {
					v = 1
				}
				rgb[c] = uint8(v*255 + 0.5)
			}
			out.SetNRGBA(x, y, color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255})
		}
	}
	return out
}

// saveCrop encodes the crop in the configured format.
func (e *Emitter) saveCrop(img image.Image, path string) error {
	switch strings.ToLower(e.format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Quality: float32(e.quality)})
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(e.quality))
	}
}
