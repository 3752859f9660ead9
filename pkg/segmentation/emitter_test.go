package segmentation

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/models"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/tiling"
)

func testImage(width, height int) *models.SlideImage {
	img := models.NewSlideImage(width, height, 3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, 0, float64(x)/float64(width))
			img.Set(x, y, 1, float64(y)/float64(height))
			img.Set(x, y, 2, 0.5)
		}
	}
	return img
}

// scanDecisions builds decisions for the image through a real scanner so
// the emitter sees the production enumeration order.
func scanDecisions(t *testing.T, img *models.SlideImage, stride int, mask *models.Plane, cutoff float64) []tiling.Decision {
	t.Helper()
	scanner, err := tiling.NewScanner(stride, tiling.Policy{Mode: tiling.ModeRaw, RawActivationFraction: cutoff})
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}
	raw := models.NewPlane(img.Width, img.Height)
	decisions, err := scanner.Scan(raw, mask)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return decisions
}

// TestEmitCropDensityConsistency verifies that the number of crops written
// equals the persisted roi_count equals the number of included decisions,
// and that every tile's fraction lands in its density cell.
func TestEmitCropDensityConsistency(t *testing.T) {
	img := testImage(100, 100)
	stride := 50

	// Activate the top-left and bottom-right tiles only.
	mask := models.NewPlane(100, 100)
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			mask.Set(x, y, 1)
			mask.Set(x+50, y+50, 1)
		}
	}

	decisions := scanDecisions(t, img, stride, mask, 0.5)
	included := 0
	for _, d := range decisions {
		if d.Included {
			included++
		}
	}
	if included != 2 {
		t.Fatalf("Expected 2 included tiles, got %d", included)
	}

	dir := t.TempDir()
	prefix := filepath.Join(dir, "slide_")
	emitter := NewEmitter(stride, "png", 90)

	density, err := emitter.Emit(decisions, img, prefix)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	if density.ROICount != included {
		t.Errorf("ROICount %d, want %d", density.ROICount, included)
	}

	// Dump indices are assigned in scan order starting at 0.
	for i := 0; i < included; i++ {
		path := fmt.Sprintf("%s%d.png", prefix, i)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Missing crop file %s: %v", path, err)
		}
	}
	if _, err := os.Stat(fmt.Sprintf("%s%d.png", prefix, included)); err == nil {
		t.Errorf("Unexpected extra crop file with index %d", included)
	}

	xPass, yPass := density.Shape()
	if xPass != 2 || yPass != 2 {
		t.Fatalf("Density shape (%d,%d), want (2,2)", xPass, yPass)
	}
	for _, d := range decisions {
		cell := density.Cells[d.Tile.Y0/stride][d.Tile.X0/stride]
		if cell != d.Fraction {
			t.Errorf("Cell (%d,%d) holds %f, want %f",
				d.Tile.Y0/stride, d.Tile.X0/stride, cell, d.Fraction)
		}
	}
}

// TestEmitRecordsAllTiles verifies that the density map records the
// continuous fraction for excluded tiles too.
func TestEmitRecordsAllTiles(t *testing.T) {
	img := testImage(100, 100)
	mask := models.NewPlane(100, 100)
	// Weak activation everywhere: below any sensible cutoff, but nonzero.
	for i := 0; i < 100; i++ {
		mask.Pix[i] = 1
	}

	decisions := scanDecisions(t, img, 50, mask, 0.9)
	emitter := NewEmitter(50, "jpg", 90)
	density, err := emitter.Emit(decisions, img, filepath.Join(t.TempDir(), "s"))
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if density.ROICount != 0 {
		t.Errorf("ROICount %d, want 0", density.ROICount)
	}

	var sum float64
	for _, row := range density.Cells {
		for _, v := range row {
			sum += v
		}
	}
	if sum == 0 {
		t.Error("Density map should record nonzero fractions for excluded tiles")
	}
}

// TestSingleTileScenario verifies the 100x100 image / stride 512 case:
// one grid cell, and when its fraction clears the threshold exactly one
// crop and one density cell with the measured fraction.
func TestSingleTileScenario(t *testing.T) {
	img := testImage(100, 100)
	mask := models.NewPlane(100, 100)
	for i := 0; i < 200; i++ {
		mask.Pix[i] = 1 // fraction 0.02
	}

	decisions := scanDecisions(t, img, 512, mask, 0.00125)
	if len(decisions) != 1 {
		t.Fatalf("Expected a single decision, got %d", len(decisions))
	}

	dir := t.TempDir()
	prefix := filepath.Join(dir, "one_")
	density, err := NewEmitter(512, "png", 90).Emit(decisions, img, prefix)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	if xPass, yPass := density.Shape(); xPass != 1 || yPass != 1 {
		t.Fatalf("Density shape (%d,%d), want (1,1)", xPass, yPass)
	}
	if density.ROICount != 1 {
		t.Errorf("ROICount %d, want 1", density.ROICount)
	}
	if math.Abs(density.Cells[0][0]-0.02) > 1e-12 {
		t.Errorf("Density cell %f, want 0.02", density.Cells[0][0])
	}
	if _, err := os.Stat(prefix + "0.png"); err != nil {
		t.Errorf("Missing single crop file: %v", err)
	}
}

// TestCropDimensionsMatchPartialTiles verifies that boundary crops keep
// their exact clipped pixel bounds.
func TestCropDimensionsMatchPartialTiles(t *testing.T) {
	img := testImage(70, 50)
	mask := models.NewPlane(70, 50)
	for i := range mask.Pix {
		mask.Pix[i] = 1
	}

	decisions := scanDecisions(t, img, 64, mask, 0.5)
	crop := cropTile(img, decisions[len(decisions)-1].Tile)

	last := decisions[len(decisions)-1].Tile
	if crop.Bounds().Dx() != last.Width || crop.Bounds().Dy() != last.Height {
		t.Errorf("Crop %dx%d, tile %dx%d",
			crop.Bounds().Dx(), crop.Bounds().Dy(), last.Width, last.Height)
	}
	if last.Width == 64 && last.Height == 64 {
		t.Error("Expected a partial boundary tile in a 70x50 image with stride 64")
	}
}

// TestDensityArtifactsRoundTrip verifies the array file size and that the
// JSON sidecar reconstructs the same grid shape and values.
func TestDensityArtifactsRoundTrip(t *testing.T) {
	density := NewDensityMap(3, 2)
	for row := range density.Cells {
		for col := range density.Cells[row] {
			density.Cells[row][col] = float64(row*3+col) / 10.0
		}
	}
	density.ROICount = 4

	prefix := filepath.Join(t.TempDir(), "grid")
	if err := density.WriteArtifacts(prefix); err != nil {
		t.Fatalf("WriteArtifacts failed: %v", err)
	}

	info, err := os.Stat(prefix + ".bin")
	if err != nil {
		t.Fatalf("Missing density array file: %v", err)
	}
	if info.Size() != 3*2*8 {
		t.Errorf("Array file size %d, want %d", info.Size(), 3*2*8)
	}

	loaded, err := LoadDensityMap(prefix + ".json")
	if err != nil {
		t.Fatalf("LoadDensityMap failed: %v", err)
	}
	if loaded.ROICount != 4 {
		t.Errorf("Reloaded roi_count %d, want 4", loaded.ROICount)
	}
	xPass, yPass := loaded.Shape()
	if xPass != 3 || yPass != 2 {
		t.Fatalf("Reloaded shape (%d,%d), want (3,2)", xPass, yPass)
	}
	for row := range density.Cells {
		for col := range density.Cells[row] {
			if loaded.Cells[row][col] != density.Cells[row][col] {
				t.Errorf("Cell (%d,%d) round-tripped as %f, want %f",
					row, col, loaded.Cells[row][col], density.Cells[row][col])
			}
		}
	}
}
