package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/models"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/config"
)

// slidesPerSimulatedCondition is how many synthetic slides are queued per
// condition when no real files back the cohort.
const slidesPerSimulatedCondition = 4

// ListSlides enumerates the slide descriptors for a batch. In scanner mode
// it walks {root}/{condition} for image files, ordered by the numeric part
// of their filenames so slide sequences keep their capture order. In
// simulated mode it fabricates deterministic descriptors per condition.
func ListSlides(cfg *config.Config) ([]models.SlideDescriptor, error) {
	if cfg.Slides.Simulated {
		var descs []models.SlideDescriptor
		for _, cond := range cfg.Slides.Conditions {
			for i := 0; i < slidesPerSimulatedCondition; i++ {
				descs = append(descs, models.SlideDescriptor{
					Path:      filepath.Join(cfg.Slides.Root, cond, fmt.Sprintf("sim_%s_%02d", cond, i)),
					Condition: cond,
					Simulated: true,
				})
			}
		}
		return descs, nil
	}

	var descs []models.SlideDescriptor
	for _, cond := range cfg.Slides.Conditions {
		dir := filepath.Join(cfg.Slides.Root, cond)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read slide directory %s: %w", dir, err)
		}

		var names []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".jpg", ".jpeg", ".png", ".tif", ".tiff", ".webp", ".bmp":
				names = append(names, entry.Name())
			}
		}
		sort.Slice(names, func(i, j int) bool {
			return extractNumber(names[i]) < extractNumber(names[j])
		})

		for _, name := range names {
			descs = append(descs, models.SlideDescriptor{
				Path:      filepath.Join(dir, name),
				Condition: cond,
			})
		}
	}
	if len(descs) == 0 {
		return nil, fmt.Errorf("no slides found under %s", cfg.Slides.Root)
	}
	return descs, nil
}

// extractNumber extracts the numeric part from a filename so slide
// sequences sort in capture order rather than lexically.
func extractNumber(filename string) int {
	numStr := ""
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}
	if numStr != "" {
		if num, err := strconv.Atoi(numStr); err == nil {
			return num
		}
	}
	return 0
}
