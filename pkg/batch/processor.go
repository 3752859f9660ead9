// Package batch drives the full pipeline over a set of slides: each slide
// is opened, unmixed, masked, tiled and emitted independently, with a
// configurable number of concurrent workers. One bad slide never aborts the
// batch; a degenerate response model always does.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/models"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/config"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/segmentation"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/slide"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/spectral"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/stain"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/tiling"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/visualization"
)

// Synthetic cohort geometry: section extent in microns and deposit count
// for stained cohorts. Control cohorts get clean sections.
const (
	syntheticExtentMicrons = 4096
	syntheticDeposits      = 32
)

// Processor runs the unmix -> mask -> scan -> emit pipeline per slide.
type Processor struct {
	cfg     *config.Config
	unmixer *spectral.Unmixer
	scanner *tiling.Scanner
	emitter *segmentation.Emitter
	log     zerolog.Logger

	// OpenerFor selects the slide source for a descriptor. The default
	// picks the scanner-backed opener or, for simulated slides, a
	// synthetic generator whose deposit count depends on the condition.
	// Tests substitute their own.
	OpenerFor func(models.SlideDescriptor) slide.Opener
}

// NewProcessor wires the pipeline components from the configuration and a
// validated unmixer.
func NewProcessor(cfg *config.Config, unmixer *spectral.Unmixer, log zerolog.Logger) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy := tiling.Policy{
		Mode:                  tiling.ModeRaw,
		RawActivationFraction: cfg.Processing.RawActivationFraction,
		AreaFraction:          cfg.Processing.AreaFraction,
		ColorThreshold:        cfg.Processing.ColorThreshold,
	}
	if cfg.Processing.Mode == "differential" {
		policy.Mode = tiling.ModeDifferential
	}
	scanner, err := tiling.NewScanner(cfg.Processing.Stride, policy)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		cfg:     cfg,
		unmixer: unmixer,
		scanner: scanner,
		emitter: segmentation.NewEmitter(cfg.Processing.Stride, cfg.Output.CropFormat, cfg.Output.CropQuality),
		log:     log,
	}
	p.OpenerFor = p.defaultOpener
	return p, nil
}

func (p *Processor) defaultOpener(desc models.SlideDescriptor) slide.Opener {
	if !desc.Simulated {
		return slide.NewScannerOpener(p.cfg.Slides.BaseMicronsPerPixel)
	}
	deposits := syntheticDeposits
	if strings.EqualFold(desc.Condition, "control") {
		deposits = 0
	}
	return slide.NewSyntheticOpener(syntheticExtentMicrons, syntheticExtentMicrons, deposits)
}

// ProcessAll runs the batch over the descriptors with the configured worker
// count and returns the success/failure manifest. Per-slide failures are
// recorded in the report, never raised. The returned error is non-nil only
// for run-level failures (a degenerate response model), which cancel the
// remaining work. Cancelling ctx lets in-flight slides finish and skips the
// rest, so no partial density artifacts are left behind.
func (p *Processor) ProcessAll(ctx context.Context, descriptors []models.SlideDescriptor) (*models.BatchReport, error) {
	workers := p.cfg.Processing.Workers
	if workers > len(descriptors) && len(descriptors) > 0 {
		workers = len(descriptors)
	}

	jobs := make(chan models.SlideDescriptor)
	type outcome struct {
		path string
		err  error
	}
	results := make(chan outcome, len(descriptors))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for desc := range jobs {
				// Cancellation is batch-level: slides not yet
				// started are skipped, the current one runs to
				// completion.
				if runCtx.Err() != nil {
					results <- outcome{path: desc.Path, err: fmt.Errorf("batch cancelled: %w", runCtx.Err())}
					continue
				}
				results <- outcome{path: desc.Path, err: p.processSlide(desc)}
			}
		}()
	}

	go func() {
		for _, desc := range descriptors {
			jobs <- desc
		}
		close(jobs)
	}()

	report := &models.BatchReport{}
	var fatal error
	for range descriptors {
		res := <-results
		if res.err == nil {
			report.Succeeded = append(report.Succeeded, res.path)
			continue
		}
		if errors.Is(res.err, spectral.ErrDegenerateFit) && fatal == nil {
			// A rank-deficient response matrix invalidates every
			// slide; stop handing out work.
			fatal = res.err
			cancel()
		}
		report.Failed = append(report.Failed, models.SlideFailure{Path: res.path, Err: res.err})
		p.log.Error().Err(res.err).Str("slide", res.path).Msg("slide failed")
	}
	wg.Wait()

	// Completion order is nondeterministic across workers; outputs are
	// keyed by slide filename, so sort the manifest for stable reports.
	sort.Strings(report.Succeeded)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Path < report.Failed[j].Path })

	return report, fatal
}

// processSlide runs the full per-slide pipeline sequentially.
func (p *Processor) processSlide(desc models.SlideDescriptor) error {
	sl, err := p.OpenerFor(desc).Open(desc.Path)
	if err != nil {
		return err
	}

	img, err := sl.ImageAtResolution(p.cfg.Processing.MicronsPerPixel)
	if err != nil {
		return err
	}
	p.log.Debug().Str("slide", desc.Path).
		Int("width", img.Width).Int("height", img.Height).
		Float64("mpp", img.MicronsPerPixel).Msg("decoded slide")

	weights, err := p.unmixer.Unmix(img)
	if err != nil {
		return err
	}

	matrix := p.unmixer.Matrix()
	raw, mask := stain.BuildMask(weights[matrix.Target], weights[matrix.Tissue], p.cfg.Processing.RawThreshold)

	decisions, err := p.scanner.Scan(raw, mask)
	if err != nil {
		return err
	}

	destDir := filepath.Join(p.cfg.Output.Dir, desc.Condition)
	// Workers race on condition directories; create-if-absent is safe.
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(desc.Path), filepath.Ext(desc.Path))
	prefix := filepath.Join(destDir, base)

	density, err := p.emitter.Emit(decisions, img, prefix)
	if err != nil {
		return err
	}
	if err := density.WriteArtifacts(prefix + "_density"); err != nil {
		return err
	}

	if p.cfg.Output.SaveHeatmaps {
		heat, err := visualization.RenderGrid(density.Cells, 8)
		if err == nil {
			err = imaging.Save(heat, prefix+"_density.png")
		}
		if err != nil {
			return fmt.Errorf("failed to render density heatmap: %w", err)
		}
	}

	var flat []float64
	for _, row := range density.Cells {
		flat = append(flat, row...)
	}
	p.log.Info().Str("slide", desc.Path).
		Str("condition", desc.Condition).
		Int("rois", density.ROICount).
		Float64("meanDensity", stat.Mean(flat, nil)).
		Msg("slide processed")
	return nil
}
