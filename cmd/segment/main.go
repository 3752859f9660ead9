package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/internal/logger"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/batch"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/config"
	"github.com/nhsx-mirror/skunkworks-parkinsons-detection/pkg/spectral"
)

func main() {
	configPath := flag.String("config", "segment.yaml", "Path to YAML configuration")
	inputDir := flag.String("input", "", "Slide root directory (overrides config)")
	outputDir := flag.String("output", "", "Output directory for crops and density maps (overrides config)")
	workers := flag.Int("workers", 0, "Number of concurrent slide workers (overrides config)")
	mode := flag.String("mode", "", "Tile inclusion policy: raw or differential (overrides config)")
	simulated := flag.Bool("simulated", false, "Use the synthetic slide generator instead of scanner files")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.New(false).Fatal().Err(err).Msg("failed to load configuration")
	}
	if *inputDir != "" {
		cfg.Slides.Root = *inputDir
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *workers > 0 {
		cfg.Processing.Workers = *workers
	}
	if *mode != "" {
		cfg.Processing.Mode = *mode
	}
	if *simulated {
		cfg.Slides.Simulated = true
	}
	if *verbose {
		cfg.Output.Verbose = true
	}

	log := logger.New(cfg.Output.Verbose)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	matrix, err := spectral.BuildResponseMatrix(
		spectral.DefaultSensor(),
		spectral.DefaultChromophores(),
		cfg.Slides.Target,
		cfg.Slides.Tissue,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build response matrix")
	}
	unmixer, err := spectral.NewUnmixer(matrix)
	if err != nil {
		log.Fatal().Err(err).Msg("response matrix unusable")
	}

	descriptors, err := batch.ListSlides(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to enumerate slides")
	}
	log.Info().Int("slides", len(descriptors)).
		Int("workers", cfg.Processing.Workers).
		Str("mode", cfg.Processing.Mode).
		Float64("mpp", cfg.Processing.MicronsPerPixel).
		Msg("starting batch")

	processor, err := batch.NewProcessor(cfg, unmixer, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build processor")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	report, err := processor.ProcessAll(ctx, descriptors)
	if err != nil {
		log.Fatal().Err(err).Msg("batch aborted")
	}

	log.Info().
		Int("succeeded", len(report.Succeeded)).
		Int("failed", len(report.Failed)).
		Dur("elapsed", time.Since(start)).
		Msg("batch complete")
	for _, f := range report.Failed {
		log.Warn().Str("slide", f.Path).Err(f.Err).Msg("slide was skipped")
	}
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}
