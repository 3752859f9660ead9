// Package config provides configuration loading and management for the
// stain segmentation pipeline. It handles loading configuration from YAML
// files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the pipeline configuration loaded from YAML. It is
// built once at startup and passed by reference into the components; no
// component mutates it.
type Config struct {
	// Processing parameters
	Processing struct {
		// Stride is the tile edge length in pixels
		Stride int `yaml:"stride"`

		// MicronsPerPixel is the physical resolution slides are decoded at
		MicronsPerPixel float64 `yaml:"micronsPerPixel"`

		// RawThreshold is the raw-signal detection cutoff; detection is on
		// the negative side, so more negative is more restrictive
		RawThreshold float64 `yaml:"rawThreshold"`

		// Mode selects the tile inclusion policy: "raw" or "differential"
		Mode string `yaml:"mode"`

		// RawActivationFraction is the tile mask-fraction cutoff in raw mode
		RawActivationFraction float64 `yaml:"rawActivationFraction"`

		// AreaFraction and ColorThreshold are the differential-mode cutoffs
		AreaFraction   float64 `yaml:"areaFraction"`
		ColorThreshold float64 `yaml:"colorThreshold"`

		// Workers is the number of slides processed concurrently
		Workers int `yaml:"workers"`
	} `yaml:"processing"`

	// Slide input parameters
	Slides struct {
		// Root is the directory holding one subfolder per condition
		Root string `yaml:"root"`

		// Conditions are the cohort subfolder names to enumerate
		Conditions []string `yaml:"conditions"`

		// Simulated selects the synthetic slide generator instead of the
		// scanner-backed decoder
		Simulated bool `yaml:"simulated"`

		// BaseMicronsPerPixel is the capture resolution of scanner exports
		BaseMicronsPerPixel float64 `yaml:"baseMicronsPerPixel"`

		// Target and Tissue name the response-matrix rows the mask builder
		// subtracts (target - tissue)
		Target string `yaml:"target"`
		Tissue string `yaml:"tissue"`
	} `yaml:"slides"`

	// Output parameters
	Output struct {
		// Dir is the root directory for crops and density artifacts
		Dir string `yaml:"dir"`

		// CropFormat is the crop image encoding: "jpg", "png" or "webp"
		CropFormat string `yaml:"cropFormat"`

		// CropQuality is the lossy encoder quality (1-100)
		CropQuality int `yaml:"cropQuality"`

		// SaveHeatmaps renders each slide's density map to an image
		SaveHeatmaps bool `yaml:"saveHeatmaps"`

		// Verbose enables debug-level logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values. The fraction
// thresholds carry the calibrated values the masks were tuned with.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Stride = 512
	cfg.Processing.MicronsPerPixel = 2.0
	cfg.Processing.RawThreshold = -0.15
	cfg.Processing.Mode = "raw"
	cfg.Processing.RawActivationFraction = 0.00125
	cfg.Processing.AreaFraction = 0.0375
	cfg.Processing.ColorThreshold = 0.8
	cfg.Processing.Workers = runtime.NumCPU()

	cfg.Slides.Root = "slides"
	cfg.Slides.Conditions = []string{"PD", "Control"}
	cfg.Slides.Simulated = false
	cfg.Slides.BaseMicronsPerPixel = 0.5
	cfg.Slides.Target = "dab"
	cfg.Slides.Tissue = "tissue"

	cfg.Output.Dir = "segmented"
	cfg.Output.CropFormat = "jpg"
	cfg.Output.CropQuality = 90
	cfg.Output.SaveHeatmaps = false
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Processing.Stride <= 0 {
		return fmt.Errorf("stride must be positive, got %d", c.Processing.Stride)
	}
	if c.Processing.MicronsPerPixel <= 0 {
		return fmt.Errorf("micronsPerPixel must be positive, got %g", c.Processing.MicronsPerPixel)
	}
	if c.Processing.Mode != "raw" && c.Processing.Mode != "differential" {
		return fmt.Errorf("mode must be \"raw\" or \"differential\", got %q", c.Processing.Mode)
	}
	if c.Processing.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Processing.Workers)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
