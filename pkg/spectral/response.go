// Package spectral models the microscope sensor response to stained tissue
// and recovers per-chromophore contributions from observed pixels by
// batched linear least squares.
package spectral

import (
	"fmt"
	"math"
)

// Wavelength sampling grid shared by all spectra, in nanometres.
const (
	spectrumStart = 380.0
	spectrumEnd   = 720.0
	spectrumStep  = 10.0
)

// NumSamples is the number of wavelength samples in a Spectrum.
const NumSamples = int((spectrumEnd-spectrumStart)/spectrumStep) + 1

// Spectrum is a transmission spectrum sampled on the shared wavelength grid,
// values in [0, 1] (1 = fully transparent at that wavelength).
type Spectrum [NumSamples]float64

// Chromophore is a light-absorbing stain or tissue component with a known
// transmission spectrum.
type Chromophore struct {
	Name     string
	Spectrum Spectrum
}

// Sensor models the camera's per-channel spectral sensitivity. Each channel
// is a Gaussian band; the defaults approximate a Bayer RGB sensor.
type Sensor struct {
	// Centers and Widths are per-channel Gaussian parameters in nm.
	Centers []float64
	Widths  []float64
}

// DefaultSensor returns a 3-channel RGB sensor model.
func DefaultSensor() *Sensor {
	return &Sensor{
		Centers: []float64{600, 540, 450},
		Widths:  []float64{55, 50, 45},
	}
}

// Channels returns the number of sensor channels.
func (s *Sensor) Channels() int { return len(s.Centers) }

// Response integrates a transmission spectrum against each channel's
// sensitivity curve, returning one reading per channel normalised so that
// a flat unit spectrum reads 1.0 in every channel.
func (s *Sensor) Response(spec Spectrum) []float64 {
	out := make([]float64, len(s.Centers))
	for c := range s.Centers {
		var signal, norm float64
		for i := 0; i < NumSamples; i++ {
			wl := spectrumStart + float64(i)*spectrumStep
			d := (wl - s.Centers[c]) / s.Widths[c]
			sens := math.Exp(-0.5 * d * d)
			signal += sens * spec[i]
			norm += sens
		}
		out[c] = signal / norm
	}
	return out
}

// absorptionBand builds a transmission spectrum with a Gaussian absorption
// dip of the given depth centred at center nm.
func absorptionBand(center, width, depth float64) Spectrum {
	var spec Spectrum
	for i := 0; i < NumSamples; i++ {
		wl := spectrumStart + float64(i)*spectrumStep
		d := (wl - center) / width
		spec[i] = 1.0 - depth*math.Exp(-0.5*d*d)
	}
	return spec
}

// flatSpectrum builds a wavelength-independent transmission spectrum.
func flatSpectrum(level float64) Spectrum {
	var spec Spectrum
	for i := range spec {
		spec[i] = level
	}
	return spec
}

// DefaultChromophores returns the stain set used for DAB-stained brain
// tissue: the target stain first, the bulk-tissue transmission last.
// Absorption bands approximate published peak wavelengths (DAB broadband
// brown, hematoxylin ~560nm, eosin ~525nm).
func DefaultChromophores() []Chromophore {
	return []Chromophore{
		{Name: "dab", Spectrum: absorptionBand(460, 120, 0.75)},
		{Name: "hematoxylin", Spectrum: absorptionBand(560, 60, 0.70)},
		{Name: "eosin", Spectrum: absorptionBand(525, 45, 0.65)},
		{Name: "lightsource", Spectrum: flatSpectrum(1.0)},
		{Name: "tissue", Spectrum: flatSpectrum(0.55)},
	}
}

// ResponseMatrix is the chromophore-by-channel response matrix: one row per
// chromophore, one column per sensor channel. Row order fixes the semantic
// index of each unmixed weight map; Target and Tissue record the two rows
// the mask builder consumes. Immutable once constructed.
type ResponseMatrix struct {
	rows     [][]float64
	channels int

	// Target is the row index of the stain being segmented.
	Target int

	// Tissue is the row index of the bulk-tissue transmission row.
	Tissue int
}

// BuildResponseMatrix integrates every chromophore spectrum through the
// sensor and assembles the response matrix. The target and tissue rows are
// located by chromophore name.
func BuildResponseMatrix(sensor *Sensor, chromophores []Chromophore, target, tissue string) (*ResponseMatrix, error) {
	if len(chromophores) == 0 {
		return nil, fmt.Errorf("no chromophores supplied")
	}
	m := &ResponseMatrix{
		rows:     make([][]float64, len(chromophores)),
		channels: sensor.Channels(),
		Target:   -1,
		Tissue:   -1,
	}
	for i, ch := range chromophores {
		m.rows[i] = sensor.Response(ch.Spectrum)
		switch ch.Name {
		case target:
			m.Target = i
		case tissue:
			m.Tissue = i
		}
	}
	if m.Target < 0 {
		return nil, fmt.Errorf("target chromophore %q not in set", target)
	}
	if m.Tissue < 0 {
		return nil, fmt.Errorf("tissue chromophore %q not in set", tissue)
	}
	return m, nil
}

// NewResponseMatrix builds a matrix directly from precomputed response rows,
// copying them. target and tissue are row indices.
func NewResponseMatrix(rows [][]float64, target, tissue int) (*ResponseMatrix, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty response matrix")
	}
	channels := len(rows[0])
	m := &ResponseMatrix{
		rows:     make([][]float64, len(rows)),
		channels: channels,
		Target:   target,
		Tissue:   tissue,
	}
	for i, row := range rows {
		if len(row) != channels {
			return nil, fmt.Errorf("row %d has %d channels, want %d", i, len(row), channels)
		}
		m.rows[i] = append([]float64(nil), row...)
	}
	if target < 0 || target >= len(rows) || tissue < 0 || tissue >= len(rows) {
		return nil, fmt.Errorf("target/tissue row out of range")
	}
	return m, nil
}

// Rows returns the number of chromophore rows.
func (m *ResponseMatrix) Rows() int { return len(m.rows) }

// Channels returns the number of sensor channels per row.
func (m *ResponseMatrix) Channels() int { return m.channels }

// Row returns a copy of the i-th chromophore response vector.
func (m *ResponseMatrix) Row(i int) []float64 {
	return append([]float64(nil), m.rows[i]...)
}
