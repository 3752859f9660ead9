// Package visualization renders density maps and raw signal maps to images
// for visual QA, and provides the diverging colormap the differential
// inclusion policy evaluates.
package visualization

// Seismic maps v in [0, 1] through a blue-white-red diverging colormap
// (piecewise-linear approximation of the classic seismic map): 0 is dark
// blue, 0.5 is white, 1 is dark red. Values outside [0, 1] are clamped.
// Returned components are in [0, 1].
func Seismic(v float64) (r, g, b float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	switch {
	case v < 0.25:
		t := v / 0.25
		return 0, 0, 0.3 + 0.7*t
	case v < 0.5:
		t := (v - 0.25) / 0.25
		return t, t, 1
	case v < 0.75:
		t := (v - 0.5) / 0.25
		return 1, 1 - t, 1 - t
	default:
		t := (v - 0.75) / 0.25
		return 1 - 0.5*t, 0, 0
	}
}
