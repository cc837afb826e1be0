// Package beacon turns averaged power spectra into beacon-relative
// measurements: a noise reference to normalize spectra against, and the
// plateau level of the wideband beacon above that reference.
package beacon

import "errors"

var (
	// ErrCalibrating is returned while the noise reference is still being
	// established and no normalized spectrum is available yet.
	ErrCalibrating = errors.New("noise reference not calibrated")

	// ErrEmptyNoiseMask is returned when no spectrum bins fall inside the
	// noise estimation region.
	ErrEmptyNoiseMask = errors.New("no bins in noise estimation region")
)

// Normalizer folds a noise reference into averaged spectra, producing
// noise-relative power.
type Normalizer interface {
	// Normalize returns power expressed relative to the noise reference.
	// It returns ErrCalibrating while the reference is being established.
	Normalize(axis, power []float64) ([]float64, error)

	// NoiseReference reports the current reference in dB and whether one
	// has been established.
	NoiseReference() (float64, bool)
}
