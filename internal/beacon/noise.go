package beacon

import (
	"fmt"

	"github.com/roman-kulish/beacon-surveillance/internal/dsp"
)

// Defaults for the narrowband noise window, in kHz of display frequency.
const (
	DefaultNoiseWindowKHz = 10.0
	DefaultExcludeKHz     = 3.0
)

// WithNoiseWindow sets the width of the estimation window around the beacon.
func WithNoiseWindow(khz float64) func(n *LocalNoise) {
	return func(n *LocalNoise) {
		n.windowKHz = khz
	}
}

// WithExclusion sets the width of the central region left out of the
// estimate.
func WithExclusion(khz float64) func(n *LocalNoise) {
	return func(n *LocalNoise) {
		n.excludeKHz = khz
	}
}

// LocalNoise estimates the narrowband noise floor fresh on every frame: the
// median power inside a window around the beacon, with the beacon's own
// bins cut out of the middle so the carrier does not lift its reference.
type LocalNoise struct {
	beaconMHz  float64
	windowKHz  float64
	excludeKHz float64

	ref  float64
	seen bool
}

// NewLocalNoise returns an estimator centered on the beacon display
// frequency in MHz.
func NewLocalNoise(beaconMHz float64, options ...func(n *LocalNoise)) *LocalNoise {
	n := LocalNoise{
		beaconMHz:  beaconMHz,
		windowKHz:  DefaultNoiseWindowKHz,
		excludeKHz: DefaultExcludeKHz,
	}

	for _, option := range options {
		option(&n)
	}

	return &n
}

// NoiseReference reports the estimate from the last normalized frame.
func (n *LocalNoise) NoiseReference() (float64, bool) {
	return n.ref, n.seen
}

// Normalize subtracts the frame's own local noise estimate from power.
func (n *LocalNoise) Normalize(axis, power []float64) ([]float64, error) {
	if len(axis) != len(power) {
		return nil, fmt.Errorf("axis has %d bins, power has %d", len(axis), len(power))
	}

	halfWindow := n.windowKHz / 2e3
	halfExclude := n.excludeKHz / 2e3

	var window []float64
	for i, f := range axis {
		dist := f - n.beaconMHz
		if dist <= -halfWindow || dist >= halfWindow {
			continue
		}
		if dist > -halfExclude && dist < halfExclude {
			continue
		}
		window = append(window, power[i])
	}
	if len(window) == 0 {
		return nil, ErrEmptyNoiseMask
	}

	n.ref = dsp.Median(window)
	n.seen = true

	out := make([]float64, len(power))
	for i, v := range power {
		out[i] = v - n.ref
	}

	return out, nil
}
