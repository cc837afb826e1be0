package beacon

import (
	"fmt"
	"time"
)

// Defaults for the wideband calibration phase.
const (
	DefaultDwell          = 3 * time.Second
	DefaultRegionFraction = 0.10
)

// State reports the calibration phase.
type State int

const (
	StateCalibrating State = iota
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateCalibrating:
		return "calibrating"
	case StateLocked:
		return "locked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// WithDwell sets how long spectra are observed before the reference locks.
func WithDwell(dwell time.Duration) func(c *Calibrator) {
	return func(c *Calibrator) {
		c.dwell = dwell
	}
}

// WithRegionFraction sets the leading fraction of bins averaged into the
// reference.
func WithRegionFraction(fraction float64) func(c *Calibrator) {
	return func(c *Calibrator) {
		c.fraction = fraction
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) func(c *Calibrator) {
	return func(c *Calibrator) {
		c.now = now
	}
}

// Calibrator establishes the wideband noise reference. It watches spectra
// for a dwell period so the averaging ring settles on live data, then
// latches the arithmetic mean of the leading spectrum edge, a region the
// beacon band never reaches. The reference does not re-arm while the
// session runs.
type Calibrator struct {
	dwell    time.Duration
	fraction float64
	now      func() time.Time

	deadline time.Time
	armed    bool
	locked   bool
	ref      float64
}

// NewCalibrator returns a Calibrator in the calibrating state. The dwell
// starts with the first observed spectrum.
func NewCalibrator(options ...func(c *Calibrator)) *Calibrator {
	c := Calibrator{
		dwell:    DefaultDwell,
		fraction: DefaultRegionFraction,
		now:      time.Now,
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// State reports whether the reference has locked.
func (c *Calibrator) State() State {
	if c.locked {
		return StateLocked
	}
	return StateCalibrating
}

// NoiseReference reports the locked reference.
func (c *Calibrator) NoiseReference() (float64, bool) {
	return c.ref, c.locked
}

// Normalize subtracts the noise reference from power. Until the dwell
// elapses it consumes spectra and returns ErrCalibrating; the frame that
// crosses the deadline latches the reference and is normalized against it.
func (c *Calibrator) Normalize(axis, power []float64) ([]float64, error) {
	if len(power) == 0 {
		return nil, ErrEmptyNoiseMask
	}
	if len(axis) != len(power) {
		return nil, fmt.Errorf("axis has %d bins, power has %d", len(axis), len(power))
	}

	if !c.locked {
		if !c.armed {
			c.deadline = c.now().Add(c.dwell)
			c.armed = true
		}
		if c.now().Before(c.deadline) {
			return nil, ErrCalibrating
		}

		region := power[:LeadingRegion(len(power), c.fraction)]
		var sum float64
		for _, v := range region {
			sum += v
		}
		c.ref = sum / float64(len(region))
		c.locked = true
	}

	out := make([]float64, len(power))
	for i, v := range power {
		out[i] = v - c.ref
	}

	return out, nil
}

// LeadingRegion sizes the reference region for a span of bins, at least
// one bin. Displays use it to shade the estimation region while
// calibrating.
func LeadingRegion(bins int, fraction float64) int {
	region := int(fraction * float64(bins))
	if region < 1 {
		region = 1
	}
	if region > bins {
		region = bins
	}
	return region
}
