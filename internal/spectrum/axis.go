package spectrum

import "fmt"

// AxisConfig describes how hardware bins map to displayed frequencies. The
// receiver digitizes at an intermediate frequency; the nominal LO of the
// external downconverter and a fixed readout base shift the axis into the
// operator's frame, and the persisted offset correction moves it further by
// fractions of a kHz.
type AxisConfig struct {
	CenterHz       float64 // Hardware tuning point (IF), Hz
	SampleRateHz   float64 // Stream sample rate, Hz
	Bins           int     // Transform length N
	LOMHz          float64 // Nominal downconverter LO, MHz
	ReadoutBaseMHz float64 // Subtracted from displayed frequencies, MHz
}

// Axis is the cached frequency axis in MHz: strictly increasing, uniform
// spacing of fs/N. It is recomputed only when the offset correction
// changes, never per frame.
type Axis struct {
	cfg    AxisConfig
	values []float64
	offset float64 // last applied correction, kHz
}

// NewAxis creates an Axis and computes it for the given initial offset.
func NewAxis(cfg AxisConfig, offsetKHz float64) (*Axis, error) {
	if cfg.Bins <= 0 {
		return nil, fmt.Errorf("bin count must be positive, got %d", cfg.Bins)
	}
	if cfg.SampleRateHz <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRateHz)
	}

	a := Axis{
		cfg:    cfg,
		values: make([]float64, cfg.Bins),
	}
	a.Recompute(offsetKHz)

	return &a, nil
}

// Recompute rebuilds the axis for a new offset correction and returns it.
// Displayed power values are unaffected; the consumer re-pairs the existing
// trace with the new axis.
func (a *Axis) Recompute(offsetKHz float64) []float64 {
	start := (a.cfg.CenterHz - a.cfg.SampleRateHz/2) / 1e6
	step := a.cfg.SampleRateHz / float64(a.cfg.Bins) / 1e6
	base := a.cfg.LOMHz - a.cfg.ReadoutBaseMHz + offsetKHz/1000

	for i := range a.values {
		a.values[i] = start + float64(i)*step + base
	}
	a.offset = offsetKHz

	return a.values
}

// Values returns the cached axis. The slice is owned by the Axis; callers
// must not modify it.
func (a *Axis) Values() []float64 {
	return a.values
}

// Start returns the first axis value in MHz.
func (a *Axis) Start() float64 {
	return a.values[0]
}

// Step returns the bin width in MHz.
func (a *Axis) Step() float64 {
	return a.cfg.SampleRateHz / float64(a.cfg.Bins) / 1e6
}

// Offset returns the correction the axis was last computed with, in kHz.
func (a *Axis) Offset() float64 {
	return a.offset
}
