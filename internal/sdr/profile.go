package sdr

import (
	"fmt"
	"slices"
	"strings"
)

// Mode selects the acquisition variant and with it the per-driver parameter
// table and preference order.
type Mode string

const (
	// ModeNarrowband centres on a single beacon and normalises against a
	// per-frame local noise estimate.
	ModeNarrowband Mode = "narrowband"

	// ModeWideband spans the whole transponder and normalises against a
	// noise reference latched once after a calibration dwell.
	ModeWideband Mode = "wideband"
)

// Valid reports whether m names a known acquisition mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeNarrowband, ModeWideband:
		return true
	}
	return false
}

// Frontend describes a detected receiver front-end, assembled by probing
// the configured endpoints.
type Frontend struct {
	Kind    string // Driver family: "rtlsdr", "airspy", "hackrf"
	Serial  string // Optional device serial
	Address string // Endpoint of the rtl_tcp-family server
	Tuner   string // Tuner chip reported during the probe handshake
}

// GainSetting is one named gain stage and its value in dB.
type GainSetting struct {
	Stage string
	Value float64
}

// DeviceProfile carries the operating parameters the producer applies when
// opening a device. Created once per stream start; immutable afterwards.
type DeviceProfile struct {
	Kind       string
	Serial     string
	Address    string
	SampleRate float64       // Hz
	FFTSize    int           // Transform length N
	Gains      []GainSetting // Applied best-effort, in order

	// FallbackGain, when present, is applied once as the overall gain after
	// a stage fails, instead of trying the remaining stages.
	FallbackGain *float64

	// SupportsPPM marks driver families that accept a crystal correction.
	SupportsPPM bool

	// PPM is the frequency correction to apply when supported.
	PPM float64
}

// GenericDefaults parameterise the profile for driver kinds missing from
// the mode's table.
type GenericDefaults struct {
	SampleRate float64
	FFTSize    int
}

type deviceParams struct {
	sampleRate  float64
	fftSize     int
	gains       []GainSetting
	fallback    *float64
	supportsPPM bool
}

const narrowbandFFTSize = 8192 * 5

// Operating parameters per driver family. Airspy cannot run slow enough for
// the narrowband view, so it trades gain staging instead; HackRF keeps its
// two-stage analog chain.
var narrowbandParams = map[string]deviceParams{
	"rtlsdr": {
		sampleRate:  2.4e6,
		fftSize:     narrowbandFFTSize,
		gains:       []GainSetting{{Stage: "TUNER", Value: 30}},
		supportsPPM: true,
	},
	"airspy": {
		sampleRate: 2.5e6,
		fftSize:    narrowbandFFTSize,
		gains:      []GainSetting{{Stage: "LNA", Value: 12}, {Stage: "LINEARITY", Value: 5}, {Stage: "SENSITIVITY", Value: 5}},
	},
	"hackrf": {
		sampleRate: 2.0e6,
		fftSize:    narrowbandFFTSize,
		gains:      []GainSetting{{Stage: "LNA", Value: 32}, {Stage: "VGA", Value: 16}},
	},
}

var widebandParams = map[string]deviceParams{
	"airspy": {
		sampleRate: 6.0e6,
		fftSize:    40960,
		gains:      []GainSetting{{Stage: "LNA", Value: 32}, {Stage: "VGA", Value: 10}},
		fallback:   f64(40),
	},
	"rtlsdr": {
		sampleRate:  2.048e6,
		fftSize:     8192 * 2,
		gains:       []GainSetting{{Stage: "TUNER", Value: 30}},
		fallback:    f64(40),
		supportsPPM: true,
	},
	"hackrf": {
		sampleRate: 3.0e6,
		fftSize:    40960,
		gains:      []GainSetting{{Stage: "LNA", Value: 32}, {Stage: "VGA", Value: 10}},
		fallback:   f64(40),
	},
}

var preference = map[Mode][]string{
	ModeNarrowband: {"rtlsdr", "airspy", "hackrf"},
	ModeWideband:   {"airspy", "rtlsdr", "hackrf"},
}

// DefaultPreference returns the driver preference order for the mode.
func DefaultPreference(m Mode) []string {
	return slices.Clone(preference[m])
}

// Resolve picks the first front-end matching the preference order and
// derives its operating parameters from the mode's table. Kinds missing
// from the table fall back to a generic profile built from the caller's
// defaults. Resolution is pure selection: opening the hardware is the
// producer's concern.
func Resolve(mode Mode, frontends []Frontend, pref []string, generic GenericDefaults) (*DeviceProfile, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	if len(pref) == 0 {
		pref = DefaultPreference(mode)
	}

	table := narrowbandParams
	if mode == ModeWideband {
		table = widebandParams
	}

	for _, kind := range pref {
		kind = strings.ToLower(kind)

		for _, fe := range frontends {
			if !strings.EqualFold(fe.Kind, kind) {
				continue
			}

			profile := DeviceProfile{
				Kind:    kind,
				Serial:  fe.Serial,
				Address: fe.Address,
			}

			params, ok := table[kind]
			if !ok {
				if generic.SampleRate <= 0 || generic.FFTSize <= 0 {
					return nil, fmt.Errorf("driver %q has no parameter table and no generic defaults were given", kind)
				}

				profile.SampleRate = generic.SampleRate
				profile.FFTSize = generic.FFTSize
				return &profile, nil
			}

			profile.SampleRate = params.sampleRate
			profile.FFTSize = params.fftSize
			profile.Gains = slices.Clone(params.gains)
			profile.SupportsPPM = params.supportsPPM
			if params.fallback != nil {
				profile.FallbackGain = f64(*params.fallback)
			}

			return &profile, nil
		}
	}

	return nil, ErrNoDevice
}

func f64(v float64) *float64 {
	return &v
}
