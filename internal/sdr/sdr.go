// Package sdr owns the acquisition side of the pipeline: resolving which
// receiver front-end to use, driving its control surface, and producing
// power spectra from the sample stream.
package sdr

import (
	"errors"
	"time"
)

var (
	// ErrNoDevice is returned when no front-end matches the preference order
	ErrNoDevice = errors.New("no supported device found")

	// ErrStreamOpen wraps failures to configure or activate the receive stream
	ErrStreamOpen = errors.New("stream open failed")

	// ErrGainUnsupported marks a gain stage the device cannot set; callers skip the stage
	ErrGainUnsupported = errors.New("gain stage not supported")

	// ErrReadTimeout is returned by Stream.Read when no data arrives within the bound
	ErrReadTimeout = errors.New("read timed out")

	// ErrOverflow is returned by Stream.Read when the device reports buffer saturation
	ErrOverflow = errors.New("device buffer overflow")
)

// Radio is the control surface of an opened receiver front-end. Every call
// is fallible; the producer decides which failures are fatal.
type Radio interface {
	SetSampleRate(hz float64) error
	SetCenterFrequency(hz float64) error

	// SetFrequencyCorrection applies a crystal correction in parts per million.
	SetFrequencyCorrection(ppm float64) error

	// SetGain sets one named gain stage in dB. The empty stage name selects
	// the device's overall gain. Stages the device cannot express return
	// ErrGainUnsupported.
	SetGain(stage string, db float64) error

	// StartStream activates the receive stream.
	StartStream() (Stream, error)

	// Close releases the hardware handle.
	Close() error
}

// Stream delivers complex baseband samples from an active receive stream.
type Stream interface {
	// Read fills buf with up to len(buf) samples within the given bound. It
	// returns ErrReadTimeout when no data arrived in time and ErrOverflow
	// when the device reports saturation; both are per-cycle conditions.
	// Fewer than len(buf) samples may be returned. Any other error is
	// terminal for the stream.
	Read(buf []complex64, timeout time.Duration) (int, error)

	// Close deactivates the stream.
	Close() error
}
