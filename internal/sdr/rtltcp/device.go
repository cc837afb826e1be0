// Package rtltcp binds the acquisition pipeline to rtl_tcp-family servers.
// rtl_tcp, airspy_tcp and hackrf_tcp speak the same binary command protocol
// and stream unsigned 8-bit IQ pairs back over the socket, which keeps the
// receiver a network hop away from the display machine.
package rtltcp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"strings"
	"time"

	"github.com/bemasher/rtltcp"

	"github.com/roman-kulish/beacon-surveillance/internal/sdr"
)

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger
	}
}

// Device drives one server session. It implements sdr.Radio; the client
// owns the TCP connection and performs the handshake on connect.
type Device struct {
	client rtltcp.SDR
	logger *slog.Logger
}

// Open connects to the server at address and validates its handshake.
func Open(address string, options ...func(d *Device)) (*Device, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %w", sdr.ErrStreamOpen, address, err)
	}

	d := Device{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&d)
	}

	if err := d.client.Connect(addr); err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %w", sdr.ErrStreamOpen, address, err)
	}

	info := d.client.Info
	if string(info.Magic[:]) != dongleMagic {
		err := fmt.Errorf("%w: unexpected handshake magic %q from %s", sdr.ErrStreamOpen, info.Magic, address)
		if cerr := d.client.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}

	d.logger = d.logger.With(slog.String("address", address))
	d.logger.Info("receiver connected",
		slog.String("tuner", tunerName(uint32(info.Tuner))),
		slog.Uint64("gain_count", uint64(info.GainCount)))

	return &d, nil
}

func (d *Device) SetSampleRate(hz float64) error {
	if err := d.client.SetSampleRate(uint32(hz)); err != nil {
		return fmt.Errorf("setting sample rate: %w", err)
	}
	return nil
}

func (d *Device) SetCenterFrequency(hz float64) error {
	if err := d.client.SetCenterFreq(uint32(hz)); err != nil {
		return fmt.Errorf("setting center frequency: %w", err)
	}
	return nil
}

// SetFrequencyCorrection sends the crystal correction. The wire carries a
// signed integer in two's complement.
func (d *Device) SetFrequencyCorrection(ppm float64) error {
	if err := d.client.SetFreqCorrection(uint32(int32(math.Round(ppm)))); err != nil {
		return fmt.Errorf("setting frequency correction: %w", err)
	}
	return nil
}

// SetGain maps gain stages onto the protocol. Only the tuner gain (or the
// overall gain, via the empty stage name) can be expressed; a non-positive
// value hands control back to the device AGC. Every other stage reports
// sdr.ErrGainUnsupported so the producer skips it.
func (d *Device) SetGain(stage string, db float64) error {
	switch strings.ToUpper(stage) {
	case "", "TUNER":
	default:
		return fmt.Errorf("%w: %s", sdr.ErrGainUnsupported, stage)
	}

	if db <= 0 {
		if err := d.client.SetGainMode(true); err != nil { // true selects tuner AGC
			return fmt.Errorf("setting auto gain mode: %w", err)
		}
		if err := d.client.SetAGCMode(true); err != nil {
			return fmt.Errorf("enabling agc: %w", err)
		}
		return nil
	}

	if err := d.client.SetGainMode(false); err != nil {
		return fmt.Errorf("setting manual gain mode: %w", err)
	}
	if err := d.client.SetGain(uint32(math.Round(db * 10))); err != nil { // tenths of dB
		return fmt.Errorf("setting tuner gain: %w", err)
	}

	return nil
}

// StartStream exposes the session's sample flow. The server streams from
// the moment the connection is up; activation is implicit.
func (d *Device) StartStream() (sdr.Stream, error) {
	return &stream{device: d}, nil
}

func (d *Device) Close() error {
	return d.client.Close()
}

// stream reads u8 IQ pairs off the session socket and converts them to
// complex64 baseband samples.
type stream struct {
	device *Device
	raw    []byte
}

func (s *stream) Read(buf []complex64, timeout time.Duration) (int, error) {
	need := len(buf) * 2
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:need]

	if err := s.device.client.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("setting read deadline: %w", err)
	}

	read, err := io.ReadFull(s.device.client, raw)

	samples := read / 2
	for i := 0; i < samples; i++ {
		buf[i] = complex(
			(float32(raw[2*i])-127)/128,
			(float32(raw[2*i+1])-127)/128,
		)
	}

	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if samples == 0 {
				return 0, sdr.ErrReadTimeout
			}
			return samples, nil // short block; the transform zero-pads
		}
		return samples, fmt.Errorf("reading samples: %w", err)
	}

	return samples, nil
}

// Close is a no-op: the protocol has no deactivate command, disconnecting
// the session in Device.Close stops the flow.
func (s *stream) Close() error {
	return nil
}
