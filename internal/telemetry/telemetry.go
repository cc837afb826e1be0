// Package telemetry exposes the pipeline's quality instruments. Read
// anomalies are expected during normal operation; counting them makes their
// rate visible without ever interrupting the streaming loop.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "beacon"

// Metrics aggregates the acquisition counters and tracking gauges. Passing
// a nil registerer yields working but unexported collectors, so callers in
// tests or tools never need nil checks on the hot path.
type Metrics struct {
	ReadTimeouts    prometheus.Counter // Bounded reads that returned no data
	ReadErrors      prometheus.Counter // Stream read faults that end the acquisition loop
	ReadOverflows   prometheus.Counter // Device-side buffer saturation events
	ShortReads      prometheus.Counter // Blocks delivered with fewer than N samples
	FramesProduced  prometheus.Counter // Spectra handed to the consumer slot
	FramesDropped   prometheus.Counter // Spectra overwritten before consumption
	FramesJournaled prometheus.Counter // Spectra persisted to the session journal
	GainFallbacks   prometheus.Counter // Gain stages skipped as unsupported

	NoiseReference prometheus.Gauge // Latched or per-frame noise floor, dB
	Plateau        prometheus.Gauge // Smoothed beacon plateau level, dB
	OffsetKHz      prometheus.Gauge // Current display offset correction, kHz
	SampleRate     prometheus.Gauge // Negotiated stream sample rate, Hz
}

// New creates the collectors and registers them when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := Metrics{
		ReadTimeouts:    newCounter("read_timeouts_total", "Bounded stream reads that timed out."),
		ReadErrors:      newCounter("read_errors_total", "Stream read failures."),
		ReadOverflows:   newCounter("read_overflows_total", "Device buffer overflow indications."),
		ShortReads:      newCounter("short_reads_total", "Sample blocks shorter than the transform length."),
		FramesProduced:  newCounter("frames_produced_total", "Power spectra produced."),
		FramesDropped:   newCounter("frames_dropped_total", "Power spectra dropped before consumption."),
		FramesJournaled: newCounter("frames_journaled_total", "Power spectra written to the session journal."),
		GainFallbacks:   newCounter("gain_fallbacks_total", "Gain stages the device did not support."),

		NoiseReference: newGauge("noise_reference_db", "Noise reference used for normalisation, dB."),
		Plateau:        newGauge("plateau_db", "Smoothed beacon plateau level, dB."),
		OffsetKHz:      newGauge("offset_khz", "Display frequency offset correction, kHz."),
		SampleRate:     newGauge("sample_rate_hz", "Negotiated stream sample rate, Hz."),
	}

	if reg != nil {
		reg.MustRegister(
			m.ReadTimeouts, m.ReadErrors, m.ReadOverflows, m.ShortReads,
			m.FramesProduced, m.FramesDropped, m.FramesJournaled, m.GainFallbacks,
			m.NoiseReference, m.Plateau, m.OffsetKHz, m.SampleRate,
		)
	}

	return &m
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}
