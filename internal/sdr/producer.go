package sdr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/beacon-surveillance/internal/dsp"
	"github.com/roman-kulish/beacon-surveillance/internal/spectrum"
	"github.com/roman-kulish/beacon-surveillance/internal/telemetry"
)

// DefaultReadTimeout bounds a single stream read so a stop request is
// observed promptly.
const DefaultReadTimeout = 100 * time.Millisecond

// WithLogger sets the logger for the producer
func WithLogger(logger *slog.Logger) func(p *Producer) {
	return func(p *Producer) {
		p.logger = logger.With(
			slog.String("driver", p.profile.Kind),
			slog.String("address", p.profile.Address),
		)
	}
}

// WithReadTimeout overrides the bounded read timeout
func WithReadTimeout(timeout time.Duration) func(p *Producer) {
	return func(p *Producer) {
		p.readTimeout = timeout
	}
}

// WithMetrics attaches the quality instruments
func WithMetrics(m *telemetry.Metrics) func(p *Producer) {
	return func(p *Producer) {
		p.metrics = m
	}
}

// Producer owns the opened receiver and continuously turns sample blocks
// into power spectra on its own goroutine. Spectra reach the consumer
// through a single-slot channel with latest-value semantics: a stale frame
// is overwritten rather than queued, because the display is lossy by
// design.
//
// The producer takes ownership of the radio; the stream and the hardware
// handle are released on every exit path.
type Producer struct {
	radio    Radio
	profile  *DeviceProfile
	analyzer *dsp.Analyzer
	centerHz float64

	isStreaming atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	err         error

	readTimeout time.Duration
	logger      *slog.Logger
	metrics     *telemetry.Metrics
}

// NewProducer creates a Producer for the resolved profile, tuned to
// centerHz, with a discard logger.
func NewProducer(radio Radio, profile *DeviceProfile, analyzer *dsp.Analyzer, centerHz float64, options ...func(p *Producer)) *Producer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	p := Producer{
		radio:       radio,
		profile:     profile,
		analyzer:    analyzer,
		centerHz:    centerHz,
		readTimeout: DefaultReadTimeout,
		logger:      logger,
		metrics:     telemetry.New(nil),
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Start configures the radio from the profile, activates the receive
// stream and begins the acquisition loop. The returned channel holds at
// most one pending frame and is closed when the loop terminates.
func (p *Producer) Start(ctx context.Context) (<-chan spectrum.Frame, error) {
	if p.isStreaming.Load() {
		return nil, fmt.Errorf("producer is already running")
	}

	stream, err := p.configure()
	if err != nil {
		if cerr := p.radio.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}

	p.isStreaming.Store(true)
	ctx, p.cancel = context.WithCancel(ctx)

	frames := make(chan spectrum.Frame, 1)

	p.wg.Add(1)
	go p.run(ctx, stream, frames)

	return frames, nil
}

// Stop requests the acquisition loop to terminate and blocks until the
// stream and the hardware handle have been released.
func (p *Producer) Stop() {
	if !p.isStreaming.Load() {
		return // already stopped
	}

	p.cancel()
	p.wg.Wait()
}

// Wait blocks until the acquisition loop has terminated.
func (p *Producer) Wait() {
	p.wg.Wait()
}

// IsStreaming returns true while the acquisition loop is running.
func (p *Producer) IsStreaming() bool {
	return p.isStreaming.Load()
}

// Err reports the terminal stream fault, if any. Valid once the loop has
// ended.
func (p *Producer) Err() error {
	return p.err
}

// configure applies the profile to the radio. Sample rate and centre
// frequency failures are fatal; frequency correction and gain failures are
// logged and skipped.
func (p *Producer) configure() (Stream, error) {
	if err := p.radio.SetSampleRate(p.profile.SampleRate); err != nil {
		return nil, fmt.Errorf("%w: setting sample rate: %w", ErrStreamOpen, err)
	}
	if err := p.radio.SetCenterFrequency(p.centerHz); err != nil {
		return nil, fmt.Errorf("%w: setting center frequency: %w", ErrStreamOpen, err)
	}

	if p.profile.SupportsPPM && p.profile.PPM != 0 {
		if err := p.radio.SetFrequencyCorrection(p.profile.PPM); err != nil {
			p.logger.Warn("frequency correction not applied", slog.Any("error", err))
		}
	}

	for _, gain := range p.profile.Gains {
		err := p.radio.SetGain(gain.Stage, gain.Value)
		if err == nil {
			continue
		}

		p.metrics.GainFallbacks.Inc()
		p.logger.Debug("gain stage skipped",
			slog.String("stage", gain.Stage),
			slog.Any("error", err))

		if p.profile.FallbackGain != nil {
			if err := p.radio.SetGain("", *p.profile.FallbackGain); err != nil {
				p.logger.Warn("overall gain fallback not applied", slog.Any("error", err))
			}
			break
		}
	}

	stream, err := p.radio.StartStream()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamOpen, err)
	}

	return stream, nil
}

func (p *Producer) run(ctx context.Context, stream Stream, frames chan spectrum.Frame) {
	defer func() {
		if err := stream.Close(); err != nil {
			p.logger.Error("error closing stream", slog.Any("error", err))
		}
		if err := p.radio.Close(); err != nil {
			p.logger.Error("error closing radio", slog.Any("error", err))
		}

		close(frames)
		p.isStreaming.Store(false)
		p.wg.Done()
	}()

	p.logger.Info("starting spectrum production...",
		slog.Float64("sample_rate", p.profile.SampleRate),
		slog.Int("fft_size", p.profile.FFTSize))

	buf := make([]complex64, p.profile.FFTSize)
	var seq uint64

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("spectrum production stopped")
			return
		default:
		}

		n, err := stream.Read(buf, p.readTimeout)
		switch {
		case errors.Is(err, ErrReadTimeout):
			p.metrics.ReadTimeouts.Inc()
			continue
		case errors.Is(err, ErrOverflow):
			p.metrics.ReadOverflows.Inc()
			continue
		case err != nil:
			if ctx.Err() != nil {
				return // read aborted by shutdown, not a fault
			}

			p.metrics.ReadErrors.Inc()
			p.err = fmt.Errorf("stream read: %w", err)
			p.logger.Error(p.err.Error())
			return
		}

		if n == 0 {
			continue
		}
		if n < len(buf) {
			p.metrics.ShortReads.Inc()
		}

		frame := spectrum.Frame{
			Seq:       seq,
			Timestamp: time.Now(),
			Power:     p.analyzer.Process(buf[:n]),
		}
		seq++

		select {
		case frames <- frame:
		default:
			// Overwrite the pending frame; the consumer only ever wants
			// the most recent spectrum.
			select {
			case <-frames:
				p.metrics.FramesDropped.Inc()
			default:
			}
			select {
			case frames <- frame:
			default:
			}
		}

		p.metrics.FramesProduced.Inc()
	}
}
