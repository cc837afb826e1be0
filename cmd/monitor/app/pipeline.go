package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/beacon-surveillance/internal/beacon"
	"github.com/roman-kulish/beacon-surveillance/internal/feed"
	"github.com/roman-kulish/beacon-surveillance/internal/offset"
	"github.com/roman-kulish/beacon-surveillance/internal/sdr"
	"github.com/roman-kulish/beacon-surveillance/internal/spectrum"
	"github.com/roman-kulish/beacon-surveillance/internal/storage"
	"github.com/roman-kulish/beacon-surveillance/internal/telemetry"
)

// Fixed vertical display window for the narrowband beacon view. The
// wideband view scales with the plateau tracker instead.
const (
	narrowbandYMin = 0.0
	narrowbandYMax = 32.0
)

// Publisher receives the snapshot assembled for each processed frame.
type Publisher interface {
	Publish(snap feed.Snapshot)
}

// Pipeline consumes spectra from the producer and carries them through
// averaging, noise normalisation and plateau tracking, then hands a
// display snapshot to the publisher and, on a fixed cadence, a record to
// the session journal.
//
// The frequency axis and the offset store are also reachable from feed
// control handlers through the Controller methods; a mutex guards them.
type Pipeline struct {
	mode           sdr.Mode
	markers        []float64
	regionFraction float64

	averager   *spectrum.Averager
	normalizer beacon.Normalizer
	plateau    *beacon.Plateau // wideband only

	mu       sync.Mutex
	axis     *spectrum.Axis
	offsets  *offset.Store
	axisCopy []float64

	journal       *storage.Journal
	sessionID     string
	frameInterval time.Duration
	lastJournaled time.Time

	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// newPipeline assembles the consumer stage for the resolved profile. The
// normalisation strategy follows the mode: a per-frame local noise median
// around the beacon for narrowband, a dwell-then-latch calibrator plus
// plateau tracking for wideband.
func newPipeline(config *Config, profile *sdr.DeviceProfile, centerHz float64, offsets *offset.Store, metrics *telemetry.Metrics, logger *slog.Logger) (*Pipeline, error) {
	mode := sdr.Mode(config.Mode)

	axis, err := spectrum.NewAxis(spectrum.AxisConfig{
		CenterHz:       centerHz,
		SampleRateHz:   profile.SampleRate,
		Bins:           profile.FFTSize,
		LOMHz:          config.LNB.LOMHz,
		ReadoutBaseMHz: config.LNB.ReadoutBaseMHz,
	}, offsets.Current())
	if err != nil {
		return nil, err
	}

	p := Pipeline{
		mode:     mode,
		axis:     axis,
		offsets:  offsets,
		axisCopy: make([]float64, profile.FFTSize),
		metrics:  metrics,
		logger:   logger,
	}

	switch mode {
	case sdr.ModeNarrowband:
		nb := config.Narrowband

		p.averager, err = spectrum.NewAverager(profile.FFTSize, nb.AverageFrames, nb.FloorDB)
		if err != nil {
			return nil, err
		}

		p.normalizer = beacon.NewLocalNoise(nb.BeaconMHz-config.LNB.ReadoutBaseMHz,
			beacon.WithNoiseWindow(nb.NoiseWindowKHz),
			beacon.WithExclusion(nb.ExcludeKHz))

		p.markers = make([]float64, 0, len(nb.MarkersMHz))
		for _, m := range nb.MarkersMHz {
			p.markers = append(p.markers, m-config.LNB.ReadoutBaseMHz)
		}

	case sdr.ModeWideband:
		wb := config.Wideband

		p.averager, err = spectrum.NewAverager(profile.FFTSize, wb.AverageFrames, wb.FloorDB)
		if err != nil {
			return nil, err
		}

		p.normalizer = beacon.NewCalibrator(
			beacon.WithDwell(wb.Dwell.Std()),
			beacon.WithRegionFraction(wb.RegionFraction))
		p.regionFraction = wb.RegionFraction

		center := wb.CenterMHz - config.LNB.ReadoutBaseMHz
		quarter := wb.BandwidthMHz / 4
		p.plateau = beacon.NewPlateau(center-quarter, center+quarter)
	}

	return &p, nil
}

// attachJournal enables persistence. Records are written at most once per
// interval, using frame timestamps.
func (p *Pipeline) attachJournal(journal *storage.Journal, sessionID string, interval time.Duration) {
	p.journal = journal
	p.sessionID = sessionID
	p.frameInterval = interval
}

// Run processes frames until the producer channel closes or ctx is
// cancelled. Journal failures are logged and the session continues; the
// display feed is the primary output.
func (p *Pipeline) Run(ctx context.Context, frames <-chan spectrum.Frame, publisher Publisher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			p.process(ctx, frame, publisher)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, frame spectrum.Frame, publisher Publisher) {
	mean, err := p.averager.Push(frame.Power)
	if err != nil {
		p.logger.Warn("Frame skipped", slog.Any("error", err))
		return
	}

	p.mu.Lock()
	copy(p.axisCopy, p.axis.Values())
	snap := feed.Snapshot{
		Seq:       frame.Seq,
		Timestamp: frame.Timestamp,
		Mode:      string(p.mode),
		AxisStart: p.axis.Start(),
		AxisStep:  p.axis.Step(),
		Bins:      len(mean),
		OffsetKHz: p.axis.Offset(),
		Markers:   p.markers,
	}
	p.mu.Unlock()

	rel, err := p.normalizer.Normalize(p.axisCopy, mean)
	switch {
	case errors.Is(err, beacon.ErrCalibrating):
		// Raw spectra keep flowing while the reference settles, with the
		// estimation region attached so clients can shade it.
		snap.Calibrating = true
		snap.Power = append([]float64(nil), mean...)
		region := beacon.LeadingRegion(len(p.axisCopy), p.regionFraction)
		snap.NoiseRegion = []float64{p.axisCopy[0], p.axisCopy[region-1]}

	case err != nil:
		p.logger.Warn("Noise normalisation failed", slog.Any("error", err))
		snap.Calibrating = true
		snap.Power = append([]float64(nil), mean...)

	default:
		snap.Power = append([]float64(nil), rel...)
		if ref, ok := p.normalizer.NoiseReference(); ok {
			snap.NoiseRef = &ref
			p.metrics.NoiseReference.Set(ref)
		}
	}

	switch {
	case p.plateau != nil && !snap.Calibrating:
		level := p.plateau.Observe(p.axisCopy, rel)
		snap.Plateau = &level.Smoothed
		snap.PlateauMin = &level.Min
		snap.PlateauMax = &level.Max
		snap.YMin = level.YMin
		snap.YMax = level.YMax
		p.metrics.Plateau.Set(level.Smoothed)

	case p.mode == sdr.ModeNarrowband:
		snap.YMin = narrowbandYMin
		snap.YMax = narrowbandYMax
	}

	p.maybeJournal(ctx, frame, &snap)
	publisher.Publish(snap)
}

// maybeJournal persists the frame when the journaling cadence has elapsed.
func (p *Pipeline) maybeJournal(ctx context.Context, frame spectrum.Frame, snap *feed.Snapshot) {
	if p.journal == nil || frame.Timestamp.Sub(p.lastJournaled) < p.frameInterval {
		return
	}

	record := storage.FrameRecord{
		Seq:        frame.Seq,
		Timestamp:  frame.Timestamp,
		NoiseRef:   snap.NoiseRef,
		Plateau:    snap.Plateau,
		PlateauMin: snap.PlateauMin,
		PlateauMax: snap.PlateauMax,
		OffsetKHz:  snap.OffsetKHz,
		Power:      snap.Power,
	}

	if err := p.journal.Append(ctx, p.sessionID, []storage.FrameRecord{record}); err != nil {
		p.logger.Warn("Journal append failed", slog.Any("error", err))
		return
	}

	p.lastJournaled = frame.Timestamp
	p.metrics.FramesJournaled.Inc()
}

// StepOffsetUp implements feed.Controller.
func (p *Pipeline) StepOffsetUp() (float64, error) {
	return p.stepOffset(p.offsets.StepUp)
}

// StepOffsetDown implements feed.Controller.
func (p *Pipeline) StepOffsetDown() (float64, error) {
	return p.stepOffset(p.offsets.StepDown)
}

// stepOffset persists the new correction and rebuilds the axis under the
// shared lock, so a concurrent frame never pairs old power with a new
// axis start.
func (p *Pipeline) stepOffset(step func() (float64, error)) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	value, err := step()
	if err != nil {
		return 0, err
	}

	p.axis.Recompute(value)
	p.metrics.OffsetKHz.Set(value)

	return value, nil
}
