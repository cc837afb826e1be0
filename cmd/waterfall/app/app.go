package app

import (
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/roman-kulish/beacon-surveillance/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	journal := storage.New(config.DBPath)
	defer journal.Close()

	return renderWaterfall(ctx, journal, config, logger)
}

// resolveSession loads the requested session, or the most recent one when
// no ID was given.
func resolveSession(ctx context.Context, journal *storage.Journal, id string) (*storage.Session, error) {
	if id != "" {
		session, err := journal.Session(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading session %s: %w", id, err)
		}
		return session, nil
	}

	sessions, err := journal.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, errors.New("database contains no sessions")
	}
	return sessions[len(sessions)-1], nil
}

func renderWaterfall(ctx context.Context, journal *storage.Journal, config *Config, logger *slog.Logger) error {
	session, err := resolveSession(ctx, journal, config.SessionID)
	if err != nil {
		return err
	}

	logger.Info("session resolved",
		slog.String("id", session.ID),
		slog.String("mode", session.Mode),
		slog.String("driver", session.Driver),
		slog.Time("startedAt", session.StartedAt))

	var opts []storage.ReaderOption
	var filters []any
	switch {
	case config.MinTimestamp != nil && config.MaxTimestamp != nil:
		opts = append(opts, storage.WithTimeRange(config.MinTimestamp.UTC(), config.MaxTimestamp.UTC()))

		filters = append(filters,
			slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)),
			slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))

	case config.MinTimestamp != nil:
		opts = append(opts, storage.WithStartTime(config.MinTimestamp.UTC()))
		filters = append(filters, slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)))

	case config.MaxTimestamp != nil:
		opts = append(opts, storage.WithEndTime(config.MaxTimestamp.UTC()))
		filters = append(filters, slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))
	}

	if len(filters) > 0 {
		logger.Debug("reader configuration", filters...)
	}

	iter, err := journal.Frames(ctx, session.ID, opts...)
	if err != nil {
		if errors.Is(err, storage.ErrNoData) {
			return fmt.Errorf("session %s has no journaled frames", session.ID)
		}
		return err
	}
	defer iter.Close()

	logger.Info("reading frames, hold on tight, it may take a while")

	wf := NewWaterfall(session, config.MaxWidth, NewSmoothBounds(0.3))
	for iter.Next(ctx) {
		if err = wf.Update(iter.Current()); err != nil {
			return err
		}
	}
	if err = iter.Error(); err != nil {
		return err
	}
	if wf.Height == 0 {
		return errors.New("no frames matched the given filters")
	}

	bounds := wf.BoundsTracker.Current()
	if config.MinPower != nil {
		bounds.Min = *config.MinPower
	}
	if config.MaxPower != nil {
		bounds.Max = *config.MaxPower
	}

	logger.Info("finished reading frames",
		slog.Group("stats",
			slog.String("minTimestamp", wf.TimestampStart.Local().Format(time.DateTime)),
			slog.String("maxTimestamp", wf.TimestampEnd.Local().Format(time.DateTime)),
			slog.String("minFreq", fmt.Sprintf("%0.3fMHz", wf.FrequencyMin)),
			slog.String("maxFreq", fmt.Sprintf("%0.3fMHz", wf.FrequencyMax)),
			slog.String("minPower", fmt.Sprintf("%0.2fdB", bounds.Min)),
			slog.String("maxPower", fmt.Sprintf("%0.2fdB", bounds.Max)),
		))

	renderer, err := NewRenderer(RenderConfig{
		Location:      config.TimeZone,
		ColorTheme:    config.Theme,
		Markers:       config.Markers,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating waterfall renderer: %w", err)
	}

	logger.Info("rendering waterfall",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", wf.Width),
			slog.Int("height", wf.Height),
		))

	img, err := renderer.Render(wf, bounds)
	if err != nil {
		return fmt.Errorf("rendering waterfall: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
