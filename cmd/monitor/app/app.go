// Package app wires the beacon monitor: it probes the configured
// receivers, resolves an operating profile for the selected mode and runs
// the acquisition pipeline until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/beacon-surveillance/internal/dsp"
	"github.com/roman-kulish/beacon-surveillance/internal/feed"
	"github.com/roman-kulish/beacon-surveillance/internal/offset"
	"github.com/roman-kulish/beacon-surveillance/internal/sdr"
	"github.com/roman-kulish/beacon-surveillance/internal/sdr/rtltcp"
	"github.com/roman-kulish/beacon-surveillance/internal/storage"
	"github.com/roman-kulish/beacon-surveillance/internal/telemetry"
)

// probeTimeout bounds the startup handshake with each configured endpoint.
const probeTimeout = 5 * time.Second

// Run assembles the pipeline from the configuration and blocks until ctx
// is cancelled or the sample stream fails.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	mode := sdr.Mode(config.Mode)

	profile, err := resolveProfile(mode, config, logger)
	if err != nil {
		return err
	}

	logger.Info("Receiver selected",
		slog.String("driver", profile.Kind),
		slog.String("address", profile.Address),
		slog.Float64("sample_rate", profile.SampleRate),
		slog.Int("fft_size", profile.FFTSize))

	offsets := offset.New(config.Offset.Path,
		offset.WithDefault(config.Offset.Default),
		offset.WithStep(config.Offset.StepKHz),
		offset.WithLogger(logger))
	if _, err := offsets.Load(); err != nil {
		return fmt.Errorf("loading display offset: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)
	metrics.SampleRate.Set(profile.SampleRate)
	metrics.OffsetKHz.Set(offsets.Current())

	analyzer, err := dsp.NewAnalyzer(profile.FFTSize, profile.SampleRate)
	if err != nil {
		return fmt.Errorf("creating spectrum analyzer: %w", err)
	}

	centerHz := centerFrequencyHz(mode, config)
	pipeline, err := newPipeline(config, profile, centerHz, offsets, metrics, logger)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	if config.Storage.Enabled {
		journal, sessionID, err := createJournal(ctx, config, profile, centerHz)
		if err != nil {
			return fmt.Errorf("creating session journal: %w", err)
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logger.Warn("Closing session journal", slog.Any("error", err))
			}
		}()

		pipeline.attachJournal(journal, sessionID, config.Storage.FrameInterval.Std())
		logger.Info("Session journal started", slog.String("session", sessionID))
	}

	radio, err := rtltcp.Open(profile.Address, rtltcp.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", profile.Address, err)
	}

	// The producer owns the radio from here and releases it on every
	// exit path.
	producer := sdr.NewProducer(radio, profile, analyzer, centerHz,
		sdr.WithLogger(logger),
		sdr.WithMetrics(metrics),
		sdr.WithReadTimeout(config.Producer.ReadTimeout.Std()))

	frames, err := producer.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting sample stream: %w", err)
	}
	defer producer.Stop()

	server := feed.New(config.Feed.Listen, pipeline,
		feed.WithLogger(logger),
		feed.WithPublishInterval(config.Feed.PublishInterval.Std()),
		feed.WithMetrics(registry))
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting spectrum feed: %w", err)
	}
	defer server.Stop()

	logger.Info("Spectrum feed listening", slog.String("address", server.Addr().String()))

	if err := pipeline.Run(ctx, frames, server); err != nil {
		return err
	}

	return producer.Err()
}

// resolveProfile probes every configured endpoint, keeps those that answer
// the handshake and resolves the operating profile for the mode.
// Unreachable endpoints are logged and skipped; a session without any
// usable receiver cannot proceed.
func resolveProfile(mode sdr.Mode, config *Config, logger *slog.Logger) (*sdr.DeviceProfile, error) {
	frontends := make([]sdr.Frontend, 0, len(config.Devices))
	for _, endpoint := range config.Devices {
		fe, err := rtltcp.Probe(endpoint.Address, endpoint.Kind, probeTimeout)
		if err != nil {
			logger.Warn("Receiver endpoint not reachable",
				slog.String("kind", endpoint.Kind),
				slog.String("address", endpoint.Address),
				slog.Any("error", err))
			continue
		}

		fe.Serial = endpoint.Serial
		logger.Info("Receiver detected",
			slog.String("kind", fe.Kind),
			slog.String("address", fe.Address),
			slog.String("tuner", fe.Tuner))
		frontends = append(frontends, fe)
	}

	pref := config.Narrowband.Preference
	if mode == sdr.ModeWideband {
		pref = config.Wideband.Preference
	}

	var generic sdr.GenericDefaults
	if config.Generic != nil {
		generic = sdr.GenericDefaults{
			SampleRate: config.Generic.SampleRate,
			FFTSize:    config.Generic.FFTSize,
		}
	}

	profile, err := sdr.Resolve(mode, frontends, pref, generic)
	if err != nil {
		return nil, fmt.Errorf("resolving device profile: %w", err)
	}

	if mode == sdr.ModeNarrowband && profile.SupportsPPM {
		profile.PPM = config.Narrowband.PPM
	}

	return profile, nil
}

// centerFrequencyHz derives the hardware tuning point from the sky
// frequency and the nominal LNB LO.
func centerFrequencyHz(mode sdr.Mode, config *Config) float64 {
	skyMHz := config.Narrowband.BeaconMHz
	if mode == sdr.ModeWideband {
		skyMHz = config.Wideband.CenterMHz
	}

	return (skyMHz - config.LNB.LOMHz) * 1e6
}

// createJournal opens a timestamped database under the configured data
// directory and registers the session.
func createJournal(ctx context.Context, config *Config, profile *sdr.DeviceProfile, centerHz float64) (*storage.Journal, string, error) {
	dataDir := config.Storage.DataDirectory
	if !filepath.IsAbs(dataDir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get current working directory: %w", err)
		}
		dataDir = filepath.Join(wd, dataDir)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create data directory: %w", err)
	}

	dbFile := filepath.Join(dataDir, fmt.Sprintf("beacon_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	journal := storage.New(dbFile)

	sessionID, err := journal.CreateSession(ctx, storage.SessionMeta{
		Mode:           config.Mode,
		Driver:         profile.Kind,
		Serial:         profile.Serial,
		SampleRate:     profile.SampleRate,
		FFTSize:        profile.FFTSize,
		CenterHz:       centerHz,
		LOMHz:          config.LNB.LOMHz,
		ReadoutBaseMHz: config.LNB.ReadoutBaseMHz,
		Config:         config,
	})
	if err != nil {
		return nil, "", errors.Join(err, journal.Close())
	}

	return journal, sessionID, nil
}
