// Package offset persists the display-frequency correction applied to the
// spectrum axis. The correction compensates for LNB local-oscillator drift
// and is display-only: hardware tuning never changes with it.
package offset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

const (
	// DefaultValue is used when the store is absent or unreadable, in kHz.
	DefaultValue = 50.0

	// DefaultStep is the increment applied by StepUp and StepDown, in kHz.
	DefaultStep = 0.1
)

// Store holds the current correction in kilohertz and writes it through to
// a single-line text file on every mutation. Writes are synced to disk
// before returning so the value survives an abrupt shutdown. The file is
// human-editable; an unparsable value falls back to the default and the
// file is rewritten.
//
// A mutex guards mutations: the pipeline and the feed control channel may
// both step the offset.
type Store struct {
	mu     sync.Mutex
	path   string
	step   float64
	def    float64
	value  float64
	logger *slog.Logger
}

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) func(s *Store) {
	return func(s *Store) {
		s.logger = logger.With(slog.String("file", s.path))
	}
}

// WithStep overrides the step increment, in kHz
func WithStep(step float64) func(s *Store) {
	return func(s *Store) {
		s.step = step
	}
}

// WithDefault overrides the fallback value, in kHz
func WithDefault(def float64) func(s *Store) {
	return func(s *Store) {
		s.def = def
	}
}

// New creates a Store backed by the file at path. Call Load before using
// Current or the step operations.
func New(path string, options ...func(s *Store)) *Store {
	s := Store{
		path:   path,
		step:   DefaultStep,
		def:    DefaultValue,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Load reads the persisted offset. A missing or unparsable file yields the
// default, which is persisted immediately so the store is well-formed from
// then on.
func (s *Store) Load() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("reading offset file: %w", err)
		}

		s.logger.Info("offset file missing, creating with default", slog.Float64("khz", s.def))
		return s.reset()
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		s.logger.Warn("offset file unparsable, resetting to default",
			slog.String("raw", strings.TrimSpace(string(raw))),
			slog.Float64("khz", s.def))
		return s.reset()
	}

	s.value = value
	return s.value, nil
}

// Current returns the in-memory offset in kHz.
func (s *Store) Current() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.value
}

// StepUp increases the offset by one step and persists it before returning.
func (s *Store) StepUp() (float64, error) {
	return s.apply(1)
}

// StepDown decreases the offset by one step and persists it before returning.
func (s *Store) StepDown() (float64, error) {
	return s.apply(-1)
}

func (s *Store) apply(direction float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := s.value + direction*s.step
	if err := s.persist(value); err != nil {
		return s.value, err // keep the last durable value on failure
	}

	s.value = value
	return s.value, nil
}

func (s *Store) reset() (float64, error) {
	if err := s.persist(s.def); err != nil {
		return 0, err
	}

	s.value = s.def
	return s.value, nil
}

// persist writes value to the store file and forces it to disk. Callers
// hold the mutex.
func (s *Store) persist(value float64) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("creating offset file: %w", err)
	}

	if _, err = fmt.Fprintf(f, "%.3f", value); err != nil {
		f.Close()
		return fmt.Errorf("writing offset file: %w", err)
	}

	if err = f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing offset file: %w", err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("closing offset file: %w", err)
	}

	return nil
}
