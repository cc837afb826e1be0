package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/beacon-surveillance/internal/sdr"
)

// Duration is a time.Duration that unmarshals from YAML strings such
// as "100ms" or "3s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Settings contains application level settings.
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level maps the configured log level onto slog levels. Unknown
// values fall back to info.
func (s Settings) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DeviceEndpoint identifies one rtl_tcp style server to probe at
// startup.
type DeviceEndpoint struct {
	Kind    string `yaml:"kind"`
	Address string `yaml:"address"`
	Serial  string `yaml:"serial"`
}

// LNBConfig describes the downconverter in front of the receiver.
type LNBConfig struct {
	LOMHz          float64 `yaml:"loMHz"`
	ReadoutBaseMHz float64 `yaml:"readoutBaseMHz"`
}

// OffsetConfig controls the persisted display frequency offset.
type OffsetConfig struct {
	Path    string  `yaml:"path"`
	Default float64 `yaml:"default"`
	StepKHz float64 `yaml:"stepKHz"`
}

// NarrowbandConfig holds parameters for CW beacon monitoring.
type NarrowbandConfig struct {
	BeaconMHz      float64   `yaml:"beaconMHz"`
	MarkersMHz     []float64 `yaml:"markersMHz"`
	AverageFrames  int       `yaml:"averageFrames"`
	NoiseWindowKHz float64   `yaml:"noiseWindowKHz"`
	ExcludeKHz     float64   `yaml:"excludeKHz"`
	FloorDB        float64   `yaml:"floorDB"`
	PPM            float64   `yaml:"ppm"`
	Preference     []string  `yaml:"preference"`
}

// WidebandConfig holds parameters for DATV beacon monitoring.
type WidebandConfig struct {
	CenterMHz      float64  `yaml:"centerMHz"`
	BandwidthMHz   float64  `yaml:"bandwidthMHz"`
	AverageFrames  int      `yaml:"averageFrames"`
	Dwell          Duration `yaml:"dwell"`
	RegionFraction float64  `yaml:"regionFraction"`
	FloorDB        float64  `yaml:"floorDB"`
	Preference     []string `yaml:"preference"`
}

// GenericConfig overrides the built-in defaults applied to receivers
// without a dedicated profile.
type GenericConfig struct {
	SampleRate float64 `yaml:"sampleRate"`
	FFTSize    int     `yaml:"fftSize"`
}

// ProducerConfig tunes the sample streaming loop.
type ProducerConfig struct {
	ReadTimeout Duration `yaml:"readTimeout"`
}

// StorageConfig controls the session journal.
type StorageConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DataDirectory string   `yaml:"dataDirectory"`
	FrameInterval Duration `yaml:"frameInterval"`
}

// FeedConfig controls the websocket spectrum feed.
type FeedConfig struct {
	Listen          string   `yaml:"listen"`
	PublishInterval Duration `yaml:"publishInterval"`
}

// Config is the root of the monitor configuration file.
type Config struct {
	Settings   Settings         `yaml:"settings"`
	Mode       string           `yaml:"mode"`
	Devices    []DeviceEndpoint `yaml:"devices"`
	LNB        LNBConfig        `yaml:"lnb"`
	Offset     OffsetConfig     `yaml:"offset"`
	Narrowband NarrowbandConfig `yaml:"narrowband"`
	Wideband   WidebandConfig   `yaml:"wideband"`
	Generic    *GenericConfig   `yaml:"generic"`
	Producer   ProducerConfig   `yaml:"producer"`
	Storage    StorageConfig    `yaml:"storage"`
	Feed       FeedConfig       `yaml:"feed"`
}

// defaultConfig returns a Config prefilled with the values the QO-100
// ground station setup uses. Decoding a file over it only overrides
// the keys the file mentions.
func defaultConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Mode:     string(sdr.ModeNarrowband),
		LNB: LNBConfig{
			LOMHz:          9750.0,
			ReadoutBaseMHz: 10000.0,
		},
		Offset: OffsetConfig{
			Path:    "lnb_offset.txt",
			Default: 50.0,
			StepKHz: 0.1,
		},
		Narrowband: NarrowbandConfig{
			BeaconMHz:      10489.750,
			MarkersMHz:     []float64{10489.500, 10489.750, 10490.000},
			AverageFrames:  8,
			NoiseWindowKHz: 10.0,
			ExcludeKHz:     3.0,
			FloorDB:        -50.0,
		},
		Wideband: WidebandConfig{
			CenterMHz:      10491.500,
			BandwidthMHz:   2.0,
			AverageFrames:  14,
			Dwell:          Duration(3 * time.Second),
			RegionFraction: 0.10,
			FloorDB:        -50.0,
		},
		Producer: ProducerConfig{
			ReadTimeout: Duration(100 * time.Millisecond),
		},
		Storage: StorageConfig{
			Enabled:       false,
			DataDirectory: "data",
			FrameInterval: Duration(500 * time.Millisecond),
		},
		Feed: FeedConfig{
			Listen:          ":8080",
			PublishInterval: Duration(100 * time.Millisecond),
		},
	}
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening configuration: %w", err)
	}
	defer f.Close()

	config := defaultConfig()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for values the pipeline cannot
// work with.
func (c *Config) Validate() error {
	if !sdr.Mode(c.Mode).Valid() {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	if len(c.Devices) == 0 {
		return fmt.Errorf("no devices configured")
	}
	for i, d := range c.Devices {
		if d.Kind == "" {
			return fmt.Errorf("device %d: kind is required", i)
		}
		if d.Address == "" {
			return fmt.Errorf("device %d: address is required", i)
		}
	}

	if c.LNB.LOMHz <= 0 {
		return fmt.Errorf("lnb.loMHz must be positive")
	}
	if c.Offset.StepKHz <= 0 {
		return fmt.Errorf("offset.stepKHz must be positive")
	}
	if c.Offset.Path == "" {
		return fmt.Errorf("offset.path is required")
	}

	switch sdr.Mode(c.Mode) {
	case sdr.ModeNarrowband:
		if c.Narrowband.BeaconMHz <= c.LNB.LOMHz {
			return fmt.Errorf("narrowband.beaconMHz must be above the LNB LO")
		}
		if c.Narrowband.AverageFrames < 1 {
			return fmt.Errorf("narrowband.averageFrames must be at least 1")
		}
		if c.Narrowband.NoiseWindowKHz <= c.Narrowband.ExcludeKHz {
			return fmt.Errorf("narrowband.noiseWindowKHz must exceed excludeKHz")
		}
	case sdr.ModeWideband:
		if c.Wideband.CenterMHz <= c.LNB.LOMHz {
			return fmt.Errorf("wideband.centerMHz must be above the LNB LO")
		}
		if c.Wideband.AverageFrames < 1 {
			return fmt.Errorf("wideband.averageFrames must be at least 1")
		}
		if c.Wideband.BandwidthMHz <= 0 {
			return fmt.Errorf("wideband.bandwidthMHz must be positive")
		}
		if c.Wideband.RegionFraction <= 0 || c.Wideband.RegionFraction > 1 {
			return fmt.Errorf("wideband.regionFraction must be in (0, 1]")
		}
	}

	if c.Generic != nil {
		if c.Generic.SampleRate <= 0 {
			return fmt.Errorf("generic.sampleRate must be positive")
		}
		if c.Generic.FFTSize < 2 {
			return fmt.Errorf("generic.fftSize must be at least 2")
		}
	}

	if c.Producer.ReadTimeout.Std() <= 0 {
		return fmt.Errorf("producer.readTimeout must be positive")
	}
	if c.Storage.Enabled && c.Storage.DataDirectory == "" {
		return fmt.Errorf("storage.dataDirectory is required when storage is enabled")
	}
	if c.Storage.FrameInterval.Std() < 0 {
		return fmt.Errorf("storage.frameInterval must not be negative")
	}
	if c.Feed.Listen == "" {
		return fmt.Errorf("feed.listen is required")
	}
	if c.Feed.PublishInterval.Std() <= 0 {
		return fmt.Errorf("feed.publishInterval must be positive")
	}

	return nil
}
