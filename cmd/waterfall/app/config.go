package app

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"

	defaultMaxWidth = 4096
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     string // empty selects the most recent session
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	TimeZone      *time.Location
	MaxWidth      int
	MinPower      *float64
	MaxPower      *float64
	MinTimestamp  *time.Time
	MaxTimestamp  *time.Time
	Markers       []float64 // display frequencies in MHz
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		MaxWidth: defaultMaxWidth,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, theme, timezone, from, to, markers string
	var minPower, maxPower float64
	flag.StringVar(&c.DBPath, "db", "", "Path to the session database file")
	flag.StringVar(&c.SessionID, "s", "", "Session ID (defaults to the most recent session)")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&theme, "theme", "", "Color theme. [classic, grayscale, jungle, thermal, marine]")
	flag.StringVar(&timezone, "tz", "", "Timezone for time annotations, e.g. Australia/Sydney")
	flag.IntVar(&c.MaxWidth, "max-width", defaultMaxWidth, "Downsample spectra wider than this many pixels (0 keeps native width)")
	flag.Float64Var(&minPower, "min-power", 0, "Define a manual minimum power (format nn.n)")
	flag.Float64Var(&maxPower, "max-power", 0, "Define a manual maximum power (format nn.n)")
	flag.StringVar(&from, "from", "", "Only render frames at or after this time (RFC3339)")
	flag.StringVar(&to, "to", "", "Only render frames at or before this time (RFC3339)")
	flag.StringVar(&markers, "markers", "", "Comma separated marker frequencies in MHz")
	flag.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flag.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and frequency scales")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "min-power" {
			c.MinPower = &minPower
		}
		if f.Name == "max-power" {
			c.MaxPower = &maxPower
		}
	})

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if c.MaxWidth < 0 {
		err = fmt.Errorf("max-width must be zero or positive, got %d", c.MaxWidth)
	}

	if err == nil && timezone != "" {
		if c.TimeZone, err = time.LoadLocation(timezone); err != nil {
			err = fmt.Errorf("invalid timezone: %s", timezone)
		}
	}
	if err == nil {
		c.MinTimestamp, err = parseTimestamp(from)
	}
	if err == nil {
		c.MaxTimestamp, err = parseTimestamp(to)
	}
	if err == nil && c.MinTimestamp != nil && c.MaxTimestamp != nil && c.MinTimestamp.After(*c.MaxTimestamp) {
		err = errors.New("from must not be after to")
	}
	if err == nil {
		c.Markers, err = parseMarkers(markers)
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

func parseTimestamp(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q, expected RFC3339", s)
	}
	return &t, nil
}

func parseMarkers(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	markers := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid marker frequency: %s", part)
		}
		markers = append(markers, v)
	}
	return markers, nil
}
