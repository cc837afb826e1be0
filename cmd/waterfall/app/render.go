package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 120.0
	fontSize       = 12.0
	tickMarkHeight = 5
	pixelsPerLabel = 150.00

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 110
	defaultBottomBorder = 40
	defaultRightBorder  = 40

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

var markerColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// BorderConfig defines the sizes of white space around the waterfall
type BorderConfig struct {
	Top    int // Space for frequency scale
	Left   int // Space for time scale
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for waterfall visualization
type RenderConfig struct {
	// Time display configuration
	TimeFormat     string         // Format string for time display (e.g. "15:04:05")
	DatetimeFormat string         // Format string for date/time display
	Location       *time.Location // Timezone for time display

	// Visual configuration
	FontSize     float64    // Font size in points
	ColorTheme   ColorTheme // Color scheme for power values
	ColorMapSize int        // Number of colors in gradient (0 for default)

	// Overlay configuration
	Markers       []float64 // Vertical marker lines, display MHz
	NoAnnotations bool      // Skip time and frequency scales

	// Border configuration
	BorderConfig BorderConfig
}

// Renderer handles the visualization of journaled waterfall data
type Renderer struct {
	colorMap *ColorMapper
	config   RenderConfig
}

// NewRenderer creates a new waterfall renderer with the given configuration
func NewRenderer(config RenderConfig) (*Renderer, error) {
	// Set defaults for zero values
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &Renderer{config: config}, nil
}

// Render creates an image of the waterfall with annotations. The power
// bounds decide how the color gradient is stretched over the data.
func (r *Renderer) Render(wf *Waterfall, bounds PowerBounds) (*image.RGBA, error) {
	// Create image with space for borders
	fullWidth := wf.Width + r.config.BorderConfig.Left + r.config.BorderConfig.Right
	fullHeight := wf.Height + r.config.BorderConfig.Top + r.config.BorderConfig.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	// Define waterfall area (1:1 mapping)
	area := image.Rect(
		r.config.BorderConfig.Left,
		r.config.BorderConfig.Top,
		r.config.BorderConfig.Left+wf.Width,
		r.config.BorderConfig.Top+wf.Height,
	)

	// Update or create color map
	if r.colorMap == nil {
		r.colorMap = NewColorMapperWithSize(r.config.ColorTheme, bounds, r.config.ColorMapSize)
	} else {
		r.colorMap.UpdateBounds(bounds)
	}

	if r.config.NoAnnotations && len(r.config.Markers) == 0 {
		r.renderWaterfall(img, area, wf)
		return img, nil
	}

	ann, err := newAnnotator(annotatorConfig{
		TimeFormat:     r.config.TimeFormat,
		DatetimeFormat: r.config.DatetimeFormat,
		Location:       r.config.Location,
		FontSize:       r.config.FontSize,
		Borders:        r.config.BorderConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	// Scales first; the waterfall overwrites any overlapping pixels, and
	// the markers go on top of it.
	if !r.config.NoAnnotations {
		if err = ann.annotate(img, wf); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	r.renderWaterfall(img, area, wf)

	if len(r.config.Markers) > 0 {
		if err = ann.drawMarkers(img, area, wf, r.config.Markers); err != nil {
			return nil, fmt.Errorf("drawing markers: %w", err)
		}
	}

	return img, nil
}

// renderWaterfall draws the actual power grid using the color map
func (r *Renderer) renderWaterfall(img *image.RGBA, area image.Rectangle, wf *Waterfall) {
	for y, row := range wf.Rows {
		imgY := area.Min.Y + y
		for x, power := range row {
			img.Set(area.Min.X+x, imgY, r.colorMap.GetColor(power))
		}
	}
}

// Internal annotator implementation
type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, wf *Waterfall) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawFrequencyScale(img, wf); err != nil {
		return fmt.Errorf("drawing frequency scale: %w", err)
	}
	if err := a.drawTimeScale(img, wf); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawInfoBar(img, wf); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

func (a *annotator) drawFrequencyScale(img *image.RGBA, wf *Waterfall) error {
	freqStep := calculateNiceFrequencyStep(wf.FrequencyMax-wf.FrequencyMin, wf.Width)
	startFreq := math.Floor(wf.FrequencyMin/freqStep) * freqStep

	// Get actual font height in pixels
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	// Calculate centered Y position in the available space
	textY := a.config.Borders.Top - fontHeight/2

	for freq := startFreq; freq <= wf.FrequencyMax; freq += freqStep {
		if freq < wf.FrequencyMin {
			continue
		}

		// Convert frequency to x coordinate
		xRatio := (freq - wf.FrequencyMin) / (wf.FrequencyMax - wf.FrequencyMin)
		x := a.config.Borders.Left + int(xRatio*float64(wf.Width))

		// Draw tick mark
		for y := a.config.Borders.Top - tickMarkHeight; y < a.config.Borders.Top; y++ {
			img.Set(x, y, color.Black)
		}

		// Format and draw frequency label
		label := formatAxisLabel(freq, freqStep)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-(width.Round()/2), textY)
		_, err := a.context.DrawString(label, pt)
		if err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, wf *Waterfall) error {
	duration := wf.TimestampEnd.Sub(wf.TimestampStart)

	// Get font metrics once
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	rowsPerTick := wf.Height
	rowDuration := time.Duration(0)
	if wf.Height > 1 && duration > 0 {
		rowDuration = duration / time.Duration(wf.Height-1)
		timeStep := calculateNiceTimeStep(duration)
		rowsPerTick = int(timeStep / rowDuration)
		if rowsPerTick < 1 {
			rowsPerTick = 1
		}
	}

	for y := 0; y < wf.Height; y += rowsPerTick {
		imgY := y + a.config.Borders.Top

		// Draw tick mark
		for x := a.config.Borders.Left - tickMarkHeight; x < a.config.Borders.Left; x++ {
			img.Set(x, imgY, color.Black)
		}

		// Center text vertically relative to the tick mark position
		textY := imgY + fontHeight/2 - metrics.Descent.Round()

		// Format and draw time label
		rowTime := wf.TimestampStart.Add(time.Duration(y) * rowDuration)
		label := rowTime.In(a.config.Location).Format(a.config.TimeFormat)
		pt := freetype.Pt(10, textY)
		_, err := a.context.DrawString(label, pt)
		if err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, wf *Waterfall) error {
	var sb strings.Builder

	sb.WriteString(formatFrequencyRange(wf.FrequencyMin, wf.FrequencyMax))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		wf.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		wf.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat)))

	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("1px = %s", formatFrequency(wf.FrequencyStep)))

	// Calculate text position in bottom border
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	// Center text vertically in bottom border
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-fontHeight)/2 - metrics.Descent.Round()

	// Draw info
	pt := freetype.Pt(a.config.Borders.Left, textY)
	_, err := a.context.DrawString(sb.String(), pt)
	if err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	return nil
}

// drawMarkers overlays dashed vertical lines at the given display
// frequencies, with the frequency printed beside each line.
func (a *annotator) drawMarkers(img *image.RGBA, area image.Rectangle, wf *Waterfall, markers []float64) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	a.context.SetSrc(image.White)
	defer a.context.SetSrc(image.Black)

	for _, marker := range markers {
		if marker < wf.FrequencyMin || marker > wf.FrequencyMax {
			continue
		}

		xRatio := (marker - wf.FrequencyMin) / (wf.FrequencyMax - wf.FrequencyMin)
		x := area.Min.X + int(xRatio*float64(wf.Width))
		if x >= area.Max.X {
			x = area.Max.X - 1
		}

		for y := area.Min.Y; y < area.Max.Y; y++ {
			if (y-area.Min.Y)%8 < 4 {
				img.Set(x, y, markerColor)
			}
		}

		label := formatFrequency(marker)
		pt := freetype.Pt(x+4, area.Min.Y+fontHeight)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing marker label: %w", err)
		}
	}
	return nil
}

// Helper functions

func calculateNiceFrequencyStep(range_ float64, width int) float64 {
	// Standard step sizes in MHz
	steps := []float64{
		0.000001, // 1 Hz
		0.00001,  // 10 Hz
		0.0001,   // 100 Hz
		0.001,    // 1 kHz
		0.01,     // 10 kHz
		0.1,      // 100 kHz
		1,        // 1 MHz
		10,       // 10 MHz
		100,      // 100 MHz
		1000,     // 1 GHz
	}

	desiredSteps := float64(width) / pixelsPerLabel
	targetStep := range_ / desiredSteps

	// Find the closest standard step size
	for _, step := range steps {
		if step >= targetStep {
			// If this step would give us at least 2 points
			if range_/step >= 2 {
				return step
			}
			break
		}
	}

	// If we can't find a suitable step or would get too few points,
	// return half the range to show at least center frequency
	return range_ / 2
}

// formatAxisLabel prints a scale frequency in MHz with just enough decimals
// to resolve the step between labels.
func formatAxisLabel(freq, step float64) string {
	decimals := 0
	if step < 1 {
		decimals = int(math.Ceil(-math.Log10(step)))
		if decimals > 6 {
			decimals = 6
		}
	}
	return fmt.Sprintf("%.*f", decimals, freq)
}

// formatFrequency prints a display frequency. Values of a megahertz and up
// keep the full MHz readout; smaller spans fall back to SI units.
func formatFrequency(mhz float64) string {
	if mhz >= 1 {
		return fmt.Sprintf("%.3f MHz", mhz)
	}
	fract, suffix := humanize.ComputeSI(mhz * 1e6)
	return fmt.Sprintf("%0.2f %sHz", fract, suffix)
}

func formatFrequencyRange(min, max float64) string {
	return fmt.Sprintf("Freq: %s - %s", formatFrequency(min), formatFrequency(max))
}

func calculateNiceTimeStep(duration time.Duration) time.Duration {
	seconds := duration.Seconds()
	roughStep := seconds / 8 // Aim for about 8 time labels

	// Nice time intervals in seconds
	niceIntervals := []float64{
		1,     // 1 second
		5,     // 5 seconds
		10,    // 10 seconds
		30,    // 30 seconds
		60,    // 1 minute
		300,   // 5 minutes
		600,   // 10 minutes
		900,   // 15 minutes
		1800,  // 30 minutes
		3600,  // 1 hour
		7200,  // 2 hours
		14400, // 4 hours
	}

	// Find the first interval larger than our rough step
	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return time.Duration(interval) * time.Second
		}
	}

	return time.Hour * 6 // Default for very long durations
}
