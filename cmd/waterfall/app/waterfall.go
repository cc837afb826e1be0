package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/beacon-surveillance/internal/spectrum"
	"github.com/roman-kulish/beacon-surveillance/internal/storage"
)

// Waterfall accumulates journaled frames into a dense power grid, one row
// per frame and one column per rendered frequency bin. The frequency axis
// is rebuilt from the session tuning record and the offset correction the
// first frame was captured with, so columns line up with the frequencies
// the live display showed.
type Waterfall struct {
	Width, Height                int
	FrequencyMin, FrequencyMax   float64 // display MHz, first and last column centers
	FrequencyStep                float64 // display MHz per column
	TimestampStart, TimestampEnd time.Time
	BoundsTracker                *SmoothBounds
	Rows                         [][]float64

	session  *storage.Session
	maxWidth int
	factor   int // source bins averaged per column, 0 until the first frame
}

// NewWaterfall creates an accumulator for one session. Frames wider than
// maxWidth pixels are downsampled by averaging adjacent bins; zero keeps
// the native resolution.
func NewWaterfall(session *storage.Session, maxWidth int, bounds *SmoothBounds) *Waterfall {
	return &Waterfall{
		BoundsTracker: bounds,
		Rows:          make([][]float64, 0),
		session:       session,
		maxWidth:      maxWidth,
	}
}

// Update appends one frame as a waterfall row. The first frame fixes the
// grid geometry; later frames with a different bin count are padded or
// truncated to it.
func (w *Waterfall) Update(rec *storage.FrameRecord) error {
	if w.factor == 0 {
		if err := w.initGeometry(rec); err != nil {
			return err
		}
	}

	row := decimate(rec.Power, w.factor, w.Width)
	for _, power := range row {
		w.BoundsTracker.Update(power)
	}
	w.Rows = append(w.Rows, row)
	w.Height++

	if w.TimestampStart.IsZero() || w.TimestampStart.After(rec.Timestamp) {
		w.TimestampStart = rec.Timestamp
	}
	if w.TimestampEnd.IsZero() || w.TimestampEnd.Before(rec.Timestamp) {
		w.TimestampEnd = rec.Timestamp
	}
	return nil
}

func (w *Waterfall) initGeometry(rec *storage.FrameRecord) error {
	bins := len(rec.Power)
	if bins == 0 {
		return errors.New("frame has no power bins")
	}

	factor := 1
	if w.maxWidth > 0 && bins > w.maxWidth {
		factor = (bins + w.maxWidth - 1) / w.maxWidth
	}

	axis, err := spectrum.NewAxis(spectrum.AxisConfig{
		CenterHz:       w.session.CenterHz,
		SampleRateHz:   w.session.SampleRate,
		Bins:           bins,
		LOMHz:          w.session.LOMHz,
		ReadoutBaseMHz: w.session.ReadoutBaseMHz,
	}, rec.OffsetKHz)
	if err != nil {
		return fmt.Errorf("building frequency axis: %w", err)
	}

	step := axis.Step()
	w.factor = factor
	w.Width = (bins + factor - 1) / factor
	w.FrequencyStep = step * float64(factor)
	// A column renders the mean of factor adjacent bins; its center sits
	// half a group past the first source bin.
	w.FrequencyMin = axis.Start() + step*float64(factor-1)/2
	w.FrequencyMax = w.FrequencyMin + w.FrequencyStep*float64(w.Width-1)
	return nil
}

// decimate averages groups of factor adjacent bins into a row of width
// columns. Missing source bins are left at zero.
func decimate(power []float64, factor, width int) []float64 {
	row := make([]float64, width)
	for i := range row {
		start := i * factor
		if start >= len(power) {
			break
		}
		end := min(start+factor, len(power))

		var sum float64
		for _, p := range power[start:end] {
			sum += p
		}
		row[i] = sum / float64(end-start)
	}
	return row
}
