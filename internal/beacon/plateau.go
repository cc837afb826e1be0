package beacon

import (
	"github.com/roman-kulish/beacon-surveillance/internal/dsp"
)

const (
	plateauPercentile = 98.0
	historyLength     = 15
	smoothingAlpha    = 0.2

	displayFloor   = -1.0
	displayCeiling = 10.0
	displayHeadway = 0.8
)

// Level is one plateau observation after smoothing.
type Level struct {
	Raw      float64 // percentile level of the current frame
	Smoothed float64 // median-of-history blended estimate
	Min      float64 // lowest smoothed level seen
	Max      float64 // highest smoothed level seen
	YMin     float64 // display floor
	YMax     float64 // display ceiling, grows with the level
}

// Plateau tracks the wideband beacon level: the upper-percentile power
// inside the beacon band, medianed over recent frames and exponentially
// smoothed. The extremes and the display ceiling only ever widen.
type Plateau struct {
	lowMHz  float64
	highMHz float64

	history  []float64
	smoothed float64
	seeded   bool
	min      float64
	max      float64
	yMax     float64
}

// NewPlateau returns a tracker for the band between lowMHz and highMHz on
// the display axis.
func NewPlateau(lowMHz, highMHz float64) *Plateau {
	return &Plateau{
		lowMHz:  lowMHz,
		highMHz: highMHz,
		history: make([]float64, 0, historyLength),
		yMax:    displayCeiling,
	}
}

// Observe folds one noise-relative spectrum into the estimate. A frame
// whose axis misses the band entirely contributes a zero level.
func (p *Plateau) Observe(axis, rel []float64) Level {
	var band []float64
	for i, f := range axis {
		if f >= p.lowMHz && f <= p.highMHz {
			band = append(band, rel[i])
		}
	}

	raw := 0.0
	if len(band) > 0 {
		raw = dsp.Percentile(band, plateauPercentile)
	}

	if len(p.history) == historyLength {
		copy(p.history, p.history[1:])
		p.history = p.history[:historyLength-1]
	}
	p.history = append(p.history, raw)

	median := dsp.Median(p.history)
	if !p.seeded {
		p.smoothed = median
		p.min = median
		p.max = median
		p.seeded = true
	} else {
		p.smoothed = smoothingAlpha*median + (1-smoothingAlpha)*p.smoothed
		if p.smoothed < p.min {
			p.min = p.smoothed
		}
		if p.smoothed > p.max {
			p.max = p.smoothed
		}
	}

	if p.smoothed != 0 {
		if target := p.smoothed / displayHeadway; target > p.yMax {
			p.yMax = target
		}
	}

	return Level{
		Raw:      raw,
		Smoothed: p.smoothed,
		Min:      p.min,
		Max:      p.max,
		YMin:     displayFloor,
		YMax:     p.yMax,
	}
}
