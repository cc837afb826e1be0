package beacon

import (
	"math"
	"testing"
)

// bandSpectrum builds an axis of 1 MHz bins with the given level inside
// [40, 60] MHz and zero outside.
func bandSpectrum(level float64) (axis, rel []float64) {
	axis = make([]float64, 100)
	rel = make([]float64, 100)
	for i := range axis {
		axis[i] = float64(i)
		if axis[i] >= 40 && axis[i] <= 60 {
			rel[i] = level
		}
	}
	return axis, rel
}

func TestPlateauFlatBandConverges(t *testing.T) {
	p := NewPlateau(40, 60)

	var last Level
	for i := 0; i < 15; i++ {
		axis, rel := bandSpectrum(10)
		last = p.Observe(axis, rel)
	}

	if last.Raw != 10 {
		t.Errorf("Raw = %v, want 10", last.Raw)
	}
	if math.Abs(last.Smoothed-10) > 0.5 {
		t.Errorf("Smoothed = %v, want 10 within 0.5", last.Smoothed)
	}
	if last.Min != last.Smoothed || last.Max != last.Smoothed {
		t.Errorf("Min/Max = %v/%v, want both equal to %v on a steady band", last.Min, last.Max, last.Smoothed)
	}
	if last.YMin != -1 {
		t.Errorf("YMin = %v, want -1", last.YMin)
	}
	if last.YMax != 12.5 {
		t.Errorf("YMax = %v, want 12.5", last.YMax)
	}
}

func TestPlateauEmptyBand(t *testing.T) {
	p := NewPlateau(1000, 2000)

	axis, rel := bandSpectrum(10)
	level := p.Observe(axis, rel)

	if level.Raw != 0 {
		t.Errorf("Raw = %v, want 0 when no bins fall in the band", level.Raw)
	}
	if level.Smoothed != 0 {
		t.Errorf("Smoothed = %v, want 0", level.Smoothed)
	}
	if level.YMax != 10 {
		t.Errorf("YMax = %v, want unchanged default 10", level.YMax)
	}
}

func TestPlateauSmoothedBlendsHistoryMedian(t *testing.T) {
	p := NewPlateau(40, 60)

	axis, rel := bandSpectrum(8)
	first := p.Observe(axis, rel)
	if first.Smoothed != 8 {
		t.Fatalf("Smoothed = %v, want seeded with first median 8", first.Smoothed)
	}

	axis, rel = bandSpectrum(100)
	second := p.Observe(axis, rel)

	// History median is (8+100)/2 = 54, blended as 0.2*54 + 0.8*8.
	if math.Abs(second.Smoothed-17.2) > 1e-9 {
		t.Errorf("Smoothed = %v, want 17.2", second.Smoothed)
	}
}

func TestPlateauMinMaxMonotonic(t *testing.T) {
	p := NewPlateau(40, 60)

	levels := []float64{5, 30, 1, 50, 2, 80, 0.5}

	prev := Level{Min: math.Inf(1), Max: math.Inf(-1)}
	for i, v := range levels {
		axis, rel := bandSpectrum(v)
		level := p.Observe(axis, rel)

		if level.Min > prev.Min {
			t.Errorf("frame %d: Min rose from %v to %v", i, prev.Min, level.Min)
		}
		if level.Max < prev.Max {
			t.Errorf("frame %d: Max fell from %v to %v", i, prev.Max, level.Max)
		}
		if level.Smoothed < level.Min || level.Smoothed > level.Max {
			t.Errorf("frame %d: Smoothed %v outside [%v, %v]", i, level.Smoothed, level.Min, level.Max)
		}

		prev = level
	}
}

func TestPlateauYMaxExpandOnly(t *testing.T) {
	p := NewPlateau(40, 60)

	var level Level
	for i := 0; i < 15; i++ {
		axis, rel := bandSpectrum(40)
		level = p.Observe(axis, rel)
	}
	if level.YMax != 50 {
		t.Fatalf("YMax = %v, want 50 after steady 40 dB band", level.YMax)
	}

	for i := 0; i < 15; i++ {
		axis, rel := bandSpectrum(2)
		level = p.Observe(axis, rel)
	}
	if level.YMax != 50 {
		t.Errorf("YMax = %v, want 50 retained after the band dropped", level.YMax)
	}
}

func TestPlateauHistoryBounded(t *testing.T) {
	p := NewPlateau(40, 60)

	var level Level
	for i := 0; i < 5; i++ {
		axis, rel := bandSpectrum(30)
		level = p.Observe(axis, rel)
	}
	for i := 0; i < 20; i++ {
		axis, rel := bandSpectrum(0)
		level = p.Observe(axis, rel)
	}

	if level.Raw != 0 {
		t.Errorf("Raw = %v, want 0", level.Raw)
	}
	if level.Smoothed > 5 {
		t.Errorf("Smoothed = %v, want decayed below 5 once old frames left the history", level.Smoothed)
	}
	if level.Max != 30 {
		t.Errorf("Max = %v, want 30", level.Max)
	}
	if level.Min != level.Smoothed {
		t.Errorf("Min = %v, want current smoothed %v on a falling band", level.Min, level.Smoothed)
	}
}
