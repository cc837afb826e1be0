package app

import (
	"image/color"
	"testing"
)

func rgba(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

func TestColorMapperClamps(t *testing.T) {
	cm := NewColorMapper(ClassicTheme, PowerBounds{Min: 0, Max: 10})

	if got, want := rgba(cm.GetColor(-5)), rgba(cm.GetColor(0)); got != want {
		t.Errorf("GetColor(-5) = %v, want lowest color %v", got, want)
	}
	if got, want := rgba(cm.GetColor(25)), rgba(cm.GetColor(10)); got != want {
		t.Errorf("GetColor(25) = %v, want highest color %v", got, want)
	}
}

func TestColorMapperThemes(t *testing.T) {
	themes := []ColorTheme{ClassicTheme, GrayscaleTheme, JungleTheme, ThermalTheme, MarineTheme, ColorTheme("")}
	bounds := PowerBounds{Min: -30, Max: 30}

	for _, theme := range themes {
		t.Run(string(theme), func(t *testing.T) {
			cm := NewColorMapper(theme, bounds)

			if cm.Size() != DefaultColorMapSize {
				t.Errorf("Size() = %d, want %d", cm.Size(), DefaultColorMapSize)
			}
			if cm.ThemeName() != theme {
				t.Errorf("ThemeName() = %s, want %s", cm.ThemeName(), theme)
			}

			low := rgba(cm.GetColor(bounds.Min))
			high := rgba(cm.GetColor(bounds.Max))
			if low == high {
				t.Errorf("theme maps both extremes to %v", low)
			}
		})
	}
}

func TestColorMapperUpdateBounds(t *testing.T) {
	cm := NewColorMapper(GrayscaleTheme, PowerBounds{Min: 0, Max: 100})

	before := rgba(cm.GetColor(9))
	cm.UpdateBounds(PowerBounds{Min: 0, Max: 10})
	after := rgba(cm.GetColor(9))

	if before == after {
		t.Errorf("GetColor(9) = %v before and after bounds change, want different colors", before)
	}
}

func TestColorMapperSizeFallback(t *testing.T) {
	cm := NewColorMapperWithSize(ClassicTheme, PowerBounds{Min: 0, Max: 1}, 0)
	if cm.Size() != DefaultColorMapSize {
		t.Errorf("Size() = %d, want default %d for zero size", cm.Size(), DefaultColorMapSize)
	}

	cm = NewColorMapperWithSize(ClassicTheme, PowerBounds{Min: 0, Max: 1}, 16)
	if cm.Size() != 16 {
		t.Errorf("Size() = %d, want 16", cm.Size())
	}
}
