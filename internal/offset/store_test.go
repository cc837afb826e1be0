package offset

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lnb_offset.txt")
	s := New(path)

	value, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if value != DefaultValue {
		t.Errorf("Load() = %f, want %f", value, DefaultValue)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("store file not created: %v", err)
	}
	if string(raw) != "50.000" {
		t.Errorf("store file = %q, want %q", raw, "50.000")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
		rewrite string
	}{
		{"garbage", "abc", 50.0, "50.000"},
		{"empty", "", 50.0, "50.000"},
		{"valid value kept", "12.345", 12.345, "12.345"},
		{"whitespace trimmed", " -3.200 \n", -3.2, " -3.200 \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "lnb_offset.txt")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			s := New(path)
			value, err := s.Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if math.Abs(value-tt.want) > 1e-9 {
				t.Errorf("Load() = %f, want %f", value, tt.want)
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(raw) != tt.rewrite {
				t.Errorf("store file = %q, want %q", raw, tt.rewrite)
			}
		})
	}
}

func TestStepRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lnb_offset.txt")
	s := New(path)

	start, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err = s.StepUp(); err != nil {
		t.Fatalf("StepUp() error = %v", err)
	}
	value, err := s.StepDown()
	if err != nil {
		t.Fatalf("StepDown() error = %v", err)
	}

	if math.Abs(value-start) > 1e-9 {
		t.Errorf("after up+down = %f, want %f", value, start)
	}
}

func TestStepPersistsImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lnb_offset.txt")
	s := New(path)

	if _, err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		value, err := s.StepUp()
		if err != nil {
			t.Fatalf("StepUp() error = %v", err)
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if want := fmt.Sprintf("%.3f", value); string(raw) != want {
			t.Errorf("persisted %q, in-memory %q", raw, want)
		}
		if got := s.Current(); got != value {
			t.Errorf("Current() = %f, want %f", got, value)
		}
	}
}

func TestCustomStepAndDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lnb_offset.txt")
	s := New(path, WithStep(0.5), WithDefault(10))

	if _, err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := s.Current(); got != 10 {
		t.Errorf("Current() = %f, want 10", got)
	}

	value, err := s.StepDown()
	if err != nil {
		t.Fatalf("StepDown() error = %v", err)
	}
	if math.Abs(value-9.5) > 1e-9 {
		t.Errorf("StepDown() = %f, want 9.5", value)
	}
}
