package spectrum

import (
	"math"
	"testing"
)

func TestNewAveragerValidation(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		k       int
		wantErr bool
	}{
		{"valid", 16, 8, false},
		{"zero bins", 0, 8, true},
		{"zero window", 16, 0, true},
		{"negative window", 16, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAverager(tt.n, tt.k, DefaultFloorDB)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAverager(%d, %d) error = %v, wantErr %v", tt.n, tt.k, err, tt.wantErr)
			}
		})
	}
}

func TestAveragerConvergesToConstant(t *testing.T) {
	const (
		n = 8
		k = 5
		v = -12.5
	)

	a, err := NewAverager(n, k, DefaultFloorDB)
	if err != nil {
		t.Fatalf("NewAverager() error = %v", err)
	}

	spectrum := make([]float64, n)
	for i := range spectrum {
		spectrum[i] = v
	}

	var mean []float64
	for i := 0; i < k; i++ {
		mean, err = a.Push(spectrum)
		if err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	// After exactly K pushes every floor slot has been evicted.
	for i, got := range mean {
		if math.Abs(got-v) > 1e-9 {
			t.Errorf("bin %d = %f, want %f", i, got, v)
		}
	}
}

func TestAveragerBlendsWithFloor(t *testing.T) {
	const (
		n     = 4
		k     = 4
		v     = 10.0
		floor = -50.0
	)

	a, err := NewAverager(n, k, floor)
	if err != nil {
		t.Fatalf("NewAverager() error = %v", err)
	}

	spectrum := make([]float64, n)
	for i := range spectrum {
		spectrum[i] = v
	}

	mean, err := a.Push(spectrum)
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	want := (v + floor*(k-1)) / k
	for i, got := range mean {
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("bin %d = %f, want %f", i, got, want)
		}
	}
}

func TestAveragerEvictsOldest(t *testing.T) {
	const (
		n = 2
		k = 3
	)

	a, err := NewAverager(n, k, 0)
	if err != nil {
		t.Fatalf("NewAverager() error = %v", err)
	}

	push := func(v float64) []float64 {
		t.Helper()
		mean, err := a.Push([]float64{v, v})
		if err != nil {
			t.Fatalf("Push(%f) error = %v", v, err)
		}
		return mean
	}

	push(3)
	push(6)
	push(9)
	mean := push(12) // evicts the 3

	want := (6.0 + 9 + 12) / 3
	if math.Abs(mean[0]-want) > 1e-9 {
		t.Errorf("mean = %f, want %f", mean[0], want)
	}
}

func TestAveragerRejectsWrongLength(t *testing.T) {
	a, err := NewAverager(8, 2, 0)
	if err != nil {
		t.Fatalf("NewAverager() error = %v", err)
	}

	if _, err := a.Push(make([]float64, 7)); err == nil {
		t.Error("Push() with mismatched length did not fail")
	}
}
