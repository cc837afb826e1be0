package spectrum

import "fmt"

// DefaultFloorDB pre-fills averaging slots before the ring has seen real
// spectra, so early averages blend towards a quiet floor instead of zero.
const DefaultFloorDB = -50.0

// Averager maintains a fixed ring of the most recent K spectra and a
// running column-wise arithmetic mean. The ring starts pre-filled with a
// floor value; until K spectra have been pushed the mean is a blend of
// real data and that floor.
type Averager struct {
	n     int
	k     int
	ring  [][]float64
	mean  []float64
	index int
}

// NewAverager creates an Averager for spectra of n bins over a window of
// k frames, with every slot pre-filled to floorDB.
func NewAverager(n, k int, floorDB float64) (*Averager, error) {
	if n <= 0 {
		return nil, fmt.Errorf("bin count must be positive, got %d", n)
	}
	if k <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", k)
	}

	ring := make([][]float64, k)
	for i := range ring {
		ring[i] = make([]float64, n)
		for j := range ring[i] {
			ring[i][j] = floorDB
		}
	}

	return &Averager{
		n:    n,
		k:    k,
		ring: ring,
		mean: make([]float64, n),
	}, nil
}

// Window returns the number of frames the mean is taken over.
func (a *Averager) Window() int {
	return a.k
}

// Push overwrites the oldest slot with the given spectrum and returns the
// recomputed mean. The returned slice is reused between calls; callers that
// retain it must copy.
func (a *Averager) Push(power []float64) ([]float64, error) {
	if len(power) != a.n {
		return nil, fmt.Errorf("spectrum has %d bins, want %d", len(power), a.n)
	}

	copy(a.ring[a.index], power)
	a.index = (a.index + 1) % a.k

	for i := range a.mean {
		a.mean[i] = 0
	}
	for _, slot := range a.ring {
		for i, v := range slot {
			a.mean[i] += v
		}
	}

	scale := 1 / float64(a.k)
	for i := range a.mean {
		a.mean[i] *= scale
	}

	return a.mean, nil
}
