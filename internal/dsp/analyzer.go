package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// epsilon guards the logarithm against zero magnitude bins
const epsilon = 1e-20

// Analyzer converts blocks of complex baseband samples into power spectra.
// Output values are in dB, normalised by the resolution bandwidth (fs/N) so
// that levels are comparable across sample rate and FFT size configurations.
// Zero frequency is centred: bin N/2 corresponds to the tuned frequency.
type Analyzer struct {
	n      int
	window []float64
	fft    *fourier.CmplxFFT
	rbw    float64 // 10*log10(fs/N), subtracted from every bin

	in    []complex128
	coeff []complex128
}

// NewAnalyzer creates an Analyzer for blocks of n samples taken at
// sampleRate Hz. The analysis window and the transform plan are prepared
// once here; Process performs no further allocation besides its result.
func NewAnalyzer(n int, sampleRate float64) (*Analyzer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("fft size must be positive, got %d", n)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	return &Analyzer{
		n:      n,
		window: HannWindow(n),
		fft:    fourier.NewCmplxFFT(n),
		rbw:    10 * math.Log10(sampleRate/float64(n)),
		in:     make([]complex128, n),
		coeff:  make([]complex128, n),
	}, nil
}

// Size returns the transform length N.
func (a *Analyzer) Size() int {
	return a.n
}

// Process transforms one sample block into a power spectrum of length N.
// Blocks shorter than N are windowed as a prefix and zero-padded; blocks
// longer than N are truncated. The function is pure and deterministic, and
// the returned slice is freshly allocated and owned by the caller.
func (a *Analyzer) Process(block []complex64) []float64 {
	m := len(block)
	if m > a.n {
		m = a.n
	}

	for i := 0; i < m; i++ {
		s := block[i]
		a.in[i] = complex(float64(real(s))*a.window[i], float64(imag(s))*a.window[i])
	}
	for i := m; i < a.n; i++ {
		a.in[i] = 0
	}

	coeff := a.fft.Coefficients(a.coeff, a.in)

	power := make([]float64, a.n)
	half := a.n / 2
	scale := 1 / float64(a.n)

	for i := range power {
		c := coeff[(i+half)%a.n] // reorder so zero frequency sits at N/2
		re := real(c) * scale
		im := imag(c) * scale
		power[i] = 10*math.Log10(re*re+im*im+epsilon) - a.rbw
	}

	return power
}
