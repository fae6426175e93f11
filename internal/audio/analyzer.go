package audio

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	fftSize  = 2048 // power of two
	numBands = 64

	// weight of the previous frame in the temporal smoothing
	smoothingFactor = 0.5

	minBandFreq = 20.0
	maxBandFreq = 20000.0
	dbFloor     = -60.0
)

// LevelsCallback receives fresh band levels (0-255) as soon as they are computed
type LevelsCallback func(bands []uint8)

// Analyzer turns the PCM the sink actually plays into log-spaced FFT band levels.
// Because it sees decimated audio, the top band is capped at the reduced Nyquist.
type Analyzer struct {
	mu sync.RWMutex

	fft    *fourier.FFT
	window []float64

	ring  []float64
	index int

	smoothed []float64

	sampleRate int
	channels   int
	ready      bool

	callback LevelsCallback
}

// NewAnalyzer creates an analyzer. Configure must be called before samples arrive;
// OtoSink does it on Open.
func NewAnalyzer() *Analyzer {
	window := make([]float64, fftSize)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	return &Analyzer{
		fft:        fourier.NewFFT(fftSize),
		window:     window,
		ring:       make([]float64, fftSize),
		smoothed:   make([]float64, numBands),
		sampleRate: 44100,
		channels:   2,
	}
}

// Configure sets the format of the incoming PCM and clears the history
func (a *Analyzer) Configure(sampleRate, channels int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sampleRate = sampleRate
	a.channels = max(channels, 1)
	a.resetLocked()
}

// ProcessSamples mixes s16le frames down to mono and runs the FFT each time the
// ring buffer fills.
func (a *Analyzer) ProcessSamples(data []byte) {
	var levels []uint8

	a.mu.Lock()
	frameSize := a.channels * bytesPerSample
	for i := 0; i+frameSize <= len(data); i += frameSize {
		var sum float64
		for ch := 0; ch < a.channels; ch++ {
			off := i + ch*bytesPerSample
			sum += float64(int16(data[off])|int16(data[off+1])<<8) / 32768.0
		}
		a.ring[a.index] = sum / float64(a.channels)
		a.index = (a.index + 1) % fftSize

		if a.index == 0 {
			a.compute()
			a.ready = true
			if a.callback != nil {
				levels = a.levelsLocked()
			}
		}
	}
	cb := a.callback
	a.mu.Unlock()

	// callback runs without a.mu held
	if levels != nil && cb != nil {
		cb(levels)
	}
}

func (a *Analyzer) compute() {
	windowed := make([]float64, fftSize)
	for i := range windowed {
		windowed[i] = a.ring[(a.index+i)%fftSize] * a.window[i]
	}
	coeffs := a.fft.Coefficients(nil, windowed)

	hi := math.Min(maxBandFreq, float64(a.sampleRate)/2)
	logLo := math.Log10(minBandFreq)
	logSpan := math.Log10(hi) - logLo
	binWidth := float64(a.sampleRate) / fftSize

	bands := make([]float64, numBands)
	counts := make([]int, numBands)
	for bin := 1; bin < fftSize/2; bin++ {
		freq := float64(bin) * binWidth
		if freq < minBandFreq || freq > hi {
			continue
		}
		band := int((math.Log10(freq) - logLo) / logSpan * numBands)
		band = min(max(band, 0), numBands-1)

		mag := math.Hypot(real(coeffs[bin]), imag(coeffs[bin]))
		db := 20 * math.Log10(mag/fftSize+1e-10)
		bands[band] += clamp255((db - dbFloor) / -dbFloor * 255)
		counts[band]++
	}
	for i := range bands {
		if counts[i] > 0 {
			bands[i] /= float64(counts[i])
		}
	}

	// spread 30% into neighbouring bands
	for i := range a.smoothed {
		v := bands[i]
		if i > 0 {
			v += bands[i-1] * 0.3
		}
		if i < numBands-1 {
			v += bands[i+1] * 0.3
		}
		a.smoothed[i] = smoothingFactor*a.smoothed[i] + (1-smoothingFactor)*clamp255(v)
	}
}

func clamp255(v float64) float64 {
	return math.Max(0, math.Min(255, v))
}

func (a *Analyzer) levelsLocked() []uint8 {
	out := make([]uint8, numBands)
	for i, v := range a.smoothed {
		out[i] = uint8(clamp255(v))
	}
	return out
}

// Bands returns the latest smoothed band levels
func (a *Analyzer) Bands() []uint8 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.levelsLocked()
}

func (a *Analyzer) SetCallback(cb LevelsCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callback = cb
}

// Ready reports whether at least one full window has been analysed
func (a *Analyzer) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ready
}

func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

func (a *Analyzer) resetLocked() {
	a.index = 0
	a.ready = false
	clear(a.ring)
	clear(a.smoothed)
}
