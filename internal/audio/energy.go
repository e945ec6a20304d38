package audio

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/dsp/fourier"

	"voicestage/internal/ports"
)

const (
	minDecibels = -100.0
	maxDecibels = -30.0
	maxByte     = 255.0
)

// EnergyConfig controls spectrum analysis of the live microphone stream.
type EnergyConfig struct {
	FFTSize   int
	FrameRate int
	Smoothing float64
}

func (c EnergyConfig) withDefaults() EnergyConfig {
	if c.FFTSize < 32 || c.FFTSize&(c.FFTSize-1) != 0 {
		c.FFTSize = 512
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 60
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		c.Smoothing = 0
	}
	return c
}

// EnergyAnalyzers starts one spectrum analyzer per capture session.
type EnergyAnalyzers struct {
	cfg    EnergyConfig
	logger zerolog.Logger
}

func NewEnergyAnalyzers(cfg EnergyConfig, logger zerolog.Logger) *EnergyAnalyzers {
	return &EnergyAnalyzers{
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "energy").Logger(),
	}
}

// Start begins sampling at the configured frame rate until Stop or ctx cancellation.
func (f *EnergyAnalyzers) Start(ctx context.Context, sink func(level float64)) ports.EnergyAnalyzer {
	a := newEnergyAnalyzer(f.cfg)
	ctx, a.cancel = context.WithCancel(ctx)
	go a.run(ctx, sink)
	f.logger.Debug().Int("fft_size", f.cfg.FFTSize).Int("fps", f.cfg.FrameRate).Msg("analyzer started")
	return a
}

type energyAnalyzer struct {
	cfg      EnergyConfig
	fft      *fourier.FFT
	window   []float64
	smoothed []float64

	mu      sync.Mutex
	ring    []float64
	next    int
	partial []byte

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func newEnergyAnalyzer(cfg EnergyConfig) *energyAnalyzer {
	cfg = cfg.withDefaults()
	return &energyAnalyzer{
		cfg:      cfg,
		fft:      fourier.NewFFT(cfg.FFTSize),
		window:   blackmanWindow(cfg.FFTSize),
		smoothed: make([]float64, cfg.FFTSize/2),
		ring:     make([]float64, cfg.FFTSize),
		cancel:   func() {},
		done:     make(chan struct{}),
	}
}

// Write feeds s16le PCM into the time-domain window. Odd trailing bytes are
// carried over to the next write.
func (a *energyAnalyzer) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data := p
	if len(a.partial) > 0 {
		data = append(append([]byte(nil), a.partial...), p...)
		a.partial = a.partial[:0]
	}
	for len(data) >= 2 {
		sample := int16(binary.LittleEndian.Uint16(data))
		a.ring[a.next] = float64(sample) / 32768.0
		a.next = (a.next + 1) % len(a.ring)
		data = data[2:]
	}
	if len(data) == 1 {
		a.partial = append(a.partial, data[0])
	}
	return len(p), nil
}

// Stop halts sampling and returns once no further sample can be delivered.
func (a *energyAnalyzer) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
	})
	<-a.done
}

func (a *energyAnalyzer) run(ctx context.Context, sink func(level float64)) {
	defer close(a.done)

	ticker := time.NewTicker(time.Second / time.Duration(a.cfg.FrameRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		level := a.Sample()
		if ctx.Err() != nil {
			return
		}
		sink(level)
	}
}

// Sample computes the current normalized loudness in [0,1].
func (a *energyAnalyzer) Sample() float64 {
	n := a.cfg.FFTSize
	frame := make([]float64, n)

	a.mu.Lock()
	for i := 0; i < n; i++ {
		frame[i] = a.ring[(a.next+i)%n] * a.window[i]
	}
	a.mu.Unlock()

	coeffs := a.fft.Coefficients(nil, frame)
	bins := n / 2
	var total float64
	for i := 0; i < bins; i++ {
		c := coeffs[i]
		magnitude := math.Hypot(real(c), imag(c)) / float64(n)
		a.smoothed[i] = a.cfg.Smoothing*a.smoothed[i] + (1-a.cfg.Smoothing)*magnitude
		total += byteMagnitude(a.smoothed[i])
	}
	return clamp01(total / float64(bins) / maxByte)
}

// byteMagnitude maps a linear magnitude onto the 0..255 decibel scale.
func byteMagnitude(magnitude float64) float64 {
	if magnitude <= 0 {
		return 0
	}
	db := 20 * math.Log10(magnitude)
	scaled := maxByte * (db - minDecibels) / (maxDecibels - minDecibels)
	return math.Max(0, math.Min(maxByte, scaled))
}

func blackmanWindow(n int) []float64 {
	const alpha = 0.16
	a0 := 0.5 * (1 - alpha)
	a1 := 0.5
	a2 := 0.5 * alpha
	w := make([]float64, n)
	for i := range w {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
