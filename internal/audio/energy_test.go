package audio

import (
	"context"
	"encoding/binary"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestEnergyAnalyzerSilenceIsZero(t *testing.T) {
	t.Parallel()

	a := newEnergyAnalyzer(EnergyConfig{FFTSize: 512})
	if _, err := a.Write(make([]byte, 1024)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if got := a.Sample(); got != 0 {
		t.Fatalf("expected zero energy for silence, got %f", got)
	}
}

func TestEnergyAnalyzerToneIsNormalized(t *testing.T) {
	t.Parallel()

	a := newEnergyAnalyzer(EnergyConfig{FFTSize: 512})
	if _, err := a.Write(sinePCM(1000, 16000, 0.5, 512)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got := a.Sample()
	if got <= 0 || got > 1 {
		t.Fatalf("expected energy in (0,1], got %f", got)
	}

	broadband := newEnergyAnalyzer(EnergyConfig{FFTSize: 512})
	_, _ = broadband.Write(noisePCM(512))
	if broadband.Sample() <= got {
		t.Fatalf("expected broadband signal to raise energy")
	}
}

func TestEnergyAnalyzerWriteCarriesOddByte(t *testing.T) {
	t.Parallel()

	a := newEnergyAnalyzer(EnergyConfig{FFTSize: 64})
	pcm := sinePCM(1000, 16000, 0.5, 64)
	_, _ = a.Write(pcm[:3])
	_, _ = a.Write(pcm[3:])

	b := newEnergyAnalyzer(EnergyConfig{FFTSize: 64})
	_, _ = b.Write(pcm)

	if a.Sample() != b.Sample() {
		t.Fatalf("split writes should match a single write")
	}
}

func TestEnergyAnalyzerStopsDelivering(t *testing.T) {
	t.Parallel()

	factory := NewEnergyAnalyzers(EnergyConfig{FFTSize: 64, FrameRate: 200}, zerolog.Nop())
	var delivered atomic.Int64
	analyzer := factory.Start(context.Background(), func(level float64) {
		if level < 0 || level > 1 {
			t.Errorf("sample out of range: %f", level)
		}
		delivered.Add(1)
	})
	_, _ = analyzer.Write(sinePCM(440, 16000, 0.3, 64))

	deadline := time.Now().Add(time.Second)
	for delivered.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if delivered.Load() == 0 {
		t.Fatalf("expected samples while running")
	}

	analyzer.Stop()
	after := delivered.Load()
	time.Sleep(30 * time.Millisecond)
	if delivered.Load() != after {
		t.Fatalf("samples delivered after stop: %d -> %d", after, delivered.Load())
	}

	analyzer.Stop()
}

func TestEnergyConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := EnergyConfig{FFTSize: 500, FrameRate: -1, Smoothing: 2}.withDefaults()
	if cfg.FFTSize != 512 || cfg.FrameRate != 60 || cfg.Smoothing != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestByteMagnitudeRange(t *testing.T) {
	t.Parallel()

	if byteMagnitude(0) != 0 {
		t.Fatalf("expected zero for zero magnitude")
	}
	if byteMagnitude(1) != maxByte {
		t.Fatalf("expected clamp to max for 0 dB")
	}
	if got := byteMagnitude(math.Pow(10, -65.0/20)); math.Abs(got-127.5) > 0.01 {
		t.Fatalf("expected midpoint for -65 dB, got %f", got)
	}
}

func sinePCM(freq, rate int, amplitude float64, samples int) []byte {
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude * math.Sin(2*math.Pi*float64(freq)*float64(i)/float64(rate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}

func noisePCM(samples int) []byte {
	out := make([]byte, samples*2)
	seed := uint32(7)
	for i := 0; i < samples; i++ {
		seed = seed*1664525 + 1013904223
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(seed>>16)))
	}
	return out
}
