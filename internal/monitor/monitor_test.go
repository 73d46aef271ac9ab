package monitor

import (
	"math"
	"testing"

	"github.com/ariavoice/aria/pkg/audio"
)

// sineFrame produces windowSize samples of a sine whose frequency lands
// exactly in the given FFT bin.
func sineFrame(bin int, amplitude float64) audio.Frame {
	samples := make([]float32, windowSize)
	for i := range samples {
		samples[i] = float32(amplitude * math.Sin(2*math.Pi*float64(bin)*float64(i)/windowSize))
	}
	return audio.Frame{Samples: samples, SampleRate: audio.PlaybackRate}
}

func TestFFTIsolatesSingleTone(t *testing.T) {
	t.Parallel()

	const bin = 17
	m := New()
	m.Feed(sineFrame(bin, 1))
	m.Recompute()

	bins := m.Bins()
	if got := len(bins); got != BinCount {
		t.Fatalf("got %d bins, want %d", got, BinCount)
	}
	if bins[bin] < 0.99 {
		t.Errorf("bin %d = %v, want ~1 for a full-scale tone", bin, bins[bin])
	}
	for k, v := range bins {
		if k == bin {
			continue
		}
		if v > 0.01 {
			t.Errorf("bin %d = %v, want ~0 away from the tone", k, v)
		}
	}
	// The level is the mean bin magnitude: one full bin out of BinCount.
	want := 1.0 / BinCount
	if lvl := m.Level(); math.Abs(lvl-want) > 0.001 {
		t.Errorf("level = %v, want ~%v (mean of one full bin)", lvl, want)
	}
}

func TestLevelIsMeanBinMagnitude(t *testing.T) {
	t.Parallel()

	m := New()
	m.Feed(sineFrame(17, 1))
	m.Recompute()

	var sum float64
	for _, v := range m.Bins() {
		sum += v
	}
	want := sum / BinCount
	if got := m.Level(); math.Abs(got-want) > 1e-12 {
		t.Errorf("level = %v, want mean bin magnitude %v", got, want)
	}
}

func TestSilenceYieldsZeroLevel(t *testing.T) {
	t.Parallel()

	m := New()
	m.Feed(audio.Frame{Samples: make([]float32, windowSize), SampleRate: audio.PlaybackRate})
	m.Recompute()

	if lvl := m.Level(); lvl != 0 {
		t.Errorf("level = %v for silence, want 0", lvl)
	}
	for k, v := range m.Bins() {
		if v != 0 {
			t.Errorf("bin %d = %v for silence, want 0", k, v)
		}
	}
}

func TestLevelIsClamped(t *testing.T) {
	t.Parallel()

	// Overdriven signal well past full scale.
	m := New()
	m.Feed(sineFrame(5, 4))
	m.Recompute()

	for k, v := range m.Bins() {
		if v > 1 {
			t.Errorf("bin %d = %v, want clamped to 1", k, v)
		}
	}
	if lvl := m.Level(); lvl > 1 {
		t.Errorf("level = %v, want within [0, 1]", lvl)
	}
}

func TestGateForcesSilence(t *testing.T) {
	t.Parallel()

	open := true
	m := New(WithGate(func() bool { return open }))
	m.Feed(sineFrame(10, 1))
	m.Recompute()
	if m.Level() == 0 {
		t.Fatal("level is 0 with the gate open and a tone in the window")
	}

	open = false
	m.Recompute()
	if lvl := m.Level(); lvl != 0 {
		t.Errorf("level = %v with the gate closed, want 0", lvl)
	}
}

func TestWindowSlides(t *testing.T) {
	t.Parallel()

	m := New()
	m.Feed(sineFrame(10, 1))
	// A window's worth of silence pushes the tone out entirely.
	m.Feed(audio.Frame{Samples: make([]float32, windowSize), SampleRate: audio.PlaybackRate})
	m.Recompute()

	if lvl := m.Level(); lvl != 0 {
		t.Errorf("level = %v after tone left the window, want 0", lvl)
	}
}
