// Package monitor derives a coarse frequency spectrum and an overall level
// from an audio stream, suitable for driving a visualizer at UI refresh
// rates. It analyzes a sliding window of the most recent samples; frames
// older than the window simply fall out of view.
package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ariavoice/aria/pkg/audio"
)

// BinCount is the number of frequency bins exposed per analysis.
const BinCount = 256

// windowSize is the FFT length. Twice the bin count: a real input yields a
// symmetric spectrum and only the first half carries information.
const windowSize = 2 * BinCount

// DefaultRefresh is how often the spectrum is recomputed while running.
const DefaultRefresh = 50 * time.Millisecond

// Monitor holds the sliding analysis window and the latest spectrum.
type Monitor struct {
	refresh time.Duration
	gate    func() bool

	mu     sync.Mutex
	window []float32
	bins   []float64
	level  float64
}

// Option is a functional option for configuring a [Monitor].
type Option func(*Monitor)

// WithRefresh overrides the recompute interval used by Run. The default is
// 50ms; non-positive values are ignored.
func WithRefresh(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.refresh = d
		}
	}
}

// WithGate installs a predicate consulted on each recompute. While it
// returns false the spectrum is forced to silence, regardless of what audio
// is still sitting in the window. Used to blank the visualizer the moment
// playback is interrupted.
func WithGate(fn func() bool) Option {
	return func(m *Monitor) { m.gate = fn }
}

// New creates a Monitor with an empty window.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		refresh: DefaultRefresh,
		window:  make([]float32, 0, windowSize),
		bins:    make([]float64, BinCount),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Feed appends a frame to the analysis window, discarding samples that no
// longer fit. Safe for concurrent use with Level and Bins.
func (m *Monitor) Feed(f audio.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window = append(m.window, f.Samples...)
	if extra := len(m.window) - windowSize; extra > 0 {
		m.window = append(m.window[:0], m.window[extra:]...)
	}
}

// Level returns the most recently computed overall level in [0, 1].
func (m *Monitor) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Bins returns a copy of the most recently computed spectrum. Each bin is
// in [0, 1].
func (m *Monitor) Bins() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.bins))
	copy(out, m.bins)
	return out
}

// Recompute runs one analysis pass over the current window. Exposed so
// callers without a Run loop can drive the monitor themselves.
func (m *Monitor) Recompute() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gate != nil && !m.gate() {
		m.silenceLocked()
		return
	}
	if len(m.window) == 0 {
		m.silenceLocked()
		return
	}

	re := make([]float64, windowSize)
	im := make([]float64, windowSize)
	for i := 0; i < len(m.window); i++ {
		re[i] = float64(m.window[i])
	}
	fft(re, im)

	var sum float64
	for k := 0; k < BinCount; k++ {
		// A full-scale sine concentrates windowSize/2 of magnitude in its
		// bin (plus the mirror); scaling by 2/windowSize maps that to 1.
		mag := math.Hypot(re[k], im[k]) * 2 / windowSize
		if mag > 1 {
			mag = 1
		}
		m.bins[k] = mag
		sum += mag
	}
	// The level is the mean bin magnitude; each bin is already in [0, 1] so
	// the mean is too.
	m.level = sum / BinCount
}

func (m *Monitor) silenceLocked() {
	for k := range m.bins {
		m.bins[k] = 0
	}
	m.level = 0
}

// Run consumes frames and recomputes the spectrum on a fixed tick until ctx
// is cancelled or the frame channel closes.
func (m *Monitor) Run(ctx context.Context, frames <-chan audio.Frame) error {
	ticker := time.NewTicker(m.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			m.Feed(f)
		case <-ticker.C:
			m.Recompute()
		}
	}
}
