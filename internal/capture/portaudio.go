//go:build portaudio
// +build portaudio

package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/ariavoice/aria/pkg/audio"
)

const micFramesPerBuffer = 1024

// Microphone is a Source reading the default portaudio input device in mono
// at the capture rate.
type Microphone struct {
	sampleRate int
	frames     chan audio.Frame

	mu     sync.Mutex
	stream *portaudio.Stream
}

var _ Source = (*Microphone)(nil)

// NewMicrophone creates an unstarted microphone source.
func NewMicrophone(sampleRate int) *Microphone {
	return &Microphone{
		sampleRate: sampleRate,
		frames:     make(chan audio.Frame, 8),
	}
}

// Start opens and starts the input stream. Devices that cannot open the
// requested rate are opened at their default rate instead; frames carry the
// actual rate so the pump can resample. The context is unused; the callback
// model has no blocking start phase to cancel.
func (m *Microphone) Start(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: initializing portaudio: %w", err)
	}

	stream, err := m.open(m.sampleRate)
	if err != nil {
		dev, devErr := portaudio.DefaultInputDevice()
		if devErr != nil || int(dev.DefaultSampleRate) == m.sampleRate {
			portaudio.Terminate()
			return fmt.Errorf("capture: opening stream: %w", err)
		}
		stream, err = m.open(int(dev.DefaultSampleRate))
		if err != nil {
			portaudio.Terminate()
			return fmt.Errorf("capture: opening stream at device rate: %w", err)
		}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("capture: starting stream: %w", err)
	}

	m.mu.Lock()
	m.stream = stream
	m.mu.Unlock()
	return nil
}

// open opens a mono input stream at the given rate; callback frames are
// tagged with that rate.
func (m *Microphone) open(rate int) (*portaudio.Stream, error) {
	return portaudio.OpenDefaultStream(1, 0, float64(rate), micFramesPerBuffer, func(in []float32) {
		samples := append([]float32(nil), in...)
		select {
		case m.frames <- audio.Frame{Samples: samples, SampleRate: rate}:
		default:
			// Consumer lagging; drop this buffer rather than block the
			// audio callback.
		}
	})
}

func (m *Microphone) Frames() <-chan audio.Frame { return m.frames }

func (m *Microphone) Stop() error {
	m.mu.Lock()
	stream := m.stream
	m.stream = nil
	m.mu.Unlock()

	if stream == nil {
		return nil
	}
	err := stream.Stop()
	stream.Close()
	portaudio.Terminate()
	close(m.frames)
	if err != nil {
		return fmt.Errorf("capture: stopping stream: %w", err)
	}
	return nil
}
