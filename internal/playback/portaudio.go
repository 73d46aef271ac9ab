//go:build portaudio
// +build portaudio

package playback

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

const deviceFramesPerBuffer = 512

// Device is an Output backed by the default portaudio output stream. Its
// clock counts samples written to the hardware, so Now advances only while
// the stream runs and never jumps with wall-clock adjustments.
type Device struct {
	sampleRate int
	stream     *portaudio.Stream

	mu      sync.Mutex
	written int64 // samples pushed to the stream so far
	queue   []*deviceHandle
}

type deviceHandle struct {
	unit    *Unit
	startAt int64 // sample offset on the device clock
	read    int   // samples of the unit already rendered
	done    chan struct{}
	stopped atomic.Bool
}

var _ Output = (*Device)(nil)
var _ Handle = (*deviceHandle)(nil)

// NewDevice opens and starts the default output stream at sampleRate.
func NewDevice(sampleRate int) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("playback: initializing portaudio: %w", err)
	}

	d := &Device{sampleRate: sampleRate}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), deviceFramesPerBuffer, d.fill)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("playback: opening stream: %w", err)
	}
	d.stream = stream

	if err := d.stream.Start(); err != nil {
		d.stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("playback: starting stream: %w", err)
	}
	return d, nil
}

func (d *Device) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Duration(d.written) * time.Second / time.Duration(d.sampleRate)
}

func (d *Device) PlayAt(u *Unit, at time.Duration) (Handle, error) {
	if u.SampleRate != d.sampleRate {
		return nil, fmt.Errorf("playback: unit rate %d does not match device rate %d", u.SampleRate, d.sampleRate)
	}

	h := &deviceHandle{
		unit:    u,
		startAt: int64(at) * int64(d.sampleRate) / int64(time.Second),
		done:    make(chan struct{}),
	}

	d.mu.Lock()
	d.queue = append(d.queue, h)
	d.mu.Unlock()
	return h, nil
}

// fill is the portaudio render callback. Units are rendered additively at
// their sample offsets; the scheduler guarantees they do not overlap, so
// summation only ever mixes a unit with silence.
func (d *Device) fill(out []float32) {
	for i := range out {
		out[i] = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	base := d.written
	end := base + int64(len(out))
	kept := d.queue[:0]
	for _, h := range d.queue {
		if h.stopped.Load() {
			continue
		}
		from := h.startAt + int64(h.read)
		if from >= end {
			kept = append(kept, h)
			continue
		}
		off := from - base
		if off < 0 {
			// Missed the start (device was paused or late); begin immediately.
			off = 0
		}
		n := copy(out[off:], h.unit.Samples[h.read:])
		h.read += n
		if h.read >= len(h.unit.Samples) {
			close(h.done)
			continue
		}
		kept = append(kept, h)
	}
	d.queue = kept
	d.written = end
}

// Close stops the stream and releases portaudio. Pending units are dropped
// without their Done channels closing.
func (d *Device) Close() error {
	var err error
	if d.stream != nil {
		if stopErr := d.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("playback: stopping stream: %w", stopErr)
		}
		d.stream.Close()
	}
	portaudio.Terminate()
	return err
}

func (h *deviceHandle) Done() <-chan struct{} { return h.done }

func (h *deviceHandle) Stop() error {
	// Flag checked by the render callback; the handle is dropped from the
	// queue on the next fill. Done is intentionally left open.
	h.stopped.Store(true)
	return nil
}
