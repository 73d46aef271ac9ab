// Package capture turns microphone input into encoded chunks ready for the
// upstream voice session. A Source produces raw sample batches at whatever
// granularity the device offers; the Pump rebuffers them into fixed-size
// frames, encodes each one, and hands it to the session without waiting for
// delivery confirmation.
package capture

import (
	"context"
	"log/slog"

	"github.com/ariavoice/aria/pkg/audio"
	"github.com/ariavoice/aria/pkg/audio/codec"
)

// DefaultFrameSize is the number of samples accumulated before a frame is
// encoded and sent. At the capture rate this is 256ms of audio.
const DefaultFrameSize = 4096

// Source delivers mono microphone samples. Batch sizes are device-dependent
// and need not match the pump's frame size.
type Source interface {
	// Start begins capture. Frames may be received after Start returns.
	Start(ctx context.Context) error
	// Frames returns the sample stream. Closed when the source stops.
	Frames() <-chan audio.Frame
	// Stop ends capture and releases the device.
	Stop() error
}

// SendFunc delivers one encoded chunk upstream. Errors are logged and the
// frame is dropped; capture never stalls on a slow or failing session.
type SendFunc func(codec.Chunk) error

// Pump rebuffers source samples into fixed frames and ships them upstream.
type Pump struct {
	src       Source
	send      SendFunc
	frameSize int
	logger    *slog.Logger

	tap     chan<- audio.Frame
	onFrame func()
	onError func()
}

// PumpOption is a functional option for configuring a [Pump].
type PumpOption func(*Pump)

// WithFrameSize overrides the default frame size in samples.
func WithFrameSize(n int) PumpOption {
	return func(p *Pump) { p.frameSize = n }
}

// WithLogger sets the logger used for dropped-frame warnings.
func WithLogger(l *slog.Logger) PumpOption {
	return func(p *Pump) { p.logger = l }
}

// WithTap mirrors each outgoing frame to ch for local analysis, for example
// the amplitude monitor. Sends are non-blocking: if the consumer lags, the
// frame is skipped rather than delaying the upstream send.
func WithTap(ch chan<- audio.Frame) PumpOption {
	return func(p *Pump) { p.tap = ch }
}

// WithFrameHook registers fn to be called after each successful send.
func WithFrameHook(fn func()) PumpOption {
	return func(p *Pump) { p.onFrame = fn }
}

// WithErrorHook registers fn to be called on each send failure.
func WithErrorHook(fn func()) PumpOption {
	return func(p *Pump) { p.onError = fn }
}

// NewPump creates a Pump reading from src and delivering via send.
func NewPump(src Source, send SendFunc, opts ...PumpOption) *Pump {
	p := &Pump{
		src:       src,
		send:      send,
		frameSize: DefaultFrameSize,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run consumes the source until ctx is cancelled or the source's frame
// channel closes. A trailing partial frame is discarded; the session expects
// uniform frames and a fraction of one is never worth a malformed send.
func (p *Pump) Run(ctx context.Context) error {
	buf := make([]float32, 0, p.frameSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-p.src.Frames():
			if !ok {
				return nil
			}
			samples := frame.Samples
			if frame.SampleRate != 0 && frame.SampleRate != audio.CaptureRate {
				// Devices that cannot open the capture rate deliver at their
				// native rate; bring them in line before framing.
				samples = audio.ResampleFloat32(samples, frame.SampleRate, audio.CaptureRate)
			}
			buf = append(buf, samples...)
			for len(buf) >= p.frameSize {
				p.ship(audio.Frame{
					Samples:    append([]float32(nil), buf[:p.frameSize]...),
					SampleRate: audio.CaptureRate,
				})
				buf = buf[p.frameSize:]
			}
		}
	}
}

func (p *Pump) ship(frame audio.Frame) {
	if p.tap != nil {
		select {
		case p.tap <- frame:
		default:
		}
	}

	if err := p.send(codec.Encode(frame)); err != nil {
		p.logger.Warn("capture: dropping frame", "err", err)
		if p.onError != nil {
			p.onError()
		}
		return
	}
	if p.onFrame != nil {
		p.onFrame()
	}
}
