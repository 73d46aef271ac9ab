// Package playback renders an arrival sequence of decoded audio chunks as
// back-to-back, non-overlapping audible output, and supports immediate
// full-stop on barge-in.
//
// The scheduler keeps a single monotonic cursor — the earliest time the next
// unit may begin on the output clock — and an active set of units currently
// enqueued for or in playback. Both are mutated only by the scheduler itself;
// other components interact exclusively through Enqueue and Interrupt.
package playback

import (
	"time"

	"github.com/ariavoice/aria/pkg/audio"
)

// Unit is one decoded, schedulable chunk of synthesized audio plus its
// intrinsic duration. Handing a Unit to [Scheduler.Enqueue] transfers
// ownership to the scheduler: the producer must not reuse it.
type Unit struct {
	// Samples holds normalized mono float32 samples.
	Samples []float32

	// SampleRate in Hz (24000 for the live model's synthesis output).
	SampleRate int
}

// NewUnit wraps a decoded frame as a playback unit.
func NewUnit(frame audio.Frame) *Unit {
	return &Unit{Samples: frame.Samples, SampleRate: frame.SampleRate}
}

// Duration returns the unit's intrinsic playback duration. Integer
// arithmetic only: cursor advancement never accumulates floating-point
// drift, however many small buffers a long session schedules.
func (u *Unit) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}
