// Package audio defines the sample types and pure PCM transforms shared by
// the capture and playback paths of the Aria voice pipeline.
//
// Audio flows through the pipeline in two representations: normalized float32
// samples (what the device layer produces and consumes) and little-endian
// 16-bit PCM bytes (what the wire carries). The conversions between the two
// live in this package and are stateless.
package audio

import "time"

// Standard pipeline rates. The live model consumes 16 kHz input and produces
// 24 kHz output; both are fixed by the remote session contract.
const (
	CaptureRate  = 16000
	PlaybackRate = 24000
)

// Frame is a fixed-length run of normalized float32 samples tagged with the
// rate it was produced at. A Frame is immutable once created: the producing
// stage hands it to the next stage and must not touch it afterwards.
type Frame struct {
	// Samples holds mono samples in the range [-1, 1]. Out-of-range values
	// are tolerated and clamped at encode time.
	Samples []float32

	// SampleRate in Hz (e.g. 16000 for capture).
	SampleRate int
}

// Duration returns the playback duration of the frame using integer
// arithmetic only, so long sessions accumulate no floating-point drift.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}
