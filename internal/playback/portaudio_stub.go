//go:build !portaudio
// +build !portaudio

package playback

import (
	"fmt"
	"time"
)

// Device stub when portaudio is not available.
type Device struct{}

var _ Output = (*Device)(nil)

func NewDevice(sampleRate int) (*Device, error) {
	return nil, fmt.Errorf("playback: audio output not available: rebuild with -tags portaudio")
}

func (d *Device) Now() time.Duration { return 0 }

func (d *Device) PlayAt(_ *Unit, _ time.Duration) (Handle, error) {
	return nil, fmt.Errorf("playback: audio output not available")
}

func (d *Device) Close() error { return nil }
