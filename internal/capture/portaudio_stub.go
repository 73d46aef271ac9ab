//go:build !portaudio
// +build !portaudio

package capture

import (
	"context"
	"fmt"

	"github.com/ariavoice/aria/pkg/audio"
)

// Microphone stub when portaudio is not available.
type Microphone struct{}

var _ Source = (*Microphone)(nil)

func NewMicrophone(sampleRate int) *Microphone { return &Microphone{} }

func (m *Microphone) Start(_ context.Context) error {
	return fmt.Errorf("capture: microphone not available: rebuild with -tags portaudio")
}

func (m *Microphone) Frames() <-chan audio.Frame { return nil }

func (m *Microphone) Stop() error { return nil }
