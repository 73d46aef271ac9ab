// Package codec implements the transport codec for the Aria pipeline: the
// pure transforms between normalized float samples, 16-bit little-endian PCM,
// and the base64 text encoding the live session protocol carries on the wire.
//
// All functions are stateless and safe for concurrent use.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ariavoice/aria/pkg/audio"
)

// MIME content tags carried alongside encoded chunk data so the session
// bridge can route audio and text through the correct protocol field.
const (
	MIMEText = "text/plain"
)

// ErrMalformedAudio is returned by [DecodeAudio] when a raw PCM payload is
// not a whole number of samples for the given channel count. The caller is
// expected to drop the chunk and continue; one bad chunk is never fatal.
var ErrMalformedAudio = errors.New("codec: malformed audio data")

// Chunk is the wire-ready encoded form of an audio frame or text payload:
// a base64 byte-string plus its MIME content tag.
type Chunk struct {
	// MIME identifies the payload, e.g. "audio/pcm;rate=16000" or "text/plain".
	MIME string

	// Data is the base64-encoded payload.
	Data string
}

// AudioMIME returns the MIME tag for raw PCM at the given sample rate.
func AudioMIME(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// Encode converts a capture frame to a transport chunk: samples are clamped
// to [-1, 1], scaled to signed 16-bit range, serialized little-endian, and
// base64 encoded. Encode never fails.
func Encode(frame audio.Frame) Chunk {
	pcm := audio.Float32ToPCM16(frame.Samples)
	return Chunk{
		MIME: AudioMIME(frame.SampleRate),
		Data: base64.StdEncoding.EncodeToString(pcm),
	}
}

// EncodeText wraps arbitrary text as a transport chunk tagged as plain text.
// Used for the typed-input side channel.
func EncodeText(text string) Chunk {
	return Chunk{
		MIME: MIMEText,
		Data: base64.StdEncoding.EncodeToString([]byte(text)),
	}
}

// Decode reverses the text transport encoding only: base64 byte-string to
// raw PCM bytes. It does not interpret the sample rate.
func Decode(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("codec: decode transport data: %w", err)
	}
	return raw, nil
}

// DecodeAudio interprets raw little-endian 16-bit PCM bytes as normalized
// float samples at the given rate and channel count, producing a frame ready
// for playback scheduling. Returns [ErrMalformedAudio] when the byte length
// is not a multiple of the sample width times the channel count.
func DecodeAudio(raw []byte, sampleRate, channels int) (audio.Frame, error) {
	if channels <= 0 || sampleRate <= 0 {
		return audio.Frame{}, fmt.Errorf("%w: invalid format %dHz %dch", ErrMalformedAudio, sampleRate, channels)
	}
	if len(raw)%(2*channels) != 0 {
		return audio.Frame{}, fmt.Errorf("%w: %d bytes is not a whole number of %d-channel samples", ErrMalformedAudio, len(raw), channels)
	}

	samples := audio.PCM16ToFloat32(raw)
	if channels > 1 {
		samples = audio.FirstChannel(samples, channels)
	}
	return audio.Frame{Samples: samples, SampleRate: sampleRate}, nil
}
