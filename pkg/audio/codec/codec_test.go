package codec_test

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"

	"github.com/ariavoice/aria/pkg/audio"
	"github.com/ariavoice/aria/pkg/audio/codec"
)

func TestEncode_MIMECarriesRate(t *testing.T) {
	t.Parallel()

	chunk := codec.Encode(audio.Frame{Samples: []float32{0}, SampleRate: 16000})
	if want := "audio/pcm;rate=16000"; chunk.MIME != want {
		t.Errorf("MIME = %q, want %q", chunk.MIME, want)
	}
}

func TestEncodeDecodeAudio_RoundTrip(t *testing.T) {
	t.Parallel()

	in := make([]float32, 512)
	for i := range in {
		in[i] = float32(math.Sin(2*math.Pi*float64(i)/100)) * 0.7
	}
	frame := audio.Frame{Samples: in, SampleRate: 24000}

	chunk := codec.Encode(frame)
	raw, err := codec.Decode(chunk.Data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out, err := codec.DecodeAudio(raw, 24000, 1)
	if err != nil {
		t.Fatalf("DecodeAudio: %v", err)
	}

	if out.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", out.SampleRate)
	}
	if len(out.Samples) != len(in) {
		t.Fatalf("samples = %d, want %d", len(out.Samples), len(in))
	}
	const tolerance = 1.0 / 32767
	for i := range in {
		if diff := math.Abs(float64(out.Samples[i] - in[i])); diff > tolerance {
			t.Fatalf("sample %d out of quantization tolerance: got %v, want %v", i, out.Samples[i], in[i])
		}
	}
}

func TestDecode_RejectsBadBase64(t *testing.T) {
	t.Parallel()

	if _, err := codec.Decode("!!! not base64 !!!"); err == nil {
		t.Fatal("Decode accepted invalid base64")
	}
}

func TestDecodeAudio_MalformedLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      []byte
		channels int
		wantErr  bool
	}{
		{"odd byte count mono", make([]byte, 3), 1, true},
		{"even bytes mono", make([]byte, 4), 1, false},
		{"not multiple of stereo sample", make([]byte, 6), 2, true},
		{"whole stereo samples", make([]byte, 8), 2, false},
		{"zero channels", make([]byte, 4), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.DecodeAudio(tt.raw, 24000, tt.channels)
			if tt.wantErr && !errors.Is(err, codec.ErrMalformedAudio) {
				t.Errorf("err = %v, want ErrMalformedAudio", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDecodeAudio_StereoTakesFirstChannel(t *testing.T) {
	t.Parallel()

	// L=full scale, R=0 interleaved.
	raw := audio.Float32ToPCM16([]float32{1, 0, 1, 0})
	frame, err := codec.DecodeAudio(raw, 24000, 2)
	if err != nil {
		t.Fatalf("DecodeAudio: %v", err)
	}
	if len(frame.Samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(frame.Samples))
	}
	if frame.Samples[0] < 0.99 {
		t.Errorf("first channel sample = %v, want ~1", frame.Samples[0])
	}
}

func TestEncodeText(t *testing.T) {
	t.Parallel()

	chunk := codec.EncodeText("what should I wear today?")
	if chunk.MIME != codec.MIMEText {
		t.Errorf("MIME = %q, want %q", chunk.MIME, codec.MIMEText)
	}
	decoded, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		t.Fatalf("data is not valid base64: %v", err)
	}
	if string(decoded) != "what should I wear today?" {
		t.Errorf("decoded = %q", decoded)
	}
}
