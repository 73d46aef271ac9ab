// Package bridge defines the contract for the bidirectional live session the
// Aria pipeline talks to: an opaque channel that accepts outbound audio/text
// chunks and tool responses, and delivers inbound audio, transcription
// deltas, tool-call requests, and lifecycle signals as a single ordered
// event stream.
//
// Concrete providers (Gemini Live, OpenAI Realtime) live in subpackages and
// own the wire protocol; consumers see only typed [Event] values. All
// implementations must be safe for concurrent use.
package bridge

import (
	"context"

	"github.com/ariavoice/aria/pkg/audio/codec"
)

// EventType tags the variants of the inbound event stream.
type EventType int

const (
	// EventOpened signals that the session handshake completed and the
	// session is ready to accept audio.
	EventOpened EventType = iota

	// EventClosed signals that the session ended cleanly. No further events
	// follow; the Events channel is closed after delivery.
	EventClosed

	// EventError signals a fatal session error. The Err field carries the
	// cause. No further events follow.
	EventError

	// EventAudio carries one chunk of synthesized model audio as raw
	// little-endian 16-bit PCM bytes, already stripped of the transport
	// encoding. Seq is the arrival position within the session.
	EventAudio

	// EventTranscript carries an incremental transcription delta for either
	// the user's speech or the model's spoken output.
	EventTranscript

	// EventInterrupted signals that the remote model detected user speech
	// over its own output. All scheduled playback must stop immediately.
	EventInterrupted

	// EventToolCall carries a structured function-call request from the
	// model. Exactly one tool response must be sent back for it.
	EventToolCall
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "OPENED"
	case EventClosed:
		return "CLOSED"
	case EventError:
		return "ERROR"
	case EventAudio:
		return "AUDIO"
	case EventTranscript:
		return "TRANSCRIPT"
	case EventInterrupted:
		return "INTERRUPTED"
	case EventToolCall:
		return "TOOL_CALL"
	default:
		return "UNKNOWN"
	}
}

// Speaker identifies whose speech a transcript delta belongs to.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Event is one tagged message from the session. Only the fields relevant to
// the Type are populated.
type Event struct {
	Type EventType

	// Err is the failure cause for EventError.
	Err error

	// Audio is raw 16-bit little-endian PCM for EventAudio.
	Audio []byte

	// Seq is the arrival sequence position of an audio chunk, starting at 0.
	Seq int

	// Text is the transcription delta for EventTranscript.
	Text string

	// Speaker tags a transcript delta as user or model speech.
	Speaker Speaker

	// Tool is the function-call request for EventToolCall.
	Tool *ToolCall
}

// ToolCall is a structured function-call request from the model. It is paired
// 1:1 with exactly one tool response carrying the same ID.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolDefinition declares a callable tool to the model at session setup.
// Parameters is an externally supplied JSON-schema-shaped contract and is
// passed through to the provider verbatim.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Voice selects the provider-specific synthesis voice.
	Voice string

	// Instructions is the system-level prompt defining the agent's persona.
	Instructions string

	// Tools is the set of tool declarations offered to the model.
	Tools []ToolDefinition
}

// Session is an open bidirectional live session.
//
// The session is the hot path of the pipeline: every send method must return
// quickly and must not be called before the handshake completes. Callers must
// drain Events promptly and call Close when done.
type Session interface {
	// SendAudio delivers one encoded capture chunk to the model. Sends are
	// best-effort: a failure means the chunk is lost, which is acceptable
	// for live audio. Returns an error if the session is closed.
	SendAudio(chunk codec.Chunk) error

	// SendText delivers a typed text turn to the model.
	SendText(chunk codec.Chunk) error

	// SendToolResponse acknowledges a tool call. id and name must match the
	// originating [ToolCall]; result is the structured response payload.
	SendToolResponse(id, name string, result map[string]any) error

	// Events returns the ordered inbound event stream. The channel is closed
	// after a terminal EventClosed or EventError, or when Close is called.
	Events() <-chan Event

	// Close terminates the session and releases all resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any live session backend.
type Provider interface {
	// Connect establishes a new session. The returned Session emits
	// EventOpened once the handshake completes. Returns an error if the
	// connection cannot be established; the caller owns the Session and is
	// responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
