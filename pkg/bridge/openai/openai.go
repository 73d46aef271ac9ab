// Package openai implements the bridge.Provider interface for OpenAI's
// Realtime API.
//
// It establishes a bidirectional WebSocket connection to the Realtime
// endpoint and exchanges JSON events according to the Realtime protocol.
// Audio travels as base64-encoded PCM16 chunks; speech_started events map to
// the interruption signal, and function-call completions map to tool-call
// events.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/ariavoice/aria/pkg/audio/codec"
	"github.com/ariavoice/aria/pkg/bridge"
)

// Compile-time assertions that Provider and session satisfy the bridge interfaces.
var _ bridge.Provider = (*Provider)(nil)
var _ bridge.Session = (*session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	eventBuf = 64
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements bridge.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect establishes a new Realtime session with the given configuration.
// The returned Session emits bridge.EventOpened once the server confirms the
// session.update.
func (p *Provider) Connect(ctx context.Context, cfg bridge.SessionConfig) (bridge.Session, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: make(chan bridge.Event, eventBuf),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSessionUpdate(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice             string    `json:"voice,omitempty"`
	Instructions      string    `json:"instructions,omitempty"`
	Tools             []oaiTool `json:"tools,omitempty"`
	InputAudioFormat  string    `json:"input_audio_format"`
	OutputAudioFormat string    `json:"output_audio_format"`
}

type oaiTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
	CallID  string             `json:"call_id,omitempty"`
	Output  string             `json:"output,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

// serverErrorDetail is the nested error object in a Realtime error event.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// response.function_call_arguments.done
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan bridge.Event
	seq    int // arrival position of the next audio chunk; receiveLoop only

	mu     sync.Mutex
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionUpdate sends a session.update event configuring voice,
// instructions, tools, and the fixed PCM16 audio formats.
func (s *session) sendSessionUpdate(cfg bridge.SessionConfig) error {
	params := sessionParams{
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
	}
	if len(cfg.Tools) > 0 {
		params.Tools = make([]oaiTool, len(cfg.Tools))
		for i, t := range cfg.Tools {
			params.Tools[i] = oaiTool{
				Type:        "function",
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			}
		}
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// emit delivers ev to the consumer, giving up if the session is torn down.
func (s *session) emit(ev bridge.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// emitTerminal delivers a terminal event even when the buffer is full:
// receiveLoop is the only sender, so evicting the oldest buffered event
// always frees a slot for the terminal.
func (s *session) emitTerminal(ev bridge.Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}

// receiveLoop reads events from the WebSocket and dispatches them as bridge
// events. It owns the events channel and closes it when it exits.
func (s *session) receiveLoop() {
	defer s.closeEvents()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.emitTerminal(bridge.Event{Type: bridge.EventClosed})
				return
			}
			s.emitTerminal(bridge.Event{Type: bridge.EventError, Err: fmt.Errorf("openai: read: %w", err)})
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		s.handleServerEvent(&evt)
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "session.created", "session.updated":
		s.emit(bridge.Event{Type: bridge.EventOpened})

	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		pcm, err := codec.Decode(evt.Delta)
		if err != nil || len(pcm) == 0 {
			return
		}
		s.emit(bridge.Event{Type: bridge.EventAudio, Audio: pcm, Seq: s.seq})
		s.seq++

	case "response.audio_transcript.delta":
		if evt.Delta != "" {
			s.emit(bridge.Event{Type: bridge.EventTranscript, Text: evt.Delta, Speaker: bridge.SpeakerModel})
		}

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript != "" {
			s.emit(bridge.Event{Type: bridge.EventTranscript, Text: evt.Transcript, Speaker: bridge.SpeakerUser})
		}

	case "input_audio_buffer.speech_started":
		// The user started speaking over model output: barge-in.
		s.emit(bridge.Event{Type: bridge.EventInterrupted})

	case "response.function_call_arguments.done":
		args := map[string]any{}
		if evt.Arguments != "" {
			if err := json.Unmarshal([]byte(evt.Arguments), &args); err != nil {
				args = map[string]any{"raw": evt.Arguments}
			}
		}
		s.emit(bridge.Event{Type: bridge.EventToolCall, Tool: &bridge.ToolCall{
			ID:   evt.CallID,
			Name: evt.Name,
			Args: args,
		}})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.emit(bridge.Event{Type: bridge.EventError, Err: fmt.Errorf("openai: %s", msg)})
	}
}

func (s *session) closeEvents() {
	s.closeOnce.Do(func() {
		close(s.events)
	})
}

// ── Session methods ────────────────────────────────────────────────────────────

// SendAudio appends one encoded capture chunk to the input audio buffer.
func (s *session) SendAudio(chunk codec.Chunk) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai: session closed")
	}
	s.mu.Unlock()

	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: chunk.Data,
	})
}

// SendText delivers a typed text turn and triggers a model response.
func (s *session) SendText(chunk codec.Chunk) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai: session closed")
	}
	s.mu.Unlock()

	text, err := codec.Decode(chunk.Data)
	if err != nil {
		return fmt.Errorf("openai: text chunk: %w", err)
	}

	if err := s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "user",
			Content: []conversationPart{
				{Type: "input_text", Text: string(text)},
			},
		},
	}); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{"type": "response.create"})
}

// SendToolResponse returns a function-call result and triggers the next
// model response.
func (s *session) SendToolResponse(id, name string, result map[string]any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai: session closed")
	}
	s.mu.Unlock()

	_ = name // the Realtime protocol correlates on call_id alone

	output, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("openai: marshal tool result: %w", err)
	}

	if err := s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: id,
			Output: string(output),
		},
	}); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{"type": "response.create"})
}

// Events returns the inbound event stream.
func (s *session) Events() <-chan bridge.Event { return s.events }

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
