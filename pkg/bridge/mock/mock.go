// Package mock provides an in-memory bridge.Provider for tests and offline
// development. Tests script the inbound event stream via [Session.Emit] and
// inspect everything the pipeline sent via the recorded call slices.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/ariavoice/aria/pkg/audio/codec"
	"github.com/ariavoice/aria/pkg/bridge"
)

// Compile-time assertions that the mocks satisfy the bridge interfaces.
var _ bridge.Provider = (*Provider)(nil)
var _ bridge.Session = (*Session)(nil)

// Provider is a scriptable bridge.Provider. The zero value is usable: each
// Connect returns a fresh open Session. Set ConnectErr to simulate a
// handshake failure.
type Provider struct {
	// ConnectErr, when non-nil, is returned by Connect.
	ConnectErr error

	// OpenOnConnect controls whether Connect immediately queues an
	// EventOpened on the new session. Defaults to true via [NewProvider];
	// zero-value Providers leave the handshake to the test script.
	OpenOnConnect bool

	mu       sync.Mutex
	sessions []*Session
}

// NewProvider creates a Provider whose sessions emit EventOpened on connect.
func NewProvider() *Provider {
	return &Provider{OpenOnConnect: true}
}

// Connect returns a new scriptable Session.
func (p *Provider) Connect(_ context.Context, cfg bridge.SessionConfig) (bridge.Session, error) {
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}

	s := NewSession()
	s.Config = cfg

	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()

	if p.OpenOnConnect {
		s.Emit(bridge.Event{Type: bridge.EventOpened})
	}
	return s, nil
}

// Sessions returns all sessions created so far, in connect order.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Last returns the most recently connected session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// ToolResponse records one SendToolResponse call.
type ToolResponse struct {
	ID     string
	Name   string
	Result map[string]any
}

// Session is a scriptable bridge.Session that records all outbound calls.
type Session struct {
	// Config is the SessionConfig passed to Connect.
	Config bridge.SessionConfig

	// SendErr, when non-nil, is returned by all send methods.
	SendErr error

	mu            sync.Mutex
	events        chan bridge.Event
	sentAudio     []codec.Chunk
	sentText      []codec.Chunk
	toolResponses []ToolResponse
	closed        bool
}

// NewSession creates an open Session with a generously buffered event stream.
func NewSession() *Session {
	return &Session{events: make(chan bridge.Event, 256)}
}

// Emit queues an inbound event for the consumer. Emitting a terminal event
// (EventClosed or EventError) also closes the stream, matching real provider
// behaviour.
func (s *Session) Emit(ev bridge.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
	if ev.Type == bridge.EventClosed || ev.Type == bridge.EventError {
		s.closed = true
		close(s.events)
	}
}

// SendAudio records the chunk.
func (s *Session) SendAudio(chunk codec.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	if s.closed {
		return fmt.Errorf("mock: session closed")
	}
	s.sentAudio = append(s.sentAudio, chunk)
	return nil
}

// SendText records the chunk.
func (s *Session) SendText(chunk codec.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	if s.closed {
		return fmt.Errorf("mock: session closed")
	}
	s.sentText = append(s.sentText, chunk)
	return nil
}

// SendToolResponse records the acknowledgement.
func (s *Session) SendToolResponse(id, name string, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.toolResponses = append(s.toolResponses, ToolResponse{ID: id, Name: name, Result: result})
	return nil
}

// Events returns the scripted event stream.
func (s *Session) Events() <-chan bridge.Event { return s.events }

// Close closes the event stream. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// SentAudio returns a snapshot of all recorded audio chunks, in send order.
func (s *Session) SentAudio() []codec.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]codec.Chunk, len(s.sentAudio))
	copy(out, s.sentAudio)
	return out
}

// SentText returns a snapshot of all recorded text chunks, in send order.
func (s *Session) SentText() []codec.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]codec.Chunk, len(s.sentText))
	copy(out, s.sentText)
	return out
}

// ToolResponses returns a snapshot of all recorded tool acknowledgements.
func (s *Session) ToolResponses() []ToolResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolResponse, len(s.toolResponses))
	copy(out, s.toolResponses)
	return out
}
