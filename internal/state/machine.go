// Package state holds the conversation lifecycle machine. It is the single
// writer of the session state; every other component either feeds it events
// or reads the current state through it.
package state

import (
	"log/slog"
	"sync"
)

// State is the conversation lifecycle state. Exactly one value holds at any
// time.
type State int

const (
	Idle State = iota
	Connecting
	Listening
	Speaking
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	case Speaking:
		return "speaking"
	case Errored:
		return "error"
	default:
		return "unknown"
	}
}

// Event is an occurrence that may move the machine to a new state.
type Event int

const (
	// EventConnect is the user asking for a session.
	EventConnect Event = iota
	// EventOpened is a completed session handshake.
	EventOpened
	// EventConnectFailed is a handshake that did not complete.
	EventConnectFailed
	// EventSpeechStarted is the first inbound audio unit being scheduled.
	EventSpeechStarted
	// EventPlaybackDrained is the active output set emptying naturally.
	EventPlaybackDrained
	// EventInterrupted is the remote signalling user barge-in, after
	// playback has been stopped.
	EventInterrupted
	// EventSessionError is a fatal session failure.
	EventSessionError
	// EventSessionClosed is an orderly session close.
	EventSessionClosed
)

func (e Event) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventOpened:
		return "opened"
	case EventConnectFailed:
		return "connect_failed"
	case EventSpeechStarted:
		return "speech_started"
	case EventPlaybackDrained:
		return "playback_drained"
	case EventInterrupted:
		return "interrupted"
	case EventSessionError:
		return "session_error"
	case EventSessionClosed:
		return "session_closed"
	default:
		return "unknown"
	}
}

// Transition describes one applied state change.
type Transition struct {
	From  State
	Event Event
	To    State
}

// transitions maps the state-specific rules. Events valid from any state
// (session error, session close) are handled separately in Apply.
var transitions = map[State]map[Event]State{
	Idle: {
		EventConnect: Connecting,
	},
	Connecting: {
		EventOpened:        Listening,
		EventConnectFailed: Errored,
	},
	Listening: {
		EventSpeechStarted: Speaking,
		EventInterrupted:   Listening,
	},
	Speaking: {
		EventPlaybackDrained: Listening,
		EventInterrupted:     Listening,
	},
}

// Machine is a table-driven state machine safe for concurrent use.
type Machine struct {
	logger *slog.Logger

	mu      sync.Mutex
	current State
	subs    []chan Transition
	onApply func(Transition)
}

// Option is a functional option for configuring a [Machine].
type Option func(*Machine)

// WithLogger sets the logger for transition and rejection logs.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithApplyHook registers fn to be called (while the machine lock is not
// held) for every applied transition.
func WithApplyHook(fn func(Transition)) Option {
	return func(m *Machine) { m.onApply = fn }
}

// New creates a Machine in the Idle state.
func New(opts ...Option) *Machine {
	m := &Machine{logger: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Current returns the present state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Apply feeds one event into the machine. It returns the resulting state and
// whether the event caused a transition. Events with no rule for the current
// state are logged and ignored, never fatal.
func (m *Machine) Apply(e Event) (State, bool) {
	m.mu.Lock()

	var next State
	var ok bool
	switch e {
	case EventSessionError:
		// Valid from any state.
		next, ok = Errored, m.current != Errored
	case EventSessionClosed:
		next, ok = Idle, m.current != Idle
	default:
		next, ok = transitions[m.current][e]
	}
	if !ok {
		cur := m.current
		m.mu.Unlock()
		m.logger.Debug("state: event ignored", "state", cur, "event", e)
		return cur, false
	}

	tr := Transition{From: m.current, Event: e, To: next}
	m.current = next
	subs := make([]chan Transition, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Info("state: transition", "from", tr.From, "event", tr.Event, "to", tr.To)
	for _, ch := range subs {
		select {
		case ch <- tr:
		default:
			// A stalled subscriber must not block the pipeline.
		}
	}
	if m.onApply != nil {
		m.onApply(tr)
	}
	return next, true
}

// Subscribe registers a new transition listener. Delivery is best-effort:
// a subscriber that falls behind misses transitions rather than blocking
// the machine.
func (m *Machine) Subscribe() <-chan Transition {
	ch := make(chan Transition, 16)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}
