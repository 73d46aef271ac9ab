package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scheduler owns the queue of not-yet-finished playback units. It computes
// start times that guarantee gapless sequential playback in enqueue order,
// and exposes a full-stop for barge-in.
//
// All exported methods are safe for concurrent use. Enqueue serializes the
// scheduling step under one mutex, so even when chunk decoding runs
// concurrently upstream, units play in the order they were enqueued.
type Scheduler struct {
	out Output

	mu       sync.Mutex
	cursor   time.Duration // earliest start time for the next unit
	active   map[uint64]*activeUnit
	nextID   uint64
	onIdle   func()
	onActive func(delta int)
	closed   bool

	done chan struct{}
}

// activeUnit pairs a playing unit's handle with a stop signal owned by the
// scheduler. The output's Done channel only reports natural completion;
// stopped lets the completion watcher exit when the unit is force-stopped.
type activeUnit struct {
	handle  Handle
	stopped chan struct{}
}

// Option is a functional option for configuring a [Scheduler].
type Option func(*Scheduler)

// WithIdleFunc registers fn to be called (on an internal goroutine) whenever
// the active set drains through natural completion. It is not called on
// Interrupt — the interrupter already knows playback stopped.
func WithIdleFunc(fn func()) Option {
	return func(s *Scheduler) { s.onIdle = fn }
}

// WithActiveFunc registers fn to be called with +1 when a unit is enqueued
// and -1 when it leaves the active set, whether it finished or was stopped.
// Used to drive the in-flight units gauge.
func WithActiveFunc(fn func(delta int)) Option {
	return func(s *Scheduler) { s.onActive = fn }
}

// New creates a Scheduler driving the given output device.
func New(out Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:    out,
		active: make(map[uint64]*activeUnit),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules u for playback at max(cursor, now) on the output clock
// and advances the cursor by exactly the unit's duration. Chunks arriving
// faster than real time therefore play back-to-back with zero gap; a chunk
// arriving after the cursor has passed simply starts at now.
func (s *Scheduler) Enqueue(u *Unit) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("playback: scheduler closed")
	}

	now := s.out.Now()
	startAt := s.cursor
	if now > startAt {
		startAt = now
	}

	h, err := s.out.PlayAt(u, startAt)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("playback: start unit: %w", err)
	}

	id := s.nextID
	s.nextID++
	au := &activeUnit{handle: h, stopped: make(chan struct{})}
	s.active[id] = au
	s.cursor = startAt + u.Duration()
	// Report under the lock so a racing Interrupt cannot report the removal
	// before the addition.
	if s.onActive != nil {
		s.onActive(1)
	}
	s.mu.Unlock()

	go s.awaitCompletion(id, au)
	return nil
}

// awaitCompletion removes the unit from the active set when it finishes
// naturally and fires the idle callback if it was the last one. A unit
// force-stopped by Interrupt or Close has its stopped channel closed under
// the scheduler lock, so the watcher exits promptly instead of parking until
// shutdown.
func (s *Scheduler) awaitCompletion(id uint64, au *activeUnit) {
	select {
	case <-au.handle.Done():
	case <-au.stopped:
		// Interrupt or Close handled the bookkeeping.
		return
	case <-s.done:
		return
	}

	s.mu.Lock()
	if _, ok := s.active[id]; !ok {
		// Already force-stopped in a race with natural completion.
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	idle := len(s.active) == 0
	onIdle := s.onIdle
	onActive := s.onActive
	s.mu.Unlock()

	if onActive != nil {
		onActive(-1)
	}
	if idle && onIdle != nil {
		onIdle()
	}
}

// Interrupt force-stops every active unit, clears the active set, and resets
// the cursor to zero so the next enqueue schedules at now. Stop failures
// (e.g. a unit that finished in a race) are swallowed. Safe to call at any
// time; a no-op when nothing is playing.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stopped := s.clearLocked()
	onActive := s.onActive
	s.mu.Unlock()

	if onActive != nil && stopped > 0 {
		onActive(-stopped)
	}
}

// clearLocked stops and removes every active unit and resets the cursor.
// Callers hold s.mu. Returns how many units were removed.
func (s *Scheduler) clearLocked() int {
	n := len(s.active)
	for id, au := range s.active {
		if err := au.handle.Stop(); err != nil {
			slog.Debug("playback: stop raced with completion", "unit", id, "err", err)
		}
		close(au.stopped)
		delete(s.active, id)
	}
	s.cursor = 0
	return n
}

// ActiveCount returns the number of units currently enqueued for or in
// playback. Zero if and only if no audible output is being produced.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the current schedule cursor. Exposed for metrics and tests.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Close interrupts any remaining playback and shuts the scheduler down.
// Subsequent Enqueue calls fail. Idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stopped := s.clearLocked()
	onActive := s.onActive
	s.mu.Unlock()

	if onActive != nil && stopped > 0 {
		onActive(-stopped)
	}
	close(s.done)
	return nil
}
