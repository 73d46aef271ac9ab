package playback

import "time"

// Handle controls one unit submitted to an [Output].
type Handle interface {
	// Done is closed when the unit finishes playing naturally. It is never
	// closed for a unit that was stopped.
	Done() <-chan struct{}

	// Stop aborts playback immediately. Stopping a unit that already
	// finished may return an error; callers on the interrupt path must
	// swallow it.
	Stop() error
}

// Output is the audio output device abstraction the scheduler drives. The
// real implementation wraps a PortAudio stream; tests substitute a fake with
// a manual clock.
type Output interface {
	// Now returns the current position of the output clock. The clock is
	// monotonic and starts at zero when the output opens.
	Now() time.Duration

	// PlayAt schedules u to start at position at on the output clock, which
	// is never in the past (the scheduler guarantees at >= Now). Playback
	// proceeds without further involvement from the caller.
	PlayAt(u *Unit, at time.Duration) (Handle, error)
}
