// Package app wires the capture, session, playback, and state components
// into one running voice agent.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ariavoice/aria/internal/capture"
	"github.com/ariavoice/aria/internal/config"
	"github.com/ariavoice/aria/internal/monitor"
	"github.com/ariavoice/aria/internal/observe"
	"github.com/ariavoice/aria/internal/playback"
	"github.com/ariavoice/aria/internal/state"
	"github.com/ariavoice/aria/internal/stylist"
	"github.com/ariavoice/aria/pkg/audio"
	"github.com/ariavoice/aria/pkg/audio/codec"
	"github.com/ariavoice/aria/pkg/bridge"
)

// App owns one conversation's worth of pipeline. The session handle is
// written exactly once, by Connect; every other component reads it through
// the App and never before it is populated.
type App struct {
	cfg      *config.Config
	provider bridge.Provider
	out      playback.Output
	source   capture.Source
	display  stylist.Display

	logger  *slog.Logger
	metrics *observe.Metrics

	machine    *state.Machine
	sched      *playback.Scheduler
	mon        *monitor.Monitor
	monFrames  chan audio.Frame
	transcript Transcript

	mu        sync.Mutex
	session   bridge.Session
	sessionID string
	tools     *stylist.Handler
	capturing bool
}

// Option is a functional option for configuring an [App].
type Option func(*App)

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New assembles an App around the given collaborators. The provider supplies
// sessions, out plays scheduled audio, source captures the microphone, and
// display renders tool-call suggestions.
func New(cfg *config.Config, provider bridge.Provider, out playback.Output, source capture.Source, display stylist.Display, opts ...Option) *App {
	a := &App{
		cfg:       cfg,
		provider:  provider,
		out:       out,
		source:    source,
		display:   display,
		logger:    slog.Default(),
		monFrames: make(chan audio.Frame, 8),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.machine = state.New(
		state.WithLogger(a.logger),
		state.WithApplyHook(func(tr state.Transition) {
			a.metrics.RecordStateTransition(context.Background(), tr.From.String(), tr.To.String())
		}),
	)
	a.sched = playback.New(out,
		playback.WithIdleFunc(func() {
			a.machine.Apply(state.EventPlaybackDrained)
		}),
		playback.WithActiveFunc(func(delta int) {
			a.metrics.ActiveUnits.Add(context.Background(), int64(delta))
		}),
	)
	a.mon = monitor.New(
		monitor.WithRefresh(cfg.Monitor.Refresh),
		monitor.WithGate(func() bool {
			cur := a.machine.Current()
			return cur == state.Listening || cur == state.Speaking
		}),
	)
	return a
}

// State returns the current conversation state.
func (a *App) State() state.State { return a.machine.Current() }

// StateChanges returns a best-effort stream of state transitions for UIs.
func (a *App) StateChanges() <-chan state.Transition { return a.machine.Subscribe() }

// Transcript returns the conversation transcript accumulated so far.
func (a *App) Transcript() *Transcript { return &a.transcript }

// Monitor returns the amplitude monitor driving the visualizer.
func (a *App) Monitor() *monitor.Monitor { return a.mon }

// Connect opens the remote session. It is the sole writer of the session
// handle. Call once per conversation; reconnection after an error or close
// means calling Connect again on a fresh App run.
func (a *App) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.session != nil {
		a.mu.Unlock()
		return fmt.Errorf("app: already connected")
	}
	a.mu.Unlock()

	if _, ok := a.machine.Apply(state.EventConnect); !ok {
		return fmt.Errorf("app: cannot connect while %s", a.machine.Current())
	}

	ctx, span := observe.StartSpan(ctx, "session.connect")
	defer span.End()

	sess, err := a.provider.Connect(ctx, bridge.SessionConfig{
		Voice:        a.cfg.Session.Voice,
		Instructions: a.cfg.Session.Instructions,
		Tools:        []bridge.ToolDefinition{stylist.Declaration()},
	})
	if err != nil {
		a.machine.Apply(state.EventConnectFailed)
		a.metrics.RecordSessionError(ctx, a.cfg.Session.Provider)
		return fmt.Errorf("app: connect: %w", err)
	}

	a.mu.Lock()
	a.session = sess
	a.sessionID = uuid.NewString()
	a.tools = stylist.NewHandler(a.display, sess.SendToolResponse,
		stylist.WithLogger(a.logger),
		stylist.WithCallHook(func() {
			a.metrics.RecordToolCall(context.Background(), stylist.ToolName, "received")
		}),
	)
	a.mu.Unlock()

	a.logger.Info("app: session connecting", "session", a.currentSessionID(), "provider", a.cfg.Session.Provider)
	return nil
}

func (a *App) currentSession() bridge.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *App) currentSessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// SendText injects a typed user message into the conversation alongside the
// audio stream.
func (a *App) SendText(text string) error {
	sess := a.currentSession()
	if sess == nil {
		return fmt.Errorf("app: not connected")
	}
	return sess.SendText(codec.EncodeText(text))
}

// Run drives the session event loop and the amplitude monitor until the
// session ends or ctx is cancelled. Connect must have succeeded first.
func (a *App) Run(ctx context.Context) error {
	sess := a.currentSession()
	if sess == nil {
		return fmt.Errorf("app: not connected")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.mon.Run(ctx, a.monFrames)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer a.stopCapture()
		return a.eventLoop(ctx, sess)
	})
	return g.Wait()
}

// eventLoop consumes the session's event stream. Every failure it encounters
// is local: a malformed chunk is dropped, a failed send is logged, and only
// the session's own terminal events end the loop. A stream that ends without
// a terminal event is treated as a close, so the machine never strands in a
// live state after the session is gone.
func (a *App) eventLoop(ctx context.Context, sess bridge.Session) error {
	sawTerminal := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sess.Events():
			if !ok {
				if !sawTerminal {
					a.machine.Apply(state.EventSessionClosed)
				}
				return nil
			}
			if ev.Type == bridge.EventClosed || ev.Type == bridge.EventError {
				sawTerminal = true
			}
			a.handleEvent(ctx, sess, ev)
		}
	}
}

func (a *App) handleEvent(ctx context.Context, sess bridge.Session, ev bridge.Event) {
	switch ev.Type {
	case bridge.EventOpened:
		a.machine.Apply(state.EventOpened)
		a.startCapture(ctx, sess)

	case bridge.EventAudio:
		a.scheduleAudio(ctx, ev)

	case bridge.EventTranscript:
		a.transcript.Append(ev.Speaker, ev.Text)

	case bridge.EventInterrupted:
		a.sched.Interrupt()
		a.machine.Apply(state.EventInterrupted)
		a.metrics.Interrupts.Add(ctx, 1)
		a.logger.Info("app: barge-in, playback stopped", "session", a.currentSessionID())

	case bridge.EventToolCall:
		if ev.Tool != nil {
			a.mu.Lock()
			h := a.tools
			a.mu.Unlock()
			h.Handle(*ev.Tool)
		}

	case bridge.EventError:
		a.machine.Apply(state.EventSessionError)
		a.metrics.RecordSessionError(ctx, a.cfg.Session.Provider)
		a.logger.Error("app: session failed", "session", a.currentSessionID(), "err", ev.Err)

	case bridge.EventClosed:
		a.machine.Apply(state.EventSessionClosed)
		a.logger.Info("app: session closed", "session", a.currentSessionID())
	}
}

// scheduleAudio decodes one inbound chunk and enqueues it. Decode failures
// drop the chunk and nothing else; the stream continues.
func (a *App) scheduleAudio(ctx context.Context, ev bridge.Event) {
	frame, err := codec.DecodeAudio(ev.Audio, a.cfg.Audio.PlaybackRate, 1)
	if err != nil {
		a.logger.Warn("app: dropping malformed audio chunk", "seq", ev.Seq, "err", err)
		return
	}

	gap := a.sched.Cursor() - a.out.Now()
	if err := a.sched.Enqueue(playback.NewUnit(frame)); err != nil {
		a.logger.Warn("app: failed to schedule chunk", "seq", ev.Seq, "err", err)
		return
	}
	a.metrics.UnitsScheduled.Add(ctx, 1)
	if gap > 0 {
		a.metrics.ScheduleGap.Record(ctx, gap.Seconds())
	} else {
		a.metrics.ScheduleGap.Record(ctx, 0)
	}

	a.machine.Apply(state.EventSpeechStarted)

	// Mirror to the visualizer; never block the scheduling path.
	select {
	case a.monFrames <- frame:
	default:
	}
}

// startCapture begins streaming the microphone into the session. Guarded so
// a second open event cannot start a second capture.
func (a *App) startCapture(ctx context.Context, sess bridge.Session) {
	a.mu.Lock()
	if a.capturing {
		a.mu.Unlock()
		return
	}
	a.capturing = true
	a.mu.Unlock()

	if err := a.source.Start(ctx); err != nil {
		a.logger.Error("app: capture failed to start", "err", err)
		a.machine.Apply(state.EventSessionError)
		return
	}

	pump := capture.NewPump(a.source, sess.SendAudio,
		capture.WithFrameSize(a.cfg.Audio.FrameSize),
		capture.WithLogger(a.logger),
		capture.WithTap(a.monFrames),
		capture.WithFrameHook(func() { a.metrics.CaptureFrames.Add(ctx, 1) }),
		capture.WithErrorHook(func() { a.metrics.CaptureSendErrors.Add(ctx, 1) }),
	)
	go func() {
		if err := pump.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("app: capture pump stopped", "err", err)
		}
	}()
}

func (a *App) stopCapture() {
	a.mu.Lock()
	capturing := a.capturing
	a.capturing = false
	a.mu.Unlock()

	if !capturing {
		return
	}
	if err := a.source.Stop(); err != nil {
		a.logger.Warn("app: capture stop", "err", err)
	}
}

// Shutdown tears the pipeline down: playback stops, the session closes, and
// capture is released. Safe to call after Run returns.
func (a *App) Shutdown() error {
	a.stopCapture()
	_ = a.sched.Close()

	sess := a.currentSession()
	if sess == nil {
		return nil
	}
	if err := sess.Close(); err != nil {
		return fmt.Errorf("app: close session: %w", err)
	}
	return nil
}
