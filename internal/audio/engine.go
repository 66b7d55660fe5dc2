package audio

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/storage"
)

// State is the engine's position in Idle → RequestingPermission →
// Recording → Stopped.
type State int

const (
	Idle State = iota
	RequestingPermission
	Recording
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestingPermission:
		return "requesting_permission"
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// ErrCancelled is returned by RequestStart when Cancel won the race
// against a pending permission request.
var ErrCancelled = errors.New("audio: capture cancelled")

// DefaultTick is the display telemetry resolution.
const DefaultTick = 100 * time.Millisecond

// Status is a snapshot for display.
type Status struct {
	State State  `json:"-"`
	Name  string `json:"state"`
	Title string `json:"title,omitempty"`
	// Elapsed is the coarse display counter. It may drift from the real
	// recording length and is never persisted.
	Elapsed time.Duration `json:"elapsed"`
	// Duration is the measured session length once stopped.
	Duration  time.Duration `json:"duration"`
	LastError string        `json:"last_error,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithFormat overrides the recording profile.
func WithFormat(f Format) Option {
	return func(e *Engine) { e.format = f }
}

// WithTick overrides the display tick interval.
func WithTick(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tick = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the wall clock used for note timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns the single microphone session. At most one recording exists
// at a time; starting while not idle is rejected.
type Engine struct {
	mic    Microphone
	store  storage.Provider
	format Format
	tick   time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	gen      uint64
	title    string
	handle   *storage.Handle
	session  Session
	elapsed  time.Duration
	duration time.Duration
	lastErr  error
	stopLoop chan struct{}
	loopDone chan struct{}
}

// NewEngine creates an idle engine.
func NewEngine(mic Microphone, store storage.Provider, opts ...Option) *Engine {
	e := &Engine{
		mic:    mic,
		store:  store,
		format: DefaultFormat,
		tick:   DefaultTick,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status returns the current snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		State:    e.state,
		Name:     e.state.String(),
		Title:    e.title,
		Elapsed:  e.elapsed,
		Duration: e.duration,
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	return st
}

// RequestStart validates the title, asks for microphone permission and
// opens a recording into a fresh attachment allocation.
func (e *Engine) RequestStart(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return apperr.Validation("a title is required before recording")
	}

	e.mu.Lock()
	if e.state != Idle {
		st := e.state
		e.mu.Unlock()
		return apperr.InvalidState("start recording", st.String())
	}
	e.gen++
	gen := e.gen
	e.state = RequestingPermission
	e.title = title
	e.elapsed, e.duration, e.lastErr = 0, 0, nil
	e.mu.Unlock()

	granted, err := e.mic.RequestPermission(ctx)
	if !e.stillStarting(gen) {
		return ErrCancelled
	}
	if err != nil {
		return e.failStart(gen, apperr.RecordingFailed(err))
	}
	if !granted {
		return e.failStart(gen, apperr.PermissionDenied("microphone"))
	}

	handle, err := e.store.Allocate("recording" + e.format.Extension)
	if err != nil {
		return e.failStart(gen, err)
	}
	session, err := e.mic.Open(ctx, e.format, handle)
	if err != nil {
		_ = e.store.Discard(handle)
		return e.failStart(gen, apperr.RecordingFailed(err))
	}

	e.mu.Lock()
	if e.gen != gen || e.state != RequestingPermission {
		e.mu.Unlock()
		session.Abort()
		_ = e.store.Discard(handle)
		return ErrCancelled
	}
	e.handle = handle
	e.session = session
	e.state = Recording
	e.stopLoop = make(chan struct{})
	e.loopDone = make(chan struct{})
	go e.loop(gen, session, e.stopLoop, e.loopDone)
	e.mu.Unlock()

	e.logger.Info("audio: recording started",
		slog.String("title", title),
		slog.String("attachment", handle.Name()))
	return nil
}

func (e *Engine) stillStarting(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen == gen && e.state == RequestingPermission
}

func (e *Engine) failStart(gen uint64, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen == gen {
		e.resetLocked()
		e.lastErr = err
	}
	return err
}

// loop advances the display counter and watches for session failures.
func (e *Engine) loop(gen uint64, session Session, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.gen == gen && e.state == Recording {
				e.elapsed += e.tick
			}
			e.mu.Unlock()
		case err := <-session.Failed():
			e.abortOnFailure(gen, err)
			return
		}
	}
}

func (e *Engine) abortOnFailure(gen uint64, cause error) {
	e.mu.Lock()
	if e.gen != gen || e.state != Recording {
		e.mu.Unlock()
		return
	}
	handle := e.handle
	session := e.session
	e.resetLocked()
	e.lastErr = apperr.RecordingFailed(cause)
	e.mu.Unlock()

	session.Abort()
	if err := e.store.Discard(handle); err != nil {
		e.logger.Warn("audio: discard after failure", slog.String("error", err.Error()))
	}
	e.logger.Error("audio: recording failed", slog.String("error", cause.Error()))
}

// Stop closes the session and records the measured duration.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Recording {
		return apperr.InvalidState("stop recording", e.state.String())
	}
	e.haltLoopLocked()
	if e.state != Recording {
		// The session failed or was cancelled while the loop drained.
		if e.lastErr != nil {
			return e.lastErr
		}
		return apperr.InvalidState("stop recording", e.state.String())
	}

	d, err := e.session.Stop()
	if err != nil {
		handle := e.handle
		e.resetLocked()
		e.lastErr = apperr.RecordingFailed(err)
		_ = e.store.Discard(handle)
		return e.lastErr
	}
	e.session = nil
	e.duration = d
	e.state = Stopped
	e.logger.Info("audio: recording stopped", slog.Duration("duration", d))
	return nil
}

// Cancel discards whatever the current capture produced and returns to
// Idle. Cancelling an idle engine is a no-op.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case Idle:
		return nil
	case RequestingPermission:
		// The pending RequestStart notices the generation change and
		// cleans up anything it allocated.
		e.resetLocked()
		e.gen++
		return nil
	}

	e.haltLoopLocked()
	if e.state == Idle {
		return nil
	}
	if e.session != nil {
		e.session.Abort()
	}
	handle := e.handle
	e.resetLocked()
	e.gen++
	if err := e.store.Discard(handle); err != nil {
		return err
	}
	e.logger.Info("audio: recording cancelled")
	return nil
}

// Commit makes the recording durable and returns the audio draft. The
// engine is idle again afterwards.
func (e *Engine) Commit() (*models.Note, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Stopped {
		return nil, apperr.InvalidState("commit recording", e.state.String())
	}

	handle := e.handle
	c, err := e.store.Commit(handle)
	if err != nil {
		_ = e.store.Discard(handle)
		e.resetLocked()
		e.lastErr = apperr.RecordingFailed(err)
		return nil, e.lastErr
	}

	note := models.NewDraft(models.KindAudio, e.title, e.now())
	note.DurationSeconds = e.duration.Seconds()
	note.Attachment = &models.Attachment{Ref: c.Ref, Size: c.Size, Checksum: c.Checksum}
	note.AttachmentFileName = c.Ref

	e.resetLocked()
	return note, nil
}

func (e *Engine) haltLoopLocked() {
	if e.stopLoop == nil {
		return
	}
	close(e.stopLoop)
	done := e.loopDone
	e.stopLoop, e.loopDone = nil, nil
	// The loop takes e.mu on every tick; release it while draining.
	e.mu.Unlock()
	<-done
	e.mu.Lock()
}

func (e *Engine) resetLocked() {
	e.state = Idle
	e.title = ""
	e.handle = nil
	e.session = nil
	e.elapsed = 0
	e.duration = 0
}
