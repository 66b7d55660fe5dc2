// Package playback implements the audio playback engine over committed
// audio attachments.
//
// The player keeps transport state (position, play/pause) against an
// injected clock. Decoding and output belong to the client; the HTTP layer
// streams the payload with range support and mirrors transport calls here.
package playback

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/storage"
)

// SkipInterval is the jump used by SkipForward and SkipBackward.
const SkipInterval = 15 * time.Second

// State is the transport state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Source opens committed payloads.
type Source interface {
	Open(ref storage.Ref) (*storage.Payload, error)
}

// Status is a transport snapshot.
type Status struct {
	Loaded   bool          `json:"loaded"`
	NoteID   string        `json:"note_id,omitempty"`
	Title    string        `json:"title,omitempty"`
	State    string        `json:"state"`
	Position time.Duration `json:"position"`
	Duration time.Duration `json:"duration"`
}

type session struct {
	noteID   string
	title    string
	payload  *storage.Payload
	duration time.Duration
	state    State
	// offset is the position at anchor; while playing the position
	// advances with the clock from anchor.
	offset time.Duration
	anchor time.Time
}

// Option configures a Player.
type Option func(*Player)

// WithClock injects a clock.
func WithClock(c Clock) Option {
	return func(p *Player) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) { p.logger = l }
}

// Player holds at most one loaded recording.
type Player struct {
	src    Source
	clock  Clock
	logger *slog.Logger

	mu  sync.Mutex
	cur *session
}

// New creates a player reading from src.
func New(src Source, opts ...Option) *Player {
	p := &Player{src: src, clock: systemClock{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load opens the note's recording, replacing any previous session. The
// new session starts Stopped at position 0.
func (p *Player) Load(n *models.Note) error {
	if n.Kind != models.KindAudio {
		return apperr.Validation("only audio notes can be played")
	}
	ref := n.AttachmentRef()
	if ref == "" {
		return apperr.AttachmentUnreadable(ref, errors.New("note has no recording"))
	}
	payload, err := p.src.Open(ref)
	if err != nil {
		return apperr.AttachmentUnreadable(ref, err)
	}

	duration := time.Duration(n.DurationSeconds * float64(time.Second))

	p.mu.Lock()
	prev := p.cur
	p.cur = &session{noteID: n.ID, title: n.Title, payload: payload, duration: duration}
	p.mu.Unlock()

	if prev != nil {
		_ = prev.payload.Close()
	}
	return nil
}

// Unload closes the current session, if any.
func (p *Player) Unload() {
	p.mu.Lock()
	prev := p.cur
	p.cur = nil
	p.mu.Unlock()
	if prev != nil {
		_ = prev.payload.Close()
	}
}

// Loaded returns the id of the loaded note, or "".
func (p *Player) Loaded() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return ""
	}
	return p.cur.noteID
}

// UnloadNote closes the session if it belongs to noteID.
func (p *Player) UnloadNote(noteID string) {
	p.mu.Lock()
	var prev *session
	if p.cur != nil && p.cur.noteID == noteID {
		prev = p.cur
		p.cur = nil
	}
	p.mu.Unlock()
	if prev != nil {
		_ = prev.payload.Close()
	}
}

// Play starts or resumes playback. Playing from the end restarts at 0.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.cur
	if s == nil {
		return
	}
	now := p.clock.Now()
	p.observeLocked(now)
	if s.state == Playing {
		return
	}
	if s.offset >= s.duration {
		s.offset = 0
	}
	s.state = Playing
	s.anchor = now
}

// Pause freezes the position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.cur
	if s == nil {
		return
	}
	now := p.clock.Now()
	p.observeLocked(now)
	if s.state != Playing {
		return
	}
	s.state = Paused
}

// Stop halts playback and rewinds to 0.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s := p.cur; s != nil {
		s.state = Stopped
		s.offset = 0
	}
}

// Seek moves to the given position, clamped to [0, duration].
func (p *Player) Seek(to time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seekLocked(func(time.Duration) time.Duration { return to })
}

// SkipForward jumps ahead by SkipInterval.
func (p *Player) SkipForward() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seekLocked(func(pos time.Duration) time.Duration { return pos + SkipInterval })
}

// SkipBackward jumps back by SkipInterval.
func (p *Player) SkipBackward() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seekLocked(func(pos time.Duration) time.Duration { return pos - SkipInterval })
}

func (p *Player) seekLocked(target func(time.Duration) time.Duration) {
	s := p.cur
	if s == nil {
		return
	}
	now := p.clock.Now()
	p.observeLocked(now)
	s.offset = clamp(target(s.offset), s.duration)
	s.anchor = now
	if s.state == Playing && s.offset >= s.duration {
		s.state = Stopped
		s.offset = 0
	}
}

// Position returns the current position.
func (p *Player) Position() time.Duration {
	return p.Status().Position
}

// State returns the current transport state. Nothing loaded reads as
// Stopped.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return Stopped
	}
	p.observeLocked(p.clock.Now())
	return p.cur.state
}

// Status returns a snapshot of the transport.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.cur
	if s == nil {
		return Status{State: Stopped.String()}
	}
	p.observeLocked(p.clock.Now())
	return Status{
		Loaded:   true,
		NoteID:   s.noteID,
		Title:    s.title,
		State:    s.state.String(),
		Position: s.offset,
		Duration: s.duration,
	}
}

// observeLocked folds elapsed play time into offset and applies the
// end-of-media transition.
func (p *Player) observeLocked(now time.Time) {
	s := p.cur
	if s == nil || s.state != Playing {
		return
	}
	s.offset += now.Sub(s.anchor)
	s.anchor = now
	if s.offset >= s.duration {
		s.state = Stopped
		s.offset = 0
		p.logger.Debug("playback: reached end", slog.String("note_id", s.noteID))
	}
}

func clamp(d, limit time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > limit {
		return limit
	}
	return d
}
