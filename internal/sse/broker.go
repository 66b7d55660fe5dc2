// Package sse implements the change notification broker. Observers
// subscribe over Server-Sent Events and receive note lifecycle events and
// capture session state changes.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event is one message on the stream.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Note lifecycle actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Event types besides note.<action>.
const (
	TypeNotesChanged = "notes.changed"
	TypeCapture      = "capture."
)

// DefaultHeartbeat is the keep-alive interval of ServeHTTP.
const DefaultHeartbeat = 25 * time.Second

const clientBuffer = 64

// NoteEvent is the payload of note.* events.
type NoteEvent struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// ListHint is the payload of notes.changed. Changes counts the lifecycle
// events folded into this hint.
type ListHint struct {
	Changes int `json:"changes"`
}

// CaptureEvent is the payload of capture.<kind> events.
type CaptureEvent struct {
	State string `json:"state"`
}

// Broker fans events out to SSE clients.
//
// A single loop goroutine owns the client set and the list hint throttle;
// public methods talk to it over channels. notes.changed is sent at most
// once per throttle window: the first change goes out at once and later
// changes inside the window are folded into one trailing hint.
type Broker struct {
	throttle  time.Duration
	heartbeat time.Duration

	joinCh  chan chan []byte
	leaveCh chan chan []byte
	eventCh chan Event
	noteCh  chan noteChange
	countCh chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// noteChange is a queued lifecycle change.
type noteChange struct {
	Action string
	NoteEvent
}

// NewBroker starts a broker. listThrottle bounds how often notes.changed is
// sent; zero or less uses two seconds.
func NewBroker(listThrottle time.Duration) *Broker {
	if listThrottle <= 0 {
		listThrottle = 2 * time.Second
	}

	b := &Broker{
		throttle:  listThrottle,
		heartbeat: DefaultHeartbeat,
		joinCh:    make(chan chan []byte),
		leaveCh:   make(chan chan []byte),
		eventCh:   make(chan Event, 256),
		noteCh:    make(chan noteChange, 256),
		countCh:   make(chan chan int),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	go b.run()
	return b
}

// encode renders one SSE frame. Unencodable payloads are dropped.
func encode(event Event) []byte {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastHint time.Time
		folded   int
		trailing *time.Timer
		fire     <-chan time.Time
	)

	send := func(event Event) {
		frame := encode(event)
		if frame == nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- frame:
			default:
				// Slow client; drop rather than stall every observer.
			}
		}
	}

	hint := func(now time.Time) {
		send(Event{Type: TypeNotesChanged, Data: ListHint{Changes: folded}})
		lastHint = now
		folded = 0
	}

	for {
		select {
		case <-b.stopCh:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.joinCh:
			clients[ch] = struct{}{}

		case ch := <-b.leaveCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case resp := <-b.countCh:
			resp <- len(clients)

		case event := <-b.eventCh:
			send(event)

		case ev := <-b.noteCh:
			send(Event{Type: "note." + ev.Action, Data: ev.NoteEvent})
			folded++

			now := time.Now()
			wait := b.throttle - now.Sub(lastHint)
			switch {
			case wait <= 0:
				hint(now)
			case fire == nil:
				trailing = time.NewTimer(wait)
				fire = trailing.C
			}

		case now := <-fire:
			fire = nil
			if folded > 0 {
				hint(now)
			}
		}
	}
}

// Close stops the loop and closes every client channel. It is idempotent.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The returned channel is closed by
// Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.joinCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leaveCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteEvent sends note.<action> and schedules a notes.changed hint.
// Unknown actions are ignored.
func (b *Broker) PublishNoteEvent(action, id, kind string) {
	switch action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return
	}
	if b.closed.Load() {
		return
	}
	select {
	case b.noteCh <- noteChange{Action: action, NoteEvent: NoteEvent{ID: id, Kind: kind}}:
	case <-b.stopped:
	}
}

// PublishCaptureEvent sends capture.<kind> with the session state.
func (b *Broker) PublishCaptureEvent(kind, state string) {
	b.Publish(Event{Type: TypeCapture + kind, Data: CaptureEvent{State: state}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.heartbeat)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
