package noteservice

import (
	"sync"
	"time"

	"github.com/starford/notetaker/internal/webcapture"
)

// fetchTTL bounds how long an unclaimed fetch result is kept.
const fetchTTL = 10 * time.Minute

// fetchTable holds web fetches started ahead of a capture, keyed by id.
type fetchTable struct {
	mu      sync.Mutex
	pending map[string]*pendingFetch
}

type pendingFetch struct {
	capture *webcapture.Capture
	started time.Time
}

// add registers c and cancels entries older than fetchTTL.
func (t *fetchTable) add(id string, c *webcapture.Capture, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		t.pending = make(map[string]*pendingFetch)
	}
	for k, p := range t.pending {
		if now.Sub(p.started) > fetchTTL {
			p.capture.Cancel()
			delete(t.pending, k)
		}
	}
	t.pending[id] = &pendingFetch{capture: c, started: now}
}

func (t *fetchTable) get(id string) (*webcapture.Capture, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[id]
	if !ok {
		return nil, false
	}
	return p.capture, true
}

func (t *fetchTable) remove(id string) (*webcapture.Capture, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[id]
	if !ok {
		return nil, false
	}
	delete(t.pending, id)
	return p.capture, true
}

func (t *fetchTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
