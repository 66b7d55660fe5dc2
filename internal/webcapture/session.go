package webcapture

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is returned by Wait when the capture was cancelled before
// its fetch completed.
var ErrCancelled = errors.New("webcapture: cancelled")

// result is the single completion value of a Capture.
type result struct {
	Page Page
	Err  error
}

// Capture is one in-flight fetch. Its result is delivered exactly once to
// Wait unless the capture is cancelled first, in which case Wait reports
// ErrCancelled and the late result is dropped.
type Capture struct {
	URL string

	cancel context.CancelFunc
	done   chan result

	mu        sync.Mutex
	cancelled bool
}

// Start launches a fetch of rawURL in the background. It ends with ctx or
// Cancel.
func (f *Fetcher) Start(ctx context.Context, rawURL string) *Capture {
	ctx, cancel := context.WithCancel(ctx)
	c := &Capture{URL: rawURL, cancel: cancel, done: make(chan result, 1)}
	go func() {
		defer cancel()
		page, err := f.Fetch(ctx, rawURL)

		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.cancelled {
			c.done <- result{Page: page, Err: err}
		}
		close(c.done)
	}()
	return c
}

// Cancel aborts the fetch and discards its result. Safe to call more than
// once and after completion.
func (c *Capture) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
	c.cancel()
}

func (c *Capture) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Wait blocks until the result arrives, the capture is cancelled or ctx
// is done.
func (c *Capture) Wait(ctx context.Context) (Page, error) {
	select {
	case res, ok := <-c.done:
		if !ok || c.isCancelled() {
			return Page{}, ErrCancelled
		}
		return res.Page, res.Err
	case <-ctx.Done():
		return Page{}, ctx.Err()
	}
}
