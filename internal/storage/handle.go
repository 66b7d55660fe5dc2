package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/starford/notetaker/internal/checksum"
)

type handleState int

const (
	handleOpen handleState = iota
	handleCommitted
	handleDiscarded
)

// Handle is a reserved, not yet committed payload. Callers stream bytes
// into it and then pass it to Commit or Discard.
type Handle struct {
	name        string
	pendingPath string

	mu        sync.Mutex
	file      *os.File
	hash      *checksum.Writer
	state     handleState
	committed Committed
	writeErr  error
}

// Name returns the generated payload name (the future Ref).
func (h *Handle) Name() string {
	return h.name
}

// Write implements io.Writer.
func (h *Handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != handleOpen || h.file == nil {
		return 0, fmt.Errorf("storage: write to closed handle %s", h.name)
	}
	n, err := h.file.Write(p)
	_, _ = h.hash.Write(p[:n])
	if err != nil {
		h.writeErr = err
	}
	return n, err
}

// Close implements io.Closer. Commit closes the handle itself; Close is
// only needed by writers that want to signal end of stream early.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	err := h.file.Close()
	h.file = nil
	return err
}
