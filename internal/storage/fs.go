package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/checksum"
)

const (
	committedDir = "attachments"
	pendingDir   = ".pending"
)

var extRe = regexp.MustCompile(`^\.[A-Za-z0-9]{1,10}$`)

// FS implements Provider backed by the local file system.
//
// Payloads are written into .pending/ and renamed into attachments/ on
// commit, after an fsync, so a committed ref never points at a truncated
// file.
type FS struct {
	root string // absolute path to the storage root

	// mu serializes renames and removals so a reader sees either the
	// previous or the new file for a given name.
	mu sync.Mutex
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	for _, dir := range []string{committedDir, pendingDir} {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return nil, fmt.Errorf("storage: mkdir %s: %w", dir, err)
		}
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute storage root.
func (f *FS) Root() string {
	return f.root
}

// refPath validates that ref is a plain file name (no separators, no
// traversal) and returns its absolute committed path.
func (f *FS) refPath(ref Ref) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("storage: empty attachment ref")
	}
	cleaned := filepath.Clean(ref)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("storage: invalid attachment ref: %s", ref)
	}
	return filepath.Join(f.root, committedDir, cleaned), nil
}

// Allocate reserves a new pending payload. The generated name keeps the
// extension of suggestedName when it looks like one.
func (f *FS) Allocate(suggestedName string) (*Handle, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(suggestedName)))
	if !extRe.MatchString(ext) {
		ext = ""
	}
	name := uuid.NewString() + ext
	pending := filepath.Join(f.root, pendingDir, name)

	if err := os.MkdirAll(filepath.Dir(pending), 0o755); err != nil {
		return nil, apperr.StorageUnavailable(err)
	}
	file, err := os.OpenFile(pending, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, apperr.StorageUnavailable(err)
	}
	return &Handle{
		name:        name,
		pendingPath: pending,
		file:        file,
		hash:        checksum.NewWriter(),
	}, nil
}

// Commit fsyncs and renames the pending payload into place.
func (f *FS) Commit(h *Handle) (Committed, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case handleCommitted:
		return h.committed, nil
	case handleDiscarded:
		return Committed{}, fmt.Errorf("storage: commit of discarded handle %s", h.name)
	}
	if h.writeErr != nil {
		return Committed{}, fmt.Errorf("storage: commit after failed write: %w", h.writeErr)
	}
	if h.file != nil {
		if err := h.file.Sync(); err != nil {
			return Committed{}, fmt.Errorf("storage: fsync: %w", err)
		}
		if err := h.file.Close(); err != nil {
			return Committed{}, fmt.Errorf("storage: close pending: %w", err)
		}
		h.file = nil
	}

	dst, err := f.refPath(h.name)
	if err != nil {
		return Committed{}, err
	}

	f.mu.Lock()
	err = os.Rename(h.pendingPath, dst)
	f.mu.Unlock()
	if err != nil {
		return Committed{}, fmt.Errorf("storage: rename: %w", err)
	}

	h.state = handleCommitted
	h.committed = Committed{
		Ref:      h.name,
		Size:     h.hash.Len(),
		Checksum: h.hash.Sum(),
	}
	return h.committed, nil
}

// Discard removes whatever the handle produced. It is a no-op when the
// handle has already been discarded.
func (f *FS) Discard(h *Handle) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == handleDiscarded {
		return nil
	}
	if h.file != nil {
		_ = h.file.Close()
		h.file = nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(h.pendingPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: discard pending: %w", err)
	}
	if h.state == handleCommitted {
		dst, err := f.refPath(h.name)
		if err != nil {
			return err
		}
		if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: discard committed: %w", err)
		}
	}
	h.state = handleDiscarded
	return nil
}

// SizeOf returns the size of a committed payload.
func (f *FS) SizeOf(ref Ref) (int64, error) {
	abs, err := f.refPath(ref)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("storage: stat %s: %w", ref, err)
	}
	return info.Size(), nil
}

// Exists reports whether ref resolves to a committed payload.
func (f *FS) Exists(ref Ref) bool {
	_, err := f.SizeOf(ref)
	return err == nil
}

// Open opens a committed payload for reading.
func (f *FS) Open(ref Ref) (*Payload, error) {
	abs, err := f.refPath(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", ref, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("storage: stat %s: %w", ref, err)
	}
	return &Payload{ReadSeekCloser: file, Ref: ref, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete removes a committed payload.
func (f *FS) Delete(ref Ref) error {
	abs, err := f.refPath(ref)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", ref, err)
	}
	return nil
}

// Refs lists every committed payload.
func (f *FS) Refs() ([]Ref, error) {
	return listNames(filepath.Join(f.root, committedDir))
}

// Pending lists every allocated but not yet committed payload.
func (f *FS) Pending() ([]string, error) {
	return listNames(filepath.Join(f.root, pendingDir))
}

// SweepPending removes pending payloads last modified before now-olderThan
// and returns how many were removed. Those belong to sessions that never
// reached commit or discard (for example after a crash).
func (f *FS) SweepPending(olderThan time.Duration) (int, error) {
	dir := filepath.Join(f.root, pendingDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("storage: read pending: %w", err)
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func listNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", filepath.Base(dir), err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
