// Package storage manages attachment payloads (recordings, imported
// documents) on durable file storage.
package storage

import (
	"io"
	"time"
)

// Ref identifies a committed payload. It is the generated file name.
type Ref = string

// Provider is the attachment store contract used by the capture workflows.
type Provider interface {
	// Allocate reserves a unique pending payload derived from suggestedName.
	Allocate(suggestedName string) (*Handle, error)
	// Commit makes the payload durable and returns its reference.
	// Committing the same handle twice returns the same result.
	Commit(h *Handle) (Committed, error)
	// Discard removes an uncommitted (or orphaned) payload. Safe to repeat.
	Discard(h *Handle) error
	// SizeOf returns the byte length of a committed payload.
	SizeOf(ref Ref) (int64, error)
	// Open returns a reader over a committed payload.
	Open(ref Ref) (*Payload, error)
	// Delete removes a committed payload. Deleting a missing ref is a no-op.
	Delete(ref Ref) error
}

// Committed describes a payload after Commit.
type Committed struct {
	Ref      Ref
	Size     int64
	Checksum string
}

// Payload is an opened committed attachment.
type Payload struct {
	io.ReadSeekCloser
	Ref     Ref
	Size    int64
	ModTime time.Time
}
