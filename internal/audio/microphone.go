// Package audio implements the audio capture engine: microphone permission,
// a file-backed recording session and duration telemetry.
package audio

import (
	"context"
	"io"
	"time"
)

// Format is the fixed encoding profile of recordings.
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	Quality    string
	Extension  string
}

// DefaultFormat is compressed mono AAC at 12 kHz.
var DefaultFormat = Format{
	Codec:      "aac",
	SampleRate: 12000,
	Channels:   1,
	Quality:    "high",
	Extension:  ".m4a",
}

// Microphone is the OS boundary: permission plus a recording session that
// streams encoded audio into w.
type Microphone interface {
	RequestPermission(ctx context.Context) (bool, error)
	Open(ctx context.Context, format Format, w io.Writer) (Session, error)
}

// Session is one open recording.
type Session interface {
	// Stop finalizes the stream and returns the measured recording length.
	Stop() (time.Duration, error)
	// Abort tears the session down without finalizing.
	Abort()
	// Failed delivers at most one error if the session dies on its own.
	Failed() <-chan error
}
