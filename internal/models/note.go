// Package models defines the domain types for notetaker.
package models

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind discriminates the four note variants. It never changes after a
// note is created.
type Kind string

const (
	KindAudio    Kind = "audio"
	KindText     Kind = "text"
	KindDocument Kind = "document"
	KindWebLink  Kind = "webLink"
)

// KindSpec is the single table entry describing what a kind allows.
type KindSpec struct {
	DisplayName string
	// HasAttachment is true when the note owns a binary payload.
	HasAttachment bool
	// HasDuration is true when DurationSeconds may be non-zero.
	HasDuration bool
	// HasSourceURL is true when the note records the URL it was captured from.
	HasSourceURL bool
	// TitleBeforeCapture is true when a title must exist before the capture
	// workflow is even allowed to start (audio recording).
	TitleBeforeCapture bool
}

var kindSpecs = map[Kind]KindSpec{
	KindAudio: {
		DisplayName:        "Audio",
		HasAttachment:      true,
		HasDuration:        true,
		TitleBeforeCapture: true,
	},
	KindText: {
		DisplayName: "Text",
	},
	KindDocument: {
		DisplayName:   "Document",
		HasAttachment: true,
	},
	KindWebLink: {
		DisplayName:  "Web Link",
		HasSourceURL: true,
	},
}

// Kinds lists all kinds in display order.
var Kinds = []Kind{KindAudio, KindText, KindDocument, KindWebLink}

// Spec returns the table entry for k. Unknown kinds yield the zero spec.
func (k Kind) Spec() KindSpec {
	return kindSpecs[k]
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// ParseKind converts user input into a Kind. Matching is case-insensitive
// and accepts "weblink", "web_link" and "pdf" (the legacy document name).
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", "")
	norm = strings.ReplaceAll(norm, "-", "")
	switch norm {
	case "audio":
		return KindAudio, nil
	case "text":
		return KindText, nil
	case "document", "pdf":
		return KindDocument, nil
	case "weblink", "link", "web":
		return KindWebLink, nil
	}
	return "", fmt.Errorf("unknown note kind %q", s)
}

// DefaultTitle returns the title given to drafts created without one.
func DefaultTitle(k Kind) string {
	return fmt.Sprintf("New %s Note", k.Spec().DisplayName)
}

// Attachment describes a committed binary payload owned by one note.
type Attachment struct {
	Ref      string `json:"ref"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// Note is the unit of storage. A Note held by a capture workflow is a
// draft; once saved by the coordinator it is committed.
type Note struct {
	ID                 string      `json:"id"`
	Kind               Kind        `json:"kind"`
	Title              string      `json:"title"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	DurationSeconds    float64     `json:"duration_seconds"`
	TextContent        string      `json:"text_content,omitempty"`
	Attachment         *Attachment `json:"attachment,omitempty"`
	AttachmentFileName string      `json:"attachment_file_name,omitempty"`
	SourceURL          string      `json:"source_url,omitempty"`
}

// NewID returns a new time-sortable note identifier.
func NewID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0)).String()
}

// NewDraft builds a draft of the given kind. A blank title is replaced by
// DefaultTitle(kind).
func NewDraft(kind Kind, title string, now time.Time) *Note {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle(kind)
	}
	now = now.UTC()
	return &Note{
		ID:        NewID(now),
		Kind:      kind,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AttachmentRef returns the attachment reference or an empty string.
func (n *Note) AttachmentRef() string {
	if n.Attachment == nil {
		return ""
	}
	return n.Attachment.Ref
}

// Validate checks the per-kind field rules. It does not perform I/O.
func (n *Note) Validate() error {
	spec, ok := kindSpecs[n.Kind]
	if !ok {
		return fmt.Errorf("unknown kind %q", n.Kind)
	}
	if n.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if n.DurationSeconds < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	if !spec.HasDuration && n.DurationSeconds != 0 {
		return fmt.Errorf("%s notes have no duration", n.Kind)
	}
	if spec.HasAttachment && n.AttachmentRef() == "" {
		return fmt.Errorf("%s notes require an attachment", n.Kind)
	}
	if !spec.HasAttachment && (n.Attachment != nil || n.AttachmentFileName != "") {
		return fmt.Errorf("%s notes cannot carry an attachment", n.Kind)
	}
	if spec.HasSourceURL && n.SourceURL == "" {
		return fmt.Errorf("%s notes require a source URL", n.Kind)
	}
	if !spec.HasSourceURL && n.SourceURL != "" {
		return fmt.Errorf("%s notes cannot carry a source URL", n.Kind)
	}
	return nil
}
