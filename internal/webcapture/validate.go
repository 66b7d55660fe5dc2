// Package webcapture implements the web link capture workflow: URL
// validation, a single best-effort page fetch reduced to plain text, and
// the webLink draft builder.
package webcapture

import (
	"net/url"
	"strings"
	"time"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/models"
)

// NoReadableText is shown when a page was fetched but had no text.
const NoReadableText = "Content fetched but no readable text found"

// Validate reports whether raw is an absolute http or https URL with a
// host. It never performs I/O.
func Validate(raw string) bool {
	_, ok := parse(raw)
	return ok
}

func parse(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, false
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, false
	}
	return u, true
}

// Placeholder is the textContent of a webLink note whose page yielded no
// text.
func Placeholder(rawURL string) string {
	return "Web link: " + strings.TrimSpace(rawURL)
}

// BuildNote produces a webLink draft. An empty fetchedText falls back to
// Placeholder so the note is never contentless.
func BuildNote(rawURL, title, fetchedText string, now time.Time) (*models.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if !Validate(rawURL) {
		return nil, apperr.Validation("invalid URL: %q", rawURL)
	}
	rawURL = strings.TrimSpace(rawURL)

	text := strings.TrimSpace(fetchedText)
	if text == "" {
		text = Placeholder(rawURL)
	}

	n := models.NewDraft(models.KindWebLink, title, now)
	n.SourceURL = rawURL
	n.TextContent = text
	return n, nil
}
