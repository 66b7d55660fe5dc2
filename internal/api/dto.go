package api

import (
	"github.com/starford/notetaker/internal/index"
	"github.com/starford/notetaker/internal/models"
)

// Note is the note response type (aliased from the domain layer).
type Note = models.Note

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []*Note `json:"notes" validate:"required"`
	Total int     `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// TitleRequest carries the title for audio start and commit.
type TitleRequest struct {
	Title string `json:"title" example:"Standup" validate:"required"`
}

// SeekRequest moves the playback position.
type SeekRequest struct {
	Seconds float64 `json:"seconds" example:"42.5"`
}

// ValidateURLResponse reports whether a URL can be captured.
type ValidateURLResponse struct {
	URL   string `json:"url" example:"https://example.com"`
	Valid bool   `json:"valid"`
}

// FetchRequest starts a background page fetch.
type FetchRequest struct {
	URL string `json:"url" example:"https://example.com"`
}

// FetchResponse identifies a pending fetch. Pass ID as fetch_id when
// capturing the link to reuse its text.
type FetchResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PreviewResponse is the result of a single page fetch.
type PreviewResponse struct {
	URL        string `json:"url" example:"https://example.com"`
	StatusCode int    `json:"status_code" example:"200"`
	Title      string `json:"title,omitempty" example:"Example Domain"`
	Text       string `json:"text"`
}

// AudioStatusResponse is the recorder snapshot.
type AudioStatusResponse struct {
	State          string  `json:"state" example:"recording"`
	Title          string  `json:"title,omitempty" example:"Standup"`
	ElapsedSeconds float64 `json:"elapsed_seconds" example:"12.3"`
	// Elapsed formatted as MM:SS.
	Elapsed         string  `json:"elapsed" example:"00:12"`
	DurationSeconds float64 `json:"duration_seconds" example:"0"`
	LastError       string  `json:"last_error,omitempty"`
}

// PlaybackStatusResponse is the player snapshot.
type PlaybackStatusResponse struct {
	Loaded          bool    `json:"loaded"`
	NoteID          string  `json:"note_id,omitempty"`
	Title           string  `json:"title,omitempty"`
	State           string  `json:"state" example:"playing"`
	PositionSeconds float64 `json:"position_seconds" example:"3.5"`
	DurationSeconds float64 `json:"duration_seconds" example:"60"`
}
