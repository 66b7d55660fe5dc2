package noteservice

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/document"
	"github.com/starford/notetaker/internal/models"
	"github.com/starford/notetaker/internal/webcapture"
)

// Input is the workflow input of one capture. The concrete type selects
// the note kind.
type Input interface {
	Kind() models.Kind
	title() string
}

// TextInput captures a typed note. Content is required.
type TextInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// AudioInput commits the stopped recording of the audio session under
// Title.
type AudioInput struct {
	Title string
}

// DocumentInput imports a document. Either Pending (from SelectDocument)
// or Path is set; Path is selected during capture.
type DocumentInput struct {
	Title   string
	Pending *document.Pending
	Path    string
	// DisplayName overrides the file name shown for Path.
	DisplayName string
}

// WebLinkInput captures a web link. With Text empty, FetchID claims the
// result of a fetch begun by StartFetch for the same URL, and Fetch
// fetches the page once. A failed fetch leaves the placeholder text.
type WebLinkInput struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Text    string `json:"text,omitempty"`
	Fetch   bool   `json:"fetch"`
	FetchID string `json:"fetch_id,omitempty"`
}

func (TextInput) Kind() models.Kind     { return models.KindText }
func (AudioInput) Kind() models.Kind    { return models.KindAudio }
func (DocumentInput) Kind() models.Kind { return models.KindDocument }
func (WebLinkInput) Kind() models.Kind  { return models.KindWebLink }

func (in TextInput) title() string     { return in.Title }
func (in AudioInput) title() string    { return in.Title }
func (in DocumentInput) title() string { return in.Title }
func (in WebLinkInput) title() string  { return in.Title }

// Edit is a partial update. Nil fields are left unchanged.
type Edit struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

var validURL = validation.By(func(v interface{}) error {
	if s, _ := v.(string); !webcapture.Validate(s) {
		return validation.NewError("validation_url_scheme", "must be an http or https URL")
	}
	return nil
})

func (in *TextInput) validate() error {
	in.Content = strings.TrimSpace(in.Content)
	return asValidation(validation.ValidateStruct(in,
		validation.Field(&in.Content, validation.Required),
	))
}

func (in *WebLinkInput) validate() error {
	in.URL = strings.TrimSpace(in.URL)
	return asValidation(validation.ValidateStruct(in,
		validation.Field(&in.URL, validation.Required, validURL),
	))
}

func (in *DocumentInput) validate() error {
	if in.Pending == nil && strings.TrimSpace(in.Path) == "" {
		return apperr.Validation("a document to import is required")
	}
	return nil
}

// asValidation maps ozzo errors onto the validation code.
func asValidation(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Validation("%s", err.Error())
}
