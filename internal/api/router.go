package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notetaker/internal/noteservice"
	"github.com/starford/notetaker/internal/playback"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Route("/notes/{id}", func(r chi.Router) {
		r.Get("/", h.GetNote)
		r.Patch("/", h.UpdateNote)
		r.Delete("/", h.DeleteNote)
		r.Get("/html", h.GetNoteHTML)
		r.Get("/attachment", h.ServeAttachment)
	})

	// Search.
	r.Get("/search", h.Search)

	// Capture workflows.
	r.Route("/capture", func(r chi.Router) {
		r.Post("/text", h.CaptureText)
		r.Post("/weblink", h.CaptureWebLink)
		r.Post("/document", h.CaptureDocument)

		r.Get("/audio", h.AudioStatus)
		r.Post("/audio/start", h.StartAudio)
		r.Post("/audio/stop", h.StopAudio)
		r.Post("/audio/cancel", h.CancelAudio)
		r.Post("/audio/commit", h.CommitAudio)
	})
	r.Get("/weblink/validate", h.ValidateURL)
	r.Get("/weblink/preview", h.PreviewURL)
	r.Post("/weblink/fetches", h.StartFetch)
	r.Get("/weblink/fetches/{id}", h.AwaitFetch)
	r.Delete("/weblink/fetches/{id}", h.CancelFetch)

	// Playback.
	r.Route("/playback", func(r chi.Router) {
		r.Get("/", h.PlaybackStatus)
		r.Post("/{id}/load", h.LoadPlayback)
		r.Post("/play", h.playerAction("play", (*playback.Player).Play))
		r.Post("/pause", h.playerAction("pause", (*playback.Player).Pause))
		r.Post("/stop", h.playerAction("stop", (*playback.Player).Stop))
		r.Post("/forward", h.playerAction("skip forward", (*playback.Player).SkipForward))
		r.Post("/backward", h.playerAction("skip backward", (*playback.Player).SkipBackward))
		r.Post("/seek", h.Seek)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
