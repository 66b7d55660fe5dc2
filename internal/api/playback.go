package api

import (
	"net/http"
	"time"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/playback"
)

func playbackStatus(st playback.Status) PlaybackStatusResponse {
	return PlaybackStatusResponse{
		Loaded:          st.Loaded,
		NoteID:          st.NoteID,
		Title:           st.Title,
		State:           st.State,
		PositionSeconds: st.Position.Seconds(),
		DurationSeconds: st.Duration.Seconds(),
	}
}

// PlaybackStatus handles GET /api/playback.
func (h *Handler) PlaybackStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, playbackStatus(h.svc.Player().Status()))
}

// LoadPlayback handles POST /api/playback/{id}/load.
//
//	@Summary		Load an audio note into the player
//	@Tags			playback
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	PlaybackStatusResponse
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/playback/{id}/load [post]
func (h *Handler) LoadPlayback(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.LoadPlayback(r.Context(), pathID(r))
	if err != nil {
		writeError(w, r, "load playback", err)
		return
	}
	writeJSON(w, http.StatusOK, playbackStatus(st))
}

// playerAction wraps a transport control that needs a loaded recording.
func (h *Handler) playerAction(op string, act func(p *playback.Player)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := h.svc.Player()
		if p.Loaded() == "" {
			writeError(w, r, op, apperr.InvalidState(op, "no recording is loaded"))
			return
		}
		act(p)
		writeJSON(w, http.StatusOK, playbackStatus(p.Status()))
	}
}

// Seek handles POST /api/playback/seek.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Seconds < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("seconds must not be negative"))
		return
	}
	h.playerAction("seek", func(p *playback.Player) {
		p.Seek(time.Duration(req.Seconds * float64(time.Second)))
	})(w, r)
}
