package api

import (
	"mime"
	"net/http"
)

// ServeAttachment handles GET /api/notes/{id}/attachment. Range requests
// are served by http.ServeContent.
//
//	@Summary		Stream a note's attachment
//	@Tags			notes
//	@Produce		octet-stream
//	@Param			id	path	string	true	"Note id"
//	@Success		200	{file}	binary
//	@Success		206	{file}	binary
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/attachment [get]
func (h *Handler) ServeAttachment(w http.ResponseWriter, r *http.Request) {
	n, payload, err := h.svc.OpenAttachment(r.Context(), pathID(r))
	if err != nil {
		writeError(w, r, "serve attachment", err)
		return
	}
	defer payload.Close()

	name := n.AttachmentFileName
	if name == "" {
		name = payload.Ref
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, name, payload.ModTime, payload)
}
