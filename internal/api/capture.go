package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/notetaker/internal/audio"
	"github.com/starford/notetaker/internal/noteservice"
	"github.com/starford/notetaker/internal/webcapture"
)

const maxUploadBytes = 50 << 20 // 50 MB

// CaptureText handles POST /api/capture/text.
//
//	@Summary		Capture a text note
//	@Tags			capture
//	@Accept			json
//	@Produce		json
//	@Param			body	body		noteservice.TextInput	true	"Title and content"
//	@Success		201		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/capture/text [post]
func (h *Handler) CaptureText(w http.ResponseWriter, r *http.Request) {
	var in noteservice.TextInput
	if !decodeJSON(w, r, &in) {
		return
	}
	h.capture(w, r, in)
}

// CaptureWebLink handles POST /api/capture/weblink.
//
//	@Summary		Capture a web link, optionally fetching its text once
//	@Tags			capture
//	@Accept			json
//	@Produce		json
//	@Param			body	body		noteservice.WebLinkInput	true	"Link to capture"
//	@Success		201		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/capture/weblink [post]
func (h *Handler) CaptureWebLink(w http.ResponseWriter, r *http.Request) {
	var in noteservice.WebLinkInput
	if !decodeJSON(w, r, &in) {
		return
	}
	h.capture(w, r, in)
}

// ValidateURL handles GET /api/weblink/validate.
func (h *Handler) ValidateURL(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	writeJSON(w, http.StatusOK, ValidateURLResponse{URL: raw, Valid: webcapture.Validate(raw)})
}

// PreviewURL handles GET /api/weblink/preview. It performs one fetch and
// reports its failure instead of falling back to the placeholder. The
// fetch is abandoned if the client goes away.
func (h *Handler) PreviewURL(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.StartFetch(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, r, "preview url", err)
		return
	}
	page, err := h.svc.AwaitFetch(r.Context(), id)
	if err != nil {
		if r.Context().Err() != nil {
			_ = h.svc.CancelFetch(id)
		}
		writeError(w, r, "preview url", err)
		return
	}
	writeJSON(w, http.StatusOK, preview(page))
}

// StartFetch handles POST /api/weblink/fetches.
//
//	@Summary		Start fetching a page ahead of capture
//	@Tags			capture
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FetchRequest	true	"Page to fetch"
//	@Success		202		{object}	FetchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/weblink/fetches [post]
func (h *Handler) StartFetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.svc.StartFetch(r.Context(), req.URL)
	if err != nil {
		writeError(w, r, "start fetch", err)
		return
	}
	writeJSON(w, http.StatusAccepted, FetchResponse{ID: id, URL: strings.TrimSpace(req.URL)})
}

// AwaitFetch handles GET /api/weblink/fetches/{id}. It blocks until the
// page arrives; a client that gives up leaves the fetch pending.
func (h *Handler) AwaitFetch(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.AwaitFetch(r.Context(), pathID(r))
	if err != nil {
		writeError(w, r, "await fetch", err)
		return
	}
	writeJSON(w, http.StatusOK, preview(page))
}

// CancelFetch handles DELETE /api/weblink/fetches/{id}.
func (h *Handler) CancelFetch(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelFetch(pathID(r)); err != nil {
		writeError(w, r, "cancel fetch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func preview(page webcapture.Page) PreviewResponse {
	return PreviewResponse{
		URL:        page.URL,
		StatusCode: page.StatusCode,
		Title:      page.Title,
		Text:       page.String(),
	}
}

// CaptureDocument handles POST /api/capture/document (multipart/form-data,
// fields "file" and "title").
//
//	@Summary		Import a document
//	@Tags			capture
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Document"
//	@Param			title	formData	string	true	"Note title"
//	@Success		201		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Failure		415		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/capture/document [post]
func (h *Handler) CaptureDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	title := r.FormValue("title")
	if strings.TrimSpace(title) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	displayName := filepath.Base(filepath.Clean("/" + header.Filename))
	if displayName == "/" || displayName == "." {
		writeJSON(w, http.StatusBadRequest, errorBody("file name is required"))
		return
	}

	staged, err := stageUpload(file)
	if err != nil {
		slog.Error("stage upload failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "failed to receive file", Code: "INTERNAL"})
		return
	}
	defer os.Remove(staged)

	h.capture(w, r, noteservice.DocumentInput{Title: title, Path: staged, DisplayName: displayName})
}

// stageUpload copies an upload into a temporary file the importer can
// select like any local file.
func stageUpload(src io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "notetaker-upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("copy upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (h *Handler) capture(w http.ResponseWriter, r *http.Request, in noteservice.Input) {
	n, err := h.svc.Capture(r.Context(), in)
	if err != nil {
		writeError(w, r, "capture "+in.Kind().String(), err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// AudioStatus handles GET /api/capture/audio.
func (h *Handler) AudioStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, audioStatus(h.svc.AudioStatus()))
}

// StartAudio handles POST /api/capture/audio/start.
//
//	@Summary		Start recording; the title is required up front
//	@Tags			audio
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TitleRequest	true	"Recording title"
//	@Success		200		{object}	AudioStatusResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/capture/audio/start [post]
func (h *Handler) StartAudio(w http.ResponseWriter, r *http.Request) {
	var req TitleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.StartAudio(r.Context(), req.Title); err != nil {
		writeError(w, r, "start audio", err)
		return
	}
	writeJSON(w, http.StatusOK, audioStatus(h.svc.AudioStatus()))
}

// StopAudio handles POST /api/capture/audio/stop.
func (h *Handler) StopAudio(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.StopAudio(); err != nil {
		writeError(w, r, "stop audio", err)
		return
	}
	writeJSON(w, http.StatusOK, audioStatus(h.svc.AudioStatus()))
}

// CancelAudio handles POST /api/capture/audio/cancel.
func (h *Handler) CancelAudio(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelAudio(); err != nil {
		writeError(w, r, "cancel audio", err)
		return
	}
	writeJSON(w, http.StatusOK, audioStatus(h.svc.AudioStatus()))
}

// CommitAudio handles POST /api/capture/audio/commit. An empty body keeps
// the title given at start.
func (h *Handler) CommitAudio(w http.ResponseWriter, r *http.Request) {
	var req TitleRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = h.svc.AudioStatus().Title
	}
	h.capture(w, r, noteservice.AudioInput{Title: req.Title})
}

func audioStatus(st audio.Status) AudioStatusResponse {
	return AudioStatusResponse{
		State:           st.Name,
		Title:           st.Title,
		ElapsedSeconds:  st.Elapsed.Seconds(),
		Elapsed:         clock(st.Elapsed),
		DurationSeconds: st.Duration.Seconds(),
		LastError:       st.LastError,
	}
}

// clock formats d as MM:SS.
func clock(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
