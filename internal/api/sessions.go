package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/media-gate/internal/media"
	"github.com/snarg/media-gate/internal/pipeline"
)

// maxUploadBytes caps multipart parsing well above the largest per-kind limit;
// precise size enforcement stays in validation so the user sees the kind's
// message, not a generic 413.
const maxUploadBytes = 64 << 20

// SessionsHandler exposes the per-session submission pipeline over HTTP.
type SessionsHandler struct {
	manager *pipeline.Manager
	log     zerolog.Logger
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(manager *pipeline.Manager, log zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		manager: manager,
		log:     log.With().Str("handler", "sessions").Logger(),
	}
}

// Routes registers the session endpoints.
func (h *SessionsHandler) Routes(r chi.Router) {
	r.Post("/sessions", h.Create)
	r.Get("/sessions/{id}", h.Get)
	r.Post("/sessions/{id}/file", h.SelectFile)
	r.Delete("/sessions/{id}/file", h.ClearFile)
	r.Get("/sessions/{id}/preview", h.Preview)
	r.Post("/sessions/{id}/submit", h.Submit)
	r.Put("/sessions/{id}/playback", h.Playback)
	r.Get("/sessions/{id}/download", h.Download)
}

// Create handles POST /api/v1/sessions. Body: {"kind": "image"|"audio"|"video"}.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind string `json:"kind"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind, err := media.ParseKind(body.Kind)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	s := h.manager.Create(kind)
	snap, err := h.manager.Snapshot(s.ID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "session creation failed")
		return
	}
	WriteJSON(w, http.StatusCreated, snap)
}

// Get handles GET /api/v1/sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// SelectFile handles POST /api/v1/sessions/{id}/file. Multipart field "file";
// when the field repeats, only the first part counts, matching a file input
// that holds at most one file.
func (h *SessionsHandler) SelectFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, `multipart field "file" is required`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	snap, err := h.manager.Select(r.Context(), chi.URLParam(r, "id"), header.Filename, mimeType, data)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// ClearFile handles DELETE /api/v1/sessions/{id}/file.
func (h *SessionsHandler) ClearFile(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.Clear(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// Preview handles GET /api/v1/sessions/{id}/preview, streaming the stored
// upload back for the UI's img/audio/video element.
func (h *SessionsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := h.manager.OpenFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Debug().Err(err).Msg("preview stream aborted")
	}
}

// Submit handles POST /api/v1/sessions/{id}/submit. Validation and backend
// failures are terminal session states reported in the snapshot, not HTTP
// errors; only a superseded submission maps to 409.
func (h *SessionsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// Playback handles PUT /api/v1/sessions/{id}/playback.
func (h *SessionsHandler) Playback(w http.ResponseWriter, r *http.Request) {
	var ps pipeline.PlaybackState
	if err := DecodeJSON(r, &ps); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.manager.UpdatePlayback(chi.URLParam(r, "id"), ps)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// Download handles GET /api/v1/sessions/{id}/download, returning the result
// text as a plain-text attachment named after the original file.
func (h *SessionsHandler) Download(w http.ResponseWriter, r *http.Request) {
	filename, text, err := h.manager.Download(chi.URLParam(r, "id"))
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	io.WriteString(w, text)
}

func (h *SessionsHandler) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		WriteError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, pipeline.ErrNoFile):
		WriteError(w, http.StatusBadRequest, "no file selected")
	case errors.Is(err, pipeline.ErrSuperseded):
		WriteError(w, http.StatusConflict, "submission superseded by a newer action")
	case errors.Is(err, pipeline.ErrNoResult):
		WriteError(w, http.StatusConflict, "no result to download")
	default:
		h.log.Error().Err(err).Msg("session request failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
