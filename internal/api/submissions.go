package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/media-gate/internal/history"
	"github.com/snarg/media-gate/internal/media"
)

// SubmissionsHandler serves the stored submission history. Returns 503 when
// no database is configured.
type SubmissionsHandler struct {
	db  *history.DB
	log zerolog.Logger
}

// NewSubmissionsHandler creates the history handler. db may be nil.
func NewSubmissionsHandler(db *history.DB, log zerolog.Logger) *SubmissionsHandler {
	return &SubmissionsHandler{
		db:  db,
		log: log.With().Str("handler", "submissions").Logger(),
	}
}

// Routes registers the history endpoints.
func (h *SubmissionsHandler) Routes(r chi.Router) {
	r.Get("/submissions", h.List)
}

// List handles GET /api/v1/submissions?kind=&limit=&offset=.
func (h *SubmissionsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		WriteError(w, http.StatusServiceUnavailable, "submission history not configured")
		return
	}

	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	kind := r.URL.Query().Get("kind")
	if kind != "" {
		if _, err := media.ParseKind(kind); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	records, err := h.db.ListRecent(r.Context(), kind, p.Limit, p.Offset)
	if err != nil {
		h.log.Error().Err(err).Msg("history query failed")
		WriteError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"submissions": records})
}
