package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/media-gate/internal/extract"
	"github.com/snarg/media-gate/internal/media"
	"github.com/snarg/media-gate/internal/metrics"
	"github.com/snarg/media-gate/internal/validate"
)

// KindsHandler exposes the stateless one-shot endpoints, one per media kind.
// They mirror the upstream backend's contract: a multipart POST whose file
// field is named after the kind, answered with {"text": ...}.
type KindsHandler struct {
	extractor extract.Extractor
	log       zerolog.Logger
}

// NewKindsHandler creates the one-shot extraction handler.
func NewKindsHandler(extractor extract.Extractor, log zerolog.Logger) *KindsHandler {
	return &KindsHandler{
		extractor: extractor,
		log:       log.With().Str("handler", "kinds").Logger(),
	}
}

// Routes registers POST /{kind}-to-text for every kind.
func (h *KindsHandler) Routes(r chi.Router) {
	for _, kind := range media.Kinds {
		kind := kind
		r.Post(kind.EndpointPath(), func(w http.ResponseWriter, r *http.Request) {
			h.extract(w, r, kind)
		})
	}
}

// TextResponse carries extracted text.
type TextResponse struct {
	Text string `json:"text"`
}

func (h *KindsHandler) extract(w http.ResponseWriter, r *http.Request, kind media.Kind) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(kind.Field())
	if err != nil {
		WriteError(w, http.StatusBadRequest, "multipart field "+kind.Field()+" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if verr := validate.File(kind, header.Filename, mimeType, int64(len(data))); verr != nil {
		metrics.ValidationFailuresTotal.WithLabelValues(string(kind)).Inc()
		WriteError(w, http.StatusBadRequest, verr.Error())
		return
	}

	text, err := h.extractor.Extract(r.Context(), kind, header.Filename, data)
	if err != nil {
		h.log.Warn().Err(err).
			Str("kind", string(kind)).
			Str("file", header.Filename).
			Msg("one-shot extraction failed")
		metrics.SubmissionsTotal.WithLabelValues(string(kind), "failed").Inc()
		WriteError(w, http.StatusBadGateway, kind.FailureMessage())
		return
	}

	metrics.SubmissionsTotal.WithLabelValues(string(kind), "succeeded").Inc()
	WriteJSON(w, http.StatusOK, TextResponse{Text: text})
}
