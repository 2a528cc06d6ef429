package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func newKindsRouter(ex *echoExtractor) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		NewKindsHandler(ex, zerolog.Nop()).Routes(r)
	})
	return r
}

func TestKinds_AudioToText(t *testing.T) {
	r := newKindsRouter(&echoExtractor{text: "hello world"})

	body, ct := buildMultipartForm(t, "audio", []byte("mp3-bytes"), "a.mp3", "audio/mpeg")
	req := httptest.NewRequest("POST", "/api/v1/audio-to-text", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var resp TextResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Text != "hello world" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestKinds_FieldNameMatchesKind(t *testing.T) {
	r := newKindsRouter(&echoExtractor{text: "x"})

	// An image endpoint only reads the "image" field.
	body, ct := buildMultipartForm(t, "file", []byte("png"), "p.png", "image/png")
	req := httptest.NewRequest("POST", "/api/v1/image-to-text", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for wrong field name", rec.Code)
	}
}

func TestKinds_ValidationRejection(t *testing.T) {
	r := newKindsRouter(&echoExtractor{text: "never"})

	body, ct := buildMultipartForm(t, "video", []byte("x"), "notes.docx", "application/msword")
	req := httptest.NewRequest("POST", "/api/v1/video-to-text", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !strings.Contains(resp.Error, "valid video file") {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestKinds_BackendFailure(t *testing.T) {
	r := newKindsRouter(&echoExtractor{err: errors.New("boom")})

	body, ct := buildMultipartForm(t, "image", []byte("png"), "p.png", "image/png")
	req := httptest.NewRequest("POST", "/api/v1/image-to-text", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != "Failed to generate prompt. Please try again." {
		t.Errorf("error = %q", resp.Error)
	}
}
