package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/media-gate/internal/media"
	"github.com/snarg/media-gate/internal/pipeline"
	"github.com/snarg/media-gate/internal/store"
)

// echoExtractor returns a fixed string for any submission.
type echoExtractor struct {
	text string
	err  error
}

func (e *echoExtractor) Extract(ctx context.Context, kind media.Kind, filename string, data []byte) (string, error) {
	return e.text, e.err
}

func (e *echoExtractor) Name() string { return "echo" }

func newTestRouter(t *testing.T, ex *echoExtractor) (*chi.Mux, *pipeline.Manager) {
	t.Helper()
	manager := pipeline.NewManager(pipeline.ManagerOptions{
		Store:     store.NewLocalStore(t.TempDir()),
		Extractor: ex,
		Log:       zerolog.Nop(),
	})
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		NewSessionsHandler(manager, zerolog.Nop()).Routes(r)
	})
	return r, manager
}

func buildMultipartForm(t *testing.T, fileField string, fileData []byte, fileName, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="`+fileName+`"`)
	h.Set("Content-Type", contentType)
	part, err := writer.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(fileData)
	writer.Close()
	return body, writer.FormDataContentType()
}

func createSession(t *testing.T, r http.Handler, kind string) pipeline.Snapshot {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/sessions", strings.NewReader(`{"kind":"`+kind+`"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var snap pipeline.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("parse session: %v", err)
	}
	return snap
}

func selectFile(t *testing.T, r http.Handler, id, name, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := buildMultipartForm(t, "file", data, name, contentType)
	req := httptest.NewRequest("POST", "/api/v1/sessions/"+id+"/file", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSessions_CreateAndGet(t *testing.T) {
	r, _ := newTestRouter(t, &echoExtractor{})

	snap := createSession(t, r, "audio")
	if snap.Kind != media.Audio || snap.State != pipeline.StateIdle {
		t.Errorf("snapshot = %+v, want idle audio session", snap)
	}

	req := httptest.NewRequest("GET", "/api/v1/sessions/"+snap.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: status = %d", rec.Code)
	}
}

func TestSessions_CreateBadKind(t *testing.T) {
	r, _ := newTestRouter(t, &echoExtractor{})

	req := httptest.NewRequest("POST", "/api/v1/sessions", strings.NewReader(`{"kind":"document"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSessions_UnknownID(t *testing.T) {
	r, _ := newTestRouter(t, &echoExtractor{})

	req := httptest.NewRequest("GET", "/api/v1/sessions/deadbeef", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSessions_SelectSubmitDownload(t *testing.T) {
	r, _ := newTestRouter(t, &echoExtractor{text: "the transcript"})

	snap := createSession(t, r, "audio")

	rec := selectFile(t, r, snap.ID, "meeting.mp3", "audio/mpeg", []byte("mp3-bytes"))
	if rec.Code != http.StatusOK {
		t.Fatalf("select: status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var afterSelect pipeline.Snapshot
	json.Unmarshal(rec.Body.Bytes(), &afterSelect)
	if afterSelect.File == nil || afterSelect.File.Name != "meeting.mp3" {
		t.Fatalf("file = %+v", afterSelect.File)
	}

	req := httptest.NewRequest("POST", "/api/v1/sessions/"+snap.ID+"/submit", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var afterSubmit pipeline.Snapshot
	json.Unmarshal(rec.Body.Bytes(), &afterSubmit)
	if afterSubmit.State != pipeline.StateSucceeded {
		t.Fatalf("state = %q, want succeeded", afterSubmit.State)
	}
	if afterSubmit.Result == nil || afterSubmit.Result.Text != "the transcript" {
		t.Fatalf("result = %+v", afterSubmit.Result)
	}

	req = httptest.NewRequest("GET", "/api/v1/sessions/"+snap.ID+"/download", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download: status = %d", rec.Code)
	}
	if rec.Body.String() != "the transcript" {
		t.Errorf("download body = %q", rec.Body.String())
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.Contains(cd, "meeting.mp3-transcript.txt") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestSessions_SubmitWithoutFile(t *testing.T) {
	r, _ := newTestRouter(t, &echoExtractor{})

	snap := createSession(t, r, "image")
	req := httptest.NewRequest("POST", "/api/v1/sessions/"+snap.ID+"/submit", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSessions_ValidationFailureIsTerminalState(t *testing.T) {
	r, _ := newTestRouter(t, &echoExtractor{text: "never"})

	snap := createSession(t, r, "image")
	rec := selectFile(t, r, snap.ID, "doc.pdf", "application/pdf", []byte("x"))
	if rec.Code != http.StatusOK {
		t.Fatalf("select: status = %d", rec.Code)
	}

	req := httptest.NewRequest("POST", "/api/v1/sessions/"+snap.ID+"/submit", nil)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("submit: status = %d; body = %s", rec2.Code, rec2.Body.String())
	}
	var afterSubmit pipeline.Snapshot
	json.Unmarshal(rec2.Body.Bytes(), &afterSubmit)
	if afterSubmit.State != pipeline.StateFailed {
		t.Errorf("state = %q, want failed", afterSubmit.State)
	}
	if afterSubmit.Result == nil || !strings.Contains(afterSubmit.Result.ErrorMessage, "valid image file") {
		t.Errorf("result = %+v", afterSubmit.Result)
	}
}

func TestSessions_PreviewStreamsUpload(t *testing.T) {
	r, _ := newTestRouter(t, &echoExtractor{})

	snap := createSession(t, r, "image")
	selectFile(t, r, snap.ID, "photo.png", "image/png", []byte("png-bytes"))

	req := httptest.NewRequest("GET", "/api/v1/sessions/"+snap.ID+"/preview", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: status = %d", rec.Code)
	}
	if rec.Body.String() != "png-bytes" {
		t.Errorf("preview body = %q", rec.Body.String())
	}
}

func TestSessions_ClearFile(t *testing.T) {
	r, _ := newTestRouter(t, &echoExtractor{})

	snap := createSession(t, r, "video")
	selectFile(t, r, snap.ID, "clip.mp4", "video/mp4", []byte("x"))

	req := httptest.NewRequest("DELETE", "/api/v1/sessions/"+snap.ID+"/file", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: status = %d", rec.Code)
	}
	var afterClear pipeline.Snapshot
	json.Unmarshal(rec.Body.Bytes(), &afterClear)
	if afterClear.File != nil {
		t.Errorf("file = %+v, want nil", afterClear.File)
	}
}

func TestSessions_Playback(t *testing.T) {
	r, _ := newTestRouter(t, &echoExtractor{})

	snap := createSession(t, r, "audio")
	selectFile(t, r, snap.ID, "a.mp3", "audio/mpeg", []byte("x"))

	body := strings.NewReader(`{"playing":true,"current_time":30,"duration":120}`)
	req := httptest.NewRequest("PUT", "/api/v1/sessions/"+snap.ID+"/playback", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("playback: status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var after pipeline.Snapshot
	json.Unmarshal(rec.Body.Bytes(), &after)
	if after.ProgressPercent != 25 {
		t.Errorf("progress = %v, want 25", after.ProgressPercent)
	}
}

func TestSessions_DownloadBeforeResult(t *testing.T) {
	r, _ := newTestRouter(t, &echoExtractor{})

	snap := createSession(t, r, "audio")
	req := httptest.NewRequest("GET", "/api/v1/sessions/"+snap.ID+"/download", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}
