package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/snarg/media-gate/internal/media"
)

// GatewayClient calls the remote inference backend's {kind}-to-text endpoints.
// The backend is an opaque HTTP collaborator: one multipart POST per
// submission with a single file field named after the kind, JSON
// {"text": ...} back.
type GatewayClient struct {
	baseURL  string
	basePath string // "/api" or "" depending on deployment
	client   *http.Client
}

// gatewayResponse is the backend's success body.
type gatewayResponse struct {
	Text string `json:"text"`
}

// NewGatewayClient creates a backend HTTP client.
func NewGatewayClient(baseURL, basePath string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL:  baseURL,
		basePath: basePath,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (gc *GatewayClient) Name() string { return "gateway" }

// URLFor returns the full backend URL for a kind. Exposed for health checks
// and logging.
func (gc *GatewayClient) URLFor(kind media.Kind) string {
	return gc.baseURL + gc.basePath + kind.EndpointPath()
}

// Extract sends the file to the backend and returns the text field verbatim.
// Non-2xx statuses and undecodable bodies are errors; the caller normalizes
// them to the kind's static failure message.
func (gc *GatewayClient) Extract(ctx context.Context, kind media.Kind, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(kind.Field(), filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write media data: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gc.URLFor(kind), &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := gc.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("backend error (status %d): %s", resp.StatusCode, truncate(body, 512))
	}

	var result gatewayResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return result.Text, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
