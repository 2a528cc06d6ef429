package extract

import (
	"context"

	"github.com/snarg/media-gate/internal/media"
)

// Extractor is the interface for media-to-text backends.
type Extractor interface {
	// Extract submits media bytes and returns the generated text verbatim.
	// Empty text is a valid result; callers apply per-kind fallback strings.
	Extract(ctx context.Context, kind media.Kind, filename string, data []byte) (string, error)
	Name() string // "gateway", "openai"
}
