package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/media-gate/internal/config"
)

// ErrNotFound is returned when a stored object does not exist.
var ErrNotFound = errors.New("object not found")

// MediaStore holds uploaded media between selection and submission. A stored
// object backs the session's preview handle; Delete is the explicit release
// path when a file is cleared or replaced.
type MediaStore interface {
	// Save stores media bytes. key format: {kind}/{session_id}/{filename}
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Open returns a reader and the stored content type.
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks whether the object is present.
	Exists(ctx context.Context, key string) bool

	// Type returns "local" or "s3".
	Type() string
}

// New creates a MediaStore based on config. Returns the store and an optional
// pruner the caller must Start/Stop. Returns an error if S3 is configured but
// unreachable.
func New(cfg config.S3Config, uploadDir string, retention time.Duration, log zerolog.Logger) (MediaStore, *Pruner, error) {
	if !cfg.Enabled() {
		local := NewLocalStore(uploadDir)
		var pruner *Pruner
		if retention > 0 {
			pruner = NewPruner(uploadDir, retention, log)
		}
		return local, pruner, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return s3store, nil, nil
}
