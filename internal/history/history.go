package history

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/snarg/media-gate/internal/pipeline"
)

// DB persists completed submissions to Postgres. The whole package is
// optional: when no database URL is configured the server runs without it.
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Record is a stored submission row for API responses.
type Record struct {
	ID         int       `json:"id"`
	Kind       string    `json:"kind"`
	Filename   string    `json:"filename"`
	Text       string    `json:"text"`
	Provider   string    `json:"provider,omitempty"`
	DurationMs int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Connect opens a pool, verifies connectivity, and ensures the schema.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	db := &DB{Pool: pool, log: log.With().Str("component", "history").Logger()}
	if err := db.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	db.log.Info().
		Str("url", maskDSN(databaseURL)).
		Int32("max_conns", cfg.MaxConns).
		Msg("history database connected")

	return db, nil
}

func (db *DB) ensureSchema(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS submissions (
			id          SERIAL PRIMARY KEY,
			kind        TEXT NOT NULL,
			filename    TEXT NOT NULL,
			text        TEXT NOT NULL,
			provider    TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_submissions_created_at
			ON submissions (created_at DESC);
	`)
	return err
}

// RecordSubmission inserts a completed submission. Satisfies
// pipeline.HistoryWriter.
func (db *DB) RecordSubmission(ctx context.Context, rec pipeline.HistoryRecord) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO submissions (kind, filename, text, provider, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
	`, string(rec.Kind), rec.Filename, rec.Text, rec.Provider, rec.DurationMs)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// ListRecent returns stored submissions newest first. A kind filter of ""
// matches every kind.
func (db *DB) ListRecent(ctx context.Context, kind string, limit, offset int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, kind, filename, text, provider, duration_ms, created_at
		FROM submissions
		WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, kind, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Kind, &r.Filename, &r.Text, &r.Provider, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// HealthCheck pings the pool with a short timeout.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}

// Close shuts the pool down.
func (db *DB) Close() {
	db.log.Info().Msg("closing history database pool")
	db.Pool.Close()
}
