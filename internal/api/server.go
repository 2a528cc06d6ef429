package api

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/media-gate/internal/config"
	"github.com/snarg/media-gate/internal/events"
	"github.com/snarg/media-gate/internal/extract"
	"github.com/snarg/media-gate/internal/history"
	"github.com/snarg/media-gate/internal/ingest"
	"github.com/snarg/media-gate/internal/metrics"
	"github.com/snarg/media-gate/internal/pipeline"
)

// Options carries everything the HTTP server serves. History and Watcher are
// nil when their features are not configured.
type Options struct {
	Config    *config.Config
	Manager   *pipeline.Manager
	Extractor extract.Extractor
	Bus       *events.Bus
	History   *history.DB
	Watcher   *ingest.Watcher
	StoreType string
	WebFS     fs.FS
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts Options) *Server {
	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(withRequestID)
	r.Use(recoverPanics)
	r.Use(accessLogger(opts.Log))
	r.Use(allowCORS)
	r.Use(metrics.InstrumentHandler)

	// Unauthenticated: health and Prometheus scrape
	health := NewHealthHandler(opts.StoreType, cfg.BackendURL, historyChecker(opts.History), opts.Watcher, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated API
	sessions := NewSessionsHandler(opts.Manager, opts.Log)
	kinds := NewKindsHandler(opts.Extractor, opts.Log)
	sse := NewEventsHandler(opts.Bus)
	submissions := NewSubmissionsHandler(opts.History, opts.Log)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireToken(cfg.AuthToken))
		sessions.Routes(r)
		kinds.Routes(r)
		sse.Routes(r)
		submissions.Routes(r)
	})

	// Embedded web UI
	if opts.WebFS != nil {
		r.Handle("/*", http.FileServer(http.FS(opts.WebFS)))
	}

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

// historyChecker avoids a typed-nil interface when history is disabled.
func historyChecker(db *history.DB) HistoryChecker {
	if db == nil {
		return nil
	}
	return db
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
