package main

import (
	"context"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	mediagate "github.com/snarg/media-gate"
	"github.com/snarg/media-gate/internal/api"
	"github.com/snarg/media-gate/internal/config"
	"github.com/snarg/media-gate/internal/events"
	"github.com/snarg/media-gate/internal/extract"
	"github.com/snarg/media-gate/internal/history"
	"github.com/snarg/media-gate/internal/ingest"
	"github.com/snarg/media-gate/internal/pipeline"
	"github.com/snarg/media-gate/internal/store"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flag.StringVar(&overrides.BackendURL, "backend-url", "", "inference backend base URL")
	flag.StringVar(&overrides.UploadDir, "upload-dir", "", "local upload directory")
	flag.StringVar(&overrides.WatchDir, "watch-dir", "", "drop directory to watch")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("media-gate starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Upload store
	mediaStore, pruner, err := store.New(cfg.S3, cfg.UploadDir, cfg.UploadRetention, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize upload store")
	}
	if pruner != nil {
		pruner.Start()
		defer pruner.Stop()
	}

	// Optional submission history
	var db *history.DB
	if cfg.DatabaseURL != "" {
		db, err = history.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to history database")
		}
		defer db.Close()
	}

	// Extraction backend
	var extractor extract.Extractor
	switch cfg.ExtractProvider {
	case "openai":
		extractor = extract.NewOpenAIExtractor(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	default:
		extractor = extract.NewGatewayClient(cfg.BackendURL, cfg.BackendBasePath, cfg.BackendTimeout)
	}
	log.Info().Str("provider", extractor.Name()).Msg("extraction backend configured")

	// Event bus and pipeline
	bus := events.NewBus(256)
	manager := pipeline.NewManager(pipeline.ManagerOptions{
		Store:      mediaStore,
		Extractor:  extractor,
		Bus:        bus,
		History:    historyWriter(db),
		SessionTTL: cfg.SessionTTL,
		Log:        log,
	})
	manager.Start()
	defer manager.Stop()

	// Optional drop-directory ingest
	var watcher *ingest.Watcher
	if cfg.WatchDir != "" {
		watcher = ingest.NewWatcher(manager, cfg.WatchDir, log)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start drop directory watcher")
		}
		defer watcher.Stop()
	}

	// HTTP server with the embedded UI
	webFS, err := fs.Sub(mediagate.WebFiles, "web")
	if err != nil {
		log.Fatal().Err(err).Msg("embedded web assets missing")
	}
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.Options{
		Config:    cfg,
		Manager:   manager,
		Extractor: extractor,
		Bus:       bus,
		History:   db,
		Watcher:   watcher,
		StoreType: mediaStore.Type(),
		WebFS:     webFS,
		Version:   version,
		StartTime: startTime,
		Log:       httpLog,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("media-gate stopped")
}

// historyWriter avoids a typed-nil interface when history is disabled.
func historyWriter(db *history.DB) pipeline.HistoryWriter {
	if db == nil {
		return nil
	}
	return db
}
