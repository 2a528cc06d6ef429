package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/media-gate/internal/media"
	"github.com/snarg/media-gate/internal/metrics"
	"github.com/snarg/media-gate/internal/pipeline"
)

// Watcher monitors a drop directory for media files and runs each one through
// the submission pipeline without a browser involved. The result text is
// written next to the source file using the kind's download suffix, so a
// processed drop directory reads like a batch of completed downloads.
//
// The media kind is taken from the immediate subdirectory when it names one
// (drop/audio/meeting.mp3), otherwise inferred from the file extension.
type Watcher struct {
	manager  *pipeline.Manager
	watchDir string
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc

	// Coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesProcessed atomic.Int64
	filesFailed    atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // string: "starting", "watching", "stopped"
}

// Status is the watcher state reported by the health endpoint.
type Status struct {
	Status         string `json:"status"`
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesFailed    int64  `json:"files_failed"`
	FilesSkipped   int64  `json:"files_skipped"`
}

// NewWatcher creates a drop-directory watcher feeding the pipeline manager.
func NewWatcher(manager *pipeline.Manager, watchDir string, log zerolog.Logger) *Watcher {
	w := &Watcher{
		manager:        manager,
		watchDir:       watchDir,
		log:            log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
	}
	w.status.Store("starting")
	return w
}

// Start initializes the fsnotify watcher over the drop directory tree and
// begins processing new files.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.watchDir, 0o755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw
	w.ctx, w.cancel = context.WithCancel(context.Background())

	dirCount := 0
	err = filepath.WalkDir(w.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if d.IsDir() {
			if addErr := fsw.Add(path); addErr != nil {
				w.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	w.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", w.watchDir).
		Msg("drop directory watcher initialized")

	w.status.Store("watching")
	go w.watchLoop()
	return nil
}

// Stop closes the fsnotify watcher and cancels in-flight submissions.
func (w *Watcher) Stop() {
	w.status.Store("stopped")
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.log.Info().
		Int64("files_processed", w.filesProcessed.Load()).
		Int64("files_failed", w.filesFailed.Load()).
		Int64("files_skipped", w.filesSkipped.Load()).
		Msg("drop directory watcher stopped")
}

// CurrentStatus returns the watcher state for the health endpoint.
func (w *Watcher) CurrentStatus() Status {
	s, _ := w.status.Load().(string)
	return Status{
		Status:         s,
		WatchDir:       w.watchDir,
		FilesProcessed: w.filesProcessed.Load(),
		FilesFailed:    w.filesFailed.Load(),
		FilesSkipped:   w.filesSkipped.Load(),
	}
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New subdirectory: watch it so files dropped inside are seen.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					w.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				}
				continue
			}

			if !w.wantFile(event.Name) {
				continue
			}

			w.scheduleProcess(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// wantFile filters out result files, hidden files, and editors' temp files.
func (w *Watcher) wantFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	if strings.HasSuffix(base, ".txt") || strings.HasSuffix(base, ".tmp") {
		return false
	}
	return true
}

// scheduleProcess debounces by 500ms so the file is fully written before
// processing starts.
func (w *Watcher) scheduleProcess(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.processFile(path)
	})
}

// processFile runs one dropped file through a throwaway pipeline session and
// writes the result text alongside it.
func (w *Watcher) processFile(path string) {
	kind, ok := w.kindFor(path)
	if !ok {
		w.filesSkipped.Add(1)
		metrics.WatcherFilesTotal.WithLabelValues("skipped").Inc()
		w.log.Debug().Str("path", path).Msg("skipping file of unknown kind")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.filesFailed.Add(1)
		metrics.WatcherFilesTotal.WithLabelValues("failed").Inc()
		w.log.Warn().Err(err).Str("path", path).Msg("failed to read dropped file")
		return
	}

	name := filepath.Base(path)
	s := w.manager.Create(kind)
	defer func() {
		if _, err := w.manager.Clear(context.Background(), s.ID); err != nil {
			w.log.Warn().Err(err).Str("session", s.ID).Msg("failed to clear watcher session")
		}
	}()

	if _, err := w.manager.Select(w.ctx, s.ID, name, mimeFor(path), data); err != nil {
		w.filesFailed.Add(1)
		metrics.WatcherFilesTotal.WithLabelValues("failed").Inc()
		w.log.Warn().Err(err).Str("path", path).Msg("failed to stage dropped file")
		return
	}

	snap, err := w.manager.Submit(w.ctx, s.ID)
	if err != nil || snap.State != pipeline.StateSucceeded || snap.Result == nil {
		w.filesFailed.Add(1)
		metrics.WatcherFilesTotal.WithLabelValues("failed").Inc()
		reason := "submission failed"
		if snap.Result != nil && snap.Result.ErrorMessage != "" {
			reason = snap.Result.ErrorMessage
		}
		w.log.Warn().Err(err).Str("path", path).Str("reason", reason).Msg("dropped file not processed")
		return
	}

	outPath := path + kind.DownloadSuffix()
	if err := os.WriteFile(outPath, []byte(snap.Result.Text), 0o644); err != nil {
		w.filesFailed.Add(1)
		metrics.WatcherFilesTotal.WithLabelValues("failed").Inc()
		w.log.Warn().Err(err).Str("path", outPath).Msg("failed to write result file")
		return
	}

	w.filesProcessed.Add(1)
	metrics.WatcherFilesTotal.WithLabelValues("processed").Inc()
	w.log.Info().
		Str("path", path).
		Str("kind", string(kind)).
		Int("chars", len(snap.Result.Text)).
		Msg("dropped file processed")
}

// kindFor picks the media kind for a dropped file. The immediate parent
// directory wins when it names a kind; otherwise the extension decides.
func (w *Watcher) kindFor(path string) (media.Kind, bool) {
	if kind, err := media.ParseKind(filepath.Base(filepath.Dir(path))); err == nil {
		return kind, true
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return media.Image, true
	case ".mp3", ".wav", ".ogg":
		return media.Audio, true
	case ".mp4", ".webm", ".mov", ".avi":
		return media.Video, true
	}
	return "", false
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/mov"
	case ".avi":
		return "video/avi"
	}
	return "application/octet-stream"
}
