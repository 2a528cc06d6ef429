package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pruner deletes stored uploads older than the retention window. Uploads are
// preview-only working copies: a selection that was never cleared (abandoned
// tab, crashed browser) must not accumulate on disk forever.
type Pruner struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewPruner creates a pruner for the local upload directory.
func NewPruner(dir string, retention time.Duration, log zerolog.Logger) *Pruner {
	return &Pruner{
		dir:       dir,
		retention: retention,
		interval:  1 * time.Hour,
		log:       log.With().Str("component", "upload-pruner").Logger(),
		stop:      make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	go p.loop()
}

func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Pruner) loop() {
	// Run once on startup to clear any backlog from downtime
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

func (p *Pruner) prune() {
	if p.retention <= 0 {
		return
	}

	cutoff := time.Now().Add(-p.retention)
	var prunedCount int
	var prunedBytes int64

	filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				prunedCount++
				prunedBytes += info.Size()
			}
		}
		return nil
	})

	p.removeEmptyDirs()

	if prunedCount > 0 {
		p.log.Info().
			Int("pruned", prunedCount).
			Int64("freed_bytes", prunedBytes).
			Msg("upload prune complete")
	}
}

// removeEmptyDirs clears out {kind}/{session} directories left behind after
// their files were pruned.
func (p *Pruner) removeEmptyDirs() {
	kinds, _ := os.ReadDir(p.dir)
	for _, kindDir := range kinds {
		if !kindDir.IsDir() {
			continue
		}
		kindPath := filepath.Join(p.dir, kindDir.Name())
		sessions, _ := os.ReadDir(kindPath)
		for _, sessDir := range sessions {
			if !sessDir.IsDir() {
				continue
			}
			sessPath := filepath.Join(kindPath, sessDir.Name())
			remaining, _ := os.ReadDir(sessPath)
			if len(remaining) == 0 {
				os.Remove(sessPath)
			}
		}
		remaining, _ := os.ReadDir(kindPath)
		if len(remaining) == 0 {
			os.Remove(kindPath)
		}
	}
}
