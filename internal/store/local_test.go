package store

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLocalStore_SaveOpenDelete(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()

	key := "audio/sess-1/clip.mp3"
	data := []byte("fake-audio-bytes")

	if err := s.Save(ctx, key, data, "audio/mpeg"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.Exists(ctx, key) {
		t.Fatal("Exists = false after Save")
	}

	rc, ct, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("data = %q, want %q", got, data)
	}
	if ct != "audio/mpeg" {
		t.Errorf("content type = %q, want audio/mpeg", ct)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Exists(ctx, key) {
		t.Error("Exists = true after Delete")
	}

	// Deleting again is not an error.
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestLocalStore_OpenMissing(t *testing.T) {
	s := NewLocalStore(t.TempDir())

	_, _, err := s.Open(context.Background(), "image/nope/missing.png")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLocalStore_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)

	if err := s.Save(context.Background(), "video/sess/clip.mp4", []byte("x"), "video/mp4"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "video", "sess"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "clip.mp4" {
			t.Errorf("unexpected file left behind: %s", e.Name())
		}
	}
}

func TestPruner(t *testing.T) {
	dir := t.TempDir()

	oldPath := filepath.Join(dir, "audio", "sess-old", "old.mp3")
	newPath := filepath.Join(dir, "audio", "sess-new", "new.mp3")
	for _, p := range []string{oldPath, newPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	// Age the old file beyond retention.
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatal(err)
	}

	p := NewPruner(dir, 1*time.Hour, zerolog.Nop())
	p.prune()

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("old file survived prune")
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Errorf("new file pruned: %v", err)
	}
	// Emptied session dir is removed too.
	if _, err := os.Stat(filepath.Dir(oldPath)); !os.IsNotExist(err) {
		t.Error("empty session dir survived prune")
	}
}
