package validate

import (
	"errors"
	"testing"

	"github.com/snarg/media-gate/internal/media"
)

func TestFile_TypeRules(t *testing.T) {
	tests := []struct {
		name     string
		kind     media.Kind
		filename string
		mime     string
		size     int64
		wantErr  string
	}{
		{"image jpeg ok", media.Image, "photo.jpg", "image/jpeg", 1024, ""},
		{"image webp ok", media.Image, "photo.webp", "image/webp", 1024, ""},
		{"image bad type", media.Image, "doc.pdf", "application/pdf", 1024,
			"Please select a valid image file (JPEG, PNG, GIF, or WebP)"},
		{"image no extension fallback", media.Image, "photo.jpg", "text/plain", 1024,
			"Please select a valid image file (JPEG, PNG, GIF, or WebP)"},
		{"audio mpeg ok", media.Audio, "clip.mp3", "audio/mpeg", 1024, ""},
		{"audio extension rescue", media.Audio, "clip.mp3", "application/octet-stream", 1024, ""},
		{"audio wav extension rescue", media.Audio, "clip.WAV", "", 1024, ""},
		{"audio bad type and extension", media.Audio, "clip.flac", "audio/flac", 1024,
			"Please select a valid audio file (MP3, WAV, or OGG)"},
		{"video mp4 ok", media.Video, "movie.mp4", "video/mp4", 1024, ""},
		{"video extension rescue", media.Video, "movie.mov", "application/octet-stream", 1024, ""},
		{"video bad type", media.Video, "movie.mkv", "video/x-matroska", 1024,
			"Please select a valid video file (MP4, WebM, MOV, or AVI)"},
		{"mime with parameters", media.Audio, "clip.bin", "audio/ogg; codecs=opus", 1024, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := File(tt.kind, tt.filename, tt.mime, tt.size)
			checkReason(t, err, tt.wantErr)
		})
	}
}

func TestFile_SizeRules(t *testing.T) {
	tests := []struct {
		name     string
		kind     media.Kind
		filename string
		mime     string
		size     int64
		wantErr  string
	}{
		{"image at limit", media.Image, "p.png", "image/png", 10 << 20, ""},
		{"image over limit", media.Image, "p.png", "image/png", 10<<20 + 1,
			"Image file size must be less than 10MB"},
		{"audio over limit", media.Audio, "a.mp3", "audio/mpeg", 20<<20 + 1,
			"Audio file size must be less than 20MB"},
		{"video over limit", media.Video, "v.mp4", "video/mp4", 20<<20 + 1,
			"Video file size must be less than 20MB"},
		// Type check runs first: a wrong type reports the type reason even
		// when the file is also oversized.
		{"type beats size", media.Image, "doc.pdf", "application/pdf", 50 << 20,
			"Please select a valid image file (JPEG, PNG, GIF, or WebP)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := File(tt.kind, tt.filename, tt.mime, tt.size)
			checkReason(t, err, tt.wantErr)
		})
	}
}

func checkReason(t *testing.T, err error, want string) {
	t.Helper()
	if want == "" {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return
	}
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *validate.Error", err)
	}
	if verr.Reason != want {
		t.Errorf("reason = %q, want %q", verr.Reason, want)
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 Bytes"},
		{512, "512 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1048576, "1 MB"},
		{10 << 20, "10 MB"},
		{3 << 30, "3 GB"},
	}

	for _, tt := range tests {
		if got := FormatFileSize(tt.bytes); got != tt.want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
