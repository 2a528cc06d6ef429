package media

import "testing"

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		if err != nil {
			t.Errorf("ParseKind(%q): %v", k, err)
		}
		if got != k {
			t.Errorf("ParseKind(%q) = %q", k, got)
		}
	}

	if _, err := ParseKind("document"); err == nil {
		t.Error("ParseKind(document): expected error")
	}
	if _, err := ParseKind(""); err == nil {
		t.Error("ParseKind(empty): expected error")
	}
}

func TestKindTable(t *testing.T) {
	tests := []struct {
		kind     Kind
		field    string
		path     string
		suffix   string
		fallback string
	}{
		{Image, "image", "/image-to-text", "-extracted.txt", "No content detected in the image."},
		{Audio, "audio", "/audio-to-text", "-transcript.txt", "No speech detected in the audio."},
		{Video, "video", "/video-to-text", "-transcript.txt", "No speech detected in the video."},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Field(); got != tt.field {
				t.Errorf("Field = %q, want %q", got, tt.field)
			}
			if got := tt.kind.EndpointPath(); got != tt.path {
				t.Errorf("EndpointPath = %q, want %q", got, tt.path)
			}
			if got := tt.kind.DownloadSuffix(); got != tt.suffix {
				t.Errorf("DownloadSuffix = %q, want %q", got, tt.suffix)
			}
			if got := tt.kind.FallbackText(); got != tt.fallback {
				t.Errorf("FallbackText = %q, want %q", got, tt.fallback)
			}
			if tt.kind.FailureMessage() == "" {
				t.Error("FailureMessage is empty")
			}
		})
	}
}
