package media

import "fmt"

// Kind identifies one of the three media pipelines. Each kind carries its
// own validation rules, backend endpoint, multipart field name, fallback
// text, and download naming.
type Kind string

const (
	Image Kind = "image"
	Audio Kind = "audio"
	Video Kind = "video"
)

// Kinds lists all supported media kinds in UI order.
var Kinds = []Kind{Image, Audio, Video}

// ParseKind validates a kind string from a request or config value.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Image, Audio, Video:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// Field returns the multipart form field name carrying the file for this kind.
func (k Kind) Field() string { return string(k) }

// EndpointPath returns the backend path for this kind, relative to the
// configured base path. The original deployment exposed both /api/{kind}-to-text
// and /{kind}-to-text; the split lives in config, not here.
func (k Kind) EndpointPath() string { return "/" + string(k) + "-to-text" }

// FallbackText is returned when the backend responds with empty text.
func (k Kind) FallbackText() string {
	switch k {
	case Image:
		return "No content detected in the image."
	case Audio:
		return "No speech detected in the audio."
	case Video:
		return "No speech detected in the video."
	}
	return "No content detected."
}

// FailureMessage is the single static error shown for any backend failure.
// Transport errors, bad statuses, and decode failures all collapse to this.
func (k Kind) FailureMessage() string {
	switch k {
	case Image:
		return "Failed to generate prompt. Please try again."
	case Audio:
		return "Failed to transcribe audio. Please try again."
	case Video:
		return "Failed to generate video prompt. Please try again."
	}
	return "Failed to process file. Please try again."
}

// DownloadSuffix is appended to the original filename for result downloads.
func (k Kind) DownloadSuffix() string {
	if k == Image {
		return "-extracted.txt"
	}
	return "-transcript.txt"
}

// DefaultBasename is used for downloads when no file name is known.
func (k Kind) DefaultBasename() string { return string(k) }
