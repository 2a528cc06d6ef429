package pipeline

import (
	"fmt"
	"math"
)

// PlaybackState mirrors the preview player's transport state. It is written
// only from the UI's media-element callbacks (metadata loaded, time update,
// ended) and the play/pause toggle, and reset to the zero value whenever the
// selected file changes.
type PlaybackState struct {
	Playing     bool    `json:"playing"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
}

// Progress returns the progress bar width in percent, clamped to [0, 100].
// The clamp is explicit: a time update racing a new metadata load can briefly
// report currentTime past duration.
func (p PlaybackState) Progress() float64 {
	if p.Duration <= 0 {
		return 0
	}
	pct := p.CurrentTime / p.Duration * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func (p PlaybackState) sanitized() PlaybackState {
	p.CurrentTime = cleanSeconds(p.CurrentTime)
	p.Duration = cleanSeconds(p.Duration)
	return p
}

func cleanSeconds(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// FormatClock renders seconds as m:ss (audio preview style): 75 is "1:15".
func FormatClock(seconds float64) string {
	s := int(cleanSeconds(seconds))
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// FormatTimecode renders seconds as h:mm:ss, omitting the hour segment when
// zero (video preview style): 3661 is "1:01:01" and 45 is "0:45".
func FormatTimecode(seconds float64) string {
	s := int(cleanSeconds(seconds))
	h := s / 3600
	m := (s % 3600) / 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s%60)
	}
	return fmt.Sprintf("%d:%02d", m, s%60)
}
