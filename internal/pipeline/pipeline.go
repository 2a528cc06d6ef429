package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/media-gate/internal/events"
	"github.com/snarg/media-gate/internal/extract"
	"github.com/snarg/media-gate/internal/media"
	"github.com/snarg/media-gate/internal/metrics"
	"github.com/snarg/media-gate/internal/store"
	"github.com/snarg/media-gate/internal/validate"
)

// State is the submission pipeline state for one session.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

var (
	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = errors.New("session not found")

	// ErrNoFile is returned when submit runs without a selected file. The UI
	// hides the submit control in that case, but the contract rejects it
	// independently.
	ErrNoFile = errors.New("no file selected")

	// ErrSuperseded is returned when a submission finished after the session
	// moved on (new file selected or cleared mid-flight). The late result is
	// discarded rather than written over the current state.
	ErrSuperseded = errors.New("submission superseded")

	// ErrNoResult is returned by Download before a successful submission.
	ErrNoResult = errors.New("no result to download")
)

// SelectedFile describes the session's current file. Exactly one exists per
// session; selecting a new file replaces it wholesale and releases the stored
// copy backing the old preview.
type SelectedFile struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mime_type"`

	storeKey string
}

// Result is the outcome of the most recent completed submission: generated
// text on success, a static per-kind message on failure. Never both.
type Result struct {
	Text         string `json:"text,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Session is one pipeline instance: one per UI tab. Sessions persist until
// expiry; switching tabs never clears them.
type Session struct {
	ID   string
	Kind media.Kind

	mu       sync.Mutex
	state    State
	file     *SelectedFile
	playback PlaybackState
	result   *Result
	submitID uint64 // current submission generation; bumped on select/clear/submit
	lastUsed time.Time
}

// Snapshot is a consistent copy of session state for API responses. The
// display fields carry pre-formatted transport times: m:ss for audio, h:mm:ss
// with the hour omitted when zero for video.
type Snapshot struct {
	ID              string        `json:"id"`
	Kind            media.Kind    `json:"kind"`
	State           State         `json:"state"`
	File            *FileInfo     `json:"file,omitempty"`
	Playback        PlaybackState `json:"playback"`
	ProgressPercent float64       `json:"progress_percent"`
	PositionDisplay string        `json:"position_display,omitempty"`
	DurationDisplay string        `json:"duration_display,omitempty"`
	Result          *Result       `json:"result,omitempty"`
}

// FileInfo is the API view of a selected file.
type FileInfo struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	DisplaySize string `json:"display_size"`
	MIMEType    string `json:"mime_type,omitempty"`
}

// HistoryRecord captures a completed submission for the optional history store.
type HistoryRecord struct {
	Kind       media.Kind
	Filename   string
	Text       string
	Provider   string
	DurationMs int
}

// HistoryWriter persists completed submissions. May be nil (history disabled).
type HistoryWriter interface {
	RecordSubmission(ctx context.Context, rec HistoryRecord) error
}

// ManagerOptions configures the session manager.
type ManagerOptions struct {
	Store      store.MediaStore
	Extractor  extract.Extractor
	Bus        *events.Bus
	History    HistoryWriter
	SessionTTL time.Duration
	Log        zerolog.Logger
}

// Manager owns all pipeline sessions and runs the submission state machine.
type Manager struct {
	store     store.MediaStore
	extractor extract.Extractor
	bus       *events.Bus
	history   HistoryWriter
	ttl       time.Duration
	log       zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a session manager.
func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		store:     opts.Store,
		extractor: opts.Extractor,
		bus:       opts.Bus,
		history:   opts.History,
		ttl:       opts.SessionTTL,
		log:       opts.Log.With().Str("component", "pipeline").Logger(),
		sessions:  make(map[string]*Session),
		stop:      make(chan struct{}),
	}
}

// Start launches the session expiry loop.
func (m *Manager) Start() {
	if m.ttl > 0 {
		go m.expiryLoop()
	}
}

// Stop halts the expiry loop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Create registers a new session for a media kind.
func (m *Manager) Create(kind media.Kind) *Session {
	s := &Session{
		ID:       newSessionID(),
		Kind:     kind,
		state:    StateIdle,
		lastUsed: time.Now(),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Snapshot returns the current state of a session.
func (m *Manager) Snapshot(id string) (Snapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// Select stores a newly chosen file and makes it the session's selected file.
// The previous file, its stored preview copy, the playback state, and any
// prior result are all replaced atomically from the caller's perspective; an
// in-flight submission for the old file is invalidated.
func (m *Manager) Select(ctx context.Context, id, filename, mimeType string, data []byte) (Snapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}

	base := filepath.Base(filename)
	if base == "." || base == ".." || base == "/" || base == "" {
		base = s.Kind.DefaultBasename()
	}
	key := fmt.Sprintf("%s/%s/%s", s.Kind, s.ID, base)

	if err := m.store.Save(ctx, key, data, mimeType); err != nil {
		return Snapshot{}, fmt.Errorf("store upload: %w", err)
	}

	s.mu.Lock()
	oldKey := ""
	if s.file != nil {
		oldKey = s.file.storeKey
	}
	s.file = &SelectedFile{
		Name:     filename,
		Size:     int64(len(data)),
		MIMEType: mimeType,
		storeKey: key,
	}
	s.playback = PlaybackState{}
	s.result = nil
	s.state = StateIdle
	s.submitID++
	s.lastUsed = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if oldKey != "" && oldKey != key {
		if err := m.store.Delete(ctx, oldKey); err != nil {
			m.log.Warn().Err(err).Str("key", oldKey).Msg("failed to release replaced upload")
		}
	}

	m.publish("selected", s, map[string]any{"file": filename, "size": len(data)})
	return snap, nil
}

// Clear discards the session's file, stored preview copy, playback state, and
// result, returning the session to idle. Safe to call with nothing selected.
func (m *Manager) Clear(ctx context.Context, id string) (Snapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	oldKey := ""
	if s.file != nil {
		oldKey = s.file.storeKey
	}
	s.file = nil
	s.playback = PlaybackState{}
	s.result = nil
	s.state = StateIdle
	s.submitID++
	s.lastUsed = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if oldKey != "" {
		if err := m.store.Delete(ctx, oldKey); err != nil {
			m.log.Warn().Err(err).Str("key", oldKey).Msg("failed to release cleared upload")
		}
	}

	m.publish("cleared", s, nil)
	return snap, nil
}

// Submit runs the pipeline for the session's selected file:
// validate, then one backend call, then result. Terminal states stick until
// clear or a new selection. A single static message covers every backend
// failure mode; no retry is attempted.
//
// If the session's file changes while the backend call is in flight, the late
// completion is discarded and ErrSuperseded returned.
func (m *Manager) Submit(ctx context.Context, id string) (Snapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	if s.file == nil {
		s.mu.Unlock()
		return Snapshot{}, ErrNoFile
	}
	s.submitID++
	gen := s.submitID
	s.state = StateValidating
	s.result = nil
	s.lastUsed = time.Now()
	file := *s.file
	s.mu.Unlock()

	if verr := validate.File(s.Kind, file.Name, file.MIMEType, file.Size); verr != nil {
		metrics.ValidationFailuresTotal.WithLabelValues(string(s.Kind)).Inc()
		snap, err := m.complete(s, gen, StateFailed, &Result{ErrorMessage: verr.Error()})
		if err != nil {
			return Snapshot{}, err
		}
		m.publish("failed", s, map[string]any{"reason": verr.Error(), "stage": "validation"})
		return snap, nil
	}

	s.mu.Lock()
	if s.submitID != gen {
		s.mu.Unlock()
		return Snapshot{}, ErrSuperseded
	}
	s.state = StateSubmitting
	s.mu.Unlock()
	m.publish("submitted", s, map[string]any{"file": file.Name})

	start := time.Now()
	text, exErr := m.extractFile(ctx, s.Kind, file)
	elapsed := time.Since(start)

	if exErr != nil {
		m.log.Warn().Err(exErr).
			Str("session", s.ID).
			Str("kind", string(s.Kind)).
			Str("file", file.Name).
			Msg("extraction failed")
		metrics.SubmissionsTotal.WithLabelValues(string(s.Kind), "failed").Inc()
		snap, err := m.complete(s, gen, StateFailed, &Result{ErrorMessage: s.Kind.FailureMessage()})
		if err != nil {
			return Snapshot{}, err
		}
		m.publish("failed", s, map[string]any{"stage": "backend"})
		return snap, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = s.Kind.FallbackText()
	}

	snap, err := m.complete(s, gen, StateSucceeded, &Result{Text: text})
	if err != nil {
		return Snapshot{}, err
	}

	metrics.SubmissionsTotal.WithLabelValues(string(s.Kind), "succeeded").Inc()
	metrics.SubmissionDuration.WithLabelValues(string(s.Kind)).Observe(elapsed.Seconds())
	m.publish("succeeded", s, map[string]any{"file": file.Name, "chars": len(text)})

	if m.history != nil {
		rec := HistoryRecord{
			Kind:       s.Kind,
			Filename:   file.Name,
			Text:       text,
			Provider:   m.extractor.Name(),
			DurationMs: int(elapsed.Milliseconds()),
		}
		if err := m.history.RecordSubmission(ctx, rec); err != nil {
			m.log.Warn().Err(err).Msg("failed to record submission history")
		}
	}

	m.log.Debug().
		Str("session", s.ID).
		Str("kind", string(s.Kind)).
		Int("chars", len(text)).
		Dur("duration", elapsed).
		Msg("submission complete")

	return snap, nil
}

// complete writes a terminal state if the submission generation still matches;
// a superseded completion is discarded.
func (m *Manager) complete(s *Session, gen uint64, state State, result *Result) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitID != gen {
		metrics.SubmissionsTotal.WithLabelValues(string(s.Kind), "stale").Inc()
		return Snapshot{}, ErrSuperseded
	}
	s.state = state
	s.result = result
	s.lastUsed = time.Now()
	return s.snapshotLocked(), nil
}

func (m *Manager) extractFile(ctx context.Context, kind media.Kind, file SelectedFile) (string, error) {
	rc, _, err := m.store.Open(ctx, file.storeKey)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	return m.extractor.Extract(ctx, kind, file.Name, data)
}

// UpdatePlayback records transport state reported by the preview player.
// Rejected when no file is selected (there is nothing to play).
func (m *Manager) UpdatePlayback(id string, ps PlaybackState) (Snapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return Snapshot{}, ErrNoFile
	}
	s.playback = ps.sanitized()
	s.lastUsed = time.Now()
	return s.snapshotLocked(), nil
}

// OpenFile returns a reader over the stored upload for preview streaming.
func (m *Manager) OpenFile(ctx context.Context, id string) (io.ReadCloser, string, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	if s.file == nil {
		s.mu.Unlock()
		return nil, "", ErrNoFile
	}
	key := s.file.storeKey
	s.lastUsed = time.Now()
	s.mu.Unlock()
	return m.store.Open(ctx, key)
}

// Download returns the result text and the filename for a download action:
// the original filename plus the kind's suffix. Only available after a
// successful submission.
func (m *Manager) Download(id string) (filename, text string, err error) {
	s, err := m.get(id)
	if err != nil {
		return "", "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSucceeded || s.result == nil {
		return "", "", ErrNoResult
	}
	base := s.Kind.DefaultBasename()
	if s.file != nil {
		base = s.file.Name
	}
	return base + s.Kind.DownloadSuffix(), s.result.Text, nil
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:              s.ID,
		Kind:            s.Kind,
		State:           s.state,
		Playback:        s.playback,
		ProgressPercent: s.playback.Progress(),
	}
	switch s.Kind {
	case media.Audio:
		snap.PositionDisplay = FormatClock(s.playback.CurrentTime)
		snap.DurationDisplay = FormatClock(s.playback.Duration)
	case media.Video:
		snap.PositionDisplay = FormatTimecode(s.playback.CurrentTime)
		snap.DurationDisplay = FormatTimecode(s.playback.Duration)
	}
	if s.file != nil {
		snap.File = &FileInfo{
			Name:        s.file.Name,
			Size:        s.file.Size,
			DisplaySize: validate.FormatFileSize(s.file.Size),
			MIMEType:    s.file.MIMEType,
		}
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}

func (m *Manager) publish(eventType string, s *Session, payload map[string]any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventType, string(s.Kind), s.ID, payload)
	metrics.SSEEventsPublishedTotal.Inc()
}

func (m *Manager) expiryLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.expire()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) expire() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.lastUsed.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.mu.Lock()
		key := ""
		if s.file != nil {
			key = s.file.storeKey
		}
		s.submitID++
		s.file = nil
		s.mu.Unlock()
		if key != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.store.Delete(ctx, key); err != nil {
				m.log.Warn().Err(err).Str("key", key).Msg("failed to release expired upload")
			}
			cancel()
		}
	}

	if len(expired) > 0 {
		m.log.Debug().Int("expired", len(expired)).Msg("expired idle sessions")
	}
}

func newSessionID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
