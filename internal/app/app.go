package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/pacekeeper/internal/analysis"
	"github.com/petems/pacekeeper/internal/audio"
	"github.com/petems/pacekeeper/internal/capture"
	"github.com/petems/pacekeeper/internal/catalog"
	"github.com/petems/pacekeeper/internal/config"
	"github.com/petems/pacekeeper/internal/events"
	"github.com/petems/pacekeeper/internal/permissions"
	"github.com/petems/pacekeeper/internal/persist"
	"github.com/petems/pacekeeper/internal/recording"
	"github.com/petems/pacekeeper/internal/transcript"
)

// Recorder is the capture surface the app drives (satisfied by *capture.Controller)
type Recorder interface {
	Start(capture.Preconditions) error
	Stop()
	Status() capture.Status
	Statuses() *events.Broadcaster[capture.Status]
	OnSessionCompleted(func(capture.CompletedSession))
	SetPreferredDevice(id string)
	SetVoiceIsolation(on bool)
	BeginSelfTest() error
	EndSelfTest()
	HandleInterruption(capture.Interruption)
}

// TranscriptSink receives recognizer output (satisfied by *analysis.Orchestrator)
type TranscriptSink interface {
	ConsumeTranscript(transcript.Update)
}

// Catalog indexes completed sessions (satisfied by *catalog.Catalog)
type Catalog interface {
	RecordSession(ctx context.Context, e catalog.Entry) error
	Recent(ctx context.Context, limit int) ([]catalog.Entry, error)
}

type Config struct {
	Recorder    Recorder
	Analyzer    TranscriptSink
	Transcripts transcript.Source // Optional
	Devices     audio.DeviceLister
	Backends    capture.BackendFactory // Optional, enables TestMicrophone
	Permissions permissions.Provider
	Store       *persist.Store
	Catalog     Catalog // Optional
	Config      *config.Config
	Logger      zerolog.Logger
	// PostProcessTimeout bounds validation and cataloguing of one session
	PostProcessTimeout time.Duration
}

type App struct {
	rec         Recorder
	analyzer    TranscriptSink
	transcripts transcript.Source
	devices     audio.DeviceLister
	backends    capture.BackendFactory
	perms       permissions.Provider
	store       *persist.Store
	catalog     Catalog
	cfg         *config.Config
	log         zerolog.Logger
	timeout     time.Duration

	mu   sync.Mutex
	last *capture.CompletedSession
}

var (
	ErrRecordingActive = errors.New("cannot change while recording")
	ErrNoSummary       = errors.New("no completed session yet")
)

func New(cfg Config) *App {
	if cfg.PostProcessTimeout <= 0 {
		cfg.PostProcessTimeout = 30 * time.Second
	}
	if cfg.Store == nil {
		cfg.Store = persist.NewStore(cfg.Logger)
	}
	a := &App{
		rec:         cfg.Recorder,
		analyzer:    cfg.Analyzer,
		transcripts: cfg.Transcripts,
		devices:     cfg.Devices,
		backends:    cfg.Backends,
		perms:       cfg.Permissions,
		store:       cfg.Store,
		catalog:     cfg.Catalog,
		cfg:         cfg.Config,
		log:         cfg.Logger,
		timeout:     cfg.PostProcessTimeout,
	}
	a.rec.OnSessionCompleted(a.onCompleted)
	return a
}

// CheckpointSink adapts the persistence store to interim analysis
// checkpoints, keyed by the session's first segment.
func CheckpointSink(dir string, store *persist.Store) analysis.CheckpointSink {
	return checkpointSink{dir: dir, store: store}
}

type checkpointSink struct {
	dir   string
	store *persist.Store
}

func (s checkpointSink) WriteCheckpoint(sessionID string, sum analysis.Summary) error {
	path := recording.SegmentPath(s.dir, sessionID, 0)
	if !recording.HasAudio(path) {
		// nothing captured yet, or the segment was discarded
		return nil
	}
	return s.store.WriteSummary(path, sum)
}

// Run forwards transcript updates to the analyzer until ctx is done or the source closes
func (a *App) Run(ctx context.Context) error {
	if a.transcripts == nil || a.analyzer == nil {
		<-ctx.Done()
		return nil
	}

	updates := a.transcripts.Updates()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				a.log.Info().Msg("Transcript source closed")
				return nil
			}
			a.analyzer.ConsumeTranscript(u)
		}
	}
}

// StartRecording resolves permissions and asks the recorder to start
func (a *App) StartRecording(ctx context.Context) error {
	perm := a.permission(ctx)
	pre := a.preconditions(perm)
	if err := a.rec.Start(pre); err != nil {
		a.log.Error().Err(err).Msg("Failed to start recording")
		return err
	}
	a.log.Info().Msg("Recording requested")
	return nil
}

// StopRecording ends the current session, if any
func (a *App) StopRecording() {
	a.rec.Stop()
}

// ToggleRecording starts when idle and stops otherwise
func (a *App) ToggleRecording(ctx context.Context) error {
	if a.IsRecording() {
		a.StopRecording()
		return nil
	}
	if a.rec.Status().State == capture.StateError {
		// clear the previous failure before retrying
		a.rec.Stop()
	}
	return a.StartRecording(ctx)
}

func (a *App) IsRecording() bool {
	return a.rec.Status().State.Active()
}

func (a *App) permission(ctx context.Context) permissions.Status {
	if a.perms == nil {
		return permissions.Authorized
	}
	perm := a.perms.Status()
	if perm != permissions.NotDetermined {
		return perm
	}
	perm, err := a.perms.Request(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("Microphone permission request did not complete")
		return permissions.NotDetermined
	}
	a.log.Info().Str("status", perm.String()).Msg("Microphone permission decided")
	return perm
}

func (a *App) preconditions(perm permissions.Status) capture.Preconditions {
	return capture.Preconditions{
		PrivacyConsent:        a.cfg.PrivacyConsent,
		Permission:            perm,
		MicrophoneAvailable:   a.microphoneAvailable(),
		IsolationAckRequired:  a.cfg.Audio.VoiceIsolation && a.cfg.Audio.RequireIsolationAck,
		IsolationAcknowledged: a.cfg.Audio.IsolationAcknowledged,
		CaptureAllowed:        a.cfg.CaptureAllowed,
	}
}

func (a *App) microphoneAvailable() bool {
	if a.devices == nil {
		return true
	}
	devices, err := a.devices.ListDevices()
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to list audio devices")
		return false
	}
	return len(devices) > 0
}

func (a *App) onCompleted(cs capture.CompletedSession) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	first := cs.SegmentPaths[0]
	log := a.log.With().Str("session", cs.SessionID).Logger()

	summary := cs.Summary
	if summary.SessionID != "" {
		if err := a.store.WriteSummary(first, summary); err != nil {
			log.Error().Err(err).Msg("Failed to write summary")
		}
	}

	report, err := a.store.Validate(ctx, cs)
	if err != nil {
		log.Error().Err(err).Msg("Integrity check failed")
	} else {
		if err := a.store.WriteIntegrityReport(first, report); err != nil {
			log.Error().Err(err).Msg("Failed to write integrity report")
		}
		if !report.OK() {
			log.Warn().Int("issues", len(report.Issues)).Msg("Session has integrity issues")
		}
	}

	if a.catalog != nil {
		entry := catalog.Entry{
			SessionID:       cs.SessionID,
			CreatedAt:       cs.CreatedAt,
			EndedAt:         cs.EndedAt,
			FirstSegment:    first,
			SegmentCount:    len(cs.SegmentPaths),
			DurationSeconds: summary.Duration,
			WordsPerMinute:  summary.Pace.WordsPerMinute,
			PauseCount:      summary.Pauses.Count,
			CrutchTotal:     summary.CrutchWords.Total,
			Failure:         string(cs.Failure),
			IntegrityOK:     err == nil && report.OK(),
		}
		if err := a.catalog.RecordSession(ctx, entry); err != nil {
			log.Error().Err(err).Msg("Failed to catalog session")
		}
	}

	a.mu.Lock()
	a.last = &cs
	a.mu.Unlock()
	log.Info().Float64("wpm", summary.Pace.WordsPerMinute).Msg("Session processed")
}

// LastSession returns the most recently completed session
func (a *App) LastSession() (capture.CompletedSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return capture.CompletedSession{}, false
	}
	return *a.last, true
}

// SummaryText renders the last session for the clipboard
func (a *App) SummaryText() (string, error) {
	cs, ok := a.LastSession()
	if !ok {
		return "", ErrNoSummary
	}
	return FormatSummary(cs.Summary), nil
}

// FormatSummary renders a human-readable report
func FormatSummary(s analysis.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s (%s)\n", s.SessionID, s.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", time.Duration(s.Duration*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(&b, "Pace: %.0f wpm (%d words)\n", s.Pace.WordsPerMinute, s.Pace.WordCount)
	fmt.Fprintf(&b, "Pauses: %d (avg %.1fs)\n", s.Pauses.Count, s.Pauses.AverageSeconds)
	fmt.Fprintf(&b, "Speaking: %.0f%% over %d turns\n", s.Speaking.Ratio*100, s.Speaking.Turns)
	fmt.Fprintf(&b, "Crutch words: %d", s.CrutchWords.Total)
	if s.CrutchWords.Total > 0 {
		parts := make([]string, 0, len(s.CrutchWords.Counts))
		for w, n := range s.CrutchWords.Counts {
			if n > 0 {
				parts = append(parts, fmt.Sprintf("%s=%d", w, n))
			}
		}
		sort.Strings(parts)
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
	return b.String()
}

// Recent lists catalogued sessions, newest first
func (a *App) Recent(ctx context.Context, limit int) ([]catalog.Entry, error) {
	if a.catalog == nil {
		return nil, nil
	}
	return a.catalog.Recent(ctx, limit)
}

// TestMicrophone listens on the configured device for d and returns the peak level in dBFS.
// Recording is blocked while the test runs.
func (a *App) TestMicrophone(ctx context.Context, d time.Duration) (float64, error) {
	if a.backends == nil {
		return audio.SilenceFloorDB, fmt.Errorf("microphone test unavailable")
	}
	if err := a.rec.BeginSelfTest(); err != nil {
		return audio.SilenceFloorDB, err
	}
	defer a.rec.EndSelfTest()

	b, err := a.backends.Standard()
	if err != nil {
		return audio.SilenceFloorDB, err
	}
	if err := b.SelectDevice(a.cfg.Audio.DeviceID); err != nil {
		return audio.SilenceFloorDB, fmt.Errorf("select device: %w", err)
	}

	var (
		mu   sync.Mutex
		peak = audio.SilenceFloorDB
	)
	if err := b.InstallTap(func(f audio.Frame) {
		db := audio.LevelDB(audio.RMS(f))
		mu.Lock()
		if db > peak {
			peak = db
		}
		mu.Unlock()
	}); err != nil {
		return audio.SilenceFloorDB, err
	}
	defer b.RemoveTap()

	if err := b.Start(); err != nil {
		return audio.SilenceFloorDB, err
	}

	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
	if err := b.Stop(); err != nil && !errors.Is(err, audio.ErrNotStarted) {
		a.log.Error().Err(err).Msg("Failed to stop test backend")
	}

	mu.Lock()
	defer mu.Unlock()
	a.log.Info().Float64("peak_db", peak).Msg("Microphone test finished")
	return peak, ctx.Err()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.rec.Stop()
	return nil
}

// Tray actions

func (a *App) SetDevice(id string) error {
	if a.IsRecording() {
		return ErrRecordingActive
	}
	a.cfg.Audio.DeviceID = id
	a.rec.SetPreferredDevice(id)
	return a.cfg.Save()
}

func (a *App) SetVoiceIsolation(on bool) error {
	if a.IsRecording() {
		return ErrRecordingActive
	}
	a.cfg.Audio.VoiceIsolation = on
	a.rec.SetVoiceIsolation(on)
	return a.cfg.Save()
}

// AcknowledgeIsolation records that the user accepted voice isolation's processing
func (a *App) AcknowledgeIsolation() error {
	a.cfg.Audio.IsolationAcknowledged = true
	return a.cfg.Save()
}

func (a *App) SetPrivacyConsent(granted bool) error {
	a.cfg.PrivacyConsent = granted
	return a.cfg.Save()
}

func (a *App) ListDevices() ([]audio.Device, error) {
	if a.devices == nil {
		return nil, nil
	}
	return a.devices.ListDevices()
}

// Statuses exposes the recorder's published state
func (a *App) Statuses() *events.Broadcaster[capture.Status] {
	return a.rec.Statuses()
}

// LogFile is the configured log path, empty when logging to the console only
func (a *App) LogFile() string {
	return a.cfg.LogFile
}
