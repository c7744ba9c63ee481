// Package capture drives the microphone lifecycle: precondition checks,
// backend start confirmation, segment rotation, storage monitoring and
// recovery from interruptions.
package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/pacekeeper/internal/analysis"
	"github.com/petems/pacekeeper/internal/audio"
	"github.com/petems/pacekeeper/internal/events"
	"github.com/petems/pacekeeper/internal/metrics"
	"github.com/petems/pacekeeper/internal/recording"
	"github.com/petems/pacekeeper/internal/storage"
)

// BackendFactory hands out a fresh backend per recording
type BackendFactory interface {
	Standard() (audio.Backend, error)
	Isolation() (audio.Backend, error)
}

// Analyzer consumes per-buffer statistics for the lifetime of a session
type Analyzer interface {
	Start(sessionID string, at time.Time) error
	ConsumeFrame(analysis.FrameStats)
	Finish(at time.Time) analysis.Summary
}

type Config struct {
	Backends        BackendFactory
	RecordingsDir   string
	PreferredDevice string
	VoiceIsolation  bool

	StartTimeout             time.Duration
	ValidationGrace          time.Duration
	ValidationLevelThreshold float64
	MaxSegmentDuration       time.Duration
	StoragePollInterval      time.Duration
	StorageWarningThreshold  time.Duration
	// Usage reports free bytes; defaults to storage.DiskFree
	Usage storage.UsageFunc

	Analyzer Analyzer // Optional
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Clock    func() time.Time
}

func (c *Config) setDefaults() {
	if c.StartTimeout <= 0 {
		c.StartTimeout = 5 * time.Second
	}
	if c.ValidationGrace <= 0 {
		c.ValidationGrace = 3 * time.Second
	}
	if c.StoragePollInterval <= 0 {
		c.StoragePollInterval = 10 * time.Second
	}
	if c.StorageWarningThreshold <= 0 {
		c.StorageWarningThreshold = 30 * time.Minute
	}
	if c.Usage == nil {
		c.Usage = storage.DiskFree
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Controller is the capture state machine. All methods are safe for
// concurrent use. Published state goes through Statuses().
type Controller struct {
	cfg    Config
	log    zerolog.Logger
	status *events.Broadcaster[Status]

	mu          sync.Mutex
	state       State
	errKind     ErrorKind
	gen         uint64
	selfTest    bool
	onCompleted func(CompletedSession)

	backend    audio.Backend
	session    *recording.Session
	writer     *recording.SegmentWriter
	format     audio.Format
	monitor    *storage.Monitor
	startTimer *time.Timer
	validTimer *time.Timer
	pollStop   chan struct{}

	analyzing  bool
	heardLevel bool
	malformed  bool
	levelDB    float64
	advisories Advisories
	storage    storage.Status
}

// ending carries the work left after the lock is released
type ending struct {
	backend   audio.Backend
	analyzer  Analyzer
	at        time.Time
	completed *CompletedSession
}

// finishAnalysis closes the session's analysis run and attaches its summary
func (e *ending) finishAnalysis() {
	if e.analyzer == nil {
		return
	}
	summary := e.analyzer.Finish(e.at)
	e.analyzer = nil
	if e.completed != nil {
		e.completed.Summary = summary
	}
}

func New(cfg Config) *Controller {
	cfg.setDefaults()
	c := &Controller{
		cfg:     cfg,
		log:     cfg.Logger,
		status:  events.NewBroadcaster[Status](),
		levelDB: audio.SilenceFloorDB,
	}
	c.status.Publish(c.snapshotLocked())
	return c
}

// Statuses returns the broadcaster of controller state
func (c *Controller) Statuses() *events.Broadcaster[Status] {
	return c.status
}

// Status returns the current state
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// OnSessionCompleted registers fn to receive each sealed session that kept audio
func (c *Controller) OnSessionCompleted(fn func(CompletedSession)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCompleted = fn
}

// SetPreferredDevice changes the input device used by the next Start
func (c *Controller) SetPreferredDevice(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.PreferredDevice = id
}

// SetVoiceIsolation chooses the backend used by the next Start
func (c *Controller) SetVoiceIsolation(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.VoiceIsolation = on
}

// BeginSelfTest blocks Start until EndSelfTest
func (c *Controller) BeginSelfTest() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Active() {
		return ErrAlreadyActive
	}
	c.selfTest = true
	return nil
}

func (c *Controller) EndSelfTest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selfTest = false
}

// Start validates pre, opens the first segment and starts the backend.
// Capture is confirmed asynchronously by the first buffer or ConfirmStart.
func (c *Controller) Start(pre Preconditions) error {
	c.mu.Lock()
	if c.selfTest {
		c.mu.Unlock()
		return ErrSelfTestInProgress
	}
	if c.state.Active() {
		c.mu.Unlock()
		return ErrAlreadyActive
	}

	if kind := pre.Check(); kind != "" {
		c.state = StateError
		c.errKind = kind
		c.publishLocked()
		c.mu.Unlock()
		c.cfg.Metrics.RecordCaptureFailure(string(kind))
		c.log.Warn().Str("kind", string(kind)).Msg("Recording preconditions not met")
		return &Error{Kind: kind}
	}

	b, gen, end, err := c.openLocked()
	if err != nil {
		c.mu.Unlock()
		c.complete(end)
		return err
	}
	c.mu.Unlock()

	if err := b.Start(); err != nil {
		c.mu.Lock()
		var end ending
		if gen == c.gen {
			end = c.failLocked(EngineStartFailed, err)
			end.backend = nil
		}
		c.mu.Unlock()
		c.complete(end)
		return &Error{Kind: EngineStartFailed, Err: err}
	}

	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		// Stopped while the engine was starting
		if err := b.Stop(); err != nil && !errors.Is(err, audio.ErrNotStarted) {
			c.log.Error().Err(err).Msg("Failed to stop backend")
		}
	}
	return nil
}

// openLocked prepares backend, session and first segment. On failure the
// controller is left in the error state and the returned ending must be completed.
func (c *Controller) openLocked() (audio.Backend, uint64, ending, error) {
	c.advisories = Advisories{}
	c.storage = storage.Status{}
	c.heardLevel = false
	c.malformed = false
	c.levelDB = audio.SilenceFloorDB

	b, err := c.chooseBackendLocked()
	if err != nil {
		return nil, 0, ending{}, c.refuseLocked(EngineStartFailed, err)
	}

	if err := b.SelectDevice(c.cfg.PreferredDevice); err != nil {
		if c.cfg.PreferredDevice == "" || !errors.Is(err, audio.ErrDeviceUnavailable) {
			return nil, 0, ending{}, c.refuseLocked(DeviceUnavailable, err)
		}
		c.log.Warn().Str("device", c.cfg.PreferredDevice).Msg("Preferred device unavailable, using system default")
		c.advisories.PreferredDeviceUnavailable = true
		if err := b.SelectDevice(""); err != nil {
			return nil, 0, ending{}, c.refuseLocked(DeviceUnavailable, err)
		}
	}

	format, err := b.InputFormat()
	if err != nil {
		return nil, 0, ending{}, c.refuseLocked(DeviceUnavailable, err)
	}

	now := c.cfg.Clock()
	session, err := recording.NewSession(c.cfg.RecordingsDir, now)
	if err != nil {
		return nil, 0, ending{}, c.refuseLocked(AudioFileCreationFailed, err)
	}
	writer, err := session.OpenSegment(format)
	if err != nil {
		return nil, 0, ending{}, c.refuseLocked(AudioFileCreationFailed, err)
	}
	c.cfg.Metrics.RecordSegmentOpened()

	c.gen++
	gen := c.gen
	c.backend = b
	c.session = session
	c.writer = writer
	c.format = format
	c.monitor = storage.NewMonitor(c.cfg.StorageWarningThreshold, c.cfg.Usage)
	c.monitor.SetFormatRate(writer.BytesPerSecond())

	if err := b.InstallTap(func(f audio.Frame) { c.onFrame(gen, f) }); err != nil {
		end := c.failLocked(EngineStartFailed, err)
		// never started
		end.backend = nil
		return nil, 0, end, &Error{Kind: EngineStartFailed, Err: err}
	}

	if c.cfg.Analyzer != nil {
		if err := c.cfg.Analyzer.Start(session.ID, now); err != nil {
			c.log.Error().Err(err).Msg("Failed to start analysis")
		} else {
			c.analyzing = true
		}
	}

	c.state = StateAwaitingStart
	c.errKind = ""
	c.startTimer = time.AfterFunc(c.cfg.StartTimeout, func() { c.onStartTimeout(gen) })
	c.publishLocked()

	c.log.Info().
		Str("session", session.ID).
		Str("backend", b.Name()).
		Str("format", format.String()).
		Msg("Starting capture")
	return b, gen, ending{}, nil
}

func (c *Controller) chooseBackendLocked() (audio.Backend, error) {
	if c.cfg.VoiceIsolation {
		b, err := c.cfg.Backends.Isolation()
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, audio.ErrIsolationUnavailable) {
			return nil, err
		}
		c.log.Warn().Err(err).Msg("Voice isolation unavailable, using standard capture")
		c.advisories.IsolationUnavailable = true
	}
	return c.cfg.Backends.Standard()
}

// refuseLocked records a failure that happened before any device I/O began
func (c *Controller) refuseLocked(kind ErrorKind, err error) error {
	c.state = StateError
	c.errKind = kind
	c.publishLocked()
	c.cfg.Metrics.RecordCaptureFailure(string(kind))
	c.log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to start capture")
	return &Error{Kind: kind, Err: err}
}

// ConfirmStart treats capture as running even if no buffer has arrived yet
func (c *Controller) ConfirmStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingStart {
		return
	}
	c.enterRecordingLocked()
	c.publishLocked()
}

// Stop ends the session. It is idempotent and clears an error state.
func (c *Controller) Stop() {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return
	case StateError:
		c.state = StateIdle
		c.errKind = ""
		c.publishLocked()
		c.mu.Unlock()
		return
	}

	c.log.Info().Msg("Stopping capture")
	end := c.finalizeLocked("")
	c.state = StateIdle
	c.publishLocked()
	c.mu.Unlock()

	c.complete(end)
}

// HandleInterruption reacts to a system or device event. Sleep stops the
// session; everything else is surfaced as an advisory.
func (c *Controller) HandleInterruption(kind Interruption) {
	c.mu.Lock()
	if !c.state.Active() {
		c.mu.Unlock()
		return
	}
	c.cfg.Metrics.RecordInterruption(kind.String())
	c.log.Info().Str("kind", kind.String()).Msg("Capture interruption")

	if kind == SystemSleep {
		c.mu.Unlock()
		c.Stop()
		return
	}

	switch kind {
	case AppInactive:
		c.advisories.AppInactive = true
	case RouteChanged:
		c.advisories.RouteChanged = true
	case DeviceConnected:
		c.advisories.DeviceConnected = true
	case DeviceDisconnected:
		c.advisories.DeviceDisconnected = true
	case ConfigurationChanged:
		c.advisories.ConfigurationChanged = true
	}
	c.publishLocked()
	c.mu.Unlock()
}

// onFrame runs on the driver's callback goroutine
func (c *Controller) onFrame(gen uint64, f audio.Frame) {
	began := time.Now()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if err := f.Validate(); err != nil {
		if !c.malformed {
			c.log.Warn().Err(err).Msg("Dropping malformed frame")
		}
		c.malformed = true
		c.mu.Unlock()
		return
	}
	if c.state == StateAwaitingStart {
		c.enterRecordingLocked()
	}
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}

	if c.cfg.MaxSegmentDuration > 0 {
		started := c.writer.StartedAt()
		if !started.IsZero() && f.Time.Sub(started) >= c.cfg.MaxSegmentDuration {
			if err := c.rotateLocked(); err != nil {
				end := c.failLocked(AudioFileCreationFailed, err)
				c.mu.Unlock()
				end.finishAnalysis()
				// Stop waits for this callback to return
				go c.complete(end)
				return
			}
		}
	}

	if f.Format.SampleRate != c.format.SampleRate || f.Format.Channels != c.format.Channels {
		if !c.advisories.FormatChanged {
			c.log.Warn().Str("format", f.Format.String()).Msg("Input format changed mid-segment")
		}
		c.advisories.FormatChanged = true
	}

	before := c.writer.DataBytes()
	if err := c.writer.Write(f); err != nil {
		end := c.failLocked(WriteFailed, err)
		c.mu.Unlock()
		end.finishAnalysis()
		go c.complete(end)
		return
	}
	written := int(c.writer.DataBytes() - before)

	rms := audio.RMS(f)
	if rms >= c.cfg.ValidationLevelThreshold {
		c.heardLevel = true
	}
	c.levelDB = audio.LevelDB(rms)
	c.publishLocked()
	c.mu.Unlock()

	processing := time.Since(began)
	c.cfg.Metrics.RecordFrame(written, processing.Seconds())
	if c.cfg.Analyzer != nil {
		c.cfg.Analyzer.ConsumeFrame(analysis.FrameStats{
			Time:       f.Time,
			Duration:   f.Duration(),
			RMS:        rms,
			Processing: processing,
		})
	}
}

func (c *Controller) enterRecordingLocked() {
	gen := c.gen
	if c.startTimer != nil {
		c.startTimer.Stop()
		c.startTimer = nil
	}
	c.state = StateRecording
	c.validTimer = time.AfterFunc(c.cfg.ValidationGrace, func() { c.onValidation(gen) })
	c.pollStop = make(chan struct{})
	go c.pollStorage(gen, c.pollStop)

	c.log.Info().Str("session", c.session.ID).Msg("Capture running")
}

func (c *Controller) rotateLocked() error {
	if err := c.writer.Close(); err != nil {
		c.log.Error().Err(err).Int("segment", c.writer.Index()).Msg("Failed to seal segment")
	}
	next, err := c.session.OpenSegment(c.format)
	if err != nil {
		return err
	}
	c.writer = next
	c.monitor.Reset()
	c.cfg.Metrics.RecordSegmentOpened()
	c.log.Info().Int("segment", next.Index()).Str("path", next.Path()).Msg("Rotated segment")
	return nil
}

func (c *Controller) onStartTimeout(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateAwaitingStart {
		c.mu.Unlock()
		return
	}
	end := c.failLocked(CaptureStartTimedOut, nil)
	c.mu.Unlock()
	c.complete(end)
}

func (c *Controller) onValidation(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	if c.heardLevel && c.writer.DataBytes() > 0 {
		c.mu.Unlock()
		return
	}
	end := c.failLocked(CaptureStartValidationFailed, nil)
	c.mu.Unlock()
	c.complete(end)
}

func (c *Controller) pollStorage(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.StoragePollInterval)
	defer ticker.Stop()

	c.checkStorage(gen)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.checkStorage(gen)
		}
	}
}

func (c *Controller) checkStorage(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	if size, err := c.writer.Size(); err == nil {
		c.monitor.Record(c.cfg.Clock(), size)
	}
	monitor, dir := c.monitor, c.session.Dir
	c.mu.Unlock()

	st, err := monitor.Check(dir)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to query free space")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	if st.Level == storage.LevelWarning && c.storage.Level != storage.LevelWarning {
		c.log.Warn().Float64("remaining_s", st.RemainingSeconds).Msg("Recording storage running low")
	}
	c.storage = st
	c.cfg.Metrics.SetStorageRemaining(st.RemainingSeconds)
	c.publishLocked()
}

// failLocked tears down the session and enters the error state
func (c *Controller) failLocked(kind ErrorKind, err error) ending {
	c.log.Error().Err(err).Str("kind", string(kind)).Msg("Capture failed")
	c.cfg.Metrics.RecordCaptureFailure(string(kind))
	end := c.finalizeLocked(kind)
	c.state = StateError
	c.errKind = kind
	c.publishLocked()
	return end
}

// finalizeLocked invalidates callbacks and timers, seals the session and
// removes empty segments. The backend is stopped and analysis finished
// later, outside the lock.
func (c *Controller) finalizeLocked(failure ErrorKind) ending {
	c.gen++
	if c.startTimer != nil {
		c.startTimer.Stop()
		c.startTimer = nil
	}
	if c.validTimer != nil {
		c.validTimer.Stop()
		c.validTimer = nil
	}
	if c.pollStop != nil {
		close(c.pollStop)
		c.pollStop = nil
	}

	var end ending
	if c.backend != nil {
		c.backend.RemoveTap()
		end.backend = c.backend
		c.backend = nil
	}

	if c.writer != nil {
		if err := c.writer.Discard(); err != nil {
			c.log.Error().Err(err).Msg("Failed to seal segment")
		}
		c.writer = nil
	}

	now := c.cfg.Clock()
	end.at = now
	if c.analyzing {
		end.analyzer = c.cfg.Analyzer
		c.analyzing = false
	}

	if c.session != nil {
		paths := c.session.RemoveEmpty()
		if len(paths) > 0 {
			end.completed = &CompletedSession{
				SessionID:    c.session.ID,
				SegmentPaths: paths,
				CreatedAt:    c.session.CreatedAt,
				EndedAt:      now,
				Failure:      failure,
			}
		}
		c.session = nil
	}
	c.monitor = nil
	c.levelDB = audio.SilenceFloorDB
	return end
}

// complete stops the backend, finishes analysis and notifies observers.
// Never called with the lock held.
func (c *Controller) complete(end ending) {
	if end.backend != nil {
		if err := end.backend.Stop(); err != nil && !errors.Is(err, audio.ErrNotStarted) {
			c.log.Error().Err(err).Msg("Failed to stop backend")
		}
	}
	end.finishAnalysis()
	if end.completed == nil {
		return
	}

	c.mu.Lock()
	fn := c.onCompleted
	c.mu.Unlock()

	c.log.Info().
		Str("session", end.completed.SessionID).
		Int("segments", len(end.completed.SegmentPaths)).
		Msg("Session completed")
	if fn != nil {
		fn(*end.completed)
	}
}

func (c *Controller) publishLocked() {
	c.status.Publish(c.snapshotLocked())
}

func (c *Controller) snapshotLocked() Status {
	st := Status{
		State:      c.state,
		Error:      c.errKind,
		Advisories: c.advisories,
		Storage:    c.storage,
		LevelDB:    c.levelDB,
	}
	if c.session != nil {
		st.SessionID = c.session.ID
	}
	if c.writer != nil {
		st.SegmentIndex = c.writer.Index()
	}
	if c.backend != nil {
		st.Backend = c.backend.Name()
	}
	return st
}
