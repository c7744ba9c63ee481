package analysis

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/pacekeeper/internal/audio"
	"github.com/petems/pacekeeper/internal/events"
	"github.com/petems/pacekeeper/internal/metrics"
	"github.com/petems/pacekeeper/internal/transcript"
)

// ErrAlreadyRunning is returned by Start while a session is being analyzed
var ErrAlreadyRunning = errors.New("analysis already running")

// FrameStats is the per-buffer handoff from the capture callback
type FrameStats struct {
	Time       time.Time
	Duration   time.Duration
	RMS        float64
	Processing time.Duration
}

// CheckpointSink persists interim summaries while a session runs. The final
// summary is returned by Finish and persisted by the caller.
type CheckpointSink interface {
	WriteCheckpoint(sessionID string, s Summary) error
}

// Config holds orchestrator settings
type Config struct {
	SpeechThreshold float64
	PauseThreshold  time.Duration

	LatencyWindow   int
	LatencyHigh     time.Duration
	LatencyCritical time.Duration

	UtilizationWindow   int
	UtilizationHigh     float64
	UtilizationCritical float64

	CheckpointInterval time.Duration
	CrutchWords        []string
	QueueSize          int

	Sink    CheckpointSink
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	Clock   func() time.Time
}

func (c *Config) setDefaults() {
	if c.PauseThreshold <= 0 {
		c.PauseThreshold = 1500 * time.Millisecond
	}
	if c.LatencyWindow <= 0 {
		c.LatencyWindow = 50
	}
	if c.UtilizationWindow <= 0 {
		c.UtilizationWindow = 50
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Orchestrator feeds frames and transcripts into the trackers. All tracker
// state lives on one goroutine per session; callers only hand values over.
type Orchestrator struct {
	cfg     Config
	log     zerolog.Logger
	live    *events.Broadcaster[Metrics]
	current atomic.Pointer[run]

	mu   sync.Mutex
	last Summary
}

type run struct {
	frames   chan FrameStats
	texts    chan transcript.Update
	requests chan chan Summary
	stop     chan struct{}
	done     chan struct{}
	dropped  atomic.Uint64

	finishAt time.Time
	final    Summary
}

// NewOrchestrator creates an idle orchestrator
func NewOrchestrator(cfg Config) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		cfg:  cfg,
		log:  cfg.Logger,
		live: events.NewBroadcaster[Metrics](),
	}
}

// Live returns the broadcaster carrying live metrics snapshots
func (o *Orchestrator) Live() *events.Broadcaster[Metrics] {
	return o.live
}

// Start resets all trackers and begins analyzing a session
func (o *Orchestrator) Start(sessionID string, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current.Load() != nil {
		return ErrAlreadyRunning
	}
	r := &run{
		frames:   make(chan FrameStats, o.cfg.QueueSize),
		texts:    make(chan transcript.Update, 64),
		requests: make(chan chan Summary),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	st := newSessionState(o.cfg, sessionID, at)
	o.current.Store(r)
	go o.loop(r, st)

	o.log.Info().Str("session", sessionID).Msg("Analysis started")
	return nil
}

// ConsumeFrame hands one buffer's statistics to the analysis goroutine.
// It never blocks; when the queue is full the frame is dropped and counted.
func (o *Orchestrator) ConsumeFrame(fs FrameStats) {
	r := o.current.Load()
	if r == nil {
		return
	}
	select {
	case r.frames <- fs:
	default:
		r.dropped.Add(1)
		o.cfg.Metrics.RecordHandoffDrop()
	}
}

// ConsumeTranscript forwards a cumulative transcript update. Updates are
// never dropped; the call waits for queue space while a session runs.
func (o *Orchestrator) ConsumeTranscript(u transcript.Update) {
	r := o.current.Load()
	if r == nil {
		return
	}
	if u.At.IsZero() {
		u.At = o.cfg.Clock()
	}
	select {
	case r.texts <- u:
	case <-r.stop:
	}
}

// Snapshot returns a non-final summary of the running session, or the last
// final summary when idle.
func (o *Orchestrator) Snapshot() Summary {
	r := o.current.Load()
	if r == nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.last
	}
	reply := make(chan Summary, 1)
	select {
	case r.requests <- reply:
	case <-r.done:
		return r.final
	}
	select {
	case s := <-reply:
		return s
	case <-r.done:
		return r.final
	}
}

// Dropped reports handoffs dropped in the running session
func (o *Orchestrator) Dropped() uint64 {
	if r := o.current.Load(); r != nil {
		return r.dropped.Load()
	}
	return 0
}

// Finish drains pending handoffs, stops the loop and returns the final summary.
// It is a no-op returning the last summary when nothing is running.
func (o *Orchestrator) Finish(at time.Time) Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.current.Swap(nil)
	if r == nil {
		return o.last
	}
	r.finishAt = at
	close(r.stop)
	<-r.done

	o.last = r.final
	return r.final
}

func (o *Orchestrator) loop(r *run, st *sessionState) {
	defer close(r.done)

	var tick <-chan time.Time
	if o.cfg.CheckpointInterval > 0 {
		ticker := time.NewTicker(o.cfg.CheckpointInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case fs := <-r.frames:
			st.observeFrame(fs)
			o.publish(st, true)
		case u := <-r.texts:
			st.observeTranscript(u)
			o.publish(st, true)
		case reply := <-r.requests:
			reply <- st.summary(o.cfg.Clock(), false, r.dropped.Load())
		case <-tick:
			o.checkpoint(st.summary(o.cfg.Clock(), false, r.dropped.Load()))
		case <-r.stop:
			o.drain(r, st)
			r.final = st.summary(r.finishAt, true, r.dropped.Load())
			o.publish(st, false)
			o.log.Info().
				Str("session", st.sessionID).
				Float64("duration_s", r.final.Duration).
				Int("pauses", r.final.Pauses.Count).
				Uint64("dropped", r.final.Processing.DroppedFrames).
				Msg("Analysis finished")
			return
		}
	}
}

func (o *Orchestrator) drain(r *run, st *sessionState) {
	for {
		select {
		case fs := <-r.frames:
			st.observeFrame(fs)
		case u := <-r.texts:
			st.observeTranscript(u)
		default:
			return
		}
	}
}

func (o *Orchestrator) checkpoint(s Summary) {
	if o.cfg.Sink == nil {
		return
	}
	err := o.cfg.Sink.WriteCheckpoint(s.SessionID, s)
	o.cfg.Metrics.RecordCheckpoint(err)
	if err != nil {
		o.log.Error().Err(err).Str("session", s.SessionID).Bool("final", s.Final).Msg("Failed to write analysis summary")
	}
}

func (o *Orchestrator) publish(st *sessionState, recording bool) {
	m := st.live(recording)
	o.cfg.Metrics.SetLive(m.LevelDB, m.SpeakingRatio, m.WordsPerMinute)
	o.live.Publish(m)
}

// sessionState is owned by the loop goroutine
type sessionState struct {
	sessionID string
	startedAt time.Time
	lastAt    time.Time

	speechThreshold float64
	recorder        *metrics.Metrics

	pauses      *PauseDetector
	activity    *SpeakingActivityTracker
	latency     *SlidingWindow
	utilization *SlidingWindow
	crutch      *CrutchTally
	pace        *PaceAnalyzer

	utterances  Utterances
	bankedWords int
	openWords   int
	levelDB     float64
	speaking    bool
}

func newSessionState(cfg Config, sessionID string, at time.Time) *sessionState {
	pace := NewPaceAnalyzer()
	pace.Start(at)
	return &sessionState{
		sessionID:       sessionID,
		startedAt:       at,
		lastAt:          at,
		speechThreshold: cfg.SpeechThreshold,
		recorder:        cfg.Metrics,
		pauses:          NewPauseDetector(cfg.SpeechThreshold, cfg.PauseThreshold),
		activity:        NewSpeakingActivityTracker(cfg.PauseThreshold),
		latency:         NewSlidingWindow(cfg.LatencyWindow, cfg.LatencyHigh.Seconds(), cfg.LatencyCritical.Seconds()),
		utilization:     NewSlidingWindow(cfg.UtilizationWindow, cfg.UtilizationHigh, cfg.UtilizationCritical),
		crutch:          NewCrutchTally(NewCrutchWordDetector(cfg.CrutchWords)),
		pace:            pace,
		levelDB:         audio.SilenceFloorDB,
	}
}

func (s *sessionState) observeFrame(fs FrameStats) {
	speech := fs.RMS >= s.speechThreshold
	if s.pauses.DetectLevel(fs.RMS, fs.Time) {
		s.recorder.RecordPause()
	}
	s.activity.Observe(speech, fs.Duration)
	s.latency.Add(fs.Processing.Seconds())
	if fs.Duration > 0 {
		s.utilization.Add(float64(fs.Processing) / float64(fs.Duration))
	}
	s.levelDB = audio.LevelDB(fs.RMS)
	s.speaking = speech
	if fs.Time.After(s.lastAt) {
		s.lastAt = fs.Time
	}
}

func (s *sessionState) observeTranscript(u transcript.Update) {
	s.crutch.Update(u.Text, u.Final)
	if s.utterances.Advance(Tokenize(u.Text), u.Final) {
		s.bankedWords += s.openWords
	}
	s.openWords = transcript.WordCount(u.Text)
	s.pace.UpdateWordCount(s.bankedWords+s.openWords, u.At)
	if u.At.After(s.lastAt) {
		s.lastAt = u.At
	}
}

func (s *sessionState) live(recording bool) Metrics {
	return Metrics{
		Recording:      recording,
		SessionID:      s.sessionID,
		Elapsed:        s.lastAt.Sub(s.startedAt),
		LevelDB:        s.levelDB,
		Speaking:       s.speaking,
		InPause:        s.pauses.InPause(),
		PauseCount:     s.pauses.PauseCount(),
		WordsPerMinute: s.pace.WordsPerMinute(s.lastAt),
		SpeakingRatio:  s.activity.Ratio(),
		CrutchTotal:    s.crutch.Total(),
		LatencyStatus:  s.latency.Status(),
		LoadStatus:     s.utilization.Status(),
	}
}

func (s *sessionState) summary(at time.Time, final bool, dropped uint64) Summary {
	if at.Before(s.startedAt) {
		at = s.startedAt
	}
	return Summary{
		Version:   SummaryVersion,
		SessionID: s.sessionID,
		CreatedAt: at,
		Duration:  at.Sub(s.startedAt).Seconds(),
		Final:     final,
		Pace: PaceStats{
			WordCount:      s.pace.WordCount(),
			WordsPerMinute: s.pace.WordsPerMinute(at),
		},
		Pauses: PauseStats{
			Count:          s.pauses.PauseCount(),
			TotalSeconds:   s.pauses.TotalPauseDuration(at).Seconds(),
			AverageSeconds: s.pauses.AveragePauseDuration(at).Seconds(),
		},
		Speaking: SpeakingStats{
			SpeakingSeconds: s.activity.SpeakingTime().Seconds(),
			Ratio:           s.activity.Ratio(),
			Turns:           s.activity.Turns(),
		},
		CrutchWords: CrutchStats{
			Counts: s.crutch.Counts(),
			Total:  s.crutch.Total(),
		},
		Processing: ProcessingStats{
			MeanLatencyMs:     s.latency.Mean() * 1000,
			PeakLatencyMs:     s.latency.Peak() * 1000,
			LatencyStatus:     s.latency.Status().String(),
			MeanUtilization:   s.utilization.Mean(),
			PeakUtilization:   s.utilization.Peak(),
			UtilizationStatus: s.utilization.Status().String(),
			DroppedFrames:     dropped,
		},
	}
}
