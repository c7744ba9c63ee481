package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus collectors for the recorder. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Capture metrics
	FramesCaptured  prometheus.Counter
	BytesWritten    prometheus.Counter
	SegmentsOpened  prometheus.Counter
	CaptureFailures *prometheus.CounterVec
	Interruptions   *prometheus.CounterVec
	StorageRemain   prometheus.Gauge

	// Analysis metrics
	HandoffDrops      prometheus.Counter
	PausesDetected    prometheus.Counter
	InputLevel        prometheus.Gauge
	SpeakingRatio     prometheus.Gauge
	WordsPerMinute    prometheus.Gauge
	ProcessingLatency prometheus.Histogram

	// Persistence metrics
	CheckpointsWritten prometheus.Counter
	CheckpointFailures prometheus.Counter
}

// New creates and registers all collectors on reg. Pass prometheus.NewRegistry()
// in tests to keep registrations isolated.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "pacekeeper_frames_captured_total",
			Help: "Total number of audio buffers delivered by the capture backend",
		}),
		BytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "pacekeeper_audio_bytes_written_total",
			Help: "Total PCM bytes written to segment files",
		}),
		SegmentsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "pacekeeper_segments_opened_total",
			Help: "Total number of segment files opened",
		}),
		CaptureFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pacekeeper_capture_failures_total",
			Help: "Recording attempts ended by an error, by kind",
		}, []string{"kind"}),
		Interruptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pacekeeper_interruptions_total",
			Help: "System and device interruptions observed while recording, by kind",
		}, []string{"kind"}),
		StorageRemain: f.NewGauge(prometheus.GaugeOpts{
			Name: "pacekeeper_storage_remaining_seconds",
			Help: "Estimated recording time left on the recordings volume",
		}),

		HandoffDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "pacekeeper_analysis_handoff_drops_total",
			Help: "Frame statistics dropped because the analysis queue was full",
		}),
		PausesDetected: f.NewCounter(prometheus.CounterOpts{
			Name: "pacekeeper_pauses_detected_total",
			Help: "Total number of pauses detected",
		}),
		InputLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "pacekeeper_input_level_dbfs",
			Help: "Input level of the most recent buffer",
		}),
		SpeakingRatio: f.NewGauge(prometheus.GaugeOpts{
			Name: "pacekeeper_speaking_ratio",
			Help: "Share of recorded time spent speaking",
		}),
		WordsPerMinute: f.NewGauge(prometheus.GaugeOpts{
			Name: "pacekeeper_words_per_minute",
			Help: "Current speaking pace",
		}),
		ProcessingLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pacekeeper_buffer_processing_seconds",
			Help:    "Time spent handling one capture buffer",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
		}),

		CheckpointsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "pacekeeper_checkpoints_written_total",
			Help: "Analysis summaries written to disk",
		}),
		CheckpointFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "pacekeeper_checkpoint_failures_total",
			Help: "Analysis summaries that failed to write",
		}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordFrame records one captured buffer
func (m *Metrics) RecordFrame(bytes int, processingSeconds float64) {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
	m.BytesWritten.Add(float64(bytes))
	m.ProcessingLatency.Observe(processingSeconds)
}

// RecordSegmentOpened increments the segments counter
func (m *Metrics) RecordSegmentOpened() {
	if m == nil {
		return
	}
	m.SegmentsOpened.Inc()
}

// RecordCaptureFailure counts a terminal capture error
func (m *Metrics) RecordCaptureFailure(kind string) {
	if m == nil {
		return
	}
	m.CaptureFailures.WithLabelValues(kind).Inc()
}

// RecordInterruption counts an interruption event
func (m *Metrics) RecordInterruption(kind string) {
	if m == nil {
		return
	}
	m.Interruptions.WithLabelValues(kind).Inc()
}

// SetStorageRemaining sets the remaining recording time estimate
func (m *Metrics) SetStorageRemaining(seconds float64) {
	if m == nil {
		return
	}
	m.StorageRemain.Set(seconds)
}

// RecordHandoffDrop counts a dropped analysis handoff
func (m *Metrics) RecordHandoffDrop() {
	if m == nil {
		return
	}
	m.HandoffDrops.Inc()
}

// RecordPause counts a detected pause
func (m *Metrics) RecordPause() {
	if m == nil {
		return
	}
	m.PausesDetected.Inc()
}

// SetLive updates the live analysis gauges
func (m *Metrics) SetLive(levelDB, speakingRatio, wpm float64) {
	if m == nil {
		return
	}
	m.InputLevel.Set(levelDB)
	m.SpeakingRatio.Set(speakingRatio)
	m.WordsPerMinute.Set(wpm)
}

// RecordCheckpoint counts a summary write
func (m *Metrics) RecordCheckpoint(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CheckpointFailures.Inc()
		return
	}
	m.CheckpointsWritten.Inc()
}
