package analysis

import "time"

// SummaryVersion is bumped whenever the sidecar layout changes
const SummaryVersion = 1

// Summary is an immutable snapshot of a session's metrics
type Summary struct {
	Version     int             `json:"version"`
	SessionID   string          `json:"session_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Duration    float64         `json:"duration_seconds"`
	Final       bool            `json:"final"`
	Pace        PaceStats       `json:"pace"`
	Pauses      PauseStats      `json:"pauses"`
	Speaking    SpeakingStats   `json:"speaking"`
	CrutchWords CrutchStats     `json:"crutch_words"`
	Processing  ProcessingStats `json:"processing"`
}

type PaceStats struct {
	WordCount      int     `json:"word_count"`
	WordsPerMinute float64 `json:"words_per_minute"`
}

type PauseStats struct {
	Count          int     `json:"count"`
	TotalSeconds   float64 `json:"total_seconds"`
	AverageSeconds float64 `json:"average_seconds"`
}

type SpeakingStats struct {
	SpeakingSeconds float64 `json:"speaking_seconds"`
	Ratio           float64 `json:"ratio"`
	Turns           int     `json:"turns"`
}

type CrutchStats struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

type ProcessingStats struct {
	MeanLatencyMs     float64 `json:"mean_latency_ms"`
	PeakLatencyMs     float64 `json:"peak_latency_ms"`
	LatencyStatus     string  `json:"latency_status"`
	MeanUtilization   float64 `json:"mean_utilization"`
	PeakUtilization   float64 `json:"peak_utilization"`
	UtilizationStatus string  `json:"utilization_status"`
	DroppedFrames     uint64  `json:"dropped_frames"`
}

// Metrics is the live view published while recording
type Metrics struct {
	Recording      bool
	SessionID      string
	Elapsed        time.Duration
	LevelDB        float64
	Speaking       bool
	InPause        bool
	PauseCount     int
	WordsPerMinute float64
	SpeakingRatio  float64
	CrutchTotal    int
	LatencyStatus  LoadStatus
	LoadStatus     LoadStatus
}
