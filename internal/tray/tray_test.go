package tray

import (
	"strings"
	"testing"
	"time"

	"github.com/petems/pacekeeper/internal/analysis"
	"github.com/petems/pacekeeper/internal/capture"
	"github.com/petems/pacekeeper/internal/catalog"
	"github.com/petems/pacekeeper/internal/storage"
)

func TestEmojiForState(t *testing.T) {
	tests := []struct {
		state capture.State
		want  string
	}{
		{capture.StateIdle, "🟢"},
		{capture.StateAwaitingStart, "🟡"},
		{capture.StateRecording, "🔴"},
		{capture.StateError, "⚪️"},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := emojiForState(tt.state); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTitleFor(t *testing.T) {
	live := analysis.Metrics{Recording: true, WordsPerMinute: 142.4}

	if got := titleFor(capture.Status{}, live); got != "🎤 🟢" {
		t.Errorf("idle title should ignore live metrics, got %q", got)
	}
	if got := titleFor(capture.Status{State: capture.StateRecording}, live); got != "🎤 🔴 142 wpm" {
		t.Errorf("unexpected recording title %q", got)
	}

	low := capture.Status{
		State:   capture.StateRecording,
		Storage: storage.Status{Level: storage.LevelWarning, RemainingSeconds: 600},
	}
	if got := titleFor(low, live); !strings.HasSuffix(got, "💾") {
		t.Errorf("expected storage marker, got %q", got)
	}
}

func TestLiveLine(t *testing.T) {
	tests := []struct {
		name string
		st   capture.Status
		m    analysis.Metrics
		want string
	}{
		{"idle", capture.Status{}, analysis.Metrics{}, "Idle"},
		{"awaiting", capture.Status{State: capture.StateAwaitingStart}, analysis.Metrics{}, "Starting…"},
		{"error", capture.Status{State: capture.StateError, Error: capture.NoMicrophone}, analysis.Metrics{},
			"Error: noMicrophone"},
		{"recording", capture.Status{State: capture.StateRecording}, analysis.Metrics{
			Elapsed: 90*time.Second + 300*time.Millisecond, WordsPerMinute: 130, PauseCount: 2, CrutchTotal: 5,
		}, "1m30s  130 wpm  2 pauses  5 fillers"},
		{"overloaded", capture.Status{State: capture.StateRecording}, analysis.Metrics{
			Elapsed: time.Second, LoadStatus: analysis.LoadHigh, LatencyStatus: analysis.LoadCritical,
		}, "1s  0 wpm  0 pauses  0 fillers  (load critical)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := liveLine(tt.st, tt.m); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRecentLine(t *testing.T) {
	e := catalog.Entry{
		CreatedAt:       time.Date(2024, 3, 9, 14, 5, 0, 0, time.Local),
		DurationSeconds: 125.4,
		WordsPerMinute:  151,
	}
	if got := recentLine(e); got != "Mar 9 14:05  2m5s  151 wpm" {
		t.Errorf("unexpected line %q", got)
	}

	e.Failure = string(capture.WriteFailed)
	if got := recentLine(e); !strings.HasSuffix(got, "⚠") {
		t.Errorf("expected failure marker, got %q", got)
	}
}
