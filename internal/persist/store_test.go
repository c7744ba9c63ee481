package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/pacekeeper/internal/analysis"
	"github.com/petems/pacekeeper/internal/audio"
	"github.com/petems/pacekeeper/internal/capture"
	"github.com/petems/pacekeeper/internal/recording"
)

func recordSegments(t *testing.T, dir string, n int) (*recording.Session, []string) {
	t.Helper()
	s, err := recording.NewSession(dir, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	format := audio.Format{SampleRate: 16000, Channels: 1, Kind: audio.Float32}
	var paths []string
	for i := 0; i < n; i++ {
		w, err := s.OpenSegment(format)
		if err != nil {
			t.Fatal(err)
		}
		samples := make([]float32, 1600)
		for j := range samples {
			samples[j] = 0.1
		}
		if err := w.Write(audio.Frame{Format: format, Frames: len(samples), F32: samples, Time: time.Now()}); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, w.Path())
	}
	return s, paths
}

func TestWriteSummaryRoundTrip(t *testing.T) {
	st := NewStore(zerolog.Nop())
	segment := filepath.Join(t.TempDir(), "abc_part000.wav")

	sum := analysis.Summary{
		Version:   analysis.SummaryVersion,
		SessionID: "abc",
		Final:     true,
		Pace:      analysis.PaceStats{WordCount: 300, WordsPerMinute: 150},
	}
	if err := st.WriteSummary(segment, sum); err != nil {
		t.Fatalf("WriteSummary failed: %v", err)
	}

	got, err := st.ReadSummary(segment)
	if err != nil {
		t.Fatalf("ReadSummary failed: %v", err)
	}
	if got.SessionID != "abc" || got.Pace.WordsPerMinute != 150 || !got.Final {
		t.Errorf("unexpected summary %+v", got)
	}

	// Replacing leaves no temp files behind
	sum.Final = false
	if err := st.WriteSummary(segment, sum); err != nil {
		t.Fatalf("second WriteSummary failed: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(segment))
	if len(entries) != 1 || entries[0].Name() != "abc_part000.wav.summary.json" {
		names := []string{}
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the summary sidecar, got %v", names)
	}
}

func TestValidateCleanSession(t *testing.T) {
	st := NewStore(zerolog.Nop())
	s, paths := recordSegments(t, t.TempDir(), 3)
	if err := st.WriteSummary(paths[0], analysis.Summary{SessionID: s.ID}); err != nil {
		t.Fatal(err)
	}

	report, err := st.Validate(context.Background(), capture.CompletedSession{SessionID: s.ID, SegmentPaths: paths})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !report.OK() {
		t.Errorf("expected no issues, got %+v", report.Issues)
	}
}

func TestValidateReportsIssuesInOrder(t *testing.T) {
	st := NewStore(zerolog.Nop())
	s, paths := recordSegments(t, t.TempDir(), 3)

	if err := os.Remove(paths[1]); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths[2], []byte("not audio"), 0644); err != nil {
		t.Fatal(err)
	}

	report, err := st.Validate(context.Background(), capture.CompletedSession{SessionID: s.ID, SegmentPaths: paths})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	want := []Issue{
		{Kind: MissingAudioFile, Path: paths[1]},
		{Kind: UnreadableAudio, Path: paths[2]},
		{Kind: MissingSummary, Path: SummaryPath(paths[0])},
	}
	if len(report.Issues) != len(want) {
		t.Fatalf("expected %d issues, got %+v", len(want), report.Issues)
	}
	for i, w := range want {
		got := report.Issues[i]
		if got.Kind != w.Kind || got.Path != w.Path {
			t.Errorf("issue %d: expected %s %s, got %s %s", i, w.Kind, w.Path, got.Kind, got.Path)
		}
	}

	if err := st.WriteIntegrityReport(paths[0], report); err != nil {
		t.Fatalf("WriteIntegrityReport failed: %v", err)
	}
	if _, err := os.Stat(IntegrityPath(paths[0])); err != nil {
		t.Errorf("expected integrity sidecar: %v", err)
	}
}

func TestValidateHonorsCancellation(t *testing.T) {
	st := NewStore(zerolog.Nop())
	s, paths := recordSegments(t, t.TempDir(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := st.Validate(ctx, capture.CompletedSession{SessionID: s.ID, SegmentPaths: paths}); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}
