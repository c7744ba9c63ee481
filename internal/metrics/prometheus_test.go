package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordFrame(10, 0.001)
	m.RecordSegmentOpened()
	m.RecordCaptureFailure("writeFailed")
	m.RecordInterruption("systemSleep")
	m.SetStorageRemaining(1)
	m.RecordHandoffDrop()
	m.RecordPause()
	m.SetLive(-20, 0.5, 120)
	m.RecordCheckpoint(nil)
}

func TestRecordersUpdateCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordFrame(2048, 0.002)
	m.RecordFrame(2048, 0.002)
	m.RecordCaptureFailure("engineStartFailed")
	m.RecordCheckpoint(nil)
	m.RecordCheckpoint(errors.New("disk full"))

	if got := testutil.ToFloat64(m.FramesCaptured); got != 2 {
		t.Errorf("expected 2 frames, got %f", got)
	}
	if got := testutil.ToFloat64(m.BytesWritten); got != 4096 {
		t.Errorf("expected 4096 bytes, got %f", got)
	}
	if got := testutil.ToFloat64(m.CaptureFailures.WithLabelValues("engineStartFailed")); got != 1 {
		t.Errorf("expected 1 failure, got %f", got)
	}
	if got := testutil.ToFloat64(m.CheckpointsWritten); got != 1 {
		t.Errorf("expected 1 checkpoint, got %f", got)
	}
	if got := testutil.ToFloat64(m.CheckpointFailures); got != 1 {
		t.Errorf("expected 1 checkpoint failure, got %f", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetLive(-12, 0.4, 140)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "pacekeeper_words_per_minute 140") {
		t.Fatalf("expected words per minute gauge in output:\n%s", body)
	}
}
