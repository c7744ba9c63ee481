package recording

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/petems/pacekeeper/internal/audio"
)

var testFormat = audio.Format{SampleRate: 16000, Channels: 2, Kind: audio.Float32}

func stereoFrame(frames int, v float32, at time.Time) audio.Frame {
	data := make([]float32, frames*2)
	for i := range data {
		data[i] = v
	}
	return audio.Frame{Format: testFormat, Frames: frames, F32: data, Time: at}
}

func TestSegmentWriterProducesValidWAV(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s, err := NewSession(t.TempDir(), start)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	w, err := s.OpenSegment(testFormat)
	if err != nil {
		t.Fatalf("OpenSegment: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Write(stereoFrame(160, 0.25, start.Add(time.Duration(i)*10*time.Millisecond))); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if w.DataBytes() != 3*160*2 {
		t.Fatalf("expected %d data bytes, got %d", 3*160*2, w.DataBytes())
	}
	if !w.StartedAt().Equal(start) {
		t.Fatalf("expected segment start %v, got %v", start, w.StartedAt())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(w.Path())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatal("expected a valid WAV file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if d.SampleRate != 16000 || d.NumChans != 1 || d.BitDepth != 16 {
		t.Fatalf("unexpected format %d Hz, %d ch, %d bit", d.SampleRate, d.NumChans, d.BitDepth)
	}
	if len(buf.Data) != 480 {
		t.Fatalf("expected 480 samples, got %d", len(buf.Data))
	}
	if buf.Data[0] != audio.ToPCM16(0.25) {
		t.Fatalf("expected sample %d, got %d", audio.ToPCM16(0.25), buf.Data[0])
	}

	seg := s.Segments[0]
	if !seg.Sealed || seg.Bytes != 960 {
		t.Fatalf("expected sealed segment with 960 bytes, got %+v", seg)
	}
}

func TestSessionSegmentsAreAppendOnly(t *testing.T) {
	s, err := NewSession(t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	first, err := s.OpenSegment(testFormat)
	if err != nil {
		t.Fatalf("OpenSegment: %v", err)
	}
	if _, err := s.OpenSegment(testFormat); !errors.Is(err, ErrSegmentOpen) {
		t.Fatalf("expected ErrSegmentOpen, got %v", err)
	}
	first.Write(stereoFrame(10, 0.1, time.Now()))
	first.Close()

	second, err := s.OpenSegment(testFormat)
	if err != nil {
		t.Fatalf("OpenSegment: %v", err)
	}
	if second.Index() != 1 || second.Path() == first.Path() {
		t.Fatalf("expected a new index and path, got %d %s", second.Index(), second.Path())
	}
	if len(s.Segments) != 2 || !s.Segments[0].Sealed || s.Segments[1].Sealed {
		t.Fatalf("expected one sealed and one open segment, got %+v", s.Segments)
	}
	if err := first.Write(stereoFrame(10, 0.1, time.Now())); !errors.Is(err, ErrSegmentClosed) {
		t.Fatalf("expected ErrSegmentClosed writing to a sealed segment, got %v", err)
	}
}

func TestRemoveEmptyDeletesZeroByteSegments(t *testing.T) {
	s, err := NewSession(t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	full, _ := s.OpenSegment(testFormat)
	full.Write(stereoFrame(10, 0.1, time.Now()))
	full.Close()

	empty, _ := s.OpenSegment(testFormat)
	empty.Close()

	kept := s.RemoveEmpty()
	if len(kept) != 1 || kept[0] != full.Path() {
		t.Fatalf("expected only the non-empty segment, got %v", kept)
	}
	if _, err := os.Stat(empty.Path()); !os.IsNotExist(err) {
		t.Fatalf("expected empty segment file to be removed, stat err %v", err)
	}
}

func TestRemoveEmptyDeletesSidecars(t *testing.T) {
	s, err := NewSession(t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	empty, _ := s.OpenSegment(testFormat)
	empty.Close()
	for _, suffix := range []string{SummarySuffix, IntegritySuffix} {
		if err := os.WriteFile(empty.Path()+suffix, []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if kept := s.RemoveEmpty(); len(kept) != 0 {
		t.Fatalf("expected nothing kept, got %v", kept)
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected an empty recordings directory, found %d files", len(entries))
	}
}

func TestDiscardRemovesUnwrittenFile(t *testing.T) {
	s, err := NewSession(t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	w, _ := s.OpenSegment(testFormat)
	if size, _ := w.Size(); size != 0 {
		t.Fatalf("expected zero-byte file before first write, got %d", size)
	}
	if err := w.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if _, err := os.Stat(w.Path()); !os.IsNotExist(err) {
		t.Fatal("expected discarded segment to be removed")
	}
}

func TestHasAudio(t *testing.T) {
	s, err := NewSession(t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	w, _ := s.OpenSegment(testFormat)
	if HasAudio(w.Path()) {
		t.Fatal("expected a freshly opened segment to hold no audio")
	}
	if err := w.Write(stereoFrame(10, 0.1, time.Now())); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Close()
	if !HasAudio(w.Path()) {
		t.Fatal("expected a written segment to hold audio")
	}
	if HasAudio(w.Path() + ".missing") {
		t.Fatal("expected a missing file to hold no audio")
	}
}
