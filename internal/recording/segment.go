package recording

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/petems/pacekeeper/internal/audio"
)

const (
	segmentBitDepth = 16
	segmentChannels = 1
	pcmFormat       = 1
	// RIFF, fmt and data chunk headers written ahead of the first sample
	wavHeaderBytes = 44
)

// ErrSegmentClosed is returned when writing to a sealed segment
var ErrSegmentClosed = errors.New("segment closed")

// HasAudio reports whether the segment file at path holds any samples
func HasAudio(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > wavHeaderBytes
}

// SegmentWriter encodes frames into a mono 16-bit PCM WAV file. The sample
// rate is fixed when the segment opens.
type SegmentWriter struct {
	session *Session
	index   int
	path    string
	file    *os.File
	enc     *wav.Encoder
	rate    int

	buf     *goaudio.IntBuffer
	mono    []float32
	bytes   int64
	started time.Time
	closed  bool
}

func newSegmentWriter(s *Session, index int, path string, format audio.Format) (*SegmentWriter, error) {
	rate := int(math.Round(format.SampleRate))
	if rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %.1f for segment %d", format.SampleRate, index)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("create segment file: %w", err)
	}
	return &SegmentWriter{
		session: s,
		index:   index,
		path:    path,
		file:    f,
		enc:     wav.NewEncoder(f, rate, segmentBitDepth, segmentChannels, pcmFormat),
		rate:    rate,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: segmentChannels, SampleRate: rate},
			SourceBitDepth: segmentBitDepth,
		},
	}, nil
}

func (w *SegmentWriter) Index() int { return w.index }

func (w *SegmentWriter) Path() string { return w.path }

// StartedAt is the capture time of the first frame written, zero before that
func (w *SegmentWriter) StartedAt() time.Time { return w.started }

// DataBytes is the number of PCM bytes written so far
func (w *SegmentWriter) DataBytes() int64 { return w.bytes }

// BytesPerSecond is the on-disk data rate
func (w *SegmentWriter) BytesPerSecond() float64 {
	return float64(w.rate * segmentChannels * segmentBitDepth / 8)
}

// Write downmixes the frame and appends it to the file
func (w *SegmentWriter) Write(f audio.Frame) error {
	if w.closed {
		return ErrSegmentClosed
	}
	if f.Frames == 0 {
		return nil
	}
	if w.started.IsZero() {
		w.started = f.Time
	}

	w.mono = audio.Downmix(w.mono, f)
	if cap(w.buf.Data) < len(w.mono) {
		w.buf.Data = make([]int, len(w.mono))
	}
	w.buf.Data = w.buf.Data[:len(w.mono)]
	for i, v := range w.mono {
		w.buf.Data[i] = audio.ToPCM16(v)
	}

	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("write segment %d: %w", w.index, err)
	}
	w.bytes += int64(len(w.mono) * segmentBitDepth / 8)
	return nil
}

// Size reports the current file size on disk
func (w *SegmentWriter) Size() (int64, error) {
	info, err := w.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Close finalizes the WAV header and seals the segment. Safe to call twice.
func (w *SegmentWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.session.seal(w.index, w.started, w.bytes)

	var encErr error
	// an encoder that never wrote a header would patch garbage into an empty file
	if w.bytes > 0 {
		encErr = w.enc.Close()
	}
	closeErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("finalize segment %d: %w", w.index, encErr)
	}
	return closeErr
}

// Discard closes the segment and deletes it if no audio reached the file
func (w *SegmentWriter) Discard() error {
	err := w.Close()
	if w.bytes == 0 {
		if rmErr := os.Remove(w.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return rmErr
		}
	}
	return err
}
