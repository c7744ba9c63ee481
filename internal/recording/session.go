// Package recording owns the on-disk layout of a capture session: one
// session id, an append-only list of WAV segments, exactly one open at a time.
package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/petems/pacekeeper/internal/audio"
)

// Sidecars sit next to a segment and are removed with it
const (
	SummarySuffix   = ".summary.json"
	IntegritySuffix = ".integrity.json"
)

// ErrSegmentOpen is returned when opening a segment while another is still current
var ErrSegmentOpen = errors.New("current segment still open")

// Segment is one contiguous audio file of a session
type Segment struct {
	Index     int
	Path      string
	StartedAt time.Time
	Bytes     int64
	Sealed    bool
}

// Session groups the segments recorded between one start and stop
type Session struct {
	ID        string
	CreatedAt time.Time
	Dir       string
	Segments  []Segment

	current *SegmentWriter
}

// NewSession creates the recordings directory if needed and assigns a fresh id
func NewSession(dir string, now time.Time) (*Session, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create recordings directory: %w", err)
	}
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Dir:       dir,
	}, nil
}

// SegmentPath returns the file path for a part index
func (s *Session) SegmentPath(index int) string {
	return SegmentPath(s.Dir, s.ID, index)
}

// SegmentPath names part index of session id inside dir
func SegmentPath(dir, id string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_part%03d.wav", id, index))
}

// OpenSegment creates the next segment file. The previous segment must be closed.
func (s *Session) OpenSegment(format audio.Format) (*SegmentWriter, error) {
	if s.current != nil && !s.current.closed {
		return nil, ErrSegmentOpen
	}

	index := len(s.Segments)
	path := s.SegmentPath(index)
	w, err := newSegmentWriter(s, index, path, format)
	if err != nil {
		return nil, err
	}
	s.Segments = append(s.Segments, Segment{Index: index, Path: path})
	s.current = w
	return w, nil
}

// RemoveEmpty deletes sealed segments that never received audio, along with
// their sidecars, and returns the paths that remain, in order.
func (s *Session) RemoveEmpty() []string {
	var kept []string
	for _, seg := range s.Segments {
		if !seg.Sealed {
			continue
		}
		if seg.Bytes == 0 {
			for _, path := range []string{seg.Path, seg.Path + SummarySuffix, seg.Path + IntegritySuffix} {
				os.Remove(path)
			}
			continue
		}
		kept = append(kept, seg.Path)
	}
	return kept
}

func (s *Session) seal(index int, startedAt time.Time, bytes int64) {
	seg := &s.Segments[index]
	seg.StartedAt = startedAt
	seg.Bytes = bytes
	seg.Sealed = true
}
