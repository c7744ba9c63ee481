// Package persist writes analysis sidecars next to recorded segments and
// checks that a finished session is intact on disk.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/petems/pacekeeper/internal/analysis"
	"github.com/petems/pacekeeper/internal/recording"
)

// SummaryPath is the sidecar holding a session's summary, keyed by its first segment
func SummaryPath(segmentPath string) string {
	return segmentPath + recording.SummarySuffix
}

// IntegrityPath is the sidecar holding the integrity report for a session
func IntegrityPath(segmentPath string) string {
	return segmentPath + recording.IntegritySuffix
}

// Store persists sidecar files
type Store struct {
	log zerolog.Logger
}

func NewStore(log zerolog.Logger) *Store {
	return &Store{log: log}
}

// WriteSummary atomically replaces the summary sidecar of segmentPath
func (s *Store) WriteSummary(segmentPath string, sum analysis.Summary) error {
	if err := writeJSON(SummaryPath(segmentPath), sum); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	s.log.Debug().Str("segment", segmentPath).Bool("final", sum.Final).Msg("Summary written")
	return nil
}

// ReadSummary loads the summary sidecar of segmentPath
func (s *Store) ReadSummary(segmentPath string) (analysis.Summary, error) {
	var sum analysis.Summary
	data, err := os.ReadFile(SummaryPath(segmentPath))
	if err != nil {
		return sum, err
	}
	if err := json.Unmarshal(data, &sum); err != nil {
		return sum, fmt.Errorf("decode summary: %w", err)
	}
	return sum, nil
}

// WriteIntegrityReport atomically replaces the integrity sidecar of segmentPath
func (s *Store) WriteIntegrityReport(segmentPath string, report IntegrityReport) error {
	if err := writeJSON(IntegrityPath(segmentPath), report); err != nil {
		return fmt.Errorf("write integrity report: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes to a temp file in the same directory, syncs it and
// renames it over path, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
