package persist

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
	"golang.org/x/sync/errgroup"

	"github.com/petems/pacekeeper/internal/capture"
)

type IssueKind string

const (
	MissingAudioFile IssueKind = "missing_audio_file"
	MissingSummary   IssueKind = "missing_summary"
	UnreadableAudio  IssueKind = "unreadable_audio"
)

type Issue struct {
	Kind   IssueKind `json:"kind"`
	Path   string    `json:"path"`
	Detail string    `json:"detail,omitempty"`
}

// IntegrityReport lists problems found with a completed session
type IntegrityReport struct {
	SessionID string    `json:"session_id"`
	CheckedAt time.Time `json:"checked_at"`
	Issues    []Issue   `json:"issues"`
}

// OK reports whether no issues were found
func (r IntegrityReport) OK() bool { return len(r.Issues) == 0 }

const maxConcurrentChecks = 4

// Validate checks every segment of a session concurrently and the summary
// sidecar of its first segment. Issues are reported in segment order.
func (s *Store) Validate(ctx context.Context, session capture.CompletedSession) (IntegrityReport, error) {
	report := IntegrityReport{
		SessionID: session.SessionID,
		CheckedAt: time.Now(),
		Issues:    []Issue{},
	}

	found := make([]*Issue, len(session.SegmentPaths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)
	for i, path := range session.SegmentPaths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found[i] = checkSegment(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("validate session %s: %w", session.SessionID, err)
	}

	for _, issue := range found {
		if issue != nil {
			report.Issues = append(report.Issues, *issue)
		}
	}
	if len(session.SegmentPaths) > 0 {
		summary := SummaryPath(session.SegmentPaths[0])
		if _, err := os.Stat(summary); err != nil {
			report.Issues = append(report.Issues, Issue{Kind: MissingSummary, Path: summary})
		}
	}

	if !report.OK() {
		s.log.Warn().
			Str("session", session.SessionID).
			Int("issues", len(report.Issues)).
			Msg("Session failed integrity check")
	}
	return report, nil
}

func checkSegment(path string) *Issue {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Issue{Kind: MissingAudioFile, Path: path}
		}
		return &Issue{Kind: UnreadableAudio, Path: path, Detail: err.Error()}
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return &Issue{Kind: UnreadableAudio, Path: path, Detail: "not a valid WAV file"}
	}
	if _, err := d.Duration(); err != nil {
		return &Issue{Kind: UnreadableAudio, Path: path, Detail: err.Error()}
	}
	return nil
}
