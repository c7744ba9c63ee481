// Package transcript adapts an external speech recognizer's output into a
// stream of cumulative transcript updates.
package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Update carries the cumulative text of the current utterance. Final marks the
// utterance complete; the next update starts a new one.
type Update struct {
	Text  string    `json:"text"`
	Final bool      `json:"final"`
	At    time.Time `json:"-"`
}

// Source produces transcript updates until its channel is closed
type Source interface {
	Updates() <-chan Update
}

// WordCount counts whitespace separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Reader decodes JSON lines ({"text": "...", "final": false}) from r
type Reader struct {
	updates chan Update
	log     zerolog.Logger
}

// NewReader starts decoding r in the background. Malformed lines are logged and skipped.
func NewReader(ctx context.Context, r io.Reader, log zerolog.Logger) *Reader {
	rd := &Reader{
		updates: make(chan Update, 16),
		log:     log,
	}
	go rd.run(ctx, r)
	return rd
}

func (rd *Reader) Updates() <-chan Update {
	return rd.updates
}

func (rd *Reader) run(ctx context.Context, r io.Reader) {
	defer close(rd.updates)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		u, err := decodeLine(line)
		if err != nil {
			rd.log.Warn().Err(err).Msg("Skipping transcript line")
			continue
		}
		u.At = time.Now()
		select {
		case rd.updates <- u:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		rd.log.Error().Err(err).Msg("Transcript stream error")
	}
}

func decodeLine(line string) (Update, error) {
	var u Update
	if err := json.Unmarshal([]byte(line), &u); err != nil {
		return Update{}, fmt.Errorf("decode transcript line: %w", err)
	}
	return u, nil
}
