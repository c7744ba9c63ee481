// Package catalog indexes completed recordings in a local SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		createdAt REAL NOT NULL,
		endedAt REAL NOT NULL,
		firstSegment TEXT NOT NULL,
		segmentCount INTEGER NOT NULL,
		durationSeconds REAL NOT NULL DEFAULT 0,
		wordsPerMinute REAL NOT NULL DEFAULT 0,
		pauseCount INTEGER NOT NULL DEFAULT 0,
		crutchTotal INTEGER NOT NULL DEFAULT 0,
		failure TEXT,
		integrityOk INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(createdAt);
`

// Entry is one catalogued recording
type Entry struct {
	SessionID       string
	CreatedAt       time.Time
	EndedAt         time.Time
	FirstSegment    string
	SegmentCount    int
	DurationSeconds float64
	WordsPerMinute  float64
	PauseCount      int
	CrutchTotal     int
	Failure         string
	IntegrityOK     bool
}

// Catalog provides read-write access to the recordings index
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the database at path with WAL journaling
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// RecordSession inserts or replaces the entry for a session
func (c *Catalog) RecordSession(ctx context.Context, e Entry) error {
	var failure sql.NullString
	if e.Failure != "" {
		failure = sql.NullString{String: e.Failure, Valid: true}
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
			(id, createdAt, endedAt, firstSegment, segmentCount, durationSeconds,
			 wordsPerMinute, pauseCount, crutchTotal, failure, integrityOk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.SessionID, unixFromTime(e.CreatedAt), unixFromTime(e.EndedAt), e.FirstSegment,
		e.SegmentCount, e.DurationSeconds, e.WordsPerMinute, e.PauseCount, e.CrutchTotal,
		failure, e.IntegrityOK)
	if err != nil {
		return fmt.Errorf("record session %s: %w", e.SessionID, err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first
func (c *Catalog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, createdAt, endedAt, firstSegment, segmentCount, durationSeconds,
			wordsPerMinute, pauseCount, crutchTotal, failure, integrityOk
		FROM sessions
		ORDER BY createdAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt, endedAt float64
		var failure sql.NullString
		if err := rows.Scan(&e.SessionID, &createdAt, &endedAt, &e.FirstSegment,
			&e.SegmentCount, &e.DurationSeconds, &e.WordsPerMinute, &e.PauseCount,
			&e.CrutchTotal, &failure, &e.IntegrityOK); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		e.CreatedAt = timeFromUnix(createdAt)
		e.EndedAt = timeFromUnix(endedAt)
		if failure.Valid {
			e.Failure = failure.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e3))*int64(time.Millisecond))
}
