// Package store keeps a SQLite log of every reading cycle.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Status is the outcome of one cycle.
type Status string

const (
	StatusPublished Status = "published" // Accepted and delivered
	StatusRejected  Status = "rejected"  // Outlier, not published
	StatusFailed    Status = "failed"    // Accepted but the publish failed
	StatusSkipped   Status = "skipped"   // No usable frames
)

// Record is one row of the reading log.
type Record struct {
	CycleID     string
	TakenAt     time.Time
	Status      Status
	Candidate   float64 // Raw estimate, zero when skipped
	Value       float64 // Stabilized value, zero when skipped
	Frames      int
	ValidFrames int
	Note        string
}

// timeLayout has a fixed-width fraction so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for the reading log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; also keeps a :memory: database alive across calls.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			cycle_id TEXT PRIMARY KEY,
			taken_at TEXT NOT NULL,
			status TEXT NOT NULL,
			candidate REAL NOT NULL,
			value REAL NOT NULL,
			frames INTEGER NOT NULL,
			valid_frames INTEGER NOT NULL,
			note TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_readings_taken_at ON readings(taken_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert appends a record.
func (s *Store) Insert(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (cycle_id, taken_at, status, candidate, value, frames, valid_frames, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CycleID,
		r.TakenAt.UTC().Format(timeLayout),
		string(r.Status),
		r.Candidate,
		r.Value,
		r.Frames,
		r.ValidFrames,
		r.Note,
	)
	return err
}

const selectColumns = `SELECT cycle_id, taken_at, status, candidate, value, frames, valid_frames, note FROM readings`

// Recent returns up to n records, newest first. A status filter of ""
// returns every status.
func (s *Store) Recent(ctx context.Context, n int, status Status) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE (? = '' OR status = ?) ORDER BY taken_at DESC LIMIT ?`,
		string(status), string(status), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LastPublished returns the newest published record, or nil if none.
func (s *Store) LastPublished(ctx context.Context) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+` WHERE status = ? ORDER BY taken_at DESC LIMIT 1`, string(StatusPublished))
	r, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (Record, error) {
	var r Record
	var takenAt, status string
	if err := sc.Scan(&r.CycleID, &takenAt, &status, &r.Candidate, &r.Value, &r.Frames, &r.ValidFrames, &r.Note); err != nil {
		return Record{}, err
	}
	parsed, err := time.Parse(timeLayout, takenAt)
	if err != nil {
		return Record{}, err
	}
	r.TakenAt = parsed
	r.Status = Status(status)
	return r, nil
}
