// Package sqlite implements a capture index on SQLite.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/orbitcam/orbitcam/experiment"
)

const timeLayout = time.RFC3339Nano

// Index stores committed capture records keyed by run ID.
// It implements experiment.RecordSink.
type Index struct {
	db *sql.DB
	mu sync.Mutex
}

// RunCount is the number of indexed captures for one run.
type RunCount struct {
	RunID    string
	Captures int
	First    time.Time
	Last     time.Time
}

// Open opens (creating if needed) the index at path and migrates the schema.
func Open(path string) (*Index, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate index: %w", err)
	}
	return idx, nil
}

func (x *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS captures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		filename TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		taken_at TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_captures_run ON captures(run_id);
	CREATE INDEX IF NOT EXISTS idx_captures_taken_at ON captures(taken_at);
	`
	_, err := x.db.Exec(schema)
	return err
}

// Append inserts one committed capture.
func (x *Index) Append(rec experiment.CaptureRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	_, err := x.db.Exec(`
		INSERT INTO captures (run_id, seq, filename, latitude, longitude, taken_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.Seq, rec.FileName, rec.Latitude, rec.Longitude, rec.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert capture %s: %w", rec.FileName, err)
	}
	return nil
}

// ListByRun returns the captures of one run ordered by sequence index.
func (x *Index) ListByRun(runID string) ([]experiment.CaptureRecord, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	rows, err := x.db.Query(`
		SELECT seq, filename, latitude, longitude, taken_at
		FROM captures WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	var out []experiment.CaptureRecord
	for rows.Next() {
		rec := experiment.CaptureRecord{RunID: runID}
		var taken string
		if err := rows.Scan(&rec.Seq, &rec.FileName, &rec.Latitude, &rec.Longitude, &taken); err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		if rec.Timestamp, err = time.Parse(timeLayout, taken); err != nil {
			return nil, fmt.Errorf("bad timestamp %q for %s: %w", taken, rec.FileName, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Runs returns per-run capture counts, oldest run first.
func (x *Index) Runs() ([]RunCount, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	rows, err := x.db.Query(`
		SELECT run_id, COUNT(*), MIN(taken_at), MAX(taken_at)
		FROM captures GROUP BY run_id ORDER BY MIN(taken_at)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunCount
	for rows.Next() {
		var rc RunCount
		var first, last string
		if err := rows.Scan(&rc.RunID, &rc.Captures, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if rc.First, err = time.Parse(timeLayout, first); err != nil {
			return nil, fmt.Errorf("bad first timestamp %q for run %s: %w", first, rc.RunID, err)
		}
		if rc.Last, err = time.Parse(timeLayout, last); err != nil {
			return nil, fmt.Errorf("bad last timestamp %q for run %s: %w", last, rc.RunID, err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}
