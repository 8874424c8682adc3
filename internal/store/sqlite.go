// Package store archives finished runs to SQLite so run history survives
// the process.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/waabox/conveyor/internal/domain"
)

// RunSummary is one row of run history, without step detail.
type RunSummary struct {
	ID         string
	Pipeline   string
	Event      domain.EventType
	Branch     string
	Status     domain.Status
	StartedAt  time.Time
	FinishedAt time.Time
}

// SQLiteStore persists run reports in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive at path and applies the
// schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		pipeline TEXT NOT NULL,
		event TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		report TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON runs(pipeline);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun archives a terminal run. The full report is stored as JSON;
// step output inside it is already redacted, so nothing secret reaches
// disk.
func (s *SQLiteStore) SaveRun(run *domain.Run) error {
	if !run.Status.Terminal() {
		return fmt.Errorf("refusing to archive non-terminal run %s (%s)", run.ID, run.Status)
	}
	report, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO runs (id, pipeline, event, branch, status, report, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Pipeline, string(run.Event.Type), run.Event.Branch,
		string(run.Status), string(report), run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun loads one archived run report by id.
func (s *SQLiteStore) GetRun(id string) (*domain.Run, error) {
	var report string
	err := s.db.QueryRow(`SELECT report FROM runs WHERE id = ?`, id).Scan(&report)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	var run domain.Run
	if err := json.Unmarshal([]byte(report), &run); err != nil {
		return nil, fmt.Errorf("unmarshal run report: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, pipeline, event, branch, status, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var rs RunSummary
		var event, status string
		if err := rows.Scan(&rs.ID, &rs.Pipeline, &event, &rs.Branch, &status, &rs.StartedAt, &rs.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		rs.Event = domain.EventType(event)
		rs.Status = domain.Status(status)
		summaries = append(summaries, rs)
	}
	return summaries, rows.Err()
}
