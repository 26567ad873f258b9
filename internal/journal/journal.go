// Package journal records one row per pipeline iteration in a local
// sqlite file, so an operator can see what each run did without reading
// logs.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Journal struct {
	db *sql.DB
}

const (
	OutcomeMerged  = "merged"
	OutcomeSkipped = "skipped"
	OutcomeNoMatch = "no_match"
	OutcomeFailed  = "failed"
)

type Entry struct {
	ID         int64  `json:"id"`
	RunID      string `json:"run_id"`
	Iteration  int    `json:"iteration"`
	Outcome    string `json:"outcome"`
	RowsMerged int    `json:"rows_merged"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func Open(path string) (*Journal, error) {
	if path == "" {
		path = "data/journal.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			rows_merged INTEGER,
			error TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (j *Journal) Insert(e Entry) error {
	if j == nil || j.db == nil {
		return nil
	}
	if e.CreatedAt == "" {
		e.CreatedAt = time.Now().Format(time.RFC3339)
	}
	_, err := j.db.Exec(
		`INSERT INTO runs (run_id, iteration, outcome, rows_merged, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Iteration, e.Outcome, e.RowsMerged, e.Error, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run entry: %w", err)
	}
	return nil
}

func (j *Journal) Recent(limit, offset int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal not initialized")
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := j.db.Query(
		`SELECT id, run_id, iteration, outcome, rows_merged, error, created_at
		 FROM runs ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Iteration, &e.Outcome, &e.RowsMerged, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows run entry: %w", err)
	}
	return out, nil
}
