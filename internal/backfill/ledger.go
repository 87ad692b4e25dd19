package backfill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Entry is one video's last recorded backfill outcome.
type Entry struct {
	YouTubeID      string `json:"youtube_id"`
	Source         string `json:"source"`
	Outcome        string `json:"outcome"`
	Title          string `json:"title,omitempty"`
	QuestionsSaved int    `json:"questions_saved"`
	Error          string `json:"error,omitempty"`
	Runs           int    `json:"runs"`
	UpdatedAt      string `json:"updated_at"`
}

// Ledger is a local SQLite record of backfill outcomes, used to resume
// interrupted runs.
type Ledger struct {
	db *sql.DB
}

// DefaultLedgerPath is ~/.go_podqa/backfill.db.
func DefaultLedgerPath() string {
	return filepath.Join(os.Getenv("HOME"), ".go_podqa", "backfill.db")
}

// OpenLedger opens (or creates) the ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("ledger: mkdir %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initLedgerSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: init schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func initLedgerSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS videos (
		youtube_id      TEXT PRIMARY KEY,
		source          TEXT NOT NULL,
		outcome         TEXT NOT NULL,
		title           TEXT,
		questions_saved INTEGER NOT NULL DEFAULT 0,
		error           TEXT,
		runs            INTEGER NOT NULL DEFAULT 1,
		updated_at      TEXT NOT NULL
	)`)
	return err
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record stores the outcome of one run, replacing the previous one.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.YouTubeID == "" {
		return errors.New("ledger: youtube id is required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO videos (youtube_id, source, outcome, title, questions_saved, error, runs, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (youtube_id) DO UPDATE SET
			source = excluded.source,
			outcome = excluded.outcome,
			title = excluded.title,
			questions_saved = excluded.questions_saved,
			error = excluded.error,
			runs = videos.runs + 1,
			updated_at = excluded.updated_at`,
		e.YouTubeID, e.Source, e.Outcome, e.Title, e.QuestionsSaved, e.Error, now)
	if err != nil {
		return fmt.Errorf("ledger: record %s: %w", e.YouTubeID, err)
	}
	return nil
}

// Succeeded reports whether the last run for youtubeID succeeded.
func (l *Ledger) Succeeded(ctx context.Context, youtubeID string) (bool, error) {
	var outcome string
	err := l.db.QueryRowContext(ctx, `SELECT outcome FROM videos WHERE youtube_id = ?`, youtubeID).Scan(&outcome)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: lookup %s: %w", youtubeID, err)
	}
	return outcome == OutcomeSucceeded, nil
}

// List returns entries, most recently updated first. An empty outcome lists all.
func (l *Ledger) List(ctx context.Context, outcome string) ([]Entry, error) {
	query := `SELECT youtube_id, source, outcome, COALESCE(title, ''), questions_saved,
		COALESCE(error, ''), runs, updated_at FROM videos`
	var args []any
	if outcome != "" {
		query += ` WHERE outcome = ?`
		args = append(args, outcome)
	}
	query += ` ORDER BY updated_at DESC, youtube_id`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.YouTubeID, &e.Source, &e.Outcome, &e.Title, &e.QuestionsSaved,
			&e.Error, &e.Runs, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
