// Package history keeps a summary of every completed run in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("run not found")

// Run is one completed run. Cancelled runs are never recorded.
type Run struct {
	ID           string    `db:"id" json:"id"`
	Source       string    `db:"source" json:"source"`
	BitsPerBlock int       `db:"bits_per_block" json:"bits_per_block"`
	Blocks       int       `db:"blocks" json:"blocks"`
	Skipped      int       `db:"skipped" json:"skipped"`
	Subtests     int       `db:"subtests" json:"subtests"`
	Failed       int       `db:"failed" json:"failed"`
	Report       string    `db:"report" json:"report"`
	StartedAt    time.Time `db:"started_at" json:"started_at"`
	FinishedAt   time.Time `db:"finished_at" json:"finished_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	bits_per_block INTEGER NOT NULL,
	blocks         INTEGER NOT NULL,
	skipped        INTEGER NOT NULL,
	subtests       INTEGER NOT NULL,
	failed         INTEGER NOT NULL,
	report         TEXT NOT NULL,
	started_at     TIMESTAMP NOT NULL,
	finished_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_finished_at ON runs (finished_at);
`

type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// One connection keeps an in-memory database alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Record(ctx context.Context, r Run) error {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (
			id, source, bits_per_block, blocks, skipped,
			subtests, failed, report, started_at, finished_at
		) VALUES (
			:id, :source, :bits_per_block, :blocks, :skipped,
			:subtests, :failed, :report, :started_at, :finished_at
		)
	`, r)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// List returns the most recent runs first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	runs := []Run{}
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, source, bits_per_block, blocks, skipped,
		       subtests, failed, report, started_at, finished_at
		FROM runs
		ORDER BY finished_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	var r Run
	err := s.db.GetContext(ctx, &r, `
		SELECT id, source, bits_per_block, blocks, skipped,
		       subtests, failed, report, started_at, finished_at
		FROM runs
		WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}
