// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/otk/internal/experiment"
)

// Kind says which command produced a record.
type Kind string

const (
	KindRun     Kind = "run"
	KindCompare Kind = "compare"
	KindBench   Kind = "bench"
)

// Record is a stored experiment result.
type Record struct {
	ID      int64
	Kind    Kind
	GroupID string // comparison ID or benchmark batch, empty for single runs
	experiment.Result
}

// ModelStats aggregates the records of one model.
type ModelStats struct {
	Model    string
	Runs     int
	Failures int
	AvgTime  time.Duration
	AvgToks  float64
}

const schema = `
CREATE TABLE IF NOT EXISTS results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	kind        TEXT NOT NULL,
	group_id    TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	response    TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	elapsed_ns  INTEGER NOT NULL,
	tokens      INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_results_model ON results(model, started_at);
CREATE INDEX IF NOT EXISTS idx_results_group ON results(group_id);
`

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store is closed")

// Store is the experiment result log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Save stores one result.
func (s *Store) Save(ctx context.Context, kind Kind, groupID string, r experiment.Result) error {
	if s.db == nil {
		return ErrClosed
	}
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (run_id, kind, group_id, model, prompt, response, started_at, elapsed_ns, tokens, error, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, string(kind), groupID, r.Model, r.Prompt, r.Response,
		r.StartedAt.UnixNano(), int64(r.Elapsed), r.Tokens, r.Error, string(meta))
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// SaveAll stores results in one transaction.
func (s *Store) SaveAll(ctx context.Context, kind Kind, groupID string, results []experiment.Result) error {
	if s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (run_id, kind, group_id, model, prompt, response, started_at, elapsed_ns, tokens, error, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.RunID, string(kind), groupID, r.Model, r.Prompt, r.Response,
			r.StartedAt.UnixNano(), int64(r.Elapsed), r.Tokens, r.Error, string(meta)); err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}
	return tx.Commit()
}

// SaveComparison stores every result of cmp under its ID.
func (s *Store) SaveComparison(ctx context.Context, cmp experiment.Comparison) error {
	return s.SaveAll(ctx, KindCompare, cmp.ID, cmp.Results)
}

// Recent returns the newest records first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx, `SELECT `+columns+` FROM results ORDER BY started_at DESC, id DESC LIMIT ?`, limitOrDefault(limit))
}

// ByModel returns the newest records of model first.
func (s *Store) ByModel(ctx context.Context, model string, limit int) ([]Record, error) {
	return s.query(ctx, `SELECT `+columns+` FROM results WHERE model = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		model, limitOrDefault(limit))
}

// Group returns the records of one comparison or benchmark in insertion order.
func (s *Store) Group(ctx context.Context, groupID string) ([]Record, error) {
	return s.query(ctx, `SELECT `+columns+` FROM results WHERE group_id = ? ORDER BY id`, groupID)
}

// Stats aggregates every model, fastest average first. Averages cover
// successful runs only.
func (s *Store) Stats(ctx context.Context) ([]ModelStats, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT model,
		       COUNT(*),
		       SUM(CASE WHEN error != '' THEN 1 ELSE 0 END),
		       COALESCE(AVG(CASE WHEN error = '' THEN elapsed_ns END), 0),
		       COALESCE(AVG(CASE WHEN error = '' THEN tokens END), 0)
		FROM results GROUP BY model ORDER BY 4, model`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var out []ModelStats
	for rows.Next() {
		var st ModelStats
		var avgNs float64
		if err := rows.Scan(&st.Model, &st.Runs, &st.Failures, &avgNs, &st.AvgToks); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		st.AvgTime = time.Duration(avgNs)
		out = append(out, st)
	}
	return out, rows.Err()
}

const columns = `id, run_id, kind, group_id, model, prompt, response, started_at, elapsed_ns, tokens, error, metadata`

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec      Record
			kind     string
			started  int64
			elapsed  int64
			metadata string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &kind, &rec.GroupID, &rec.Model, &rec.Prompt, &rec.Response,
			&started, &elapsed, &rec.Tokens, &rec.Error, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		rec.Kind = Kind(kind)
		rec.StartedAt = time.Unix(0, started)
		rec.Elapsed = time.Duration(elapsed)
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
