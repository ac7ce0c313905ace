//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	sqliteCreateRuns = "CREATE TABLE IF NOT EXISTS runs (" +
		"run_id TEXT NOT NULL, " +
		"graph_id TEXT NOT NULL, " +
		"status TEXT NOT NULL, " +
		"rev INTEGER NOT NULL, " +
		"created_at INTEGER NOT NULL, " +
		"run_json BLOB NOT NULL, " +
		"PRIMARY KEY (run_id)" +
		")"

	sqliteInsertRun = "INSERT INTO runs (run_id, graph_id, status, rev, created_at, run_json) " +
		"VALUES (?, ?, ?, ?, ?, ?)"

	sqliteSelectRun = "SELECT run_json FROM runs WHERE run_id = ? LIMIT 1"

	sqliteUpdateRun = "UPDATE runs SET status = ?, rev = ?, run_json = ? " +
		"WHERE run_id = ? AND rev = ?"

	sqliteSelectSuspended = "SELECT run_json FROM runs WHERE status = ? " +
		"AND (? = '' OR graph_id = ?) ORDER BY created_at DESC"

	sqliteDeleteRun = "DELETE FROM runs WHERE run_id = ?"
)

// SQLiteRunStore is a SQLite-backed implementation of RunStore.
// It expects an initialized *sql.DB and will create the required schema.
// The run record is stored as a JSON blob; status, revision and graph id
// are mirrored into columns for querying and optimistic concurrency.
type SQLiteRunStore struct {
	db *sql.DB
}

// NewSQLiteRunStoreFromDB creates a new store using the provided DB.
// The DB must use a SQLite driver. The constructor creates tables if needed.
func NewSQLiteRunStoreFromDB(db *sql.DB) (*SQLiteRunStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateRuns); err != nil {
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &SQLiteRunStore{db: db}, nil
}

// Create persists a new run.
func (s *SQLiteRunStore) Create(ctx context.Context, run *Run) error {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		sqliteInsertRun,
		run.ID,
		run.GraphID,
		string(run.Status),
		run.Rev,
		run.CreatedAt.Unix(),
		runJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Load returns the run with the given id.
func (s *SQLiteRunStore) Load(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectRun, runID)
	var runJSON []byte
	if err := row.Scan(&runJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("select run: %w", err)
	}
	var run Run
	if err := json.Unmarshal(runJSON, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	if run.NodeResults == nil {
		run.NodeResults = make(map[string]*NodeResult)
	}
	return &run, nil
}

// Checkpoint persists the run under a revision check.
func (s *SQLiteRunStore) Checkpoint(ctx context.Context, run *Run) error {
	next := run.Rev + 1
	runJSON, err := marshalRunAtRev(run, next)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		sqliteUpdateRun,
		string(run.Status),
		next,
		runJSON,
		run.ID,
		run.Rev,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run rows: %w", err)
	}
	if affected == 0 {
		if _, loadErr := s.Load(ctx, run.ID); errors.Is(loadErr, ErrRunNotFound) {
			return ErrRunNotFound
		}
		return ErrRevConflict
	}
	run.Rev = next
	return nil
}

// ListSuspended returns suspended runs, optionally scoped to a graph.
func (s *SQLiteRunStore) ListSuspended(ctx context.Context, graphID string) ([]*Run, error) {
	rows, err := s.db.QueryContext(
		ctx,
		sqliteSelectSuspended,
		string(RunStatusSuspended),
		graphID,
		graphID,
	)
	if err != nil {
		return nil, fmt.Errorf("select suspended: %w", err)
	}
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		var runJSON []byte
		if err := rows.Scan(&runJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var run Run
		if err := json.Unmarshal(runJSON, &run); err != nil {
			return nil, fmt.Errorf("unmarshal run: %w", err)
		}
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter runs: %w", err)
	}
	return out, nil
}

// Delete removes a run.
func (s *SQLiteRunStore) Delete(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, sqliteDeleteRun, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

// marshalRunAtRev encodes the run as it will read back after the revision
// bump, so the stored blob and the column stay consistent.
func marshalRunAtRev(run *Run, rev int64) ([]byte, error) {
	prev := run.Rev
	run.Rev = rev
	data, err := json.Marshal(run)
	run.Rev = prev
	if err != nil {
		return nil, fmt.Errorf("marshal run: %w", err)
	}
	return data, nil
}
