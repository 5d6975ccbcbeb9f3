// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package journal records every Design run in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
	dlog "github.com/ManuGH/devcam/internal/log"
	"github.com/ManuGH/devcam/internal/persistence/sqlite"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Status is the outcome of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusTimedOut  Status = "timed_out"
	StatusAborted   Status = "aborted"
)

const defaultListLimit = 50

var migrations = []sqlite.Migration{
	{Version: 1, SQL: `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		design TEXT NOT NULL,
		length INTEGER NOT NULL,
		processing TEXT NOT NULL DEFAULT '',
		expected INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		pairs INTEGER NOT NULL DEFAULT 0,
		unmatched_metadata INTEGER NOT NULL DEFAULT 0,
		unmatched_buffers INTEGER NOT NULL DEFAULT 0,
		timed_out BOOLEAN NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`},
}

// Run is one journal row.
type Run struct {
	ID                string     `json:"id"`
	Design            string     `json:"design"`
	Length            int        `json:"length"`
	Processing        string     `json:"processing,omitempty"`
	Expected          int        `json:"expected"`
	Status            Status     `json:"status"`
	Pairs             int        `json:"pairs"`
	UnmatchedMetadata int        `json:"unmatched_metadata"`
	UnmatchedBuffers  int        `json:"unmatched_buffers"`
	TimedOut          bool       `json:"timed_out"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	Error             string     `json:"error,omitempty"`
}

// Journal is a run journal backed by SQLite.
type Journal struct {
	db     *sql.DB
	now    func() time.Time
	logger zerolog.Logger
}

// Open opens or creates the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	j, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// New migrates db and wraps it.
func New(ctx context.Context, db *sql.DB) (*Journal, error) {
	if err := sqlite.Migrate(ctx, db, migrations); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return &Journal{db: db, now: time.Now, logger: dlog.WithComponent("journal")}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Check reports whether the database is reachable and intact.
func (j *Journal) Check(ctx context.Context) error {
	issues, err := sqlite.QuickCheck(ctx, j.db)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("journal integrity: %v", issues)
	}
	return nil
}

// Begin records a started run. A run without id gets a fresh one, which
// is returned. Beginning a run that was already finished is a no-op.
func (j *Journal) Begin(ctx context.Context, run model.RunInfo) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	started := run.StartedAt
	if started.IsZero() {
		started = j.now()
	}
	_, err := j.db.ExecContext(ctx, `
	INSERT INTO runs (id, design, length, processing, expected, status, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`,
		run.ID, run.Design, run.Length, string(run.Processing), run.Expected, string(StatusRunning), formatTime(started))
	if err != nil {
		return "", fmt.Errorf("journal: begin %s: %w", run.ID, err)
	}
	return run.ID, nil
}

// Finish records the correlation outcome of a run. It inserts the run if
// Begin has not been called yet.
func (j *Journal) Finish(ctx context.Context, report model.CorrelationReport) error {
	status, msg := StatusCompleted, ""
	switch {
	case report.Aborted:
		status, msg = StatusAborted, "aborted before every frame was reported"
	case report.TimedOut:
		status, msg = StatusTimedOut, "correlation timed out"
	}
	run := report.Run
	started := run.StartedAt
	if started.IsZero() {
		started = j.now()
	}
	_, err := j.db.ExecContext(ctx, `
	INSERT INTO runs (id, design, length, processing, expected, status, pairs, unmatched_metadata, unmatched_buffers, timed_out, started_at, finished_at, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		pairs = excluded.pairs,
		unmatched_metadata = excluded.unmatched_metadata,
		unmatched_buffers = excluded.unmatched_buffers,
		timed_out = excluded.timed_out,
		finished_at = excluded.finished_at,
		error = excluded.error`,
		run.ID, run.Design, run.Length, string(run.Processing), run.Expected, string(status),
		report.Pairs, len(report.UnmatchedMetadata), len(report.UnmatchedBuffers), report.TimedOut,
		formatTime(started), formatTime(j.now()), msg)
	if err != nil {
		return fmt.Errorf("journal: finish %s: %w", run.ID, err)
	}
	j.logger.Debug().Str(dlog.FieldRunID, run.ID).Str(dlog.FieldState, string(status)).Msg("run finished")
	return nil
}

const selectRun = `SELECT id, design, length, processing, expected, status, pairs, unmatched_metadata,
	unmatched_buffers, timed_out, started_at, finished_at, error FROM runs`

// Get returns the run with id.
func (j *Journal) Get(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(j.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// List returns the most recent runs, newest first. A non-positive limit
// selects the default.
func (j *Journal) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := j.db.QueryContext(ctx, selectRun+` ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r        Run
		status   string
		started  string
		finished sql.NullString
	)
	err := s.Scan(&r.ID, &r.Design, &r.Length, &r.Processing, &r.Expected, &status, &r.Pairs,
		&r.UnmatchedMetadata, &r.UnmatchedBuffers, &r.TimedOut, &started, &finished, &r.Error)
	if err != nil {
		return Run{}, err
	}
	r.Status = Status(status)
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finished.String)
		r.FinishedAt = &t
	}
	return r, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
