package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/scottlangford2/research-scraper/internal/rfp"
	"github.com/scottlangford2/research-scraper/internal/store"
)

// RunStore implements store.RunRepository over two tables:
//
//	CREATE TABLE runs (
//	    run_id text PRIMARY KEY, mode text NOT NULL,
//	    started_at timestamptz NOT NULL, finished_at timestamptz,
//	    status text NOT NULL, error_message text,
//	    new_count int NOT NULL DEFAULT 0, updated_count int NOT NULL DEFAULT 0,
//	    unchanged_count int NOT NULL DEFAULT 0, dropped_count int NOT NULL DEFAULT 0,
//	    matched_count int NOT NULL DEFAULT 0
//	);
//	CREATE TABLE run_sources (
//	    run_id text NOT NULL, source text NOT NULL, status text NOT NULL,
//	    reason text NOT NULL DEFAULT '', records int NOT NULL, dropped int NOT NULL,
//	    attempts int NOT NULL, duration_ms bigint NOT NULL,
//	    PRIMARY KEY (run_id, source)
//	);
type RunStore struct {
	pool Pool
}

// NewRunStore wraps pool.
func NewRunStore(pool Pool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// StartRun inserts the run in running state.
func (s *RunStore) StartRun(ctx context.Context, runID, mode string, startedAt time.Time) error {
	query := `
		INSERT INTO runs (run_id, mode, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, mode, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("failed to insert run start: %w", err)
	}
	return nil
}

// RecordOutcome upserts one source outcome.
func (s *RunStore) RecordOutcome(ctx context.Context, runID string, o rfp.Outcome) error {
	query := `
		INSERT INTO run_sources (run_id, source, status, reason, records, dropped, attempts, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, source) DO UPDATE
		SET status = EXCLUDED.status, reason = EXCLUDED.reason, records = EXCLUDED.records,
			dropped = EXCLUDED.dropped, attempts = EXCLUDED.attempts, duration_ms = EXCLUDED.duration_ms;
	`
	_, err := s.pool.Exec(ctx, query, runID, string(o.Source), string(o.Status), o.Reason,
		o.Records, o.Dropped, o.Attempts, o.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to upsert source outcome: %w", err)
	}
	return nil
}

// FinishRun marks the run terminal.
func (s *RunStore) FinishRun(ctx context.Context, runID string, finishedAt time.Time, counts store.Counts, errText string) error {
	status := store.RunSuccess
	var errMsg *string
	if errText != "" {
		status = store.RunError
		errMsg = &errText
	}
	query := `
		UPDATE runs
		SET finished_at = $1, status = $2, error_message = $3,
			new_count = $4, updated_count = $5, unchanged_count = $6, dropped_count = $7, matched_count = $8
		WHERE run_id = $9;
	`
	tag, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg,
		counts.New, counts.Updated, counts.Unchanged, counts.Dropped, counts.Matched, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// LatestRun loads the most recently started run and its source outcomes.
func (s *RunStore) LatestRun(ctx context.Context) (store.Run, error) {
	query := `
		SELECT run_id, mode, started_at, finished_at, status, error_message,
			new_count, updated_count, unchanged_count, dropped_count, matched_count
		FROM runs
		ORDER BY started_at DESC
		LIMIT 1;
	`
	var (
		run    store.Run
		status string
		errMsg *string
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&run.ID, &run.Mode, &run.StartedAt, &run.FinishedAt, &status, &errMsg,
		&run.Counts.New, &run.Counts.Updated, &run.Counts.Unchanged, &run.Counts.Dropped, &run.Counts.Matched,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Run{}, store.ErrNotFound
	}
	if err != nil {
		return store.Run{}, fmt.Errorf("failed to get latest run: %w", err)
	}
	run.Status = store.RunStatus(status)
	if errMsg != nil {
		run.Error = *errMsg
	}

	rows, err := s.pool.Query(ctx, `
		SELECT source, status, reason, records, dropped, attempts, duration_ms
		FROM run_sources
		WHERE run_id = $1
		ORDER BY source;
	`, run.ID)
	if err != nil {
		return store.Run{}, fmt.Errorf("failed to list run sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			o          rfp.Outcome
			source     string
			oStatus    string
			durationMS int64
		)
		if err := rows.Scan(&source, &oStatus, &o.Reason, &o.Records, &o.Dropped, &o.Attempts, &durationMS); err != nil {
			return store.Run{}, fmt.Errorf("failed to scan run source: %w", err)
		}
		o.Source = rfp.Source(source)
		o.Status = rfp.OutcomeStatus(oStatus)
		o.Duration = time.Duration(durationMS) * time.Millisecond
		run.Outcomes = append(run.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return store.Run{}, fmt.Errorf("failed to iterate run sources: %w", err)
	}
	return run, nil
}

var _ store.RunRepository = (*RunStore)(nil)
