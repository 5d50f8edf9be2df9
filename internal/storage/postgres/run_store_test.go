package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/scottlangford2/research-scraper/internal/rfp"
	"github.com/scottlangford2/research-scraper/internal/store"
)

func TestRunStoreWrites(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)
	ctx := context.Background()
	started := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-1", "run", started, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO run_sources").
		WithArgs("run-1", "grants_gov", "error", "network", 0, 0, 2, int64(1500)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(started.Add(time.Minute), store.RunSuccess, (*string)(nil), 4, 1, 10, 2, 3, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, runs.StartRun(ctx, "run-1", "run", started))
	require.NoError(t, runs.RecordOutcome(ctx, "run-1", rfp.Outcome{
		Source: rfp.SourceGrantsGov, Status: rfp.OutcomeError, Reason: "network",
		Attempts: 2, Duration: 1500 * time.Millisecond,
	}))
	require.NoError(t, runs.FinishRun(ctx, "run-1", started.Add(time.Minute),
		store.Counts{New: 4, Updated: 1, Unchanged: 10, Dropped: 2, Matched: 3}, ""))
	require.ErrorIs(t, runs.FinishRun(ctx, "ghost", started, store.Counts{}, ""), store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreLatestRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)

	started := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	finished := started.Add(3 * time.Minute)
	mock.ExpectQuery("SELECT run_id").WillReturnRows(
		pgxmock.NewRows([]string{"run_id", "mode", "started_at", "finished_at", "status", "error_message",
			"new_count", "updated_count", "unchanged_count", "dropped_count", "matched_count"}).
			AddRow("run-9", "backfill", started, &finished, "success", (*string)(nil), 7, 0, 0, 1, 2),
	)
	mock.ExpectQuery("FROM run_sources").WithArgs("run-9").WillReturnRows(
		pgxmock.NewRows([]string{"source", "status", "reason", "records", "dropped", "attempts", "duration_ms"}).
			AddRow("sam_gov", "error", "auth", 0, 0, 1, int64(20)).
			AddRow("socrata", "success", "", 7, 1, 1, int64(900)),
	)

	run, err := runs.LatestRun(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-9", run.ID)
	require.Equal(t, store.RunSuccess, run.Status)
	require.Equal(t, &finished, run.FinishedAt)
	require.Equal(t, 7, run.Counts.New)
	require.Len(t, run.Outcomes, 2)
	require.Equal(t, rfp.OutcomeError, run.Outcomes[0].Status)
	require.Equal(t, 900*time.Millisecond, run.Outcomes[1].Duration)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreLatestRunEmpty(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT run_id").WillReturnError(pgx.ErrNoRows)

	_, err = runs.LatestRun(context.Background())
	require.ErrorIs(t, err, store.ErrNotFound)
}
