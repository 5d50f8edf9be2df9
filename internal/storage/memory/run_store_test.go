package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scottlangford2/research-scraper/internal/rfp"
	"github.com/scottlangford2/research-scraper/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	runs := NewRunStore()
	_, err := runs.LatestRun(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	t0 := time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, runs.StartRun(ctx, "run-1", "run", t0))
	require.NoError(t, runs.StartRun(ctx, "run-2", "report", t0.Add(time.Hour)))
	require.NoError(t, runs.StartRun(ctx, "run-2", "report", t0.Add(2*time.Hour)))

	require.NoError(t, runs.RecordOutcome(ctx, "run-2", rfp.Outcome{Source: rfp.SourceSocrata, Status: rfp.OutcomeSuccess, Records: 3}))
	require.NoError(t, runs.RecordOutcome(ctx, "run-2", rfp.Outcome{Source: rfp.SourceGrantsGov, Status: rfp.OutcomeError, Reason: "network"}))
	require.Error(t, runs.RecordOutcome(ctx, "missing", rfp.Outcome{Source: rfp.SourceSAMGov}))

	require.NoError(t, runs.FinishRun(ctx, "run-2", t0.Add(90*time.Minute), store.Counts{New: 3}, ""))
	require.ErrorIs(t, runs.FinishRun(ctx, "missing", t0, store.Counts{}, ""), store.ErrNotFound)

	latest, err := runs.LatestRun(ctx)
	require.NoError(t, err)
	require.Equal(t, "run-2", latest.ID)
	require.Equal(t, t0.Add(time.Hour), latest.StartedAt)
	require.Equal(t, store.RunSuccess, latest.Status)
	require.Equal(t, 3, latest.Counts.New)
	require.Len(t, latest.Outcomes, 2)
	require.Equal(t, rfp.SourceGrantsGov, latest.Outcomes[0].Source)
}
