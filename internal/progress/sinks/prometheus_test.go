package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/scottlangford2/research-scraper/internal/progress"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now().UTC()
	batch := []progress.Event{
		{RunID: "r1", TS: now, Stage: progress.StageRunStart, Mode: "run"},
		{RunID: "r1", TS: now, Stage: progress.StageRunStart, Mode: "run"},
		{
			RunID: "r1", TS: now, Stage: progress.StageSourceDone,
			Source: rfp.SourceSAMGov, Status: rfp.OutcomeSuccess,
			Records: 12, Dropped: 2, Dur: 3 * time.Second,
		},
		{
			RunID: "r1", TS: now, Stage: progress.StageSourceDone,
			Source: rfp.SourceGrantsGov, Status: rfp.OutcomeTimeout, Dur: 120 * time.Second,
		},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sourceOutcomes.WithLabelValues("sam_gov", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sourceOutcomes.WithLabelValues("grants_gov", "timeout")))
	require.InDelta(t, 12.0, testutil.ToFloat64(sink.sourceRecords.WithLabelValues("sam_gov")), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.sourceDropped.WithLabelValues("sam_gov")), 1e-9)
	require.Equal(t, 2, testutil.CollectAndCount(sink.sourceDuration, "rfp_source_duration_seconds"))

	done := []progress.Event{{RunID: "r1", TS: now, Stage: progress.StageRunDone, Dur: time.Minute}}
	require.NoError(t, sink.Consume(context.Background(), done))
	require.NoError(t, sink.Consume(context.Background(), done))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsCompleted))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
