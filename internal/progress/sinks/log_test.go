package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/scottlangford2/research-scraper/internal/progress"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))
	now := time.Now().UTC()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		progress.SourceDone("r1", now, rfp.Outcome{Source: rfp.SourceSAMGov, Status: rfp.OutcomeSuccess, Records: 4}),
		progress.SourceDone("r1", now, rfp.Outcome{Source: rfp.SourceBidNet, Status: rfp.OutcomeError, Reason: "HTTP 500"}),
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zap.InfoLevel, entries[0].Level)
	require.Equal(t, zap.WarnLevel, entries[1].Level)
	require.Equal(t, "HTTP 500", entries[1].ContextMap()["reason"])
}
