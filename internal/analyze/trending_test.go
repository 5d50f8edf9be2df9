package analyze

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func TestTrendingEmptyCorpus(t *testing.T) {
	t.Parallel()

	got := Trending(nil, 7*24*time.Hour, now)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestTrendingSingleRecordIsFinite(t *testing.T) {
	t.Parallel()

	corpus := []rfp.Record{{
		ScrapedAt:       now,
		KeyTerms:        []rfp.KeyTerm{{Term: "broadband feasibility", Score: 4}},
		MatchedKeywords: []string{"feasibility study"},
	}}
	got := Trending(corpus, 0, now)
	require.Len(t, got, 2)
	for _, ts := range got {
		require.False(t, math.IsNaN(ts.Score) || math.IsInf(ts.Score, 0))
		require.InDelta(t, 1.0, ts.Lift, 1e-9)
		require.InDelta(t, 0.5, ts.Score, 1e-9)
	}
	require.Equal(t, "broadband feasibility", got[0].Term)
}

func TestTrendingRanksWindowTermsByLift(t *testing.T) {
	t.Parallel()

	old := now.Add(-30 * 24 * time.Hour)
	corpus := []rfp.Record{
		{ScrapedAt: old, MatchedKeywords: []string{"program evaluation"}},
		{ScrapedAt: old, MatchedKeywords: []string{"program evaluation"}},
		{ScrapedAt: old, MatchedKeywords: []string{"needs assessment"}},
		{ScrapedAt: now, MatchedKeywords: []string{"broadband", "program evaluation"}},
		{ScrapedAt: now, MatchedKeywords: []string{"Broadband"}},
	}
	got := Trending(corpus, 7*24*time.Hour, now)

	require.Len(t, got, 2)
	require.Equal(t, "broadband", got[0].Term)
	require.Equal(t, 2, got[0].DocFreq)
	require.Greater(t, got[0].Lift, got[1].Lift)
	for _, ts := range got {
		require.NotEqual(t, "needs assessment", ts.Term)
	}
}

func TestTrendingEmptyWindow(t *testing.T) {
	t.Parallel()

	corpus := []rfp.Record{{ScrapedAt: now.Add(-60 * 24 * time.Hour), MatchedKeywords: []string{"survey"}}}
	require.Empty(t, Trending(corpus, 24*time.Hour, now))
}

func TestTrendingIsDeterministic(t *testing.T) {
	t.Parallel()

	corpus := []rfp.Record{
		{ScrapedAt: now, MatchedKeywords: []string{"alpha", "beta"}},
		{ScrapedAt: now, MatchedKeywords: []string{"beta", "alpha"}},
	}
	first := Trending(corpus, 0, now)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Trending(corpus, 0, now))
	}
	require.Equal(t, "alpha", first[0].Term)
}
