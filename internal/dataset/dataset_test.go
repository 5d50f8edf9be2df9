package dataset

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/scottlangford2/research-scraper/internal/rfp"
	"github.com/scottlangford2/research-scraper/internal/storage/memory"
)

var scraped = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

func TestCommitAndQueryRoundTrip(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	store := New(blobs, "", nil)
	amount := 50000.0
	rec := rfp.Record{
		ContentHash:     "h1",
		SourceID:        "SAM-1",
		Source:          rfp.SourceSAMGov,
		Region:          rfp.RegionFederal,
		Title:           "Program Evaluation Services",
		Agency:          "HHS",
		PostedDate:      time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		CloseDate:       time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Amount:          &amount,
		KeywordMatch:    true,
		MatchedKeywords: []string{"program evaluation"},
		KeyTerms:        []rfp.KeyTerm{{Term: "program evaluation", Score: 4}, {Term: "hhs", Score: 1}},
		FirstSeen:       scraped,
		ScrapedAt:       scraped,
	}
	rows, err := store.Commit(context.Background(), []rfp.Record{rec})
	require.NoError(t, err)
	require.Equal(t, 1, rows)
	require.Equal(t, []string{DefaultPath}, blobs.Paths())

	got, err := store.All(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, rec, got[0])
}

func TestCommitMergesByHash(t *testing.T) {
	t.Parallel()

	store := New(memory.NewBlobStore(), "", nil)
	first := sample("h1", "TX", false)
	_, err := store.Commit(context.Background(), []rfp.Record{first, sample("h2", "NC", true)})
	require.NoError(t, err)

	// Amount revealed on a later run: same hash, new values.
	amount := 50000.0
	updated := first
	updated.Amount = &amount
	rows, err := store.Commit(context.Background(), []rfp.Record{updated, sample("h3", "TX", false)})
	require.NoError(t, err)
	require.Equal(t, 3, rows)

	all, err := store.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, r := range all {
		if r.ContentHash == "h1" {
			require.NotNil(t, r.Amount)
			require.InDelta(t, 50000.0, *r.Amount, 1e-9)
		}
	}
}

func TestCommitWithoutChangesDoesNotWrite(t *testing.T) {
	t.Parallel()

	blobs := &countingBlobs{BlobStore: memory.NewBlobStore()}
	store := New(blobs, "", nil)
	_, err := store.Commit(context.Background(), []rfp.Record{sample("h1", "TX", false)})
	require.NoError(t, err)

	rows, err := store.Commit(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, rows)
	require.Equal(t, 1, blobs.puts)
}

func TestCommitFailureIsPersistenceError(t *testing.T) {
	t.Parallel()

	store := New(brokenBlobs{}, "", nil)
	_, err := store.Commit(context.Background(), []rfp.Record{sample("h1", "TX", false)})
	var perr *rfp.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "dataset", perr.Op)

	store = New(memory.NewBlobStore(), "", nil)
	_, err = store.Commit(context.Background(), []rfp.Record{{SourceID: "x"}})
	require.ErrorAs(t, err, &perr)
}

func TestCommitWarnsAboveThreshold(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	store := New(memory.NewBlobStore(), "", zap.New(core))
	_, err := store.Commit(context.Background(), []rfp.Record{sample("h1", "TX", false)})
	require.NoError(t, err)
	require.Equal(t, 1, logs.FilterMessage("dataset committed").Len())
}

func TestQueryFilters(t *testing.T) {
	t.Parallel()

	store := New(memory.NewBlobStore(), "", nil)
	older := sample("h3", "TX", false)
	older.ScrapedAt = scraped.AddDate(0, 0, -10)
	_, err := store.Commit(context.Background(), []rfp.Record{
		sample("h1", "TX", true),
		sample("h2", "NC", false),
		older,
	})
	require.NoError(t, err)

	yes := true
	testCases := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"h1", "h2", "h3"}},
		{"region", Filter{Regions: []rfp.Region{"TX"}}, []string{"h1", "h3"}},
		{"source", Filter{Sources: []rfp.Source{rfp.SourceGrantsGov}}, []string{}},
		{"matched", Filter{Matched: &yes}, []string{"h1"}},
		{"from", Filter{From: scraped.AddDate(0, 0, -1)}, []string{"h1", "h2"}},
		{"to", Filter{To: scraped.AddDate(0, 0, -5)}, []string{"h3"}},
		{"limit", Filter{Limit: 1}, []string{"h1"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := store.Query(context.Background(), tc.filter)
			require.NoError(t, err)
			hashes := make([]string, 0, len(got))
			for _, r := range got {
				hashes = append(hashes, r.ContentHash)
			}
			require.Equal(t, tc.want, hashes)
		})
	}
}

func TestRowsMissingDatasetIsEmpty(t *testing.T) {
	t.Parallel()

	rows, err := New(memory.NewBlobStore(), "", nil).Rows(context.Background())
	require.NoError(t, err)
	require.Empty(t, rows)
}

func sample(hash, region string, matched bool) rfp.Record {
	r := rfp.Record{
		ContentHash:     hash,
		SourceID:        "id-" + hash,
		Source:          rfp.SourceSocrata,
		Region:          rfp.Region(region),
		Title:           "Title " + hash,
		KeywordMatch:    matched,
		MatchedKeywords: []string{},
		FirstSeen:       scraped,
		ScrapedAt:       scraped,
	}
	if matched {
		r.MatchedKeywords = []string{"needs assessment"}
	}
	return r
}

type countingBlobs struct {
	*memory.BlobStore
	puts int
}

func (c *countingBlobs) PutObject(ctx context.Context, path, contentType string, data io.Reader) (string, error) {
	c.puts++
	return c.BlobStore.PutObject(ctx, path, contentType, data)
}

type brokenBlobs struct{}

func (brokenBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}

func (brokenBlobs) GetObject(context.Context, string) ([]byte, error) {
	return nil, rfp.ErrNotFound
}
