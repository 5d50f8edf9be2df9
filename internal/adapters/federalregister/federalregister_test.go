package federalregister

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scottlangford2/research-scraper/internal/clock/system"
	collyfetcher "github.com/scottlangford2/research-scraper/internal/fetcher/colly"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

func newAdapter(endpoint string, terms ...string) *Adapter {
	return New(collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}, nil), Config{
		Endpoint: endpoint,
		Terms:    terms,
		Clock:    system.Frozen{At: time.Date(2025, 6, 30, 8, 0, 0, 0, time.UTC)},
	})
}

func TestFetchSendsRepeatedFieldsAndDedups(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "NOTICE", q.Get("conditions[type][]"))
		require.Equal(t, "2025-05-31", q.Get("conditions[publication_date][gte]"))
		require.Equal(t, fields, q["fields[]"])
		docs := []map[string]any{{
			"document_number":  "2025-01234",
			"title":            "Notice of Funding Opportunity: Rural Health Evaluation",
			"agencies":         []map[string]any{{"name": "Health Resources and Services Administration"}},
			"publication_date": "2025-06-02",
			"abstract":         "HRSA announces funding for program evaluation.",
			"html_url":         "https://www.federalregister.gov/d/2025-01234",
		}}
		if q.Get("conditions[term]") == "grant program" {
			docs = append(docs, map[string]any{"document_number": "2025-09999", "title": "Grant Program Notice"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"count": len(docs), "results": docs})
	}))
	t.Cleanup(srv.Close)

	records, err := newAdapter(srv.URL, "funding opportunity", "grant program").Fetch(context.Background(), rfp.FetchParams{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	require.Equal(t, "2025-01234", first.SourceID)
	require.Equal(t, "Health Resources and Services Administration", first.Agency)
	require.Equal(t, "Notice", first.Status)
	require.Equal(t, rfp.RegionFederal, first.Region)
	require.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), first.PostedDate)
	require.Empty(t, records[1].Agency)
}

func TestFetchSkipsFailedTerm(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("conditions[term]") == "bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{{"document_number": "A", "title": "Notice"}}})
	}))
	t.Cleanup(srv.Close)

	records, err := newAdapter(srv.URL, "bad", "good").Fetch(context.Background(), rfp.FetchParams{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = newAdapter(srv.URL, "bad").Fetch(context.Background(), rfp.FetchParams{})
	require.Error(t, err)
}

func TestFetchHistoricalWidensWindow(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2024-06-30", r.URL.Query().Get("conditions[publication_date][gte]"))
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	t.Cleanup(srv.Close)

	records, err := newAdapter(srv.URL, "x").Fetch(context.Background(), rfp.FetchParams{Historical: true})
	require.NoError(t, err)
	require.Empty(t, records)
}
