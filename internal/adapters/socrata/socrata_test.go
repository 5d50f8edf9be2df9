package socrata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scottlangford2/research-scraper/internal/clock/system"
	collyfetcher "github.com/scottlangford2/research-scraper/internal/fetcher/colly"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

var testNow = time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

func texasDataset(base string) Dataset {
	return Dataset{
		Region:  "TX",
		Label:   "Texas Open Data",
		URL:     base + "/resource/tx.json",
		Date:    []string{"missing_date", "start_date"},
		Title:   []string{"project_name"},
		ID:      []string{"po_contract_number"},
		Agency:  []string{"vendor_name_description"},
		EndDate: []string{"end_date"},
		Amount:  []string{"total_amount"},
	}
}

func newAdapter(pageSize int, datasets ...Dataset) *Adapter {
	return New(collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}, nil), Config{
		Datasets: datasets,
		PageSize: pageSize,
		Clock:    system.Frozen{At: testNow},
	})
}

func TestFetchDiscoversDateColumnAndPages(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{
		{"po_contract_number": "PO-1", "project_name": "Program Evaluation", "vendor_name_description": "Acme Research",
			"start_date": "2025-01-20T00:00:00.000", "end_date": "2026-01-19T00:00:00.000", "total_amount": "125000.50"},
		{"po_contract_number": "PO-2", "project_name": "Road Resurfacing", "start_date": "2025-01-18T00:00:00.000"},
		{"project_name": "Janitorial Services", "start_date": "2025-01-15T00:00:00.000"},
	}
	var (
		mu      sync.Mutex
		queries []map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "token", r.Header.Get("X-App-Token"))
		q := r.URL.Query()
		if q.Get("$limit") == "5" {
			_ = json.NewEncoder(w).Encode(rows[:1])
			return
		}
		mu.Lock()
		queries = append(queries, map[string]string{"where": q.Get("$where"), "order": q.Get("$order"), "offset": q.Get("$offset")})
		mu.Unlock()
		offset := 0
		if q.Get("$offset") == "2" {
			offset = 2
		}
		_ = json.NewEncoder(w).Encode(rows[offset:min(offset+2, len(rows))])
	}))
	t.Cleanup(srv.Close)

	records, err := newAdapter(2, texasDataset(srv.URL)).Fetch(context.Background(), rfp.FetchParams{Credential: "token"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Len(t, queries, 2)
	require.Equal(t, "start_date >= '2025-01-11T00:00:00'", queries[0]["where"])
	require.Equal(t, "start_date DESC", queries[0]["order"])
	require.Equal(t, "2", queries[1]["offset"])

	first := records[0]
	require.Equal(t, "PO-1", first.SourceID)
	require.Equal(t, rfp.Region("TX"), first.Region)
	require.Equal(t, "Acme Research", first.Agency)
	require.Equal(t, "Awarded", first.Status)
	require.Equal(t, "Program Evaluation", first.Description)
	require.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), first.PostedDate)
	require.Equal(t, time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC), first.CloseDate)
	require.InDelta(t, 125000.50, *first.Amount, 0.001)
	require.Empty(t, records[2].SourceID)
}

func TestFetchWithoutDateColumnSkipsFilter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Empty(t, q.Get("$where"))
		require.Empty(t, q.Get("$order"))
		_ = json.NewEncoder(w).Encode([]map[string]any{{"bid_number": "B1", "short_description": "Survey of residents"}})
	}))
	t.Cleanup(srv.Close)

	ds := Dataset{Region: "MD", Label: "Maryland", URL: srv.URL, Title: []string{"short_description"}, ID: []string{"bid_number"}}
	records, err := newAdapter(10, ds).Fetch(context.Background(), rfp.FetchParams{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].PostedDate.IsZero())
}

func TestFetchRegionFilter(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		hits []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode([]any{})
	}))
	t.Cleanup(srv.Close)

	tx := Dataset{Region: "TX", Label: "TX", URL: srv.URL + "/tx"}
	ny := Dataset{Region: "NY", Label: "NY", URL: srv.URL + "/ny"}
	_, err := newAdapter(10, tx, ny).Fetch(context.Background(), rfp.FetchParams{Region: "NY"})
	require.NoError(t, err)
	require.Equal(t, []string{"/ny"}, hits)
}

func TestFetchIsolatesDatasetFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"title": "Contract"}})
	}))
	t.Cleanup(srv.Close)

	good := Dataset{Region: "WA", Label: "WA", URL: srv.URL + "/good", Title: []string{"title"}}
	broken := Dataset{Region: "TX", Label: "TX", URL: srv.URL + "/broken"}

	records, err := newAdapter(10, broken, good).Fetch(context.Background(), rfp.FetchParams{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = newAdapter(10, broken).Fetch(context.Background(), rfp.FetchParams{})
	var netErr *rfp.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, http.StatusNotFound, netErr.StatusCode)
}
