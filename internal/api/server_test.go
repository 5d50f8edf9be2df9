package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/analyze"
	"github.com/scottlangford2/research-scraper/internal/clock/system"
	"github.com/scottlangford2/research-scraper/internal/dataset"
	"github.com/scottlangford2/research-scraper/internal/rfp"
	"github.com/scottlangford2/research-scraper/internal/search/elasticsearch"
	"github.com/scottlangford2/research-scraper/internal/storage/memory"
	"github.com/scottlangford2/research-scraper/internal/store"
)

var now = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

type fakeRecords struct {
	records []rfp.Record
	err     error
}

func (f fakeRecords) Query(_ context.Context, filter dataset.Filter) ([]rfp.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []rfp.Record{}
	for _, r := range f.records {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeSearch struct {
	params elasticsearch.SearchParams
	err    error
}

func (f *fakeSearch) Search(_ context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &elasticsearch.SearchResult{Total: 1, Items: []elasticsearch.Document{{ContentHash: "h1", Title: "Transit Study"}}}, nil
}

func corpus() []rfp.Record {
	return []rfp.Record{
		{
			ContentHash: "h1", Source: rfp.SourceSAMGov, Region: rfp.RegionFederal, Title: "Economic Impact Study",
			KeywordMatch: true, MatchedKeywords: []string{"economic impact"},
			KeyTerms:  []rfp.KeyTerm{{Term: "economic impact study", Score: 9}},
			ScrapedAt: now,
		},
		{
			ContentHash: "h2", Source: rfp.SourceSocrata, Region: "TX", Title: "Road Paving",
			KeyTerms:  []rfp.KeyTerm{{Term: "road paving", Score: 4}},
			ScrapedAt: now.AddDate(0, 0, -30),
		},
		{
			ContentHash: "h3", Source: rfp.SourceSocrata, Region: "TX", Title: "Housing Survey",
			KeywordMatch: true, MatchedKeywords: []string{"housing"},
			KeyTerms:  []rfp.KeyTerm{{Term: "housing survey", Score: 4}},
			ScrapedAt: now.AddDate(0, 0, -1),
		},
	}
}

func newTestServer(t *testing.T, cfg Config, deps Deps) *Server {
	t.Helper()
	if deps.Records == nil {
		deps.Records = fakeRecords{records: corpus()}
	}
	if deps.Trends == nil {
		analyzer, err := analyze.New(analyze.Config{Blobs: memory.NewBlobStore(), Clock: system.Frozen{At: now}})
		require.NoError(t, err)
		deps.Trends = analyzer
	}
	deps.Logger = zap.NewNop()
	return NewServer(cfg, deps)
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{}, Deps{})
	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, s, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListRecordsFilters(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{}, Deps{})
	cases := []struct {
		query string
		want  []string
	}{
		{query: "", want: []string{"h1", "h2", "h3"}},
		{query: "?region=texas", want: []string{"h2", "h3"}},
		{query: "?region=TX&matched=true", want: []string{"h3"}},
		{query: "?source=sam_gov", want: []string{"h1"}},
		{query: "?from=2026-04-09", want: []string{"h1", "h3"}},
		{query: "?from=2026-03-01&to=2026-03-31", want: []string{"h2"}},
		{query: "?matched=false", want: []string{"h2"}},
		{query: "?limit=1&offset=1", want: []string{"h2"}},
	}
	for _, tc := range cases {
		rec := get(t, s, "/v1/records"+tc.query)
		require.Equal(t, http.StatusOK, rec.Code, tc.query)
		resp := decode[recordsResponse](t, rec)
		got := make([]string, 0, len(resp.Records))
		for _, d := range resp.Records {
			got = append(got, d.ContentHash)
		}
		require.ElementsMatch(t, tc.want, got, tc.query)
	}
}

func TestListRecordsRejectsBadParams(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{}, Deps{})
	for _, q := range []string{
		"?region=atlantis",
		"?source=craigslist",
		"?from=yesterday",
		"?from=2026-04-10&to=2026-04-01",
		"?matched=maybe",
		"?limit=0",
		"?offset=-1",
	} {
		rec := get(t, s, "/v1/records"+q)
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestListRecordsDatasetError(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{}, Deps{Records: fakeRecords{err: errors.New("gcs down")}})
	rec := get(t, s, "/v1/records")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTrending(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{}, Deps{})
	rec := get(t, s, "/v1/trending?window_days=7")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		WindowDays int                 `json:"window_days"`
		Documents  int                 `json:"documents"`
		Terms      []analyze.TermScore `json:"terms"`
	}](t, rec)
	require.Equal(t, 7, resp.WindowDays)
	require.Equal(t, 3, resp.Documents)
	require.NotEmpty(t, resp.Terms)
	for _, term := range resp.Terms {
		require.NotEqual(t, "road paving", term.Term)
	}

	rec = get(t, s, "/v1/trending?window_days=-2")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTopTermsBeforeFirstAnalysis(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t, Config{}, Deps{}), "/v1/analysis/top-terms")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunsLatest(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t, Config{}, Deps{}), "/v1/runs/latest")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	runs := memory.NewRunStore()
	s := newTestServer(t, Config{}, Deps{Runs: runs})
	rec = get(t, s, "/v1/runs/latest")
	require.Equal(t, http.StatusNotFound, rec.Code)

	ctx := context.Background()
	require.NoError(t, runs.StartRun(ctx, "run-1", "run", now))
	require.NoError(t, runs.RecordOutcome(ctx, "run-1", rfp.Outcome{Source: rfp.SourceSAMGov, Status: rfp.OutcomeSuccess, Records: 4}))
	require.NoError(t, runs.FinishRun(ctx, "run-1", now.Add(time.Minute), store.Counts{New: 4}, ""))

	rec = get(t, s, "/v1/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[store.Run](t, rec)
	require.Equal(t, "run-1", run.ID)
	require.Equal(t, store.RunSuccess, run.Status)
	require.Equal(t, 4, run.Counts.New)
	require.Len(t, run.Outcomes, 1)
}

func TestSearchRoute(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t, Config{}, Deps{}), "/v1/search?q=transit")
	require.Equal(t, http.StatusNotFound, rec.Code)

	search := &fakeSearch{}
	s := newTestServer(t, Config{}, Deps{Search: search})
	rec = get(t, s, "/v1/search?q=transit&region=NY&matched=true&limit=5&offset=10")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "transit", search.params.Query)
	require.Equal(t, "NY", search.params.Region)
	require.True(t, *search.params.Matched)
	require.Equal(t, 5, search.params.Size)
	require.Equal(t, 10, search.params.From)

	search.err = errors.New("cluster red")
	rec = get(t, s, "/v1/search?q=transit")
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{APIKey: "secret"}, Deps{})

	rec := get(t, s, "/v1/records")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(t, s, "/v1/records?api_key=secret")
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/records", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t, Config{}, Deps{}), "/healthz")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
	require.NotNil(t, buf)
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
