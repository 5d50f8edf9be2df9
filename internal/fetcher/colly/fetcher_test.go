package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second}, nil)
	collector := f.buildCollector()
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.True(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.AllowURLRevisit)
	require.True(t, collector.ParseHTTPErrorResponse)
	require.Equal(t, defaultMaxBodySize, collector.MaxBodySize)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	var result Response
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, http.Header{"X-Trace": {"yes"}}, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{"X-Trace": {"old"}}}
	hooks.onRequest(collyReq)
	require.Equal(t, []string{"yes"}, collyReq.Headers.Values("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestGetJSONSendsQueryAndHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.URL.Query().Get("api_key"))
		require.Equal(t, "1", r.URL.Query().Get("page"))
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		require.Equal(t, "tester", r.Header.Get("X-Client"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":[{"id":"a"},{"id":"b"}]}`)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 5 * time.Second}, nil)
	var out struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	err := f.GetJSON(context.Background(), srv.URL+"/search?page=1",
		url.Values{"api_key": {"secret"}}, http.Header{"X-Client": {"tester"}}, &out)
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	require.Equal(t, "b", out.Items[1].ID)
}

func TestPostJSONSendsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"keyword":"evaluation","rows":25}`, string(body))
		_, _ = io.WriteString(w, `{"hitCount":1}`)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 5 * time.Second}, nil)
	var out struct {
		HitCount int `json:"hitCount"`
	}
	payload := map[string]any{"keyword": "evaluation", "rows": 25}
	require.NoError(t, f.PostJSON(context.Background(), srv.URL, nil, payload, &out))
	require.Equal(t, 1, out.HitCount)
}

func TestDoMapsStatusCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		auth      bool
		transient bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, auth: true},
		{name: "forbidden", status: http.StatusForbidden, auth: true},
		{name: "not found", status: http.StatusNotFound},
		{name: "rate limited", status: http.StatusTooManyRequests, transient: true},
		{name: "server error", status: http.StatusBadGateway, transient: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, "nope")
			}))
			t.Cleanup(srv.Close)

			_, err := New(Config{Timeout: 5 * time.Second}, nil).Do(context.Background(), Request{URL: srv.URL})
			require.Error(t, err)
			if tc.auth {
				var authErr *rfp.AuthError
				require.ErrorAs(t, err, &authErr)
				return
			}
			var netErr *rfp.NetworkError
			require.ErrorAs(t, err, &netErr)
			require.Equal(t, tc.status, netErr.StatusCode)
			require.Equal(t, tc.transient, netErr.Transient())
		})
	}
}

func TestGetJSONRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html>maintenance</html>")
	}))
	t.Cleanup(srv.Close)

	var out map[string]any
	err := New(Config{}, nil).GetJSON(context.Background(), srv.URL, nil, nil, &out)
	var parseErr *rfp.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{Timeout: 5 * time.Second}, nil).Do(ctx, Request{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	t.Cleanup(srv.Close)

	lim := &countingLimiter{}
	_, err := New(Config{}, lim).Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, 1, lim.calls)

	lim.err = errors.New("limited")
	_, err = New(Config{}, lim).Do(context.Background(), Request{URL: srv.URL})
	require.EqualError(t, err, "limited")
}

func TestBuildURLRejectsRelative(t *testing.T) {
	t.Parallel()

	_, err := buildURL("/relative", nil)
	require.Error(t, err)

	got, err := buildURL("https://api.example.gov/v2?limit=10", url.Values{"offset": {"20"}})
	require.NoError(t, err)
	require.Equal(t, "https://api.example.gov/v2?limit=10&offset=20", got)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type countingLimiter struct {
	calls int
	err   error
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls++
	return l.err
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
