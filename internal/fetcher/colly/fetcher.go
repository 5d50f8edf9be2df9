// Package collyfetcher implements the shared HTTP client of the API source
// adapters on top of gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/scottlangford2/research-scraper/internal/metrics"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxBodySize = 64 << 20
)

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Request describes one API call.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Headers http.Header
	Body    []byte
}

// Response is a completed call with a 2xx status.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher issues API requests through a Colly collector. Non-2xx statuses
// are mapped onto the adapter error taxonomy.
type Fetcher struct {
	cfg           Config
	limiter       Limiter
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Limiter) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, limiter: limiter, baseCollector: c}
}

// Do executes req and returns the 2xx response. 401/403 become
// *rfp.AuthError; other statuses and transport failures *rfp.NetworkError.
func (f *Fetcher) Do(ctx context.Context, req Request) (Response, error) {
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return Response{}, &rfp.ParseError{Err: err}
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, target); err != nil {
			return Response{}, err
		}
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		result   Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, req.Headers, start, &result, &fetchErr)

	done := make(chan error, 1)
	go func() {
		var body *bytes.Reader
		if req.Body != nil {
			body = bytes.NewReader(req.Body)
		}
		if body == nil {
			done <- collector.Request(method, target, nil, nil, nil)
			return
		}
		done <- collector.Request(method, target, body, nil, nil)
	}()

	select {
	case <-ctx.Done():
		metrics.ObserveFetch(target, "canceled")
		return Response{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr == nil {
			fetchErr = err
		}
	}
	if fetchErr != nil && result.StatusCode == 0 {
		metrics.ObserveFetch(target, "error")
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
		}
		return Response{}, &rfp.NetworkError{Err: fetchErr}
	}
	metrics.ObserveFetch(target, strconv.Itoa(result.StatusCode))
	if err := statusError(result.StatusCode, result.Body); err != nil {
		return Response{}, err
	}
	return result, nil
}

// GetJSON issues a GET and decodes the JSON body into out.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, query url.Values, headers http.Header, out any) error {
	return f.doJSON(ctx, Request{Method: http.MethodGet, URL: rawURL, Query: query, Headers: headers}, out)
}

// PostJSON marshals payload, POSTs it and decodes the JSON body into out.
func (f *Fetcher) PostJSON(ctx context.Context, rawURL string, headers http.Header, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	h := headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	return f.doJSON(ctx, Request{Method: http.MethodPost, URL: rawURL, Headers: h, Body: body}, out)
}

func (f *Fetcher) doJSON(ctx context.Context, req Request, out any) error {
	if req.Headers == nil {
		req.Headers = http.Header{}
	}
	if req.Headers.Get("Accept") == "" {
		req.Headers.Set("Accept", "application/json")
	}
	resp, err := f.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &rfp.ParseError{Err: fmt.Errorf("decode %s: %w", req.URL, err)}
	}
	return nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = f.cfg.MaxBodySize
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	headers http.Header,
	start time.Time,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		var h http.Header
		if r.Headers != nil {
			h = r.Headers.Clone()
		}
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    h,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		*fetchErr = err
		if r != nil && r.StatusCode > 0 && result.StatusCode == 0 {
			result.StatusCode = r.StatusCode
			result.Body = append([]byte(nil), r.Body...)
		}
	})
}

func statusError(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	err := fmt.Errorf("HTTP %d: %s", code, snippet)
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return &rfp.AuthError{Err: err}
	}
	return &rfp.NetworkError{StatusCode: code, Err: err}
}

func buildURL(raw string, query url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("url must be absolute: " + raw)
	}
	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
