// Package robots enforces robots.txt directives for pages the scraper
// renders directly, as opposed to documented APIs.
package robots

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	collyfetcher "github.com/scottlangford2/research-scraper/internal/fetcher/colly"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// Checker reports whether a URL may be visited.
type Checker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Getter is the subset of the HTTP fetcher the enforcer needs.
type Getter interface {
	Do(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// Enforcer caches one parsed robots.txt per host.
type Enforcer struct {
	getter    Getter
	cache     sync.Map
	userAgent string
	logger    *zap.Logger
}

// New returns an Enforcer, or an allow-all Checker when respect is false.
func New(getter Getter, respect bool, userAgent string, logger *zap.Logger) Checker {
	if !respect || getter == nil {
		return AllowAll{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{getter: getter, userAgent: userAgent, logger: logger}
}

// Allowed implements Checker. A robots.txt that cannot be fetched allows
// access.
func (e *Enforcer) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data, err := e.load(ctx, parsed)
	if err != nil {
		e.logger.Warn("robots fetch failed, allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(e.userAgent)
	if group == nil {
		return true
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (e *Enforcer) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Host)
	if cached, ok := e.cache.Load(hostKey); ok {
		data, ok := cached.(*robotstxt.RobotsData)
		if !ok {
			return nil, fmt.Errorf("robots cache type mismatch: %T", cached)
		}
		return data, nil
	}

	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	headers := http.Header{}
	headers.Set("Accept", "text/plain")
	status, body, err := e.fetch(ctx, robotsURL.String(), headers)
	if err != nil {
		return nil, err
	}
	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	e.cache.Store(hostKey, data)
	return data, nil
}

// fetch maps fetcher status errors back onto the raw status so robotstxt
// can apply its 4xx allow-all and 5xx disallow-all rules.
func (e *Enforcer) fetch(ctx context.Context, target string, headers http.Header) (int, []byte, error) {
	resp, err := e.getter.Do(ctx, collyfetcher.Request{URL: target, Headers: headers})
	if err == nil {
		return resp.StatusCode, resp.Body, nil
	}
	var (
		netErr  *rfp.NetworkError
		authErr *rfp.AuthError
	)
	switch {
	case errors.As(err, &netErr) && netErr.StatusCode > 0:
		return netErr.StatusCode, nil, nil
	case errors.As(err, &authErr):
		return http.StatusForbidden, nil, nil
	default:
		return 0, nil, fmt.Errorf("fetch robots: %w", err)
	}
}

// AllowAll permits every URL.
type AllowAll struct{}

// Allowed implements Checker.
func (AllowAll) Allowed(context.Context, string) bool { return true }
