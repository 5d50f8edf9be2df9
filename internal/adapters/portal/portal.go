// Package portal scrapes open solicitations from individual state
// eProcurement listing pages rendered in headless Chrome.
package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/fetcher/headless"
	"github.com/scottlangford2/research-scraper/internal/policy/robots"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

const defaultWaitSelector = "table, main, article, body"

// ErrDisallowed marks a portal whose robots.txt forbids the listing page.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Config lists the portals to visit. A nil Robots allows every portal.
type Config struct {
	Portals []Portal
	Robots  robots.Checker
	Logger  *zap.Logger
}

// Adapter renders each portal and parses its listing.
type Adapter struct {
	renderer headless.Renderer
	cfg      Config
	logger   *zap.Logger
}

// New builds the adapter. A nil Portals slice means DefaultPortals.
func New(renderer headless.Renderer, cfg Config) *Adapter {
	if cfg.Portals == nil {
		cfg.Portals = DefaultPortals
	}
	if cfg.Robots == nil {
		cfg.Robots = robots.AllowAll{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{renderer: renderer, cfg: cfg, logger: logger.With(zap.String("source", string(rfp.SourceStatePortals)))}
}

// Source implements rfp.Adapter.
func (a *Adapter) Source() rfp.Source { return rfp.SourceStatePortals }

// Method implements rfp.Adapter.
func (a *Adapter) Method() rfp.Method { return rfp.MethodBrowser }

// Fetch visits every portal, or only the one state named by params.Region.
// A failing portal is logged and skipped.
func (a *Adapter) Fetch(ctx context.Context, params rfp.FetchParams) ([]rfp.Record, error) {
	var (
		records []rfp.Record
		errs    []error
		visited int
	)
	for _, p := range a.cfg.Portals {
		if params.Region != "" && params.Region != rfp.RegionFederal && params.Region != p.Region {
			continue
		}
		visited++
		got, err := a.scrape(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return records, err
			}
			errs = append(errs, fmt.Errorf("%s: %w", p.Label, err))
			a.logger.Warn("portal scrape failed", zap.String("portal", p.Label), zap.Error(err))
			continue
		}
		a.logger.Info("portal scraped", zap.String("portal", p.Label), zap.Int("records", len(got)))
		records = append(records, got...)
	}
	if len(records) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	a.logger.Debug("portals visited", zap.Int("portals", visited), zap.Int("records", len(records)))
	return records, nil
}

func (a *Adapter) scrape(ctx context.Context, p Portal) ([]rfp.Record, error) {
	if !a.cfg.Robots.Allowed(ctx, p.URL) {
		return nil, ErrDisallowed
	}
	wait := p.WaitSelector
	if wait == "" {
		wait = defaultWaitSelector
	}
	page, err := a.renderer.Render(ctx, headless.PageRequest{URL: p.URL, WaitSelector: wait})
	if err != nil {
		return nil, err
	}
	return parseListing(strings.NewReader(page.HTML), p)
}
