// Package grantsgov fetches federal grant opportunities from the Grants.gov
// search2 API.
package grantsgov

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// DefaultEndpoint is the public search2 API. No key is required.
const DefaultEndpoint = "https://api.grants.gov/v1/api/search2"

const (
	defaultRows         = 100
	detailURL           = "https://www.grants.gov/search-results-detail/"
	maxDescriptionRunes = 1000
)

// DefaultQueries pull a broad cross-section of recent postings.
var DefaultQueries = []string{
	"research OR study OR analysis OR evaluation OR assessment",
	"planning OR development OR services OR management OR training",
	"technology OR innovation OR infrastructure OR environment OR health",
}

// Client is the JSON transport used by the adapter.
type Client interface {
	PostJSON(ctx context.Context, rawURL string, headers http.Header, payload, out any) error
}

// Config tunes the search.
type Config struct {
	Endpoint string
	Queries  []string
	Rows     int
	// MaxPages caps historical pagination per query; zero means unbounded.
	MaxPages int
	Logger   *zap.Logger
}

// Adapter queries Grants.gov.
type Adapter struct {
	client Client
	cfg    Config
	logger *zap.Logger
}

// New builds the adapter with defaults applied.
func New(client Client, cfg Config) *Adapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if len(cfg.Queries) == 0 {
		cfg.Queries = DefaultQueries
	}
	if cfg.Rows <= 0 {
		cfg.Rows = defaultRows
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: client, cfg: cfg, logger: logger.With(zap.String("source", string(rfp.SourceGrantsGov)))}
}

// Source implements rfp.Adapter.
func (a *Adapter) Source() rfp.Source { return rfp.SourceGrantsGov }

// Method implements rfp.Adapter.
func (a *Adapter) Method() rfp.Method { return rfp.MethodHTTP }

type searchRequest struct {
	Keyword        string `json:"keyword"`
	OppStatuses    string `json:"oppStatuses"`
	Rows           int    `json:"rows"`
	StartRecordNum int    `json:"startRecordNum"`
}

type searchResponse struct {
	Data *struct {
		HitCount   int   `json:"hitCount"`
		TotalCount int   `json:"totalCount"`
		OppHits    []hit `json:"oppHits"`
	} `json:"data"`
	OppHits []hit `json:"oppHits"`
}

func (r searchResponse) hits() ([]hit, int) {
	if r.Data != nil {
		total := r.Data.HitCount
		if total == 0 {
			total = r.Data.TotalCount
		}
		return r.Data.OppHits, total
	}
	return r.OppHits, len(r.OppHits)
}

type hit struct {
	ID                           json.RawMessage `json:"id"`
	Number                       string          `json:"number"`
	OppNumber                    string          `json:"oppNumber"`
	Title                        string          `json:"title"`
	OppTitle                     string          `json:"oppTitle"`
	Agency                       string          `json:"agency"`
	AgencyName                   string          `json:"agencyName"`
	OppStatus                    string          `json:"oppStatus"`
	OpenDate                     string          `json:"openDate"`
	PostDate                     string          `json:"postDate"`
	CloseDate                    string          `json:"closeDate"`
	Deadline                     string          `json:"deadline"`
	Description                  string          `json:"description"`
	Synopsis                     string          `json:"synopsis"`
	AwardCeiling                 any             `json:"awardCeiling"`
	EstimatedTotalProgramFunding any             `json:"estimatedTotalProgramFunding"`
	AwardFloor                   any             `json:"awardFloor"`
	TotalFundingAmount           any             `json:"totalFundingAmount"`
}

// Fetch runs every query once, or pages through all results when
// historical. Hits repeated across queries are kept once.
func (a *Adapter) Fetch(ctx context.Context, params rfp.FetchParams) ([]rfp.Record, error) {
	statuses := "posted"
	if params.Historical {
		statuses = "posted|closed|archived"
	}
	seen := make(map[string]struct{})
	var (
		records []rfp.Record
		errs    []error
	)
	for _, query := range a.cfg.Queries {
		for page, start := 0, 0; ; page, start = page+1, start+a.cfg.Rows {
			var resp searchResponse
			req := searchRequest{Keyword: query, OppStatuses: statuses, Rows: a.cfg.Rows, StartRecordNum: start}
			if err := a.client.PostJSON(ctx, a.cfg.Endpoint, nil, req, &resp); err != nil {
				if ctx.Err() != nil {
					return records, err
				}
				errs = append(errs, fmt.Errorf("grants.gov query %q: %w", query, err))
				break
			}
			hits, total := resp.hits()
			if len(hits) == 0 {
				break
			}
			for _, h := range hits {
				id := h.id()
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				records = append(records, h.record(id))
			}
			a.logger.Debug("grants.gov page",
				zap.String("query", rfp.Truncate(query, 50)),
				zap.Int("hits", len(hits)),
				zap.Int("total", total),
				zap.Int("fetched", len(records)),
			)
			if !params.Historical || start+a.cfg.Rows >= total {
				break
			}
			if a.cfg.MaxPages > 0 && page+1 >= a.cfg.MaxPages {
				break
			}
		}
	}
	if len(records) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		a.logger.Warn("grants.gov query failed", zap.Error(err))
	}
	return records, nil
}

func (h hit) id() string {
	raw := strings.Trim(strings.TrimSpace(string(h.ID)), `"`)
	if raw != "" && raw != "null" {
		return raw
	}
	if h.Number != "" {
		return h.Number
	}
	return h.OppNumber
}

func (h hit) record(id string) rfp.Record {
	posted, _ := rfp.ParseDate(firstNonEmpty(h.OpenDate, h.PostDate))
	closes, _ := rfp.ParseDate(firstNonEmpty(h.CloseDate, h.Deadline))
	title := firstNonEmpty(h.Title, h.OppTitle)
	var link string
	if id != "" {
		link = detailURL + id
	}
	return rfp.Record{
		SourceID:    id,
		Region:      rfp.RegionFederal,
		Title:       title,
		Agency:      firstNonEmpty(h.Agency, h.AgencyName),
		Status:      firstNonEmpty(h.OppStatus, "Posted"),
		PostedDate:  posted,
		CloseDate:   closes,
		URL:         link,
		Description: rfp.Truncate(firstNonEmpty(h.Description, h.Synopsis, title), maxDescriptionRunes),
		Amount:      h.amount(),
	}
}

func (h hit) amount() *float64 {
	for _, raw := range []any{h.AwardCeiling, h.EstimatedTotalProgramFunding, h.AwardFloor, h.TotalFundingAmount} {
		if v := rfp.ParseAmount(raw); v != nil {
			return v
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
