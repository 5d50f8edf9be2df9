// Package samgov fetches federal contract opportunities from the SAM.gov
// Get Opportunities API.
package samgov

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// DefaultEndpoints are tried in order; SAM.gov has served the API under both.
var DefaultEndpoints = []string{
	"https://api.sam.gov/opportunities/v2/search",
	"https://api.sam.gov/prod/opportunities/v2/search",
}

const (
	dateLayout          = "01/02/2006"
	noticeTypes         = "o,k,p,r"
	defaultPageSize     = 1000
	defaultLookback     = 30
	defaultHistorical   = 365
	defaultChunk        = 30
	maxDescriptionRunes = 1000
)

// Client is the JSON transport used by the adapter.
type Client interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, headers http.Header, out any) error
}

// Config tunes the query window.
type Config struct {
	Endpoints      []string
	LookbackDays   int
	HistoricalDays int
	ChunkDays      int
	PageSize       int
	Clock          rfp.Clock
	Logger         *zap.Logger
}

// Adapter queries SAM.gov. An API key is required.
type Adapter struct {
	client Client
	cfg    Config
	logger *zap.Logger
}

// New builds the adapter with defaults applied.
func New(client Client, cfg Config) *Adapter {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = DefaultEndpoints
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = defaultLookback
	}
	if cfg.HistoricalDays <= 0 {
		cfg.HistoricalDays = defaultHistorical
	}
	if cfg.ChunkDays <= 0 {
		cfg.ChunkDays = defaultChunk
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: client, cfg: cfg, logger: logger.With(zap.String("source", string(rfp.SourceSAMGov)))}
}

// Source implements rfp.Adapter.
func (a *Adapter) Source() rfp.Source { return rfp.SourceSAMGov }

// Method implements rfp.Adapter.
func (a *Adapter) Method() rfp.Method { return rfp.MethodHTTP }

type searchResponse struct {
	TotalRecords      int           `json:"totalRecords"`
	OpportunitiesData []opportunity `json:"opportunitiesData"`
}

type opportunity struct {
	NoticeID                    string `json:"noticeId"`
	Title                       string `json:"title"`
	FullParentPathName          string `json:"fullParentPathName"`
	Department                  string `json:"department"`
	Type                        string `json:"type"`
	PostedDate                  string `json:"postedDate"`
	ResponseDeadLine            string `json:"responseDeadLine"`
	UILink                      string `json:"uiLink"`
	Description                 string `json:"description"`
	Award                       *award `json:"award"`
	EstimatedValue              any    `json:"estimatedValue"`
	BaseAndAllOptionsValue      any    `json:"baseAndAllOptionsValue"`
	TotalEstimatedContractValue any    `json:"totalEstimatedContractValue"`
	Amount                      any    `json:"amount"`
}

type award struct {
	Amount any `json:"amount"`
}

// Fetch queries the posting window, paging through each date chunk. A
// partial result is returned when a later page fails.
func (a *Adapter) Fetch(ctx context.Context, params rfp.FetchParams) ([]rfp.Record, error) {
	if params.Credential == "" {
		return nil, &rfp.AuthError{Err: errors.New("SAM.gov API key not set")}
	}
	now := a.now()
	endpoint, err := a.findEndpoint(ctx, params.Credential, now)
	if err != nil {
		return nil, err
	}

	var chunks [][2]time.Time
	if params.Historical {
		chunks = dateChunks(now, a.cfg.HistoricalDays, a.cfg.ChunkDays)
	} else {
		chunks = [][2]time.Time{{now.AddDate(0, 0, -a.cfg.LookbackDays), now}}
	}

	var (
		records []rfp.Record
		errs    []error
	)
	for i, chunk := range chunks {
		if params.Historical {
			a.logger.Info("sam.gov chunk",
				zap.Int("chunk", i+1),
				zap.Int("chunks", len(chunks)),
				zap.String("from", chunk[0].Format(dateLayout)),
				zap.String("to", chunk[1].Format(dateLayout)),
			)
		}
		got, err := a.fetchWindow(ctx, endpoint, params.Credential, chunk[0], chunk[1])
		records = append(records, got...)
		if err != nil {
			if ctx.Err() != nil {
				return records, err
			}
			errs = append(errs, err)
			a.logger.Warn("sam.gov window failed", zap.Error(err))
		}
	}
	if len(records) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return records, nil
}

func (a *Adapter) fetchWindow(ctx context.Context, endpoint, key string, from, to time.Time) ([]rfp.Record, error) {
	var records []rfp.Record
	for offset := 0; ; offset += a.cfg.PageSize {
		query := url.Values{
			"api_key":    {key},
			"postedFrom": {from.Format(dateLayout)},
			"postedTo":   {to.Format(dateLayout)},
			"ptype":      {noticeTypes},
			"limit":      {strconv.Itoa(a.cfg.PageSize)},
			"offset":     {strconv.Itoa(offset)},
		}
		var resp searchResponse
		if err := a.client.GetJSON(ctx, endpoint, query, nil, &resp); err != nil {
			return records, fmt.Errorf("sam.gov offset %d: %w", offset, err)
		}
		if len(resp.OpportunitiesData) == 0 {
			return records, nil
		}
		for _, opp := range resp.OpportunitiesData {
			records = append(records, opp.record())
		}
		if offset+a.cfg.PageSize >= resp.TotalRecords {
			return records, nil
		}
	}
}

// findEndpoint probes each configured endpoint with a one-row query. An
// auth failure on every endpoint is reported as such.
func (a *Adapter) findEndpoint(ctx context.Context, key string, now time.Time) (string, error) {
	query := url.Values{
		"api_key":    {key},
		"postedFrom": {now.AddDate(0, 0, -1).Format(dateLayout)},
		"postedTo":   {now.Format(dateLayout)},
		"limit":      {"1"},
		"offset":     {"0"},
	}
	var lastErr error
	for _, endpoint := range a.cfg.Endpoints {
		var probe searchResponse
		err := a.client.GetJSON(ctx, endpoint, query, nil, &probe)
		if err == nil {
			a.logger.Debug("sam.gov endpoint selected", zap.String("endpoint", endpoint))
			return endpoint, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		a.logger.Debug("sam.gov endpoint rejected", zap.String("endpoint", endpoint), zap.Error(err))
		lastErr = err
	}
	return "", fmt.Errorf("no working sam.gov endpoint (API keys expire every 90 days): %w", lastErr)
}

func (o opportunity) record() rfp.Record {
	posted, _ := rfp.ParseDate(o.PostedDate)
	closes, _ := rfp.ParseDate(o.ResponseDeadLine)
	agency := o.FullParentPathName
	if agency == "" {
		agency = o.Department
	}
	return rfp.Record{
		SourceID:    o.NoticeID,
		Region:      rfp.RegionFederal,
		Title:       o.Title,
		Agency:      agency,
		Status:      o.Type,
		PostedDate:  posted,
		CloseDate:   closes,
		URL:         o.UILink,
		Description: rfp.Truncate(o.Description, maxDescriptionRunes),
		Amount:      o.amount(),
	}
}

func (o opportunity) amount() *float64 {
	if o.Award != nil {
		if v := rfp.ParseAmount(o.Award.Amount); v != nil {
			return v
		}
	}
	for _, raw := range []any{o.EstimatedValue, o.BaseAndAllOptionsValue, o.TotalEstimatedContractValue, o.Amount} {
		if v := rfp.ParseAmount(raw); v != nil {
			return v
		}
	}
	return nil
}

// dateChunks splits the last total days into chunk-sized windows, newest
// first.
func dateChunks(now time.Time, total, chunk int) [][2]time.Time {
	var out [][2]time.Time
	for start := 0; start < total; start += chunk {
		end := min(start+chunk, total)
		out = append(out, [2]time.Time{now.AddDate(0, 0, -end), now.AddDate(0, 0, -start)})
	}
	return out
}

func (a *Adapter) now() time.Time {
	if a.cfg.Clock != nil {
		return a.cfg.Clock.Now()
	}
	return time.Now().UTC()
}
