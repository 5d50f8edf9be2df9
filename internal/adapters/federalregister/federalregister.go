// Package federalregister fetches funding notices (NOFOs, grant programs,
// cooperative agreements) from the Federal Register API.
package federalregister

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

// DefaultEndpoint is the public articles search. No key is required.
const DefaultEndpoint = "https://www.federalregister.gov/api/v1/articles.json"

const (
	defaultLookback     = 30
	defaultHistorical   = 365
	perPage             = 100
	maxDescriptionRunes = 500
)

// DefaultTerms select funding-related notices.
var DefaultTerms = []string{
	"funding opportunity",
	"grant program",
	"cooperative agreement",
	"notice of funding",
	"NOFO",
	"request for proposals",
}

var fields = []string{
	"document_number", "title", "agencies", "type",
	"publication_date", "abstract", "html_url", "action",
}

// Client is the JSON transport used by the adapter.
type Client interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, headers http.Header, out any) error
}

// Config tunes the search.
type Config struct {
	Endpoint       string
	Terms          []string
	LookbackDays   int
	HistoricalDays int
	Clock          rfp.Clock
	Logger         *zap.Logger
}

// Adapter queries the Federal Register.
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
	if len(cfg.Terms) == 0 {
		cfg.Terms = DefaultTerms
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = defaultLookback
	}
	if cfg.HistoricalDays <= 0 {
		cfg.HistoricalDays = defaultHistorical
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: client, cfg: cfg, logger: logger.With(zap.String("source", string(rfp.SourceFederalRegister)))}
}

// Source implements rfp.Adapter.
func (a *Adapter) Source() rfp.Source { return rfp.SourceFederalRegister }

// Method implements rfp.Adapter.
func (a *Adapter) Method() rfp.Method { return rfp.MethodHTTP }

type articlesResponse struct {
	Count   int       `json:"count"`
	Results []article `json:"results"`
}

type article struct {
	DocumentNumber  string `json:"document_number"`
	Title           string `json:"title"`
	Type            string `json:"type"`
	PublicationDate string `json:"publication_date"`
	Abstract        string `json:"abstract"`
	HTMLURL         string `json:"html_url"`
	Action          string `json:"action"`
	Agencies        []struct {
		Name string `json:"name"`
	} `json:"agencies"`
}

// Fetch runs one newest-first search per term over the lookback window.
// A failed term is skipped.
func (a *Adapter) Fetch(ctx context.Context, params rfp.FetchParams) ([]rfp.Record, error) {
	days := a.cfg.LookbackDays
	if params.Historical {
		days = a.cfg.HistoricalDays
	}
	cutoff := a.now().AddDate(0, 0, -days).Format(time.DateOnly)

	seen := make(map[string]struct{})
	var (
		records []rfp.Record
		errs    []error
	)
	for _, term := range a.cfg.Terms {
		query := url.Values{
			"conditions[type][]":                {"NOTICE"},
			"conditions[term]":                  {term},
			"conditions[publication_date][gte]": {cutoff},
			"per_page":                          {strconv.Itoa(perPage)},
			"order":                             {"newest"},
			"fields[]":                          fields,
		}
		var resp articlesResponse
		if err := a.client.GetJSON(ctx, a.cfg.Endpoint, query, nil, &resp); err != nil {
			if ctx.Err() != nil {
				return records, err
			}
			errs = append(errs, fmt.Errorf("federal register term %q: %w", term, err))
			a.logger.Warn("federal register term failed", zap.String("term", term), zap.Error(err))
			continue
		}
		for _, doc := range resp.Results {
			if _, dup := seen[doc.DocumentNumber]; dup {
				continue
			}
			seen[doc.DocumentNumber] = struct{}{}
			records = append(records, doc.record())
		}
	}
	if len(records) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return records, nil
}

func (d article) record() rfp.Record {
	posted, _ := rfp.ParseDate(d.PublicationDate)
	var agency string
	if len(d.Agencies) > 0 {
		agency = d.Agencies[0].Name
	}
	return rfp.Record{
		SourceID:    d.DocumentNumber,
		Region:      rfp.RegionFederal,
		Title:       d.Title,
		Agency:      agency,
		Status:      "Notice",
		PostedDate:  posted,
		URL:         d.HTMLURL,
		Description: rfp.Truncate(d.Abstract, maxDescriptionRunes),
	}
}

func (a *Adapter) now() time.Time {
	if a.cfg.Clock != nil {
		return a.cfg.Clock.Now()
	}
	return time.Now().UTC()
}
