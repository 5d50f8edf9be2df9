// Package socrata fetches awarded contracts from state open data portals
// that expose the Socrata SODA API. Each dataset is configuration; a new
// state needs no code.
package socrata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

const (
	defaultLookback       = 30
	defaultPageSize       = 1000
	defaultHistoricalPage = 50000
	sampleRows            = 5
	maxDescriptionRunes   = 1000
	cutoffLayout          = "2006-01-02T00:00:00"
)

// Dataset maps one SODA resource onto Record fields. Each candidate list is
// tried in order and the first non-empty column wins.
type Dataset struct {
	Region  rfp.Region `mapstructure:"region"`
	Label   string     `mapstructure:"label"`
	URL     string     `mapstructure:"url"`
	Date    []string   `mapstructure:"date_columns"`
	Title   []string   `mapstructure:"title_columns"`
	ID      []string   `mapstructure:"id_columns"`
	Agency  []string   `mapstructure:"agency_columns"`
	EndDate []string   `mapstructure:"end_date_columns"`
	Amount  []string   `mapstructure:"amount_columns"`
}

// DefaultDatasets are the state procurement datasets known to carry usable
// contract data.
var DefaultDatasets = []Dataset{
	{
		Region:  "TX",
		Label:   "Texas Open Data",
		URL:     "https://data.texas.gov/resource/svjm-sdfz.json",
		Date:    []string{"start_date"},
		Title:   []string{"project_name"},
		ID:      []string{"po_contract_number"},
		Agency:  []string{"vendor_name_description"},
		EndDate: []string{"end_date"},
		Amount:  []string{"total_amount"},
	},
	{
		Region:  "NY",
		Label:   "New York Open Data",
		URL:     "https://data.ny.gov/resource/ehig-g5x3.json",
		Date:    []string{"award_date", "begin_date", "renewal_date"},
		Title:   []string{"procurement_description", "type_of_procurement"},
		Agency:  []string{"authority_name"},
		EndDate: []string{"fiscal_year_end_date"},
		Amount:  []string{"contract_amount", "amount_expended_to_date"},
	},
	{
		Region: "WA",
		Label:  "Washington Open Data",
		URL:    "https://data.wa.gov/resource/s8d5-pj78.json",
		Date:   []string{"contract_effective_start", "period_of_performance_start"},
		Title:  []string{"purpose_of_the_contract", "procurement_type"},
		ID:     []string{"agency_contract_no", "agency_contract_amendment"},
		Agency: []string{"agency_number_agency_name"},
		Amount: []string{"state_amount", "federal_amount", "other_amount"},
	},
	{
		Region: "MD",
		Label:  "Maryland Open Data",
		URL:    "https://opendata.maryland.gov/resource/3tu2-tyav.json",
		Title:  []string{"short_description"},
		ID:     []string{"bid_number"},
		Agency: []string{"organization_name"},
	},
}

// Client is the JSON transport used by the adapter.
type Client interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, headers http.Header, out any) error
}

// Config tunes the adapter.
type Config struct {
	Datasets     []Dataset
	LookbackDays int
	PageSize     int
	Clock        rfp.Clock
	Logger       *zap.Logger
}

// Adapter queries every configured dataset.
type Adapter struct {
	client Client
	cfg    Config
	logger *zap.Logger
}

// New builds the adapter with defaults applied.
func New(client Client, cfg Config) *Adapter {
	if cfg.Datasets == nil {
		cfg.Datasets = DefaultDatasets
	}
	if cfg.LookbackDays < 0 {
		cfg.LookbackDays = 0
	} else if cfg.LookbackDays == 0 {
		cfg.LookbackDays = defaultLookback
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: client, cfg: cfg, logger: logger.With(zap.String("source", string(rfp.SourceSocrata)))}
}

// Source implements rfp.Adapter.
func (a *Adapter) Source() rfp.Source { return rfp.SourceSocrata }

// Method implements rfp.Adapter.
func (a *Adapter) Method() rfp.Method { return rfp.MethodHTTP }

type row map[string]any

// Fetch queries each dataset in turn, restricted to params.Region when it
// names a state. The credential, when present, is sent as the SODA app
// token.
func (a *Adapter) Fetch(ctx context.Context, params rfp.FetchParams) ([]rfp.Record, error) {
	var headers http.Header
	if params.Credential != "" {
		headers = http.Header{"X-App-Token": {params.Credential}}
	}
	pageSize := a.cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
		if params.Historical {
			pageSize = defaultHistoricalPage
		}
	}

	var (
		records []rfp.Record
		errs    []error
	)
	for _, ds := range a.cfg.Datasets {
		if params.Region != "" && params.Region != rfp.RegionFederal && params.Region != ds.Region {
			continue
		}
		got, err := a.fetchDataset(ctx, ds, headers, pageSize, params.Historical)
		records = append(records, got...)
		if err != nil {
			if ctx.Err() != nil {
				return records, err
			}
			errs = append(errs, fmt.Errorf("%s: %w", ds.Label, err))
			a.logger.Warn("socrata dataset failed", zap.String("dataset", ds.Label), zap.Error(err))
			continue
		}
		a.logger.Info("socrata dataset fetched", zap.String("dataset", ds.Label), zap.Int("records", len(got)))
	}
	if len(records) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return records, nil
}

func (a *Adapter) fetchDataset(ctx context.Context, ds Dataset, headers http.Header, pageSize int, historical bool) ([]rfp.Record, error) {
	var sample []row
	if err := a.client.GetJSON(ctx, ds.URL, url.Values{"$limit": {strconv.Itoa(sampleRows)}}, headers, &sample); err != nil {
		return nil, fmt.Errorf("sample columns: %w", err)
	}
	if len(sample) == 0 {
		return nil, nil
	}
	dateCol := firstPresent(sample[0], ds.Date)

	var records []rfp.Record
	for offset := 0; ; offset += pageSize {
		query := url.Values{
			"$limit":  {strconv.Itoa(pageSize)},
			"$offset": {strconv.Itoa(offset)},
		}
		if dateCol != "" {
			if a.cfg.LookbackDays > 0 && !historical {
				cutoff := a.now().AddDate(0, 0, -a.cfg.LookbackDays).Format(cutoffLayout)
				query.Set("$where", fmt.Sprintf("%s >= '%s'", dateCol, cutoff))
			}
			query.Set("$order", dateCol+" DESC")
		}
		var page []row
		if err := a.client.GetJSON(ctx, ds.URL, query, headers, &page); err != nil {
			return records, fmt.Errorf("offset %d: %w", offset, err)
		}
		for _, item := range page {
			records = append(records, ds.record(item, dateCol))
		}
		if len(page) < pageSize {
			return records, nil
		}
	}
}

func (ds Dataset) record(item row, dateCol string) rfp.Record {
	title := item.first(ds.Title)
	posted := item.date(dateCol)
	closes, _ := rfp.ParseDate(item.first(ds.EndDate))
	return rfp.Record{
		SourceID:    item.first(ds.ID),
		Region:      ds.Region,
		Title:       title,
		Agency:      item.first(ds.Agency),
		Status:      "Awarded",
		PostedDate:  posted,
		CloseDate:   closes,
		Description: rfp.Truncate(title, maxDescriptionRunes),
		Amount:      rfp.ParseAmount(item.first(ds.Amount)),
	}
}

func (r row) first(candidates []string) string {
	for _, key := range candidates {
		if v, ok := r[key]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func (r row) date(col string) (t time.Time) {
	if col == "" {
		return t
	}
	t, _ = rfp.ParseDate(r.first([]string{col}))
	return t
}

func firstPresent(sample row, candidates []string) string {
	i := slices.IndexFunc(candidates, func(c string) bool {
		_, ok := sample[c]
		return ok
	})
	if i < 0 {
		return ""
	}
	return candidates[i]
}

func (a *Adapter) now() time.Time {
	if a.cfg.Clock != nil {
		return a.cfg.Clock.Now()
	}
	return time.Now().UTC()
}
