// Package elasticsearch mirrors changed opportunity records into an
// Elasticsearch index for full-text search.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

const (
	defaultSize = 20
	maxSize     = 200
)

// Document is the indexed form of a record, keyed by content hash.
type Document struct {
	ContentHash     string    `json:"content_hash"`
	SourceID        string    `json:"source_id"`
	Source          string    `json:"source"`
	Region          string    `json:"region"`
	Title           string    `json:"title"`
	Agency          string    `json:"agency"`
	Description     string    `json:"description"`
	Status          string    `json:"status"`
	PostedDate      string    `json:"posted_date,omitempty"`
	CloseDate       string    `json:"close_date,omitempty"`
	URL             string    `json:"url"`
	Amount          *float64  `json:"amount,omitempty"`
	KeywordMatch    bool      `json:"keyword_match"`
	MatchedKeywords []string  `json:"matched_keywords"`
	KeyTerms        []string  `json:"key_terms"`
	FirstSeen       time.Time `json:"first_seen"`
	ScrapedAt       time.Time `json:"scraped_at"`
}

// DocumentOf builds the indexed form of r.
func DocumentOf(r rfp.Record) Document {
	terms := make([]string, 0, len(r.KeyTerms))
	for _, kt := range r.KeyTerms {
		terms = append(terms, kt.Term)
	}
	return Document{
		ContentHash:     r.ContentHash,
		SourceID:        r.SourceID,
		Source:          string(r.Source),
		Region:          string(r.Region),
		Title:           r.Title,
		Agency:          r.Agency,
		Description:     r.Description,
		Status:          r.Status,
		PostedDate:      rfp.FormatDate(r.PostedDate),
		CloseDate:       rfp.FormatDate(r.CloseDate),
		URL:             r.URL,
		Amount:          r.Amount,
		KeywordMatch:    r.KeywordMatch,
		MatchedKeywords: append([]string{}, r.MatchedKeywords...),
		KeyTerms:        terms,
		FirstSeen:       r.FirstSeen.UTC(),
		ScrapedAt:       r.ScrapedAt.UTC(),
	}
}

// Client wraps go-elasticsearch with helpers for the record index.
type Client struct {
	es     *elasticsearch.Client
	index  string
	logger *zap.Logger
}

// SearchParams narrow a full-text query.
type SearchParams struct {
	Query   string
	Region  string
	Source  string
	Matched *bool
	From    int
	Size    int
}

// SearchResult bundles hits and the total count.
type SearchResult struct {
	Total int64      `json:"total"`
	Items []Document `json:"items"`
}

// New instantiates the client.
func New(addresses []string, index string, logger *zap.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{es: es, index: index, logger: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}
	return nil
}

// IndexRecords upserts records by content hash in a single bulk request and
// returns how many the cluster accepted.
func (c *Client) IndexRecords(ctx context.Context, records []rfp.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, r := range records {
		action := map[string]any{"index": map[string]any{"_index": c.index, "_id": r.ContentHash}}
		if err := enc.Encode(action); err != nil {
			return 0, fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(DocumentOf(r)); err != nil {
			return 0, fmt.Errorf("encode bulk doc: %w", err)
		}
	}

	req := esapi.BulkRequest{
		Index:   c.index,
		Body:    &body,
		Refresh: "false",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return 0, fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("bulk index failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode bulk response: %w", err)
	}
	failed := 0
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error != nil {
				failed++
				c.logger.Warn("bulk item rejected",
					zap.String("content_hash", result.ID),
					zap.String("type", result.Error.Type),
					zap.String("reason", result.Error.Reason),
				)
			}
		}
	}
	indexed := len(records) - failed
	if failed > 0 {
		return indexed, fmt.Errorf("bulk index: %d of %d documents rejected", failed, len(records))
	}
	return indexed, nil
}

// Search executes a bool query with optional filters, newest first.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Size <= 0 {
		params.Size = defaultSize
	}
	if params.Size > maxSize {
		params.Size = maxSize
	}
	if params.From < 0 {
		params.From = 0
	}

	payload, err := json.Marshal(searchBody(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]Document, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}
	return &SearchResult{Total: parsed.Hits.Total.Value, Items: items}, nil
}

func searchBody(params SearchParams) map[string]any {
	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 3)

	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  params.Query,
				"fields": []string{"title^2", "description", "agency", "key_terms"},
			},
		})
	}
	if params.Region != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"region": params.Region}})
	}
	if params.Source != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"source": params.Source}})
	}
	if params.Matched != nil {
		filters = append(filters, map[string]any{"term": map[string]any{"keyword_match": *params.Matched}})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{{"match_all": map[string]any{}}}
	}
	return map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort":             []map[string]any{{"scraped_at": map[string]any{"order": "desc"}}},
	}
}
