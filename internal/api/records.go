package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/dataset"
	"github.com/scottlangford2/research-scraper/internal/rfp"
	"github.com/scottlangford2/research-scraper/internal/search/elasticsearch"
)

const (
	defaultRecordLimit = 100
	maxRecordLimit     = 1000
	defaultTrendLimit  = 50
	maxTrendLimit      = 500
	defaultTrendWindow = 7
	defaultSearchLimit = 20
	maxSearchLimit     = 200
)

type recordsResponse struct {
	Count   int                      `json:"count"`
	Records []elasticsearch.Document `json:"records"`
}

// listRecords handles GET /v1/records?region=&source=&from=&to=&matched=&limit=&offset=.
// region and source accept comma-separated lists; from and to bound the
// scrape date inclusively.
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset unavailable")
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRecordLimit, maxRecordLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.records.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("dataset query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read dataset")
		return
	}
	total := len(records)
	records = page(records, offset, limit)
	docs := make([]elasticsearch.Document, 0, len(records))
	for _, rec := range records {
		docs = append(docs, elasticsearch.DocumentOf(rec))
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	writeJSON(w, http.StatusOK, recordsResponse{Count: len(docs), Records: docs})
}

// trending handles GET /v1/trending?window_days=&limit=. window_days=0
// ranks over the whole corpus.
func (s *Server) trending(w http.ResponseWriter, r *http.Request) {
	if s.records == nil || s.trends == nil {
		writeError(w, http.StatusServiceUnavailable, "analyzer unavailable")
		return
	}
	days := defaultTrendWindow
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "invalid window_days")
			return
		}
		days = v
	}
	limit, _, err := parseLimitOffset(r, defaultTrendLimit, maxTrendLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	corpus, err := s.records.Query(r.Context(), dataset.Filter{})
	if err != nil {
		s.logger.Error("dataset query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read dataset")
		return
	}
	terms := s.trends.Trending(corpus, time.Duration(days)*24*time.Hour)
	if len(terms) > limit {
		terms = terms[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"window_days": days,
		"documents":   len(corpus),
		"terms":       terms,
	})
}

// topTerms handles GET /v1/analysis/top-terms.
func (s *Server) topTerms(w http.ResponseWriter, r *http.Request) {
	if s.trends == nil {
		writeError(w, http.StatusServiceUnavailable, "analyzer unavailable")
		return
	}
	snap, err := s.trends.LoadSnapshot(r.Context())
	if err != nil {
		s.logger.Error("load snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read analysis")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no analysis yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// searchRecords handles GET /v1/search?q=&region=&source=&matched=&limit=&offset=.
func (s *Server) searchRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := parseLimitOffset(r, defaultSearchLimit, maxSearchLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	matched, err := parseOptionalBool(q.Get("matched"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid matched")
		return
	}
	params := elasticsearch.SearchParams{
		Query:   strings.TrimSpace(q.Get("q")),
		Region:  strings.TrimSpace(q.Get("region")),
		Source:  strings.TrimSpace(q.Get("source")),
		Matched: matched,
		From:    offset,
		Size:    limit,
	}
	res, err := s.search.Search(r.Context(), params)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "search backend error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseFilter(r *http.Request) (dataset.Filter, error) {
	q := r.URL.Query()
	var f dataset.Filter
	for _, raw := range splitList(q.Get("region")) {
		region, err := rfp.ParseRegion(raw)
		if err != nil {
			return f, err
		}
		f.Regions = append(f.Regions, region)
	}
	for _, raw := range splitList(q.Get("source")) {
		src, err := rfp.ParseSource(raw)
		if err != nil {
			return f, err
		}
		f.Sources = append(f.Sources, src)
	}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, ok := rfp.ParseDate(raw)
		if !ok {
			return f, errors.New("invalid " + key)
		}
		*dst = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, errors.New("to must not be before from")
	}
	matched, err := parseOptionalBool(q.Get("matched"))
	if err != nil {
		return f, errors.New("invalid matched")
	}
	f.Matched = matched
	return f, nil
}

func parseOptionalBool(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
