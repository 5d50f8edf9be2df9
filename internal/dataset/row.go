package dataset

import (
	"strconv"
	"strings"
	"time"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

const listSep = ", "

// Row is the columnar form of one record, keyed by content_hash.
type Row struct {
	ContentHash     string   `parquet:"content_hash"`
	SourceID        string   `parquet:"source_id"`
	Source          string   `parquet:"source"`
	Region          string   `parquet:"region"`
	Title           string   `parquet:"title"`
	Agency          string   `parquet:"agency"`
	Status          string   `parquet:"status"`
	PostedDate      string   `parquet:"posted_date"`
	CloseDate       string   `parquet:"close_date"`
	URL             string   `parquet:"url"`
	Description     string   `parquet:"description"`
	Amount          *float64 `parquet:"amount,optional"`
	Recipient       string   `parquet:"recipient"`
	RecipientState  string   `parquet:"recipient_state"`
	PIName          string   `parquet:"pi_name"`
	KeywordMatch    bool     `parquet:"keyword_match"`
	MatchedKeywords string   `parquet:"matched_keywords"`
	KeyTerms        string   `parquet:"key_terms"`
	KeyTermScores   string   `parquet:"key_term_scores"`
	FirstSeen       string   `parquet:"first_seen"`
	ScrapeDate      string   `parquet:"scrape_date"`
	ScrapeTimestamp string   `parquet:"scrape_timestamp"`
}

// RowOf converts r to its stored form.
func RowOf(r rfp.Record) Row {
	terms := make([]string, len(r.KeyTerms))
	scores := make([]string, len(r.KeyTerms))
	for i, kt := range r.KeyTerms {
		terms[i] = kt.Term
		scores[i] = strconv.FormatFloat(kt.Score, 'f', 4, 64)
	}
	return Row{
		ContentHash:     r.ContentHash,
		SourceID:        r.SourceID,
		Source:          string(r.Source),
		Region:          string(r.Region),
		Title:           r.Title,
		Agency:          r.Agency,
		Status:          r.Status,
		PostedDate:      rfp.FormatDate(r.PostedDate),
		CloseDate:       rfp.FormatDate(r.CloseDate),
		URL:             r.URL,
		Description:     r.Description,
		Amount:          r.Amount,
		Recipient:       r.Recipient,
		RecipientState:  r.RecipientState,
		PIName:          r.PIName,
		KeywordMatch:    r.KeywordMatch,
		MatchedKeywords: strings.Join(r.MatchedKeywords, listSep),
		KeyTerms:        strings.Join(terms, listSep),
		KeyTermScores:   strings.Join(scores, listSep),
		FirstSeen:       formatTimestamp(r.FirstSeen),
		ScrapeDate:      rfp.FormatDate(r.ScrapedAt),
		ScrapeTimestamp: formatTimestamp(r.ScrapedAt),
	}
}

// Record converts the row back. Unparseable optional values come back zero.
func (row Row) Record() rfp.Record {
	r := rfp.Record{
		ContentHash:     row.ContentHash,
		SourceID:        row.SourceID,
		Source:          rfp.Source(row.Source),
		Region:          rfp.Region(row.Region),
		Title:           row.Title,
		Agency:          row.Agency,
		Status:          row.Status,
		URL:             row.URL,
		Description:     row.Description,
		Amount:          row.Amount,
		Recipient:       row.Recipient,
		RecipientState:  row.RecipientState,
		PIName:          row.PIName,
		KeywordMatch:    row.KeywordMatch,
		MatchedKeywords: splitList(row.MatchedKeywords),
		FirstSeen:       parseTimestamp(row.FirstSeen),
		ScrapedAt:       parseTimestamp(row.ScrapeTimestamp),
	}
	r.PostedDate, _ = rfp.ParseDate(row.PostedDate)
	r.CloseDate, _ = rfp.ParseDate(row.CloseDate)
	if r.MatchedKeywords == nil {
		r.MatchedKeywords = []string{}
	}
	terms := splitList(row.KeyTerms)
	scores := splitList(row.KeyTermScores)
	for i, term := range terms {
		kt := rfp.KeyTerm{Term: term}
		if i < len(scores) {
			kt.Score, _ = strconv.ParseFloat(scores[i], 64)
		}
		r.KeyTerms = append(r.KeyTerms, kt)
	}
	return r
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, listSep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
