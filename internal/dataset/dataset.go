// Package dataset persists the classified corpus as a single snappy-compressed
// Parquet object keyed by content_hash, and serves filtered reads of it.
package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

const (
	// DefaultPath is the dataset object name in the blob store.
	DefaultPath = "data/rfps.parquet"
	// WarnSize is the encoded size above which Commit logs a warning.
	WarnSize = 500 << 20

	contentType = "application/vnd.apache.parquet"
)

// Store reads and rewrites the dataset object.
type Store struct {
	blobs  rfp.BlobStore
	path   string
	logger *zap.Logger
}

// New builds a Store over blobs. An empty path uses DefaultPath.
func New(blobs rfp.BlobStore, path string, logger *zap.Logger) *Store {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{blobs: blobs, path: path, logger: logger}
}

// Path is the dataset object name.
func (s *Store) Path() string { return s.path }

// Rows loads every stored row. A missing dataset is empty.
func (s *Store) Rows(ctx context.Context) ([]Row, error) {
	data, err := s.blobs.GetObject(ctx, s.path)
	if errors.Is(err, rfp.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	rows, err := parquet.Read[Row](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return rows, nil
}

// Commit merges changed records into the dataset by content_hash and
// replaces the object in one write. It returns the resulting row count.
// No changes means no write.
func (s *Store) Commit(ctx context.Context, changed []rfp.Record) (int, error) {
	existing, err := s.Rows(ctx)
	if err != nil {
		return 0, &rfp.PersistenceError{Op: "dataset", Err: err}
	}
	if len(changed) == 0 {
		return len(existing), nil
	}

	byHash := make(map[string]Row, len(existing)+len(changed))
	for _, row := range existing {
		byHash[row.ContentHash] = row
	}
	for _, r := range changed {
		if r.ContentHash == "" {
			return 0, &rfp.PersistenceError{Op: "dataset", Err: fmt.Errorf("record %s/%s has no content hash", r.Source, r.SourceID)}
		}
		byHash[r.ContentHash] = RowOf(r)
	}
	rows := make([]Row, 0, len(byHash))
	for _, row := range byHash {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ContentHash < rows[j].ContentHash })

	var buf bytes.Buffer
	if err := encode(&buf, rows); err != nil {
		return 0, &rfp.PersistenceError{Op: "dataset", Err: err}
	}
	size := buf.Len()
	if _, err := s.blobs.PutObject(ctx, s.path, contentType, &buf); err != nil {
		return 0, &rfp.PersistenceError{Op: "dataset", Err: err}
	}
	fields := []zap.Field{
		zap.String("path", s.path),
		zap.Int("changed", len(changed)),
		zap.Int("rows", len(rows)),
		zap.Float64("size_mb", float64(size)/(1<<20)),
	}
	if size > WarnSize {
		s.logger.Warn("dataset exceeds size threshold, consider partitioning", fields...)
	} else {
		s.logger.Info("dataset committed", fields...)
	}
	return len(rows), nil
}

func encode(buf *bytes.Buffer, rows []Row) error {
	w := parquet.NewGenericWriter[Row](buf, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("encode dataset rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close dataset writer: %w", err)
	}
	return nil
}

// Filter narrows Query results. Zero fields do not filter.
type Filter struct {
	Regions []rfp.Region
	Sources []rfp.Source
	// From and To bound the scrape date, inclusive.
	From    time.Time
	To      time.Time
	Matched *bool
	// Limit caps the result size when positive.
	Limit int
}

// Match reports whether r passes f.
func (f Filter) Match(r rfp.Record) bool {
	if len(f.Regions) > 0 && !slices.Contains(f.Regions, r.Region) {
		return false
	}
	if len(f.Sources) > 0 && !slices.Contains(f.Sources, r.Source) {
		return false
	}
	day := truncateDay(r.ScrapedAt)
	if !f.From.IsZero() && day.Before(truncateDay(f.From)) {
		return false
	}
	if !f.To.IsZero() && day.After(truncateDay(f.To)) {
		return false
	}
	if f.Matched != nil && r.KeywordMatch != *f.Matched {
		return false
	}
	return true
}

// Query returns the records passing f, newest scrape first then by hash.
func (s *Store) Query(ctx context.Context, f Filter) ([]rfp.Record, error) {
	rows, err := s.Rows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rfp.Record, 0, len(rows))
	for _, row := range rows {
		r := row.Record()
		if f.Match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ScrapedAt.Equal(out[j].ScrapedAt) {
			return out[i].ScrapedAt.After(out[j].ScrapedAt)
		}
		return out[i].ContentHash < out[j].ContentHash
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// All returns every stored record.
func (s *Store) All(ctx context.Context) ([]rfp.Record, error) {
	return s.Query(ctx, Filter{})
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
