package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/scottlangford2/research-scraper/internal/dedup"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// SeenStore keeps the seen set in a table keyed by content hash:
//
//	CREATE TABLE seen_hashes (
//	    hash        text PRIMARY KEY,
//	    source      text NOT NULL,
//	    source_id   text NOT NULL DEFAULT '',
//	    region      text NOT NULL,
//	    title       text NOT NULL,
//	    first_seen  timestamptz NOT NULL,
//	    last_seen   timestamptz NOT NULL,
//	    fingerprint text NOT NULL,
//	    fields      jsonb NOT NULL
//	);
type SeenStore struct {
	pool  Pool
	table string
}

// NewSeenStore wraps pool. table defaults to seen_hashes.
func NewSeenStore(pool Pool, table string) (*SeenStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "seen_hashes")
	if err != nil {
		return nil, err
	}
	return &SeenStore{pool: pool, table: table}, nil
}

// Load reads every entry. Rows whose fields cannot be decoded come back
// with an empty fingerprint so the dedup store treats them as corrupt.
func (s *SeenStore) Load(ctx context.Context) ([]dedup.Entry, error) {
	query := fmt.Sprintf(`
SELECT hash, source, source_id, region, title, first_seen, last_seen, fingerprint, fields
FROM %s`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query seen set: %w", err)
	}
	defer rows.Close()

	var out []dedup.Entry
	for rows.Next() {
		var (
			e      dedup.Entry
			source string
			region string
			fields []byte
		)
		if err := rows.Scan(&e.Hash, &source, &e.SourceID, &region, &e.Title,
			&e.FirstSeen, &e.LastSeen, &e.Fingerprint, &fields); err != nil {
			return nil, fmt.Errorf("scan seen row: %w", err)
		}
		e.Source = rfp.Source(source)
		e.Region = rfp.Region(region)
		if err := json.Unmarshal(fields, &e.Fields); err != nil {
			e.Fingerprint = ""
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seen rows: %w", err)
	}
	return out, nil
}

// Save applies upserts and deletions in one transaction.
func (s *SeenStore) Save(ctx context.Context, changes dedup.Changes) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	upsert := fmt.Sprintf(`
INSERT INTO %s (hash, source, source_id, region, title, first_seen, last_seen, fingerprint, fields)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (hash) DO UPDATE SET
	source = EXCLUDED.source,
	source_id = EXCLUDED.source_id,
	region = EXCLUDED.region,
	title = EXCLUDED.title,
	first_seen = EXCLUDED.first_seen,
	last_seen = EXCLUDED.last_seen,
	fingerprint = EXCLUDED.fingerprint,
	fields = EXCLUDED.fields`, s.table)
	for _, e := range changes.Upserts {
		fields, mErr := json.Marshal(e.Fields)
		if mErr != nil {
			return fmt.Errorf("marshal fields: %w", mErr)
		}
		if _, err = tx.Exec(ctx, upsert, e.Hash, string(e.Source), e.SourceID, string(e.Region),
			e.Title, e.FirstSeen, e.LastSeen, e.Fingerprint, fields); err != nil {
			return fmt.Errorf("upsert %s: %w", e.Hash, err)
		}
	}
	if len(changes.Removed) > 0 {
		del := fmt.Sprintf(`DELETE FROM %s WHERE hash = ANY($1)`, s.table)
		if _, err = tx.Exec(ctx, del, changes.Removed); err != nil {
			return fmt.Errorf("prune: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var _ dedup.SeenStore = (*SeenStore)(nil)
