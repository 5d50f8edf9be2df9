package dedup

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

const (
	shardCount = 32
	day        = 24 * time.Hour

	// DefaultTTLDays is how long an unseen hash is remembered.
	DefaultTTLDays = 90
	// HistoricalTTLDays effectively disables pruning for backfills.
	HistoricalTTLDays = 36500
)

var errNotOpen = errors.New("dedup store is not open")

// Config wires a Store.
type Config struct {
	Backend SeenStore
	Hasher  rfp.Hasher
	Clock   rfp.Clock
	TTL     time.Duration
	Logger  *zap.Logger
}

type shard struct {
	mu      sync.Mutex
	entries map[string]Entry
	staged  map[string]Claim
}

// Store resolves records against the seen-hash set. Resolve is safe for
// concurrent use; Open and Commit must not overlap with it.
type Store struct {
	backend SeenStore
	hasher  rfp.Hasher
	clock   rfp.Clock
	ttl     time.Duration
	logger  *zap.Logger

	shards [shardCount]*shard
	open   bool
	mu     sync.RWMutex
}

// New builds a closed Store. Call Open before resolving.
func New(cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("seen store backend is required")
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTLDays * day
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{backend: cfg.Backend, hasher: cfg.Hasher, clock: cfg.Clock, ttl: ttl, logger: logger}
	s.reset(nil)
	return s, nil
}

// TTLDays converts a day count to a TTL duration.
func TTLDays(days int) time.Duration {
	return time.Duration(days) * day
}

func (s *Store) reset(entries []Entry) {
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]Entry), staged: make(map[string]Claim)}
	}
	for _, e := range entries {
		s.shardFor(e.Hash).entries[e.Hash] = e
	}
}

func (s *Store) shardFor(hash string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(hash))
	return s.shards[h.Sum32()%shardCount]
}

// Open loads the seen set. An unreadable set is logged and replaced by an
// empty one, which makes every record NEW for this run.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.backend.Load(ctx)
	if err != nil {
		if !errors.Is(err, rfp.ErrDedupConflict) {
			return fmt.Errorf("load seen set: %w", err)
		}
		s.logger.Warn("seen set is corrupt, starting empty", zap.Error(err))
		entries = nil
	}
	s.reset(entries)
	s.open = true
	s.logger.Info("seen set loaded", zap.Int("entries", len(entries)))
	return nil
}

// Len reports the number of committed entries.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Resolve classifies r against the committed set and stages it. When two
// records of one run share a hash, the lexically smallest
// (source, source_id, fingerprint) is kept regardless of arrival order.
// r.ContentHash must already be set.
func (s *Store) Resolve(r rfp.Record) (Resolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return Resolution{}, errNotOpen
	}
	if r.ContentHash == "" {
		return Resolution{}, fmt.Errorf("record %q has no content hash", r.Title)
	}
	fp, err := rfp.Fingerprint(s.hasher, r)
	if err != nil {
		return Resolution{}, fmt.Errorf("fingerprint: %w", err)
	}

	sh := s.shardFor(r.ContentHash)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	res := Resolution{Status: StatusNew}
	r.FirstSeen = s.clock.Now()
	if prior, ok := sh.entries[r.ContentHash]; ok {
		switch {
		case !prior.intact(r.ContentHash):
			res.Conflict = true
			s.logger.Warn("prior seen entry is corrupt, treating as new",
				zap.String("hash", r.ContentHash),
				zap.Error(rfp.ErrDedupConflict),
			)
		case prior.Fingerprint == fp:
			res.Status = StatusUnchanged
			r.FirstSeen = prior.FirstSeen
		default:
			p := prior
			res.Status = StatusUpdated
			res.Prior = &p
			r.FirstSeen = prior.FirstSeen
		}
	}

	claim := Claim{Record: r, Fingerprint: fp, Resolution: res}
	if current, ok := sh.staged[r.ContentHash]; ok {
		winner, loser := current, claim
		if claim.less(current) {
			winner, loser = claim, current
		}
		s.logger.Info("duplicate hash within run",
			zap.String("hash", r.ContentHash),
			zap.String("kept_source", string(winner.Record.Source)),
			zap.String("dropped_source", string(loser.Record.Source)),
			zap.Bool("cross_source", winner.Record.Source != loser.Record.Source),
		)
		sh.staged[r.ContentHash] = winner
		return res, nil
	}
	sh.staged[r.ContentHash] = claim
	return res, nil
}

// Staged returns the winning claims of the current run ordered by hash.
func (s *Store) Staged() []Claim {
	var out []Claim
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, c := range sh.staged {
			out = append(out, c)
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.ContentHash < out[j].Record.ContentHash })
	return out
}

// Commit records the staged winners as seen at now, prunes entries whose
// last sighting is older than the TTL and saves the result. On failure the
// in-memory set is left as it was.
func (s *Store) Commit(ctx context.Context) (Changes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return Changes{}, errNotOpen
	}
	now := s.clock.Now()
	cutoff := now.Add(-s.ttl)

	next := make(map[string]Entry)
	var changes Changes
	for _, sh := range s.shards {
		for hash, e := range sh.entries {
			next[hash] = e
		}
	}
	for _, sh := range s.shards {
		for hash, c := range sh.staged {
			e := Entry{
				Hash:        hash,
				Source:      c.Record.Source,
				SourceID:    c.Record.SourceID,
				Region:      c.Record.Region,
				Title:       c.Record.Title,
				FirstSeen:   c.Record.FirstSeen,
				LastSeen:    now,
				Fingerprint: c.Fingerprint,
				Fields:      SnapshotOf(c.Record),
			}
			if prior, ok := next[hash]; ok && prior.intact(hash) {
				e.FirstSeen = prior.FirstSeen
			}
			if e.FirstSeen.IsZero() {
				e.FirstSeen = now
			}
			next[hash] = e
			changes.Upserts = append(changes.Upserts, e)
		}
	}
	for hash, e := range next {
		if e.LastSeen.Before(cutoff) {
			delete(next, hash)
			changes.Removed = append(changes.Removed, hash)
		}
	}
	changes.All = make([]Entry, 0, len(next))
	for _, e := range next {
		changes.All = append(changes.All, e)
	}
	sort.Slice(changes.Upserts, func(i, j int) bool { return changes.Upserts[i].Hash < changes.Upserts[j].Hash })
	sort.Strings(changes.Removed)
	sort.Slice(changes.All, func(i, j int) bool { return changes.All[i].Hash < changes.All[j].Hash })

	if err := s.backend.Save(ctx, changes); err != nil {
		return Changes{}, &rfp.PersistenceError{Op: "seen set", Err: err}
	}
	s.reset(changes.All)
	s.logger.Info("seen set committed",
		zap.Int("upserts", len(changes.Upserts)),
		zap.Int("pruned", len(changes.Removed)),
		zap.Int("entries", len(changes.All)),
	)
	return changes, nil
}

// Discard drops the staged claims without saving.
func (s *Store) Discard() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.staged = make(map[string]Claim)
		sh.mu.Unlock()
	}
}
