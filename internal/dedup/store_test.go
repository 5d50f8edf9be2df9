package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/scottlangford2/research-scraper/internal/hash/sha256"
	"github.com/scottlangford2/research-scraper/internal/rfp"
	"github.com/scottlangford2/research-scraper/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingSeenStore struct{ entries []Entry }

func (f *failingSeenStore) Load(context.Context) ([]Entry, error) { return f.entries, nil }
func (f *failingSeenStore) Save(context.Context, Changes) error   { return errors.New("bucket gone") }

func newStore(t *testing.T, backend SeenStore, clk rfp.Clock, logger *zap.Logger) *Store {
	t.Helper()
	s, err := New(Config{Backend: backend, Hasher: sha256.New(), Clock: clk, Logger: logger})
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	return s
}

func stamped(t *testing.T, r rfp.Record) rfp.Record {
	t.Helper()
	_, err := sha256.New().Stamp(&r)
	require.NoError(t, err)
	return r
}

func TestResolveIdempotentAcrossRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := memory.NewBlobStore()
	clk := &fakeClock{now: time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)}
	records := []rfp.Record{
		stamped(t, rfp.Record{Source: rfp.SourceSocrata, Region: "TX", SourceID: "1", Title: "Transit study"}),
		stamped(t, rfp.Record{Source: rfp.SourceSAMGov, Region: rfp.RegionFederal, SourceID: "N-2", Title: "Pension review"}),
	}

	run := func() []Status {
		s := newStore(t, NewBlobSeenStore(blobs, ""), clk, nil)
		var out []Status
		for _, r := range records {
			res, err := s.Resolve(r)
			require.NoError(t, err)
			out = append(out, res.Status)
		}
		_, err := s.Commit(ctx)
		require.NoError(t, err)
		return out
	}

	require.Equal(t, []Status{StatusNew, StatusNew}, run())
	clk.Advance(24 * time.Hour)
	require.Equal(t, []Status{StatusUnchanged, StatusUnchanged}, run())
}

func TestResolveAmountRevealIsUpdated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := memory.NewBlobStore()
	clk := &fakeClock{now: time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)}
	base := rfp.Record{Source: rfp.SourceGrantsGov, Region: rfp.RegionFederal, SourceID: "G-7", Title: "Workforce study"}

	first := newStore(t, NewBlobSeenStore(blobs, ""), clk, nil)
	r1 := stamped(t, base)
	res, err := first.Resolve(r1)
	require.NoError(t, err)
	require.Equal(t, StatusNew, res.Status)
	_, err = first.Commit(ctx)
	require.NoError(t, err)
	firstSeen := clk.Now()

	clk.Advance(48 * time.Hour)
	second := newStore(t, NewBlobSeenStore(blobs, ""), clk, nil)
	amount := 50000.0
	withAmount := base
	withAmount.Amount = &amount
	r2 := stamped(t, withAmount)
	require.Equal(t, r1.ContentHash, r2.ContentHash)

	res, err = second.Resolve(r2)
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, res.Status)
	require.NotNil(t, res.Prior)
	require.Nil(t, res.Prior.Fields.Amount)
	require.Equal(t, []string{"amount"}, res.Prior.Fields.Changed(SnapshotOf(r2)))

	staged := second.Staged()
	require.Len(t, staged, 1)
	require.Equal(t, firstSeen, staged[0].Record.FirstSeen)
	require.Equal(t, 50000.0, *staged[0].Record.Amount)

	changes, err := second.Commit(ctx)
	require.NoError(t, err)
	require.Len(t, changes.All, 1)
	require.Equal(t, firstSeen, changes.All[0].FirstSeen)
	require.Equal(t, clk.Now(), changes.All[0].LastSeen)
	require.Equal(t, 50000.0, *changes.All[0].Fields.Amount)
}

func TestResolveTieBreakIndependentOfOrder(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}
	a := stamped(t, rfp.Record{Source: rfp.SourceStatePortals, Region: "NC", SourceID: "77", Title: "Housing policy review", URL: "https://portal"})
	b := stamped(t, rfp.Record{Source: rfp.SourceNCEVP, Region: "NC", SourceID: "77", Title: "Housing policy review", URL: "https://evp"})
	require.Equal(t, a.ContentHash, b.ContentHash)

	for _, order := range [][]rfp.Record{{a, b}, {b, a}} {
		core, logs := observer.New(zapcore.InfoLevel)
		s := newStore(t, NewBlobSeenStore(memory.NewBlobStore(), ""), clk, zap.New(core))
		for _, r := range order {
			_, err := s.Resolve(r)
			require.NoError(t, err)
		}
		staged := s.Staged()
		require.Len(t, staged, 1)
		require.Equal(t, rfp.SourceNCEVP, staged[0].Record.Source)

		dups := logs.FilterMessage("duplicate hash within run").All()
		require.Len(t, dups, 1)
		require.Equal(t, true, dups[0].ContextMap()["cross_source"])
	}
}

func TestResolveCorruptPriorIsNew(t *testing.T) {
	t.Parallel()

	r := stamped(t, rfp.Record{Source: rfp.SourceSocrata, Region: "WA", SourceID: "9", Title: "Data analytics"})
	backend := &failingSeenStore{entries: []Entry{{Hash: r.ContentHash, Fingerprint: "", FirstSeen: time.Time{}}}}
	core, logs := observer.New(zapcore.WarnLevel)
	s := newStore(t, backend, &fakeClock{now: time.Now().UTC()}, zap.New(core))

	res, err := s.Resolve(r)
	require.NoError(t, err)
	require.Equal(t, StatusNew, res.Status)
	require.True(t, res.Conflict)
	require.Nil(t, res.Prior)
	require.Equal(t, 1, logs.FilterMessage("prior seen entry is corrupt, treating as new").Len())
}

func TestOpenRecoversFromCorruptSeenFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := memory.NewBlobStore()
	_, err := blobs.PutObject(ctx, DefaultSeenPath, "application/json", stringsReader("{garbage"))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	s := newStore(t, NewBlobSeenStore(blobs, ""), &fakeClock{now: time.Now().UTC()}, zap.New(core))
	require.Equal(t, 0, s.Len())
	require.Equal(t, 1, logs.FilterMessage("seen set is corrupt, starting empty").Len())
}

func TestCommitPrunesByLastSeen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := memory.NewBlobStore()
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	old := stamped(t, rfp.Record{Source: rfp.SourceSocrata, Region: "MD", SourceID: "1", Title: "Old"})
	kept := stamped(t, rfp.Record{Source: rfp.SourceSocrata, Region: "MD", SourceID: "2", Title: "Kept"})

	s := newStore(t, NewBlobSeenStore(blobs, ""), clk, nil)
	for _, r := range []rfp.Record{old, kept} {
		_, err := s.Resolve(r)
		require.NoError(t, err)
	}
	_, err := s.Commit(ctx)
	require.NoError(t, err)

	clk.Advance(60 * 24 * time.Hour)
	s = newStore(t, NewBlobSeenStore(blobs, ""), clk, nil)
	_, err = s.Resolve(kept)
	require.NoError(t, err)
	_, err = s.Commit(ctx)
	require.NoError(t, err)

	clk.Advance(31 * 24 * time.Hour)
	s = newStore(t, NewBlobSeenStore(blobs, ""), clk, nil)
	changes, err := s.Commit(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{old.ContentHash}, changes.Removed)
	require.Equal(t, 1, s.Len())
}

func TestCommitFailureKeepsState(t *testing.T) {
	t.Parallel()

	r := stamped(t, rfp.Record{Source: rfp.SourceSocrata, Region: "NY", SourceID: "5", Title: "Survey"})
	s := newStore(t, &failingSeenStore{}, &fakeClock{now: time.Now().UTC()}, nil)
	_, err := s.Resolve(r)
	require.NoError(t, err)

	_, err = s.Commit(context.Background())
	var persistErr *rfp.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	require.Equal(t, 0, s.Len())
	require.Len(t, s.Staged(), 1)
}

func TestResolveConcurrent(t *testing.T) {
	t.Parallel()

	s := newStore(t, NewBlobSeenStore(memory.NewBlobStore(), ""), &fakeClock{now: time.Now().UTC()}, nil)
	var wg sync.WaitGroup
	for worker := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				r := stamped(t, rfp.Record{
					Source:   rfp.Sources()[worker].Source,
					Region:   "TX",
					SourceID: fmt.Sprintf("id-%d", i),
					Title:    fmt.Sprintf("Listing %d", i),
				})
				_, err := s.Resolve(r)
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	staged := s.Staged()
	require.Len(t, staged, 50)
	for _, c := range staged {
		require.Equal(t, rfp.SourceFederalRegister, c.Record.Source)
	}
}

func TestResolveRequiresOpenAndHash(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Backend: &failingSeenStore{}, Hasher: sha256.New(), Clock: &fakeClock{}})
	require.NoError(t, err)
	_, err = s.Resolve(rfp.Record{ContentHash: "x"})
	require.Error(t, err)

	require.NoError(t, s.Open(context.Background()))
	_, err = s.Resolve(rfp.Record{Title: "no hash"})
	require.Error(t, err)

	_, err = New(Config{})
	require.Error(t, err)
}
