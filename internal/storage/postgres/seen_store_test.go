package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/scottlangford2/research-scraper/internal/dedup"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

func TestNewSeenStoreValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewSeenStore(mock, "seen; DROP TABLE x")
	require.Error(t, err)
	_, err = NewSeenStore(nil, "")
	require.Error(t, err)
}

func TestSeenStoreSaveUpsertsAndPrunes(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSeenStore(mock, "")
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	entry := dedup.Entry{
		Hash:        "abc",
		Source:      rfp.SourceSocrata,
		SourceID:    "TX-1",
		Region:      "TX",
		Title:       "Fiscal impact study",
		FirstSeen:   now.Add(-48 * time.Hour),
		LastSeen:    now,
		Fingerprint: "fp1",
		Fields:      dedup.Snapshot{Agency: "Comptroller"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO seen_hashes").
		WithArgs("abc", "socrata", "TX-1", "TX", "Fiscal impact study",
			entry.FirstSeen, entry.LastSeen, "fp1", []byte(`{"agency":"Comptroller"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM seen_hashes").
		WithArgs([]string{"stale"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err = store.Save(context.Background(), dedup.Changes{Upserts: []dedup.Entry{entry}, Removed: []string{"stale"}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeenStoreSaveRollsBack(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSeenStore(mock, "seen_hashes")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO seen_hashes").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.Save(context.Background(), dedup.Changes{Upserts: []dedup.Entry{{Hash: "abc"}}})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeenStoreLoad(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSeenStore(mock, "")
	require.NoError(t, err)

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"hash", "source", "source_id", "region", "title", "first_seen", "last_seen", "fingerprint", "fields"}).
		AddRow("abc", "sam_gov", "N-1", "Federal", "Survey", first, first, "fp", []byte(`{"url":"https://sam.gov/x"}`)).
		AddRow("bad", "sam_gov", "N-2", "Federal", "Broken", first, first, "fp", []byte(`{not json`))
	mock.ExpectQuery("SELECT hash").WillReturnRows(rows)

	entries, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, rfp.SourceSAMGov, entries[0].Source)
	require.Equal(t, rfp.RegionFederal, entries[0].Region)
	require.Equal(t, "https://sam.gov/x", entries[0].Fields.URL)
	require.Empty(t, entries[1].Fingerprint)
	require.NoError(t, mock.ExpectationsWereMet())
}
