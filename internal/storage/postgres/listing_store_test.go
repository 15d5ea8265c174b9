package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/store"
)

func newListingStore(t *testing.T) (*ListingStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewListingStore(mock)
	require.NoError(t, err)
	return s, mock
}

func TestLoadLookups(t *testing.T) {
	t.Parallel()
	s, mock := newListingStore(t)

	mock.ExpectQuery("SELECT slug, id FROM categories").
		WillReturnRows(pgxmock.NewRows([]string{"slug", "id"}).AddRow("it", int64(6)).AddRow("other", int64(99)))
	mock.ExpectQuery("SELECT slug, id FROM regions").
		WillReturnRows(pgxmock.NewRows([]string{"slug", "id"}).AddRow("tbilisi", int64(1)))

	l, err := s.LoadLookups(context.Background())
	require.NoError(t, err)
	id, ok := l.CategoryID("marketing")
	require.True(t, ok)
	require.Equal(t, int64(99), id)
	require.Equal(t, int64(1), *l.RegionID("tbilisi"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindListingNotFound(t *testing.T) {
	t.Parallel()
	s, mock := newListingStore(t)

	mock.ExpectQuery("FROM jobs j").
		WithArgs("hrge", "42").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.FindListing(context.Background(), "hrge", "42")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertListingDuplicate(t *testing.T) {
	t.Parallel()
	s, mock := newListingStore(t)
	now := time.Unix(1700000000, 0).UTC()
	l := crawler.Listing{
		JobRecord:   crawler.JobRecord{Source: "jobsge", ExternalID: "101", Title: "Go developer", ContentHash: "abc"},
		CategoryID:  6,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}

	mock.ExpectQuery("INSERT INTO jobs").
		WithArgs(
			"jobsge", "101", "", "Go developer", "", "", "",
			"", "", l.RegionID, int64(6), "",
			"", "", l.SalaryMin, l.SalaryMax, "", "",
			l.PublishedAt, l.DeadlineAt, false, false,
			"abc", "", "",
			"active", now, now,
		).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	_, err := s.InsertListing(context.Background(), l)
	require.ErrorIs(t, err, store.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchListingMissing(t *testing.T) {
	t.Parallel()
	s, mock := newListingStore(t)
	now := time.Unix(1700000000, 0).UTC()
	region := int64(1)

	mock.ExpectExec("UPDATE jobs SET").
		WithArgs(int64(9), now, "Tbilisi", &region, "it").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.TouchListing(context.Background(), 9, now, crawler.ListingHints{Location: "Tbilisi", RegionID: &region, PartitionCategory: "it"})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateStaleScopedBySource(t *testing.T) {
	t.Parallel()
	s, mock := newListingStore(t)
	cutoff := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("source <> 'manual'").
		WithArgs("jobsge", cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	n, err := s.DeactivateStale(context.Background(), "jobsge", cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountUnqueued(t *testing.T) {
	t.Parallel()
	s, mock := newListingStore(t)

	mock.ExpectQuery("NOT EXISTS").
		WithArgs("").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))

	n, err := s.CountUnqueued(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, int64(12), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
