package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docresolver/internal/document"
)

func TestStoreResolutionInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResolutionStoreWithPool(mock, "resolutions")
	require.NoError(t, err)

	rec := document.ResolutionRecord{
		ID:          "0190c6b0-0000-7000-8000-000000000000",
		Identifier:  "10.1234/example",
		Kind:        document.KindDOI,
		SourceURL:   "https://mirror-b/store/content.pdf",
		Mirror:      "https://mirror-b",
		Name:        "Example.pdf",
		Location:    "/tmp/Example.pdf",
		Hash:        "abc123",
		ContentType: "application/pdf",
		SizeBytes:   42,
		DurationMs:  12,
		ResolvedAt:  time.Unix(1700000000, 0).UTC(),
	}

	mock.ExpectExec("INSERT INTO resolutions").
		WithArgs(
			rec.ID,
			rec.Identifier,
			"doi",
			rec.SourceURL,
			rec.Mirror,
			rec.Name,
			rec.Location,
			rec.Hash,
			rec.ContentType,
			rec.SizeBytes,
			rec.DurationMs,
			rec.ResolvedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.StoreResolution(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreResolutionPropagatesErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResolutionStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO resolutions").WillReturnError(errors.New("boom"))
	err = store.StoreResolution(context.Background(), document.ResolutionRecord{ID: "x"})
	require.ErrorContains(t, err, "insert resolution")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreResolutionRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResolutionStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, store.StoreResolution(context.Background(), document.ResolutionRecord{}))

	var nilStore *ResolutionStore
	require.Error(t, nilStore.StoreResolution(context.Background(), document.ResolutionRecord{ID: "x"}))
	nilStore.Close()
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResolutionStoreWithPool(mock, "ledger")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ledger").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableNameValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewResolutionStoreWithPool(mock, "bad;name")
	require.Error(t, err)
	_, err = NewResolutionStoreWithPool(nil, "")
	require.Error(t, err)
	_, err = NewResolutionStore(context.Background(), Config{})
	require.Error(t, err)
}
