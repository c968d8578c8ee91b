package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/shortloop/shortloop/internal/shortener"
)

func TestURLStore_CreateInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewURLStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := shortener.URLRecord{
		ShortCode:   "abc123",
		OriginalURL: "https://example.com",
		CreatedAt:   now,
	}

	mock.ExpectExec("INSERT INTO urls").
		WithArgs(rec.ShortCode, rec.OriginalURL, rec.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestURLStore_CreateConflictReturnsCodeTaken(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewURLStore(mock)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO urls").
		WithArgs("abc123", "https://example.com", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err = store.Create(context.Background(), shortener.URLRecord{
		ShortCode:   "abc123",
		OriginalURL: "https://example.com",
		CreatedAt:   time.Now().UTC(),
	})
	require.ErrorIs(t, err, shortener.ErrCodeTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestURLStore_IncrementClicksReturnsNewValue(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewURLStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("UPDATE urls").
		WithArgs("abc123").
		WillReturnRows(pgxmock.NewRows([]string{"click_count"}).AddRow(int64(42)))

	clicks, err := store.IncrementClicks(context.Background(), "abc123")
	require.NoError(t, err)
	require.EqualValues(t, 42, clicks)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestURLStore_GetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewURLStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT short_code, original_url").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"short_code", "original_url", "created_at", "click_count"}))

	_, err = store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, shortener.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
