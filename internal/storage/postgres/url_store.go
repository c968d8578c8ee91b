package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shortloop/shortloop/internal/shortener"
)

// URLStore persists short code mappings in Postgres.
type URLStore struct {
	db querier
}

// NewURLStore constructs a URLStore over the given pool.
func NewURLStore(db querier) (*URLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &URLStore{db: db}, nil
}

// Create inserts a new record. A conflicting short code yields ErrCodeTaken.
func (s *URLStore) Create(ctx context.Context, rec shortener.URLRecord) error {
	tag, err := s.db.Exec(ctx, `
INSERT INTO urls (short_code, original_url, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (short_code) DO NOTHING`,
		rec.ShortCode, rec.OriginalURL, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shortener.ErrCodeTaken
	}
	return nil
}

// Get returns the record for a short code.
func (s *URLStore) Get(ctx context.Context, shortCode string) (shortener.URLRecord, error) {
	var rec shortener.URLRecord
	err := s.db.QueryRow(ctx, `
SELECT short_code, original_url, created_at, click_count
FROM urls
WHERE short_code = $1`,
		shortCode).Scan(&rec.ShortCode, &rec.OriginalURL, &rec.CreatedAt, &rec.ClickCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortener.URLRecord{}, shortener.ErrNotFound
		}
		return shortener.URLRecord{}, fmt.Errorf("select url: %w", err)
	}
	return rec, nil
}

// IncrementClicks bumps the counter in a single atomic UPDATE. The stats
// path reads the same committed value, never a half-applied increment.
func (s *URLStore) IncrementClicks(ctx context.Context, shortCode string) (int64, error) {
	var clicks int64
	err := s.db.QueryRow(ctx, `
UPDATE urls
SET click_count = click_count + 1
WHERE short_code = $1
RETURNING click_count`,
		shortCode).Scan(&clicks)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shortener.ErrNotFound
		}
		return 0, fmt.Errorf("increment clicks: %w", err)
	}
	return clicks, nil
}
