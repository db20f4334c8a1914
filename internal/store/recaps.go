package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CachedRecap is one stored episode recap.
type CachedRecap struct {
	CacheKey  string
	Source    string
	Recap     string
	Sanitized bool
	CreatedAt time.Time
}

// GetRecap returns the cached recap under key if present and younger than
// ttl. Expired entries are removed and reported as a miss.
func (s *Store) GetRecap(ctx context.Context, key string, ttl time.Duration) (*CachedRecap, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT cache_key, source, recap, sanitized, created_at FROM recap_cache WHERE cache_key = ?", key)

	var (
		cached    CachedRecap
		sanitized int
		createdAt string
	)
	err := row.Scan(&cached.CacheKey, &cached.Source, &cached.Recap, &sanitized, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get recap %q: %w", key, err)
	}
	cached.Sanitized = sanitized != 0
	cached.CreatedAt = parseTimestamp(createdAt)

	if ttl > 0 && time.Since(cached.CreatedAt) > ttl {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM recap_cache WHERE cache_key = ?", key); err != nil {
			return nil, false, fmt.Errorf("expire recap %q: %w", key, err)
		}
		return nil, false, nil
	}
	return &cached, true, nil
}

// PutRecap stores a recap under key, replacing any previous entry.
func (s *Store) PutRecap(ctx context.Context, recap CachedRecap) error {
	createdAt := recap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	sanitized := 0
	if recap.Sanitized {
		sanitized = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recap_cache (cache_key, source, recap, sanitized, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(cache_key) DO UPDATE SET
             source = excluded.source, recap = excluded.recap,
             sanitized = excluded.sanitized, created_at = excluded.created_at`,
		recap.CacheKey, recap.Source, recap.Recap, sanitized, timestamp(createdAt),
	)
	if err != nil {
		return fmt.Errorf("put recap %q: %w", recap.CacheKey, err)
	}
	return nil
}

// DeleteRecap removes a cached recap. Deleting an absent key is a no-op.
func (s *Store) DeleteRecap(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM recap_cache WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("delete recap %q: %w", key, err)
	}
	return nil
}
