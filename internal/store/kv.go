package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetValue stores a value under key, replacing any previous value.
func (s *Store) SetValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set kv %q: %w", key, err)
	}
	return nil
}

// GetValue returns the value stored under key. The bool reports presence;
// an absent key is not an error.
func (s *Store) GetValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv %q: %w", key, err)
	}
	return value, true, nil
}

// DeleteValue removes a key. Deleting an absent key is a no-op.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete kv %q: %w", key, err)
	}
	return nil
}

// ListValues returns all key/value pairs whose key starts with prefix.
func (s *Store) ListValues(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM kv WHERE key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("list kv %q: %w", prefix, err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan kv: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kv: %w", err)
	}
	return values, nil
}

func escapeLike(value string) string {
	escaped := make([]byte, 0, len(value))
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '%', '_', '\\':
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, value[i])
	}
	return string(escaped)
}
