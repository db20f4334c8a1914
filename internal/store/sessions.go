package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound indicates a lookup for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

const sessionColumns = `id, show_id, show_title, platform, season, episode,
    confirmed, context, sync_message_count, created_at, last_message_at, updated_at`

// LoadOrCreateSession returns the session for the identity, creating it when
// absent. The bool reports whether a new session was created. Creating past
// the retention cap evicts the session with the oldest last message along
// with its message log.
func (s *Store) LoadOrCreateSession(ctx context.Context, identity Identity) (*Session, bool, error) {
	id := MakeSessionID(identity)

	session, err := s.GetSession(ctx, id)
	if err == nil {
		// Re-detecting an existing session counts as activity, so bump
		// last_message_at to keep it out of eviction's reach.
		if err := s.TouchSession(ctx, id); err != nil {
			return nil, false, err
		}
		session, err = s.GetSession(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return session, false, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	adopted, err := adoptLegacySession(ctx, tx, id, identity)
	if err != nil {
		return nil, false, err
	}
	if !adopted {
		now := timestamp(time.Now())
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (
                id, show_id, show_title, platform, season, episode,
                confirmed, context, sync_message_count, created_at, last_message_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, 0, '', 0, ?, ?, ?)`,
			id, identity.ShowID, identity.ShowTitle, identity.Platform,
			identity.Season, identity.Episode, now, now, now,
		)
		if err != nil {
			return nil, false, fmt.Errorf("insert session: %w", err)
		}
	}

	if err := evictExcessSessions(ctx, tx, s.maxSessions, id); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit session: %w", err)
	}

	session, err = s.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// adoptLegacySession migrates a pre-multisession row onto the new identity so
// its context and message log carry over instead of starting fresh. Rewriting
// the primary key in place would trip the messages foreign key, so the new
// row is inserted first, the message log repointed, and the legacy row
// deleted last. The adopted session was already in use, so it lands
// confirmed.
func adoptLegacySession(ctx context.Context, tx *sql.Tx, id string, identity Identity) (bool, error) {
	var contextText, createdAt string
	var syncCount int
	err := tx.QueryRowContext(ctx,
		"SELECT context, sync_message_count, created_at FROM sessions WHERE id = ?",
		LegacySessionID,
	).Scan(&contextText, &syncCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("adopt legacy session: %w", err)
	}

	now := timestamp(time.Now())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (
            id, show_id, show_title, platform, season, episode,
            confirmed, context, sync_message_count, created_at, last_message_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)`,
		id, identity.ShowID, identity.ShowTitle, identity.Platform,
		identity.Season, identity.Episode, contextText, syncCount, createdAt, now, now,
	); err != nil {
		return false, fmt.Errorf("adopt legacy session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE messages SET session_id = ? WHERE session_id = ?", id, LegacySessionID,
	); err != nil {
		return false, fmt.Errorf("migrate legacy messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sessions WHERE id = ?", LegacySessionID,
	); err != nil {
		return false, fmt.Errorf("drop legacy session: %w", err)
	}
	return true, nil
}

func evictExcessSessions(ctx context.Context, tx *sql.Tx, max int, keep string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM sessions WHERE id != ?
         ORDER BY last_message_at DESC, created_at DESC`, keep)
	if err != nil {
		return fmt.Errorf("list sessions for eviction: %w", err)
	}
	defer rows.Close()

	var evict []string
	count := 1
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan session id: %w", err)
		}
		count++
		if count > max {
			evict = append(evict, id)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate sessions: %w", err)
	}

	for _, id := range evict {
		// ON DELETE CASCADE drops the message log with the session.
		if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
			return fmt.Errorf("evict session %s: %w", id, err)
		}
	}
	return nil
}

// GetSession returns the session with the given ID.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// ListSessions returns all sessions ordered by most recent message first.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions ORDER BY last_message_at DESC, created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and its message log.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// UpdateContext replaces the accumulated subtitle context for a session.
func (s *Store) UpdateContext(ctx context.Context, id, contextText string) error {
	return s.updateSessionField(ctx, id,
		"UPDATE sessions SET context = ?, updated_at = ? WHERE id = ?", contextText)
}

// ConfirmSession marks the session's episode identity as user-confirmed.
func (s *Store) ConfirmSession(ctx context.Context, id string) error {
	return s.updateSessionField(ctx, id,
		"UPDATE sessions SET confirmed = 1, updated_at = ? WHERE id = ?")
}

// SetSyncMessageCount records how many messages have been delivered to the
// viewing context so far. A session that has exchanged messages is in active
// use, so syncing also marks it confirmed and visible in history listings.
func (s *Store) SetSyncMessageCount(ctx context.Context, id string, count int) error {
	return s.updateSessionField(ctx, id,
		"UPDATE sessions SET sync_message_count = ?, confirmed = 1, updated_at = ? WHERE id = ?", count)
}

// TouchSession bumps last_message_at so recency-ordered eviction and history
// listings treat the session as just used.
func (s *Store) TouchSession(ctx context.Context, id string) error {
	return s.updateSessionField(ctx, id,
		"UPDATE sessions SET last_message_at = ?, updated_at = ? WHERE id = ?",
		timestamp(time.Now()))
}

func (s *Store) updateSessionField(ctx context.Context, id, query string, args ...any) error {
	params := append(args, timestamp(time.Now()), id)
	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		session                            Session
		confirmed                          int
		createdAt, lastMessageAt, updateAt string
	)
	err := row.Scan(
		&session.ID, &session.ShowID, &session.ShowTitle, &session.Platform,
		&session.Season, &session.Episode, &confirmed, &session.Context,
		&session.SyncMessageCount, &createdAt, &lastMessageAt, &updateAt,
	)
	if err != nil {
		return nil, err
	}
	session.Confirmed = confirmed != 0
	session.CreatedAt = parseTimestamp(createdAt)
	session.LastMessageAt = parseTimestamp(lastMessageAt)
	session.UpdatedAt = parseTimestamp(updateAt)
	return &session, nil
}
