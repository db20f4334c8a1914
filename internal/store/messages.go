package store

import (
	"context"
	"fmt"
	"time"
)

// AppendMessage adds a chat message to a session's log and advances the
// session's last message timestamp, which drives eviction ordering.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin message tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)",
		sessionID, role, content, timestamp(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	updated, err := tx.ExecContext(ctx,
		"UPDATE sessions SET last_message_at = ?, updated_at = ? WHERE id = ?",
		timestamp(now), timestamp(now), sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	if affected, err := updated.RowsAffected(); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	} else if affected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}

	return &Message{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now.UTC(),
	}, nil
}

// ListMessages returns a session's message log in insertion order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var (
			message   Message
			createdAt string
		)
		if err := rows.Scan(&message.ID, &message.SessionID, &message.Role, &message.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		message.CreatedAt = parseTimestamp(createdAt)
		messages = append(messages, &message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// CountMessages returns the number of messages logged for a session.
func (s *Store) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM messages WHERE session_id = ?", sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}
