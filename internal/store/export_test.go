package store

import (
	"context"
	"testing"
)

// RenameSessionForTest rewrites a session ID in place so tests can stage
// pre-multisession database states.
func RenameSessionForTest(t testing.TB, s *Store, oldID, newID string) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin rename tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Both rows move inside one transaction; deferring the foreign key
	// check keeps the intermediate state legal.
	if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
		t.Fatalf("defer foreign keys: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET id = ? WHERE id = ?", newID, oldID); err != nil {
		t.Fatalf("rename session: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE messages SET session_id = ? WHERE session_id = ?", newID, oldID); err != nil {
		t.Fatalf("rename messages: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit rename: %v", err)
	}
}
