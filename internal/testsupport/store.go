package testsupport

import (
	"context"
	"testing"

	"spoilshield/internal/config"
	"spoilshield/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg.DatabasePath(), store.Options{MaxSessions: cfg.Sessions.Max})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewSession creates a session for tests using the provided store.
func NewSession(t testing.TB, st *store.Store, identity store.Identity) *store.Session {
	t.Helper()

	session, _, err := st.LoadOrCreateSession(context.Background(), identity)
	if err != nil {
		t.Fatalf("store.LoadOrCreateSession: %v", err)
	}
	return session
}
