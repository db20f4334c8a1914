package ipc_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"spoilshield/internal/daemon"
	"spoilshield/internal/ipc"
	"spoilshield/internal/logging"
	"spoilshield/internal/store"
	"spoilshield/internal/testsupport"
)

type fixture struct {
	store  *store.Store
	daemon *daemon.Daemon
	client *ipc.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("cannot create unix socket in this environment: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	return &fixture{store: st, daemon: d, client: client}
}

func seedSession(t *testing.T, st *store.Store, season, episode int) *store.Session {
	t.Helper()
	return testsupport.NewSession(t, st, store.Identity{
		ShowID:    "44",
		ShowTitle: "Dark",
		Platform:  "netflix",
		Season:    season,
		Episode:   episode,
	})
}

func TestStatusReportsRunningDaemon(t *testing.T) {
	fx := newFixture(t)

	status, err := fx.client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.PID <= 0 {
		t.Fatalf("expected positive pid, got %d", status.PID)
	}
	if status.DatabasePath == "" {
		t.Fatal("expected database path in status")
	}
	if status.Phase == "" {
		t.Fatal("expected phase in status")
	}
}

func TestSessionListFiltersUnconfirmed(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	confirmed := seedSession(t, fx.store, 1, 4)
	seedSession(t, fx.store, 1, 5)
	if err := fx.store.ConfirmSession(ctx, confirmed.ID); err != nil {
		t.Fatalf("ConfirmSession: %v", err)
	}

	resp, err := fx.client.SessionList(false)
	if err != nil {
		t.Fatalf("SessionList: %v", err)
	}
	if len(resp.Sessions) != 1 {
		t.Fatalf("expected 1 confirmed session, got %d", len(resp.Sessions))
	}
	if resp.Sessions[0].ID != confirmed.ID {
		t.Fatalf("expected session %s, got %s", confirmed.ID, resp.Sessions[0].ID)
	}

	all, err := fx.client.SessionList(true)
	if err != nil {
		t.Fatalf("SessionList(include): %v", err)
	}
	if len(all.Sessions) != 2 {
		t.Fatalf("expected 2 sessions with unconfirmed included, got %d", len(all.Sessions))
	}
}

func TestSessionSwitchActivatesSession(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	session := seedSession(t, fx.store, 2, 1)
	if err := fx.store.ConfirmSession(ctx, session.ID); err != nil {
		t.Fatalf("ConfirmSession: %v", err)
	}

	resp, err := fx.client.SessionSwitch(session.ID)
	if err != nil {
		t.Fatalf("SessionSwitch: %v", err)
	}
	if !resp.Session.Active {
		t.Fatal("expected switched session to be active")
	}
	if resp.Session.ID != session.ID {
		t.Fatalf("expected session %s, got %s", session.ID, resp.Session.ID)
	}

	if _, err := fx.client.SessionSwitch("no-such-session"); err == nil {
		t.Fatal("expected error switching to unknown session")
	}
}

func TestSessionDeleteRemovesSession(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	session := seedSession(t, fx.store, 3, 2)
	if err := fx.store.ConfirmSession(ctx, session.ID); err != nil {
		t.Fatalf("ConfirmSession: %v", err)
	}

	resp, err := fx.client.SessionDelete(session.ID)
	if err != nil {
		t.Fatalf("SessionDelete: %v", err)
	}
	if !resp.Deleted {
		t.Fatal("expected deletion to be acknowledged")
	}

	list, err := fx.client.SessionList(true)
	if err != nil {
		t.Fatalf("SessionList: %v", err)
	}
	for _, s := range list.Sessions {
		if s.ID == session.ID {
			t.Fatalf("session %s still listed after delete", session.ID)
		}
	}
}

func TestRedetectAcknowledged(t *testing.T) {
	fx := newFixture(t)

	resp, err := fx.client.Redetect()
	if err != nil {
		t.Fatalf("Redetect: %v", err)
	}
	if !resp.Requested {
		t.Fatal("expected redetect to be acknowledged")
	}
}
