package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spoilshield/internal/config"
	"spoilshield/internal/daemon"
	"spoilshield/internal/ipc"
	"spoilshield/internal/logging"
	"spoilshield/internal/store"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
}

func writeTestConfig(t *testing.T, path, base string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"
socket_path = %q
`, filepath.Join(base, "state"), filepath.Join(base, "logs"), filepath.Join(base, "cli.sock"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, base)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	st, err := store.Open(cfg.DatabasePath(), store.Options{MaxSessions: cfg.Sessions.Max})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	d, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			cancel()
			d.Stop()
			st.Close()
			t.Skipf("cannot create unix socket in this environment: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
		st.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		server:     srv,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLIStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Running") || !strings.Contains(out, "pid") {
		t.Fatalf("unexpected status output: %q", out)
	}
	if !strings.Contains(out, "Stored sessions") {
		t.Fatalf("status missing session count: %q", out)
	}
}

func TestCLISessionsCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	confirmed, _, err := env.store.LoadOrCreateSession(ctx, store.Identity{
		ShowID: "44", ShowTitle: "Dark", Platform: "netflix", Season: 1, Episode: 4,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := env.store.ConfirmSession(ctx, confirmed.ID); err != nil {
		t.Fatalf("confirm session: %v", err)
	}
	if _, _, err := env.store.LoadOrCreateSession(ctx, store.Identity{
		ShowID: "87", ShowTitle: "Severance", Platform: "netflix", Season: 2, Episode: 1,
	}); err != nil {
		t.Fatalf("create unconfirmed session: %v", err)
	}

	out, _, err := runCLI(t, []string{"sessions", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sessions list: %v", err)
	}
	if !strings.Contains(out, "Dark") {
		t.Fatalf("sessions list missing confirmed session: %q", out)
	}
	if strings.Contains(out, "Severance") {
		t.Fatalf("sessions list leaked unconfirmed session: %q", out)
	}

	out, _, err = runCLI(t, []string{"sessions", "list", "--all"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sessions list --all: %v", err)
	}
	if !strings.Contains(out, "Severance") {
		t.Fatalf("sessions list --all missing unconfirmed session: %q", out)
	}

	out, _, err = runCLI(t, []string{"sessions", "switch", confirmed.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sessions switch: %v", err)
	}
	if !strings.Contains(out, "Switched to "+confirmed.ID) {
		t.Fatalf("unexpected switch output: %q", out)
	}

	out, _, err = runCLI(t, []string{"sessions", "delete", confirmed.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sessions delete: %v", err)
	}
	if !strings.Contains(out, "Deleted session") {
		t.Fatalf("unexpected delete output: %q", out)
	}

	out, _, err = runCLI(t, []string{"sessions", "list", "--all"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sessions list after delete: %v", err)
	}
	if strings.Contains(out, "Dark") {
		t.Fatalf("deleted session still listed: %q", out)
	}
}

func TestCLIRedetectCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"redetect"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("redetect: %v", err)
	}
	if !strings.Contains(out, "Redetect requested") {
		t.Fatalf("unexpected redetect output: %q", out)
	}
}

func TestCLILogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	logPath := filepath.Join(env.cfg.Paths.LogDir, "spoilshieldd.log")
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--lines", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "first") || !strings.Contains(out, "second") || !strings.Contains(out, "third") {
		t.Fatalf("unexpected logs output: %q", out)
	}
}

func TestCLIConfigInitCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}
	if !strings.Contains(stdout.String(), "Wrote sample configuration") {
		t.Fatalf("unexpected init output: %q", stdout.String())
	}

	cmd = newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error when config already exists")
	}
}
