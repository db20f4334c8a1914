package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"spoilshield/internal/daemon"
	"spoilshield/internal/logging"
	"spoilshield/internal/relay"
	"spoilshield/internal/testsupport"
)

func startDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestSecondInstanceCannotStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(first.Stop)

	cfg.Paths.APIBind = "127.0.0.1:0"
	second, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance acquired the lock")
	}
}

func TestFailedStartLeavesDaemonQuiescent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "203.0.113.1:0" // unroutable, listen must fail
	st := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		d.Stop()
		t.Fatal("expected Start to fail on unroutable bind")
	}

	// The background goroutines were handed a cancelled context; give them
	// a beat to wind down without panicking.
	time.Sleep(50 * time.Millisecond)
	d.Redetect(context.Background())
	if status := d.Status(context.Background()); status.Running {
		t.Fatal("daemon should not report running after failed start")
	}
}

func TestMutationIngestReachesState(t *testing.T) {
	d := startDaemon(t)
	base := "http://" + d.APIAddr()

	resp := postJSON(t, base+"/api/ingest/mutations", map[string]any{
		"tabId":    7,
		"url":      "https://www.crunchyroll.com/watch/x",
		"platform": "crunchyroll",
		"entries": []map[string]any{
			{"text": "I never asked for this power.", "area": 1200},
		},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status = %d", resp.StatusCode)
	}

	stateResp, err := http.Get(base + "/api/state?tab=7")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	defer stateResp.Body.Close()
	var state struct {
		Context *relay.ContextEnvelope `json:"context"`
	}
	if err := json.NewDecoder(stateResp.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Context == nil || state.Context.Context != "I never asked for this power." {
		t.Fatalf("state context = %#v", state.Context)
	}
}

func TestOversizedElementIsIgnored(t *testing.T) {
	d := startDaemon(t)
	base := "http://" + d.APIAddr()

	resp := postJSON(t, base+"/api/ingest/mutations", map[string]any{
		"tabId":    7,
		"url":      "https://www.crunchyroll.com/watch/x",
		"platform": "crunchyroll",
		"entries": []map[string]any{
			{"text": "Full episode transcript dump.", "area": 500_000},
		},
	})
	resp.Body.Close()

	stateResp, err := http.Get(base + "/api/state?tab=7")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	defer stateResp.Body.Close()
	var state struct {
		Context *relay.ContextEnvelope `json:"context"`
	}
	if err := json.NewDecoder(stateResp.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Context != nil {
		t.Fatalf("oversized element produced context: %#v", state.Context)
	}
}

func TestRedetectRequestQueuesPageCommand(t *testing.T) {
	d := startDaemon(t)
	base := "http://" + d.APIAddr()

	resp := postJSON(t, base+"/api/request", map[string]string{"kind": relay.RequestRedetect})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("request status = %d", resp.StatusCode)
	}

	commandsResp, err := http.Get(base + "/api/commands?tab=3")
	if err != nil {
		t.Fatalf("GET commands: %v", err)
	}
	defer commandsResp.Body.Close()
	var payload struct {
		Commands []relay.Command `json:"commands"`
	}
	if err := json.NewDecoder(commandsResp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode commands: %v", err)
	}
	found := false
	for _, command := range payload.Commands {
		if command.Kind == relay.CommandRedetect {
			found = true
		}
	}
	if !found {
		t.Fatalf("redetect command missing: %#v", payload.Commands)
	}

	// A second poll comes back empty - commands are drained on read.
	commandsResp2, err := http.Get(base + "/api/commands?tab=3")
	if err != nil {
		t.Fatalf("GET commands: %v", err)
	}
	defer commandsResp2.Body.Close()
	if err := json.NewDecoder(commandsResp2.Body).Decode(&payload); err != nil {
		t.Fatalf("decode commands: %v", err)
	}
	if len(payload.Commands) != 0 {
		t.Fatalf("commands not drained: %#v", payload.Commands)
	}
}

func TestStatusReportsPhase(t *testing.T) {
	d := startDaemon(t)
	base := "http://" + d.APIAddr()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/api/status")
		if err != nil {
			t.Fatalf("GET status: %v", err)
		}
		var status struct {
			Running bool
			Phase   string
		}
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if !status.Running {
			t.Fatal("daemon not running")
		}
		// The no-show timeout lands shortly after start with no page posts.
		if status.Phase == "no-show" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("phase = %q", status.Phase)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	d := startDaemon(t)
	base := "http://" + d.APIAddr()

	resp, err := http.Get(base + "/api/ingest/mutations")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] == "" {
		t.Fatal("missing error message")
	}
}

func TestCORSPreflightAllowed(t *testing.T) {
	d := startDaemon(t)

	req, err := http.NewRequest(http.MethodOptions,
		fmt.Sprintf("http://%s/api/ingest/mutations", d.APIAddr()), nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("missing CORS header")
	}
}
