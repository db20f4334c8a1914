package relay_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"spoilshield/internal/capture"
	"spoilshield/internal/detect"
	"spoilshield/internal/logging"
	"spoilshield/internal/relay"
	"spoilshield/internal/testsupport"
)

func newRelay(t *testing.T) *relay.Relay {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	return relay.New(st, logging.NewNop(), time.Second)
}

func showInfo(title string, season, episode int) detect.ShowInfo {
	return detect.ShowInfo{
		Platform:   detect.PlatformNetflix,
		ShowTitle:  title,
		Episode:    &detect.EpisodeInfo{Season: season, Episode: episode},
		URL:        "https://www.netflix.com/watch/1",
		DetectedAt: time.Now(),
	}
}

func receive(t *testing.T, events <-chan relay.Event) relay.Event {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return relay.Event{}
	}
}

func TestSubscribeReplaysLastKnownState(t *testing.T) {
	r := newRelay(t)
	ctx := context.Background()

	if err := r.PublishShowInfo(ctx, 1, showInfo("Dark", 1, 3)); err != nil {
		t.Fatalf("PublishShowInfo: %v", err)
	}
	if err := r.PublishContext(ctx, capture.Update{TabID: 1, Context: "some lines", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("PublishContext: %v", err)
	}

	events, cancel := r.Subscribe(ctx)
	defer cancel()

	first := receive(t, events)
	if first.Type != relay.EventShowInfo {
		t.Fatalf("first replay type = %q", first.Type)
	}
	var envelope relay.ShowInfoEnvelope
	if err := json.Unmarshal(first.Payload, &envelope); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if envelope.Info == nil || envelope.Info.ShowTitle != "Dark" {
		t.Fatalf("unexpected replayed info: %#v", envelope.Info)
	}

	second := receive(t, events)
	if second.Type != relay.EventContext {
		t.Fatalf("second replay type = %q", second.Type)
	}
}

func TestPublishShowInfoDedupsUnchangedIdentity(t *testing.T) {
	r := newRelay(t)
	ctx := context.Background()

	events, cancel := r.Subscribe(ctx)
	defer cancel()

	if err := r.PublishShowInfo(ctx, 1, showInfo("Dark", 1, 3)); err != nil {
		t.Fatalf("PublishShowInfo: %v", err)
	}
	receive(t, events)

	// Same identity again: suppressed.
	if err := r.PublishShowInfo(ctx, 1, showInfo("Dark", 1, 3)); err != nil {
		t.Fatalf("PublishShowInfo: %v", err)
	}
	// Different episode: delivered.
	if err := r.PublishShowInfo(ctx, 1, showInfo("Dark", 1, 4)); err != nil {
		t.Fatalf("PublishShowInfo: %v", err)
	}

	event := receive(t, events)
	var envelope relay.ShowInfoEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if envelope.Info == nil || envelope.Info.Episode.Episode != 4 {
		t.Fatalf("expected episode 4 delivery, got %#v", envelope.Info)
	}

	select {
	case extra := <-events:
		t.Fatalf("unexpected extra event: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClearedSignalDeliveredOnce(t *testing.T) {
	r := newRelay(t)
	ctx := context.Background()

	events, cancel := r.Subscribe(ctx)
	defer cancel()

	if err := r.PublishShowInfo(ctx, 1, showInfo("Dark", 1, 3)); err != nil {
		t.Fatalf("PublishShowInfo: %v", err)
	}
	receive(t, events)

	if err := r.PublishShowInfo(ctx, 1, detect.ShowInfo{Platform: detect.PlatformNetflix}); err != nil {
		t.Fatalf("PublishShowInfo cleared: %v", err)
	}
	cleared := receive(t, events)
	if cleared.Type != relay.EventShowInfo || string(cleared.Payload) != "null" {
		t.Fatalf("expected null payload, got %s", cleared.Payload)
	}

	// A second cleared signal is silence, not another reset.
	if err := r.PublishShowInfo(ctx, 1, detect.ShowInfo{}); err != nil {
		t.Fatalf("PublishShowInfo cleared: %v", err)
	}
	select {
	case extra := <-events:
		t.Fatalf("unexpected extra event: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCurrentContextFallsBackToTabRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	r := relay.New(st, logging.NewNop(), time.Second)
	ctx := context.Background()

	// Stage only the per-tab record, simulating a canonical write that
	// raced with the read.
	envelope := relay.ContextEnvelope{TabID: 9, Context: "fallback lines", UpdatedAt: time.Now()}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := st.SetValue(ctx, "context:9", string(encoded)); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	got, ok, err := r.CurrentContext(ctx, 9)
	if err != nil || !ok {
		t.Fatalf("CurrentContext: ok=%v err=%v", ok, err)
	}
	if got.Context != "fallback lines" {
		t.Fatalf("context = %q", got.Context)
	}
}

func TestHandleRequestRedetectQueuesCommand(t *testing.T) {
	r := newRelay(t)

	if err := r.HandleRequest(context.Background(), relay.RequestRedetect); err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}

	commands := r.DrainCommands(5)
	if len(commands) != 1 || commands[0].Kind != relay.CommandRedetect {
		t.Fatalf("commands = %#v", commands)
	}
	if extra := r.DrainCommands(5); len(extra) != 0 {
		t.Fatalf("drain should clear commands, got %#v", extra)
	}
}

func TestDrainCommandsFiltersByTab(t *testing.T) {
	r := newRelay(t)
	r.EnqueueCommand(relay.Command{TabID: 1, Kind: relay.CommandRescan})
	r.EnqueueCommand(relay.Command{TabID: 2, Kind: relay.CommandRescan})

	got := r.DrainCommands(1)
	if len(got) != 1 || got[0].TabID != 1 {
		t.Fatalf("tab 1 drain = %#v", got)
	}
	remaining := r.DrainCommands(2)
	if len(remaining) != 1 || remaining[0].TabID != 2 {
		t.Fatalf("tab 2 drain = %#v", remaining)
	}
}
