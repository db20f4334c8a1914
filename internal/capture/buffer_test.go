package capture_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"spoilshield/internal/capture"
	"spoilshield/internal/logging"
)

func TestBufferRejectsAdjacentDuplicate(t *testing.T) {
	buffer := capture.NewBuffer(40)
	if !buffer.Add("I can't believe it") {
		t.Fatal("first add should be accepted")
	}
	if buffer.Add("I can't believe it") {
		t.Fatal("adjacent duplicate should be rejected")
	}
	if buffer.Len() != 1 {
		t.Fatalf("buffer length = %d, want 1", buffer.Len())
	}
}

func TestBufferDedupWindow(t *testing.T) {
	buffer := capture.NewBuffer(40)
	buffer.Add("line a")
	for i := 0; i < 5; i++ {
		buffer.Add(fmt.Sprintf("filler %d", i))
	}
	// "line a" is still inside the six-entry window.
	if buffer.Add("line a") {
		t.Fatal("duplicate inside dedup window should be rejected")
	}
	buffer.Add("filler 5")
	// Now "line a" has aged out of the window and may repeat.
	if !buffer.Add("line a") {
		t.Fatal("line outside dedup window should be accepted")
	}
}

func TestBufferEvictsOldestAtCapacity(t *testing.T) {
	buffer := capture.NewBuffer(3)
	for i := 0; i < 5; i++ {
		buffer.Add(fmt.Sprintf("line %d", i))
	}
	lines := buffer.Lines()
	if len(lines) != 3 {
		t.Fatalf("buffer length = %d, want 3", len(lines))
	}
	if lines[0] != "line 2" || lines[2] != "line 4" {
		t.Fatalf("unexpected retained lines: %v", lines)
	}
}

func TestObserverFiltersOversizedElements(t *testing.T) {
	var (
		mu      sync.Mutex
		updates []capture.Update
	)
	observer := capture.NewObserver(logging.NewNop(), 40, 300_000, time.Millisecond,
		capture.WithPublisher(func(update capture.Update) {
			mu.Lock()
			updates = append(updates, update)
			mu.Unlock()
		}),
	)

	observer.HandleBatch(capture.MutationBatch{
		TabID: 7,
		Entries: []capture.TextEntry{
			{Text: "a full-screen overlay", Area: 2_000_000},
			{Text: "  an actual\u200b subtitle  line ", Area: 4000},
		},
	})

	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 1 {
		t.Fatalf("expected one update, got %d", len(updates))
	}
	if updates[0].Accepted != 1 {
		t.Fatalf("accepted = %d, want 1", updates[0].Accepted)
	}
	if updates[0].Context != "an actual subtitle line" {
		t.Fatalf("context = %q", updates[0].Context)
	}
}

func TestObserverSilentWhenNothingAccepted(t *testing.T) {
	published := false
	observer := capture.NewObserver(logging.NewNop(), 40, 300_000, time.Millisecond,
		capture.WithPublisher(func(capture.Update) { published = true }),
	)

	observer.HandleBatch(capture.MutationBatch{TabID: 1, Entries: []capture.TextEntry{
		{Text: "same line", Area: 100},
	}})
	published = false
	observer.HandleBatch(capture.MutationBatch{TabID: 1, Entries: []capture.TextEntry{
		{Text: "same line", Area: 100},
		{Text: "   ", Area: 100},
	}})
	if published {
		t.Fatal("duplicate-only batch should not publish")
	}
}

func TestObserverRescanDebounce(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	observer := capture.NewObserver(logging.NewNop(), 40, 300_000, 20*time.Millisecond,
		capture.WithRescan(func(int) {
			mu.Lock()
			calls++
			mu.Unlock()
		}),
	)

	for i := 0; i < 5; i++ {
		observer.RequestRescan(3)
	}
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("rescan calls = %d, want 1", calls)
	}
}

func TestObserverTracksTabsIndependently(t *testing.T) {
	observer := capture.NewObserver(logging.NewNop(), 40, 300_000, time.Millisecond)

	observer.HandleBatch(capture.MutationBatch{TabID: 1, Entries: []capture.TextEntry{{Text: "tab one line", Area: 10}}})
	observer.HandleBatch(capture.MutationBatch{TabID: 2, Entries: []capture.TextEntry{{Text: "tab two line", Area: 10}}})

	if got := observer.ContextText(1); !strings.Contains(got, "tab one") || strings.Contains(got, "tab two") {
		t.Fatalf("tab 1 context = %q", got)
	}

	observer.ResetTab(1)
	if got := observer.ContextText(1); got != "" {
		t.Fatalf("reset tab context = %q, want empty", got)
	}
	if got := observer.ContextText(2); got == "" {
		t.Fatal("tab 2 context should survive tab 1 reset")
	}
}
