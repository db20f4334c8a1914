package daemon

import (
	"encoding/json"
	"sync"
)

// hubEvent is one flow-level push delivery, mirroring the relay event shape
// so both merge into a single SSE stream.
type hubEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// eventHub fans flow notifications out to connected SSE consumers. Relay
// deliveries reach consumers through their own relay subscription; this hub
// carries only the phase and import-offer events the relay does not own.
type eventHub struct {
	mu          sync.Mutex
	nextID      int
	subscribers map[int]chan hubEvent
	last        map[string]hubEvent
}

func newEventHub() *eventHub {
	return &eventHub{
		subscribers: make(map[int]chan hubEvent),
		last:        make(map[string]hubEvent),
	}
}

// publish satisfies flow.Notifier. Undeliverable payloads are dropped; slow
// consumers lose events rather than blocking the flow.
func (h *eventHub) publish(event string, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	delivery := hubEvent{Type: event, Payload: encoded}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[event] = delivery
	for _, ch := range h.subscribers {
		select {
		case ch <- delivery:
		default:
		}
	}
}

// subscribe registers a consumer and replays the last event of each type so
// a late-joining panel starts from current state.
func (h *eventHub) subscribe() (<-chan hubEvent, func()) {
	ch := make(chan hubEvent, 16)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subscribers[id] = ch
	for _, delivery := range h.last {
		ch <- delivery
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}
