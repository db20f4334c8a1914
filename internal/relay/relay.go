package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"spoilshield/internal/capture"
	"spoilshield/internal/detect"
	"spoilshield/internal/logging"
	"spoilshield/internal/store"
)

// Relay fans detection output out to subscribed consumers and persists the
// latest records so late subscribers can replay them.
type Relay struct {
	store   *store.Store
	logger  *slog.Logger
	refresh time.Duration

	mu           sync.Mutex
	nextID       int
	subscribers  map[int]chan Event
	lastIdentity string
	lastCleared  bool
	commands     []Command
}

// New builds a relay over the durable store. refresh bounds the periodic
// state rebroadcast; it is a safety net, not the primary delivery path.
func New(st *store.Store, logger *slog.Logger, refresh time.Duration) *Relay {
	if refresh <= 0 {
		refresh = 3 * time.Second
	}
	return &Relay{
		store:       st,
		logger:      logging.NewComponentLogger(logger, "relay"),
		refresh:     refresh,
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe registers a consumer. Registration is the readiness handshake:
// the relay immediately replays last-known show info and context into the
// channel, so no timing-based retry burst is needed. The returned cancel
// func must be called when the consumer goes away.
func (r *Relay) Subscribe(ctx context.Context) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subscribers[id] = ch
	r.mu.Unlock()

	r.replayTo(ctx, ch)

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Run rebroadcasts current state on the refresh interval until ctx ends.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.broadcastCurrent(ctx)
		}
	}
}

// PublishShowInfo stores and delivers a detection result. An empty
// ShowTitle is the explicit cleared signal: it is delivered once so
// consumers reset, then suppressed until a non-empty detection arrives.
// Unchanged identities are suppressed entirely.
func (r *Relay) PublishShowInfo(ctx context.Context, tabID int, info detect.ShowInfo) error {
	envelope := ShowInfoEnvelope{TabID: tabID, UpdatedAt: time.Now()}
	if info.ShowTitle == "" {
		envelope.Cleared = true
	} else {
		envelope.Info = &info
	}

	encoded, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode show info: %w", err)
	}
	if err := r.store.SetValue(ctx, keyShowInfoCurrent, string(encoded)); err != nil {
		return err
	}

	identity := IdentityKey(envelope.Info)

	r.mu.Lock()
	if envelope.Cleared {
		if r.lastCleared {
			r.mu.Unlock()
			return nil
		}
		r.lastCleared = true
		r.lastIdentity = ""
	} else {
		if identity == r.lastIdentity {
			r.mu.Unlock()
			return nil
		}
		r.lastIdentity = identity
		r.lastCleared = false
	}
	r.mu.Unlock()

	r.broadcast(Event{Type: EventShowInfo, Payload: showInfoPayload(envelope)})
	return nil
}

// PublishContext stores and delivers a caption buffer update. The record is
// written both to the canonical key and to the per-tab fallback key that
// covers reads racing a canonical write.
func (r *Relay) PublishContext(ctx context.Context, update capture.Update) error {
	envelope := ContextEnvelope{
		TabID:     update.TabID,
		URL:       update.URL,
		Platform:  update.Platform,
		Context:   update.Context,
		UpdatedAt: update.UpdatedAt,
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	if err := r.store.SetValue(ctx, keyContextCurrent, string(encoded)); err != nil {
		return err
	}
	if err := r.store.SetValue(ctx, tabContextPrefix+strconv.Itoa(update.TabID), string(encoded)); err != nil {
		return err
	}

	r.broadcast(Event{Type: EventContext, Payload: json.RawMessage(encoded)})
	return nil
}

// CurrentShowInfo reads the last stored detection result. The bool reports
// whether anything was ever stored; a stored cleared marker still counts.
func (r *Relay) CurrentShowInfo(ctx context.Context) (*ShowInfoEnvelope, bool, error) {
	raw, ok, err := r.store.GetValue(ctx, keyShowInfoCurrent)
	if err != nil || !ok {
		return nil, false, err
	}
	var envelope ShowInfoEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, false, fmt.Errorf("decode show info: %w", err)
	}
	return &envelope, true, nil
}

// CurrentContext reads the last stored caption context, falling back to a
// per-tab record when the canonical key is empty.
func (r *Relay) CurrentContext(ctx context.Context, tabID int) (*ContextEnvelope, bool, error) {
	raw, ok, err := r.store.GetValue(ctx, keyContextCurrent)
	if err != nil {
		return nil, false, err
	}
	if !ok && tabID > 0 {
		raw, ok, err = r.store.GetValue(ctx, tabContextPrefix+strconv.Itoa(tabID))
		if err != nil {
			return nil, false, err
		}
	}
	if !ok {
		return nil, false, nil
	}
	var envelope ContextEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, false, fmt.Errorf("decode context: %w", err)
	}
	return &envelope, true, nil
}

// HandleRequest services a consumer pull request: state requests replay the
// stored record to all subscribers; redetect queues a page command.
func (r *Relay) HandleRequest(ctx context.Context, kind string) error {
	switch kind {
	case RequestShowInfo:
		if envelope, ok, err := r.CurrentShowInfo(ctx); err != nil {
			return err
		} else if ok {
			r.broadcast(Event{Type: EventShowInfo, Payload: showInfoPayload(*envelope)})
		}
		return nil
	case RequestContext:
		if envelope, ok, err := r.CurrentContext(ctx, 0); err != nil {
			return err
		} else if ok {
			encoded, err := json.Marshal(envelope)
			if err != nil {
				return fmt.Errorf("encode context: %w", err)
			}
			r.broadcast(Event{Type: EventContext, Payload: encoded})
		}
		return nil
	case RequestRedetect:
		r.EnqueueCommand(Command{Kind: CommandRedetect})
		return nil
	default:
		return fmt.Errorf("unknown request kind %q", kind)
	}
}

// EnqueueCommand queues an instruction for page contexts.
func (r *Relay) EnqueueCommand(command Command) {
	r.mu.Lock()
	r.commands = append(r.commands, command)
	r.mu.Unlock()
}

// DrainCommands returns and clears the queued commands for a tab. A zero
// tabID command matches every tab.
func (r *Relay) DrainCommands(tabID int) []Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched, remaining []Command
	for _, command := range r.commands {
		if command.TabID == 0 || command.TabID == tabID {
			matched = append(matched, command)
		} else {
			remaining = append(remaining, command)
		}
	}
	r.commands = remaining
	return matched
}

// ResetDelivery clears the dedup identity so the next detection result is
// delivered even if unchanged. Used when a consumer forces a redetect.
func (r *Relay) ResetDelivery() {
	r.mu.Lock()
	r.lastIdentity = ""
	r.lastCleared = false
	r.mu.Unlock()
}

func (r *Relay) replayTo(ctx context.Context, ch chan Event) {
	if envelope, ok, err := r.CurrentShowInfo(ctx); err == nil && ok {
		select {
		case ch <- Event{Type: EventShowInfo, Payload: showInfoPayload(*envelope)}:
		default:
		}
	}
	if envelope, ok, err := r.CurrentContext(ctx, 0); err == nil && ok {
		if encoded, err := json.Marshal(envelope); err == nil {
			select {
			case ch <- Event{Type: EventContext, Payload: encoded}:
			default:
			}
		}
	}
}

func (r *Relay) broadcastCurrent(ctx context.Context) {
	r.mu.Lock()
	subscribed := len(r.subscribers) > 0
	r.mu.Unlock()
	if !subscribed {
		return
	}
	if envelope, ok, err := r.CurrentShowInfo(ctx); err == nil && ok {
		r.broadcast(Event{Type: EventShowInfo, Payload: showInfoPayload(*envelope)})
	}
	if envelope, ok, err := r.CurrentContext(ctx, 0); err == nil && ok {
		if encoded, err := json.Marshal(envelope); err == nil {
			r.broadcast(Event{Type: EventContext, Payload: encoded})
		}
	}
}

func (r *Relay) broadcast(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			// Slow consumer; drop rather than block the pipeline.
			r.logger.Warn("dropping event for slow subscriber",
				logging.Int("subscriber", id),
				logging.String("event_type", event.Type),
			)
		}
	}
}

// showInfoPayload renders the envelope for delivery; a cleared envelope
// becomes an explicit null payload.
func showInfoPayload(envelope ShowInfoEnvelope) json.RawMessage {
	if envelope.Cleared {
		return json.RawMessage("null")
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return json.RawMessage("null")
	}
	return encoded
}
