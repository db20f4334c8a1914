package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"spoilshield/internal/detect"
	"spoilshield/internal/logging"
	"spoilshield/internal/recap"
	"spoilshield/internal/relay"
	"spoilshield/internal/services/tvmaze"
	"spoilshield/internal/store"
)

// Phase is the current state of the init flow.
type Phase string

// Flow phases. A missing show or episode is a steady state, not a fault;
// only lookup exceptions land in PhaseError.
const (
	PhaseDetecting    Phase = "detecting"
	PhaseResolving    Phase = "resolving"
	PhaseReady        Phase = "ready"
	PhaseNeedsEpisode Phase = "needs-episode"
	PhaseNoShow       Phase = "no-show"
	PhaseError        Phase = "error"
)

// Notification event names pushed to the panel.
const (
	NotifyPhase       = "PHASE"
	NotifyImportOffer = "IMPORT_OFFER"
)

// Notifier receives flow-level push events for panel delivery.
type Notifier func(event string, payload any)

// ImportOffer is a pending offer to carry a prior episode's conversation
// log into the newly opened session. It is surfaced, never auto-applied.
type ImportOffer struct {
	FromSessionID string `json:"fromSessionId"`
	ToSessionID   string `json:"toSessionId"`
	FromEpisode   int    `json:"fromEpisode"`
	Label         string `json:"label"`
}

// Snapshot is the externally visible flow state.
type Snapshot struct {
	Phase         Phase            `json:"phase"`
	Show          *detect.ShowInfo `json:"show,omitempty"`
	SessionID     string           `json:"sessionId,omitempty"`
	Recap         *recap.Result    `json:"recap,omitempty"`
	PendingImport *ImportOffer     `json:"pendingImport,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Timing bounds the flow's detection waits.
type Timing struct {
	NoShowTimeout   time.Duration
	RedetectTimeout time.Duration
}

const keyActiveSession = "activeSessionId"

// Controller owns the init flow state machine for the single active viewing
// surface. All transitions happen under one mutex; resolution work runs in
// goroutines guarded by a generation counter so stale results are dropped.
type Controller struct {
	store    *store.Store
	relay    *relay.Relay
	resolver *recap.Resolver
	lookup   tvmaze.Lookup
	timing   Timing
	logger   *slog.Logger
	notify   Notifier

	rearm chan time.Duration

	mu            sync.Mutex
	phase         Phase
	generation    int
	show          *detect.ShowInfo
	resolvedID    int64
	sessionID     string
	recapResult   *recap.Result
	recapFetched  map[string]bool
	pendingImport *ImportOffer
	lastError     string
	lastIdentity  string
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier registers the push callback for phase and import events.
func WithNotifier(notify Notifier) Option {
	return func(c *Controller) {
		c.notify = notify
	}
}

// New builds a flow controller. lookup and resolver may be nil, in which
// case titles resolve by slug only and no recaps are fetched.
func New(st *store.Store, rly *relay.Relay, resolver *recap.Resolver, lookup tvmaze.Lookup, timing Timing, logger *slog.Logger, opts ...Option) *Controller {
	if timing.NoShowTimeout <= 0 {
		timing.NoShowTimeout = 2 * time.Second
	}
	if timing.RedetectTimeout <= 0 {
		timing.RedetectTimeout = 3 * time.Second
	}
	controller := &Controller{
		store:        st,
		relay:        rly,
		resolver:     resolver,
		lookup:       lookup,
		timing:       timing,
		logger:       logging.NewComponentLogger(logger, "flow"),
		rearm:        make(chan time.Duration, 1),
		phase:        PhaseDetecting,
		recapFetched: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(controller)
	}
	return controller
}

// Run consumes relay deliveries until ctx ends. Subscription doubles as the
// readiness handshake: the relay replays last-known state immediately, so
// the no-show timer only fires when the page truly has nothing.
func (c *Controller) Run(ctx context.Context) error {
	events, cancel := c.relay.Subscribe(ctx)
	defer cancel()

	timer := time.NewTimer(c.timing.NoShowTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wait := <-c.rearm:
			stopTimer(timer)
			timer.Reset(wait)
		case <-timer.C:
			c.noShowTimeout()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if event.Type != relay.EventShowInfo {
				continue
			}
			stopTimer(timer)
			c.handleShowInfo(ctx, event.Payload)
		}
	}
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

// Snapshot returns the current flow state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Phase:         c.phase,
		Show:          c.show,
		SessionID:     c.sessionID,
		Recap:         c.recapResult,
		PendingImport: c.pendingImport,
		Error:         c.lastError,
	}
}

// ActiveSession loads the session the flow currently points at.
func (c *Controller) ActiveSession(ctx context.Context) (*store.Session, error) {
	c.mu.Lock()
	id := c.sessionID
	c.mu.Unlock()
	if id == "" {
		stored, ok, err := c.store.GetValue(ctx, keyActiveSession)
		if err != nil {
			return nil, err
		}
		if !ok || stored == "" {
			return nil, store.ErrSessionNotFound
		}
		id = stored
	}
	return c.store.GetSession(ctx, id)
}

// RequestRedetect re-enters detecting: the dedup memory is cleared so the
// next result is delivered even when unchanged, a redetect command is queued
// for the page, and the no-show timer is re-armed with the manual timeout.
func (c *Controller) RequestRedetect(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	c.phase = PhaseDetecting
	c.show = nil
	c.resolvedID = 0
	c.lastError = ""
	c.lastIdentity = ""
	c.mu.Unlock()

	c.relay.ResetDelivery()
	c.relay.EnqueueCommand(relay.Command{Kind: relay.CommandRedetect})
	select {
	case c.rearm <- c.timing.RedetectTimeout:
	default:
	}
	c.notifyPhase()
}

// ConfirmEpisode applies a user-entered season/episode from needs-episode or
// no-show and opens the matching session.
func (c *Controller) ConfirmEpisode(ctx context.Context, season, episode int) error {
	if season <= 0 || episode <= 0 {
		return errors.New("season and episode must be positive")
	}

	c.mu.Lock()
	if c.phase != PhaseNeedsEpisode && c.phase != PhaseNoShow {
		phase := c.phase
		c.mu.Unlock()
		return fmt.Errorf("cannot confirm episode in phase %q", phase)
	}
	if c.show == nil || c.show.ShowTitle == "" {
		c.mu.Unlock()
		return errors.New("no detected show to confirm an episode for")
	}
	info := *c.show
	info.Episode = &detect.EpisodeInfo{Season: season, Episode: episode}
	showID := c.resolvedID
	c.show = &info
	c.generation++
	generation := c.generation
	c.mu.Unlock()

	c.enterReady(ctx, generation, info, showID, true)
	return nil
}

// ConfirmManualSetup creates a session for a fully user-supplied identity.
// Available from no-show so a missed detection never blocks the user.
func (c *Controller) ConfirmManualSetup(ctx context.Context, title string, season, episode int) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("show title must not be empty")
	}
	if season <= 0 || episode <= 0 {
		return errors.New("season and episode must be positive")
	}

	info := detect.ShowInfo{
		ShowTitle:  title,
		Platform:   detect.PlatformUnknown,
		Episode:    &detect.EpisodeInfo{Season: season, Episode: episode},
		DetectedAt: time.Now(),
	}

	c.mu.Lock()
	c.show = &info
	c.resolvedID = 0
	c.generation++
	generation := c.generation
	c.mu.Unlock()

	c.resolve(ctx, generation, info, true)
	return nil
}

// AcceptImport copies the offered prior episode's conversation into the
// active session, prefixed with the visible import marker.
func (c *Controller) AcceptImport(ctx context.Context) error {
	c.mu.Lock()
	offer := c.pendingImport
	c.pendingImport = nil
	c.mu.Unlock()

	if offer == nil {
		return errors.New("no pending import offer")
	}

	messages, err := c.store.ListMessages(ctx, offer.FromSessionID)
	if err != nil {
		return fmt.Errorf("load import source: %w", err)
	}
	if _, err := c.store.AppendMessage(ctx, offer.ToSessionID, store.RoleAssistant, offer.Label); err != nil {
		return fmt.Errorf("append import marker: %w", err)
	}
	for _, message := range messages {
		if _, err := c.store.AppendMessage(ctx, offer.ToSessionID, message.Role, message.Content); err != nil {
			return fmt.Errorf("import message: %w", err)
		}
	}
	c.logger.Info("imported prior episode log",
		logging.String("from", offer.FromSessionID),
		logging.String("to", offer.ToSessionID),
		logging.Int("messages", len(messages)),
	)
	return nil
}

// DismissImport discards the pending import offer.
func (c *Controller) DismissImport() {
	c.mu.Lock()
	c.pendingImport = nil
	c.mu.Unlock()
}

// SwitchSession points the flow at an existing session, bypassing detection.
func (c *Controller) SwitchSession(ctx context.Context, id string) (*store.Session, error) {
	session, err := c.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	// Switching counts as activity for recency-ordered eviction.
	if err := c.store.TouchSession(ctx, session.ID); err != nil {
		return nil, err
	}
	if err := c.store.SetValue(ctx, keyActiveSession, session.ID); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.phase = PhaseReady
	c.sessionID = session.ID
	c.recapResult = nil
	c.pendingImport = nil
	c.lastError = ""
	c.mu.Unlock()

	c.notifyPhase()
	return session, nil
}

// DeleteSession removes a session. Deleting the active one falls back to the
// most recently used remaining session, or clears the pointer entirely.
func (c *Controller) DeleteSession(ctx context.Context, id string) error {
	if err := c.store.DeleteSession(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	wasActive := c.sessionID == id
	c.mu.Unlock()
	if !wasActive {
		return nil
	}

	sessions, err := c.store.ListSessions(ctx)
	if err != nil {
		return err
	}
	next := ""
	if len(sessions) > 0 {
		next = sessions[0].ID
	}
	if err := c.store.SetValue(ctx, keyActiveSession, next); err != nil {
		return err
	}

	c.mu.Lock()
	c.sessionID = next
	if next == "" && c.phase == PhaseReady {
		c.phase = PhaseNoShow
	}
	c.mu.Unlock()
	c.notifyPhase()
	return nil
}

func (c *Controller) noShowTimeout() {
	c.mu.Lock()
	if c.phase != PhaseDetecting {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseNoShow
	c.mu.Unlock()
	c.logger.Debug("no detection before timeout")
	c.notifyPhase()
}

func (c *Controller) handleShowInfo(ctx context.Context, payload json.RawMessage) {
	if len(payload) == 0 || string(payload) == "null" {
		c.handleCleared()
		return
	}
	var envelope relay.ShowInfoEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		c.logger.Warn("undecodable show info delivery", logging.Error(err))
		return
	}
	if envelope.Cleared || envelope.Info == nil || envelope.Info.ShowTitle == "" {
		c.handleCleared()
		return
	}
	c.handleDetection(ctx, *envelope.Info)
}

// handleCleared applies the explicit empty-detection signal: any in-flight
// resolution is abandoned and the phase drops to no-show, but the active
// session pointer stays so the existing conversation remains reachable.
func (c *Controller) handleCleared() {
	c.mu.Lock()
	if c.phase == PhaseNoShow {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.phase = PhaseNoShow
	c.show = nil
	c.resolvedID = 0
	c.lastError = ""
	c.lastIdentity = ""
	c.mu.Unlock()
	c.notifyPhase()
}

func (c *Controller) handleDetection(ctx context.Context, info detect.ShowInfo) {
	identity := relay.IdentityKey(&info)

	c.mu.Lock()
	// Replay and refresh ticks re-deliver the same identity; only a change
	// triggers a new resolution.
	if identity == c.lastIdentity && c.phase != PhaseDetecting {
		c.mu.Unlock()
		return
	}
	c.lastIdentity = identity
	c.phase = PhaseResolving
	c.show = &info
	c.lastError = ""
	c.generation++
	generation := c.generation
	c.mu.Unlock()

	c.notifyPhase()
	go c.resolve(ctx, generation, info, false)
}

// resolve maps the free-text title to a canonical show identity and applies
// the outcome, unless a newer detection superseded this attempt. confirm
// marks the resulting session as user-confirmed, for identities the user
// entered rather than the page supplied.
func (c *Controller) resolve(ctx context.Context, generation int, info detect.ShowInfo, confirm bool) {
	var showID int64
	if c.lookup != nil {
		shows, err := c.lookup.Search(ctx, info.ShowTitle)
		if err != nil {
			c.logger.Warn("show identity lookup failed",
				logging.String("title", info.ShowTitle), logging.Error(err))
			c.applyError(generation, err)
			return
		}
		if len(shows) > 0 {
			showID = shows[0].ID
		}
	}

	if showID == 0 && info.Episode == nil {
		// Nothing matched and the page gave no episode either: almost
		// certainly not a show page.
		c.applyPhase(generation, PhaseNoShow)
		return
	}
	if info.Episode == nil {
		c.mu.Lock()
		if c.generation == generation {
			c.resolvedID = showID
		}
		c.mu.Unlock()
		c.applyPhase(generation, PhaseNeedsEpisode)
		return
	}

	c.enterReady(ctx, generation, info, showID, confirm)
}

func (c *Controller) enterReady(ctx context.Context, generation int, info detect.ShowInfo, showID int64, confirm bool) {
	identity := store.Identity{
		ShowTitle: info.ShowTitle,
		Platform:  info.Platform,
		Season:    info.Episode.Season,
		Episode:   info.Episode.Episode,
	}
	if showID > 0 {
		identity.ShowID = strconv.FormatInt(showID, 10)
	}

	previousID := c.currentSessionID()

	session, created, err := c.store.LoadOrCreateSession(ctx, identity)
	if err != nil {
		c.applyError(generation, err)
		return
	}
	if err := c.store.SetValue(ctx, keyActiveSession, session.ID); err != nil {
		c.logger.Warn("active session pointer write failed", logging.Error(err))
	}
	if confirm && !session.Confirmed {
		if err := c.store.ConfirmSession(ctx, session.ID); err != nil {
			c.logger.Warn("session confirm failed", logging.Error(err))
		} else {
			session.Confirmed = true
		}
	}

	offer := c.buildImportOffer(ctx, previousID, session, identity)
	result := c.fetchRecap(ctx, generation, session, identity, showID)

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseReady
	c.sessionID = session.ID
	c.resolvedID = showID
	c.recapResult = result
	c.pendingImport = offer
	c.lastError = ""
	c.mu.Unlock()

	if created {
		c.logger.Info("session opened",
			logging.String("session", session.ID),
			logging.String("title", identity.ShowTitle),
		)
	}
	c.notifyPhase()
	if offer != nil && c.notify != nil {
		c.notify(NotifyImportOffer, offer)
	}
}

// buildImportOffer checks whether the switch moved between episodes of the
// same show and, if so, offers to carry the prior conversation over.
func (c *Controller) buildImportOffer(ctx context.Context, previousID string, session *store.Session, identity store.Identity) *ImportOffer {
	if previousID == "" || previousID == session.ID {
		return nil
	}
	previous, err := c.store.GetSession(ctx, previousID)
	if err != nil {
		return nil
	}
	sameShow := previous.ShowID != "" && previous.ShowID == identity.ShowID
	if !sameShow {
		sameShow = strings.EqualFold(previous.ShowTitle, identity.ShowTitle)
	}
	if !sameShow || previous.Episode == identity.Episode && previous.Season == identity.Season {
		return nil
	}
	count, err := c.store.CountMessages(ctx, previousID)
	if err != nil || count == 0 {
		return nil
	}
	return &ImportOffer{
		FromSessionID: previousID,
		ToSessionID:   session.ID,
		FromEpisode:   previous.Episode,
		Label:         fmt.Sprintf("[Imported from E%d]", previous.Episode),
	}
}

// fetchRecap resolves a recap at most once per session, and only when the
// session has accumulated no subtitle context of its own yet.
func (c *Controller) fetchRecap(ctx context.Context, generation int, session *store.Session, identity store.Identity, showID int64) *recap.Result {
	if c.resolver == nil || session.Context != "" {
		return nil
	}
	c.mu.Lock()
	fetched := c.recapFetched[session.ID]
	c.recapFetched[session.ID] = true
	stale := c.generation != generation
	c.mu.Unlock()
	if fetched || stale {
		c.mu.Lock()
		result := c.recapResult
		c.mu.Unlock()
		return result
	}

	result, err := c.resolver.Resolve(ctx, recap.Request{
		ShowID:    showID,
		ShowTitle: identity.ShowTitle,
		Season:    identity.Season,
		Episode:   identity.Episode,
	})
	if err != nil {
		c.logger.Warn("recap resolution failed", logging.Error(err))
		return nil
	}
	return result
}

func (c *Controller) currentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) applyPhase(generation int, phase Phase) {
	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		return
	}
	c.phase = phase
	c.mu.Unlock()
	c.notifyPhase()
}

func (c *Controller) applyError(generation int, err error) {
	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseError
	c.lastError = err.Error()
	c.mu.Unlock()
	c.notifyPhase()
}

func (c *Controller) notifyPhase() {
	if c.notify == nil {
		return
	}
	c.notify(NotifyPhase, c.Snapshot())
}
