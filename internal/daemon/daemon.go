package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"spoilshield/internal/capture"
	"spoilshield/internal/chat"
	"spoilshield/internal/config"
	"spoilshield/internal/detect"
	"spoilshield/internal/flow"
	"spoilshield/internal/logging"
	"spoilshield/internal/recap"
	"spoilshield/internal/relay"
	"spoilshield/internal/services/fandom"
	"spoilshield/internal/services/llm"
	"spoilshield/internal/services/tvmaze"
	"spoilshield/internal/store"
	"spoilshield/internal/textutil"
)

// Daemon coordinates the background services and enforces single-instance
// execution via a file lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store

	observer *capture.Observer
	runner   *detect.Runner
	relay    *relay.Relay
	flow     *flow.Controller
	resolver *recap.Resolver
	chat     *chat.Service
	events   *eventHub

	api *apiServer

	lockPath string
	lock     *flock.Flock

	clampChars int

	running atomic.Bool

	ctxMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Status is the daemon's runtime summary for the CLI.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockPath     string
	APIBind      string
	Phase        string
	SessionID    string
	ShowTitle    string
	Season       int
	Episode      int
	SessionCount int
}

// New constructs a daemon over an opened store, wiring every subsystem. The
// LLM-backed features are disabled (with a warning) when no API key is
// configured; capture, detection, and sessions still work without them.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	rly := relay.New(st, logger, time.Duration(cfg.Relay.RefreshIntervalMs)*time.Millisecond)

	tvmazeClient, err := tvmaze.New(cfg.TVMaze.BaseURL, time.Duration(cfg.TVMaze.TimeoutSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("tvmaze client: %w", err)
	}
	fandomClient := fandom.New(cfg.Fandom.AllowedWikis, time.Duration(cfg.Fandom.TimeoutSeconds)*time.Second)

	var llmClient *llm.Client
	if cfg.LLM.APIKey != "" {
		llmClient, err = llm.New(llm.Config{
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("llm client: %w", err)
		}
	} else {
		logger.Warn("no anthropic api key configured; recaps and chat are disabled")
	}

	ttl := time.Duration(cfg.Recap.CacheTTLDays) * 24 * time.Hour

	var sanitizer llm.Sanitizer
	var web llm.WebRecapper
	if llmClient != nil {
		sanitizer = llmClient
		web = llmClient
	}
	resolver := recap.New(st, tvmazeClient, fandomClient, sanitizer, web, ttl, logger)

	hub := newEventHub()
	controller := flow.New(st, rly, resolver, tvmazeClient, flow.Timing{
		NoShowTimeout:   time.Duration(cfg.Detection.NoShowTimeoutMs) * time.Millisecond,
		RedetectTimeout: time.Duration(cfg.Detection.RedetectTimeoutMs) * time.Millisecond,
	}, logger, flow.WithNotifier(hub.publish))

	var chatService *chat.Service
	if llmClient != nil {
		chatService = chat.New(st, llmClient, logger)
	}

	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      st,
		relay:      rly,
		flow:       controller,
		resolver:   resolver,
		chat:       chatService,
		events:     hub,
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
		clampChars: cfg.Capture.ContextClampChars,
	}

	d.observer = capture.NewObserver(logger,
		cfg.Capture.BufferLines, cfg.Capture.MaxElementArea,
		time.Duration(cfg.Capture.RescanDebounceMs)*time.Millisecond,
		capture.WithPublisher(d.publishContext),
		capture.WithRescan(func(tabID int) {
			rly.EnqueueCommand(relay.Command{TabID: tabID, Kind: relay.CommandRescan})
		}),
	)
	d.runner = detect.NewRunner(logger,
		time.Duration(cfg.Detection.MutationDebounceMs)*time.Millisecond,
		detect.WithPublisher(d.publishShowInfo),
		detect.WithNavigationHook(d.observer.ResetTab),
	)

	d.api, err = newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Start acquires the instance lock and launches the relay refresh loop, the
// flow controller, and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another spoilshield daemon is already running")
	}

	// The goroutines hold their own reference to the run context; the
	// shared fields only feed runCtx and stay set (cancelled, not nilled)
	// after shutdown so concurrent readers never see a nil context.
	runCtx, cancel := context.WithCancel(ctx)
	d.ctxMu.Lock()
	d.ctx, d.cancel = runCtx, cancel
	d.ctxMu.Unlock()

	go d.relay.Run(runCtx)
	go func() {
		if err := d.flow.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("flow controller stopped", logging.Error(err))
		}
	}()
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.cfg.Paths.APIBind),
	)
	return nil
}

// Stop halts background work and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.ctxMu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.ctxMu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the bound API address once Start has succeeded.
func (d *Daemon) APIAddr() string {
	return d.api.Addr()
}

// Status reports the current runtime summary.
func (d *Daemon) Status(ctx context.Context) Status {
	snapshot := d.flow.Snapshot()
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockPath:     d.lockPath,
		APIBind:      d.cfg.Paths.APIBind,
		Phase:        string(snapshot.Phase),
		SessionID:    snapshot.SessionID,
	}
	if snapshot.Show != nil {
		status.ShowTitle = snapshot.Show.ShowTitle
		if snapshot.Show.Episode != nil {
			status.Season = snapshot.Show.Episode.Season
			status.Episode = snapshot.Show.Episode.Episode
		}
	}
	if sessions, err := d.store.ListSessions(ctx); err == nil {
		status.SessionCount = len(sessions)
	}
	return status
}

// ListSessions returns all stored sessions, most recent first.
func (d *Daemon) ListSessions(ctx context.Context) ([]*store.Session, error) {
	return d.store.ListSessions(ctx)
}

// CountMessages returns the message-log length for a session.
func (d *Daemon) CountMessages(ctx context.Context, sessionID string) (int, error) {
	return d.store.CountMessages(ctx, sessionID)
}

// SwitchSession activates an existing session.
func (d *Daemon) SwitchSession(ctx context.Context, id string) (*store.Session, error) {
	return d.flow.SwitchSession(ctx, id)
}

// DeleteSession removes a session, repointing the active session if needed.
func (d *Daemon) DeleteSession(ctx context.Context, id string) error {
	return d.flow.DeleteSession(ctx, id)
}

// Redetect asks the page to rerun show detection.
func (d *Daemon) Redetect(ctx context.Context) {
	d.flow.RequestRedetect(ctx)
}

// publishContext relays an accepted capture update and mirrors the clamped
// context text onto the active session.
func (d *Daemon) publishContext(update capture.Update) {
	ctx := d.runCtx()
	update.Context = textutil.ClampTail(update.Context, d.clampChars)
	if err := d.relay.PublishContext(ctx, update); err != nil {
		d.logger.Debug("context publish failed", logging.Error(err))
		return
	}
	session, err := d.flow.ActiveSession(ctx)
	if err != nil {
		return
	}
	if err := d.store.UpdateContext(ctx, session.ID, update.Context); err != nil {
		d.logger.Debug("session context update failed", logging.Error(err))
	}
}

func (d *Daemon) publishShowInfo(tabID int, info detect.ShowInfo) {
	if err := d.relay.PublishShowInfo(d.runCtx(), tabID, info); err != nil {
		d.logger.Debug("show info publish failed", logging.Error(err))
	}
}

func (d *Daemon) runCtx() context.Context {
	d.ctxMu.Lock()
	defer d.ctxMu.Unlock()
	if d.ctx != nil {
		return d.ctx
	}
	return context.Background()
}
