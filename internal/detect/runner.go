package detect

import (
	"log/slog"
	"sync"
	"time"

	"spoilshield/internal/logging"
)

// Runner debounces per-tab snapshots and runs detection over the most recent
// one. Every pass publishes, including passes that found nothing; consumers
// rely on the empty result as an explicit cleared signal.
type Runner struct {
	mu       sync.Mutex
	debounce time.Duration
	latest   map[int]*PageSnapshot
	pending  map[int]*time.Timer
	lastURL  map[int]string
	publish  func(tabID int, info ShowInfo)
	navigate func(tabID int)
	logger   *slog.Logger
}

// RunnerOption customizes runner construction.
type RunnerOption func(*Runner)

// WithPublisher sets the hook invoked with each detection result.
func WithPublisher(publish func(tabID int, info ShowInfo)) RunnerOption {
	return func(r *Runner) { r.publish = publish }
}

// WithNavigationHook sets the hook invoked when a tab's URL changes between
// snapshots, covering single-page-app navigation without a reload.
func WithNavigationHook(navigate func(tabID int)) RunnerOption {
	return func(r *Runner) { r.navigate = navigate }
}

// NewRunner builds a runner with the given mutation debounce.
func NewRunner(logger *slog.Logger, debounce time.Duration, opts ...RunnerOption) *Runner {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	runner := &Runner{
		debounce: debounce,
		latest:   make(map[int]*PageSnapshot),
		pending:  make(map[int]*time.Timer),
		lastURL:  make(map[int]string),
		logger:   logging.NewComponentLogger(logger, "detect"),
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// OnSnapshot records the latest page state for a tab and schedules a
// debounced detection pass. A URL change fires the navigation hook
// immediately so stale capture state is reset before the pass runs.
func (r *Runner) OnSnapshot(snapshot *PageSnapshot) {
	r.mu.Lock()
	r.latest[snapshot.TabID] = snapshot
	urlChanged := r.lastURL[snapshot.TabID] != "" && r.lastURL[snapshot.TabID] != snapshot.URL
	r.lastURL[snapshot.TabID] = snapshot.URL
	scheduled := r.pending[snapshot.TabID] != nil
	if !scheduled {
		tabID := snapshot.TabID
		r.pending[tabID] = time.AfterFunc(r.debounce, func() { r.run(tabID) })
	}
	r.mu.Unlock()

	if urlChanged && r.navigate != nil {
		r.navigate(snapshot.TabID)
	}
}

// Redetect bypasses the debounce and re-runs detection on the tab's last
// snapshot. The bool reports whether any snapshot was available.
func (r *Runner) Redetect(tabID int) bool {
	r.mu.Lock()
	snapshot := r.latest[tabID]
	r.mu.Unlock()
	if snapshot == nil {
		return false
	}
	r.detect(snapshot)
	return true
}

// DropTab forgets a tab's snapshot state and cancels any pending pass.
func (r *Runner) DropTab(tabID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.latest, tabID)
	delete(r.lastURL, tabID)
	if timer, ok := r.pending[tabID]; ok {
		timer.Stop()
		delete(r.pending, tabID)
	}
}

func (r *Runner) run(tabID int) {
	r.mu.Lock()
	delete(r.pending, tabID)
	snapshot := r.latest[tabID]
	r.mu.Unlock()
	if snapshot == nil {
		return
	}
	r.detect(snapshot)
}

func (r *Runner) detect(snapshot *PageSnapshot) {
	info := Detect(snapshot)
	if info.ShowTitle == "" {
		r.logger.Debug("detection found no show", logging.Int("tab_id", snapshot.TabID))
	} else {
		attrs := []any{
			logging.Int("tab_id", snapshot.TabID),
			logging.String("show_title", info.ShowTitle),
			logging.String("platform", info.Platform),
		}
		if info.Episode != nil {
			attrs = append(attrs,
				logging.Int("season", info.Episode.Season),
				logging.Int("episode", info.Episode.Episode),
			)
		}
		r.logger.Info("show detected", attrs...)
	}
	if r.publish != nil {
		r.publish(snapshot.TabID, info)
	}
}
