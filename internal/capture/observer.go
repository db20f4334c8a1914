package capture

import (
	"log/slog"
	"sync"
	"time"

	"spoilshield/internal/logging"
	"spoilshield/internal/textutil"
)

// Observer ingests mutation batches per tab, feeding each tab's buffer and
// publishing context updates when lines are accepted.
type Observer struct {
	mu          sync.Mutex
	bufferLines int
	maxArea     int
	debounce    time.Duration
	buffers     map[int]*Buffer
	pending     map[int]*time.Timer
	publish     func(Update)
	rescan      func(tabID int)
	logger      *slog.Logger
}

// ObserverOption customizes observer construction.
type ObserverOption func(*Observer)

// WithPublisher sets the hook invoked when a tab's context changes.
func WithPublisher(publish func(Update)) ObserverOption {
	return func(o *Observer) { o.publish = publish }
}

// WithRescan sets the hook that asks a tab for a full container re-read.
func WithRescan(rescan func(tabID int)) ObserverOption {
	return func(o *Observer) { o.rescan = rescan }
}

// NewObserver builds an observer. bufferLines caps each tab's buffer,
// maxArea rejects text from oversized elements, and debounce coalesces
// rescan requests.
func NewObserver(logger *slog.Logger, bufferLines, maxArea int, debounce time.Duration, opts ...ObserverOption) *Observer {
	if maxArea <= 0 {
		maxArea = 300_000
	}
	if debounce <= 0 {
		debounce = 750 * time.Millisecond
	}
	observer := &Observer{
		bufferLines: bufferLines,
		maxArea:     maxArea,
		debounce:    debounce,
		buffers:     make(map[int]*Buffer),
		pending:     make(map[int]*time.Timer),
		logger:      logging.NewComponentLogger(logger, "capture"),
	}
	for _, opt := range opts {
		opt(observer)
	}
	return observer
}

// HandleBatch filters and buffers a mutation batch, publishing an update when
// at least one line is accepted.
func (o *Observer) HandleBatch(batch MutationBatch) {
	buffer := o.bufferFor(batch.TabID)

	accepted := 0
	for _, entry := range batch.Entries {
		if entry.Area >= o.maxArea {
			continue
		}
		line := textutil.NormalizeLine(entry.Text)
		if buffer.Add(line) {
			accepted++
		}
	}
	if accepted == 0 {
		return
	}

	o.logger.Debug("buffered subtitle lines",
		logging.Int("tab_id", batch.TabID),
		logging.Int("accepted", accepted),
		logging.Int("buffered", buffer.Len()),
	)

	if o.publish != nil {
		o.publish(Update{
			TabID:     batch.TabID,
			URL:       batch.URL,
			Platform:  batch.Platform,
			Context:   buffer.Text(),
			Accepted:  accepted,
			UpdatedAt: time.Now(),
		})
	}
}

// RequestRescan schedules a full container re-read for the tab. Requests
// inside the debounce window collapse into one trailing-edge rescan.
func (o *Observer) RequestRescan(tabID int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, waiting := o.pending[tabID]; waiting {
		return
	}
	o.pending[tabID] = time.AfterFunc(o.debounce, func() {
		o.mu.Lock()
		delete(o.pending, tabID)
		o.mu.Unlock()
		if o.rescan != nil {
			o.rescan(tabID)
		}
	})
}

// ContextText returns the tab's current joined buffer contents.
func (o *Observer) ContextText(tabID int) string {
	return o.bufferFor(tabID).Text()
}

// ResetTab discards the tab's buffer, e.g. when the tab navigates to a
// different episode.
func (o *Observer) ResetTab(tabID int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if buffer, ok := o.buffers[tabID]; ok {
		buffer.Reset()
	}
}

// DropTab forgets the tab entirely, cancelling any pending rescan.
func (o *Observer) DropTab(tabID int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.buffers, tabID)
	if timer, ok := o.pending[tabID]; ok {
		timer.Stop()
		delete(o.pending, tabID)
	}
}

func (o *Observer) bufferFor(tabID int) *Buffer {
	o.mu.Lock()
	defer o.mu.Unlock()
	buffer, ok := o.buffers[tabID]
	if !ok {
		buffer = NewBuffer(o.bufferLines)
		o.buffers[tabID] = buffer
	}
	return buffer
}
