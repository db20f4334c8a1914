package capture

import (
	"strings"
	"sync"
)

// dedupWindow is how many trailing buffer entries a candidate line is
// checked against before being accepted. Streaming subtitle renderers
// re-emit the same cue several times as styling settles.
const dedupWindow = 6

// Buffer is a fixed-capacity FIFO of normalized subtitle lines.
type Buffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

// NewBuffer returns a buffer that retains at most max lines.
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = 40
	}
	return &Buffer{max: max}
}

// Add appends a normalized line, reporting whether it was accepted. Lines
// that are empty, equal to the most recent entry, or already present in the
// trailing dedup window are rejected. When full, the oldest line is dropped.
func (b *Buffer) Add(line string) bool {
	if line == "" {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.lines); n > 0 && b.lines[n-1] == line {
		return false
	}
	start := len(b.lines) - dedupWindow
	if start < 0 {
		start = 0
	}
	for _, recent := range b.lines[start:] {
		if recent == line {
			return false
		}
	}

	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
	return true
}

// Lines returns a copy of the buffered lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Text returns the buffered lines joined with newlines.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

// Len returns the current number of buffered lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Reset discards all buffered lines.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}
