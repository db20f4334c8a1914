package store

import (
	"fmt"
	"time"

	"spoilshield/internal/textutil"
)

// Session is one tracked viewing session: a show/episode identity plus the
// accumulated subtitle context and chat log for it.
type Session struct {
	ID               string
	ShowID           string
	ShowTitle        string
	Platform         string
	Season           int
	Episode          int
	Confirmed        bool
	Context          string
	SyncMessageCount int
	CreatedAt        time.Time
	LastMessageAt    time.Time
	UpdatedAt        time.Time
}

// Identity is the minimal show/episode tuple that keys a session.
type Identity struct {
	ShowID    string
	ShowTitle string
	Platform  string
	Season    int
	Episode   int
}

// Message is a single chat exchange entry within a session.
type Message struct {
	ID        int64
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LegacySessionID is the identifier older single-session installs stored
// their data under. It is adopted into the first keyed session created.
const LegacySessionID = "legacy"

// MakeSessionID derives the deterministic session identifier for an identity.
// The stable show ID wins when known; otherwise the title slug stands in, so
// the same episode maps to the same session across detections.
func MakeSessionID(identity Identity) string {
	base := identity.ShowID
	if base == "" {
		base = textutil.Slugify(identity.ShowTitle)
	}
	return fmt.Sprintf("%s-s%de%d", base, identity.Season, identity.Episode)
}
