package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"spoilshield/internal/detect"
)

// Event types delivered to panel consumers.
const (
	EventShowInfo = "SHOW_INFO"
	EventContext  = "CONTEXT"
)

// Request kinds a panel consumer may issue.
const (
	RequestShowInfo = "REQUEST_SHOW_INFO"
	RequestContext  = "REQUEST_CONTEXT"
	RequestRedetect = "REQUEST_REDETECT"
)

// Command kinds queued for page contexts to pick up.
const (
	CommandRescan   = "RESCAN"
	CommandRedetect = "REDETECT_SHOW_INFO"
)

// Durable key space.
const (
	keyShowInfoCurrent = "show-info:current"
	keyContextCurrent  = "context:current"
	tabContextPrefix   = "context:"
)

// Event is one push delivery to a consumer. A nil Payload on a SHOW_INFO
// event is the explicit cleared signal, distinct from never having sent one.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ShowInfoEnvelope is the stored shape of the latest detection result.
// Cleared marks an explicit empty detection.
type ShowInfoEnvelope struct {
	Cleared   bool             `json:"cleared,omitempty"`
	TabID     int              `json:"tabId"`
	Info      *detect.ShowInfo `json:"info,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ContextEnvelope is the stored shape of the latest caption context.
type ContextEnvelope struct {
	TabID     int       `json:"tabId"`
	URL       string    `json:"url"`
	Platform  string    `json:"platform"`
	Context   string    `json:"context"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Command is one queued instruction for a page context.
type Command struct {
	TabID int    `json:"tabId"`
	Kind  string `json:"kind"`
}

// IdentityKey derives the dedup key for a detection result. Consumers
// suppress re-delivery of unchanged identities so refresh ticks do not
// re-trigger downstream lookups.
func IdentityKey(info *detect.ShowInfo) string {
	if info == nil || info.ShowTitle == "" {
		return ""
	}
	season, episode := 0, 0
	if info.Episode != nil {
		season, episode = info.Episode.Season, info.Episode.Episode
	}
	return fmt.Sprintf("%s|%s|%d|%d", info.ShowTitle, info.Platform, season, episode)
}
