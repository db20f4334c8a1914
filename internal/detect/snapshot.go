package detect

import (
	"net/url"
	"strings"
	"time"
)

// PageSnapshot carries the page signals a browser context forwards for
// detection: document title, social metadata tags, canonical link, and any
// embedded structured-data blocks.
type PageSnapshot struct {
	TabID          int      `json:"tabId"`
	URL            string   `json:"url"`
	CanonicalURL   string   `json:"canonicalUrl,omitempty"`
	Title          string   `json:"title,omitempty"`
	OGTitle        string   `json:"ogTitle,omitempty"`
	TwitterTitle   string   `json:"twitterTitle,omitempty"`
	StructuredData []string `json:"structuredData,omitempty"`
}

// EpisodeInfo is a parsed season/episode pair.
type EpisodeInfo struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

// ShowInfo is the result of one detection pass. Each pass supersedes the
// previous one wholesale. An empty ShowTitle means "no show page" and must
// propagate as a reset signal rather than silence.
type ShowInfo struct {
	Platform   string       `json:"platform"`
	ShowTitle  string       `json:"showTitle"`
	Episode    *EpisodeInfo `json:"episodeInfo,omitempty"`
	URL        string       `json:"url"`
	DetectedAt time.Time    `json:"detectedAt"`
}

// Platform names recognized from hostnames.
const (
	PlatformNetflix     = "netflix"
	PlatformCrunchyroll = "crunchyroll"
	PlatformUnknown     = "unknown"
)

// PlatformForURL maps a page URL to its streaming platform name.
func PlatformForURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return PlatformUnknown
	}
	host := strings.ToLower(parsed.Hostname())
	switch {
	case host == "netflix.com" || strings.HasSuffix(host, ".netflix.com"):
		return PlatformNetflix
	case host == "crunchyroll.com" || strings.HasSuffix(host, ".crunchyroll.com"):
		return PlatformCrunchyroll
	default:
		return PlatformUnknown
	}
}
