package capture

import "time"

// TextEntry is one piece of on-screen text observed by a browser context,
// with the bounding-box area of the element it came from.
type TextEntry struct {
	Text string `json:"text"`
	Area int    `json:"area"`
}

// MutationBatch is a group of text entries observed in one mutation burst on
// a single tab.
type MutationBatch struct {
	TabID    int         `json:"tabId"`
	URL      string      `json:"url"`
	Platform string      `json:"platform"`
	Entries  []TextEntry `json:"entries"`
	// FullScan marks a complete re-read of the page's subtitle containers,
	// as opposed to an incremental mutation burst.
	FullScan bool `json:"fullScan,omitempty"`
}

// Update is emitted whenever the buffer accepts new lines.
type Update struct {
	TabID     int
	URL       string
	Platform  string
	Context   string
	Accepted  int
	UpdatedAt time.Time
}
