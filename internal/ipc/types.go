package ipc

import "time"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the daemon runtime summary for the CLI.
type StatusResponse struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	DatabasePath string `json:"database_path"`
	LockPath     string `json:"lock_path"`
	APIBind      string `json:"api_bind"`
	Phase        string `json:"phase"`
	SessionID    string `json:"session_id"`
	ShowTitle    string `json:"show_title"`
	Season       int    `json:"season"`
	Episode      int    `json:"episode"`
	SessionCount int    `json:"session_count"`
}

// Session is the IPC DTO for one stored chat session.
type Session struct {
	ID            string    `json:"id"`
	ShowID        string    `json:"show_id"`
	ShowTitle     string    `json:"show_title"`
	Platform      string    `json:"platform"`
	Season        int       `json:"season"`
	Episode       int       `json:"episode"`
	Confirmed     bool      `json:"confirmed"`
	MessageCount  int       `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
	Active        bool      `json:"active"`
}

// SessionListRequest lists stored sessions.
type SessionListRequest struct {
	// IncludeUnconfirmed also returns sessions the user never confirmed.
	IncludeUnconfirmed bool `json:"include_unconfirmed"`
}

// SessionListResponse contains sessions, most recent first.
type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
}

// SessionSwitchRequest activates an existing session.
type SessionSwitchRequest struct {
	ID string `json:"id"`
}

// SessionSwitchResponse returns the newly active session.
type SessionSwitchResponse struct {
	Session Session `json:"session"`
}

// SessionDeleteRequest removes a session and its message log.
type SessionDeleteRequest struct {
	ID string `json:"id"`
}

// SessionDeleteResponse reports the deletion.
type SessionDeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// RedetectRequest asks the page to rerun show detection.
type RedetectRequest struct{}

// RedetectResponse acknowledges the redetect request.
type RedetectResponse struct {
	Requested bool `json:"requested"`
}
