package tvmaze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"spoilshield/internal/services"
	"spoilshield/internal/textutil"
)

// Show is one canonical show identity returned by search.
type Show struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type searchEntry struct {
	Score float64 `json:"score"`
	Show  Show    `json:"show"`
}

type episodeResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// Lookup defines the episode-metadata operations the resolver and init flow
// depend on.
type Lookup interface {
	Search(ctx context.Context, title string) ([]Show, error)
	EpisodeSummary(ctx context.Context, showID int64, season, episode int) (string, error)
}

// Client provides access to the TVMaze API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Lookup = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a TVMaze client.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("tvmaze base url required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Search resolves a free-text title to candidate show identities, best
// match first.
func (c *Client) Search(ctx context.Context, title string) ([]Show, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("title must not be empty")
	}
	endpoint, err := url.Parse(c.baseURL + "/search/shows")
	if err != nil {
		return nil, fmt.Errorf("parse tvmaze url: %w", err)
	}
	params := url.Values{}
	params.Set("q", title)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tvmaze", "search",
			fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrTransient, "tvmaze", "search",
			fmt.Sprintf("returned %d (latency=%v)", resp.StatusCode, latency), nil)
	}

	var entries []searchEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode tvmaze response: %w", err)
	}
	shows := make([]Show, 0, len(entries))
	for _, entry := range entries {
		if entry.Show.ID != 0 && entry.Show.Name != "" {
			shows = append(shows, entry.Show)
		}
	}
	return shows, nil
}

// EpisodeSummary fetches the stored summary for an exact (show, season,
// episode) tuple, stripped to plain text. A missing episode or an episode
// with no summary yields ErrNotFound.
func (c *Client) EpisodeSummary(ctx context.Context, showID int64, season, episode int) (string, error) {
	if showID <= 0 || season <= 0 || episode <= 0 {
		return "", errors.New("show id, season, and episode must be positive")
	}
	endpoint, err := url.Parse(c.baseURL + "/shows/" + strconv.FormatInt(showID, 10) + "/episodebynumber")
	if err != nil {
		return "", fmt.Errorf("parse tvmaze url: %w", err)
	}
	params := url.Values{}
	params.Set("season", strconv.Itoa(season))
	params.Set("number", strconv.Itoa(episode))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "tvmaze", "episode summary",
			fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", services.Wrap(services.ErrNotFound, "tvmaze", "episode summary",
			fmt.Sprintf("show %d s%de%d", showID, season, episode), nil)
	default:
		return "", services.Wrap(services.ErrTransient, "tvmaze", "episode summary",
			fmt.Sprintf("returned %d (latency=%v)", resp.StatusCode, latency), nil)
	}

	var payload episodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode tvmaze response: %w", err)
	}

	summary := textutil.StripHTML(payload.Summary)
	if summary == "" {
		return "", services.Wrap(services.ErrNotFound, "tvmaze", "episode summary",
			"episode has no summary", nil)
	}
	return summary, nil
}
