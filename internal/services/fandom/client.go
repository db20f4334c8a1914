package fandom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"spoilshield/internal/services"
	"spoilshield/internal/textutil"
)

// maxRecapRunes bounds how much scraped text one recap may carry.
const maxRecapRunes = 4000

// Fetcher defines the wiki recap operation used by the resolver.
type Fetcher interface {
	EpisodeRecap(ctx context.Context, showSlug string, episode int) (string, error)
}

// Client fetches episode pages from configured wikis.
type Client struct {
	allowedWikis map[string]string
	httpClient   *http.Client
}

var _ Fetcher = (*Client)(nil)

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

// New creates a fandom client over the allow-list (show slug to wiki base
// URL).
func New(allowedWikis map[string]string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &Client{
		allowedWikis: allowedWikis,
		httpClient:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Allowed reports whether the show has a configured wiki.
func (c *Client) Allowed(showSlug string) bool {
	_, ok := c.allowedWikis[showSlug]
	return ok
}

// EpisodeRecap fetches the episode page for a show, trying the slug
// numbering conventions wikis disagree on (Episode_5, Episode_05,
// Episode_005) until one resolves, and extracts the recap section text.
func (c *Client) EpisodeRecap(ctx context.Context, showSlug string, episode int) (string, error) {
	base, ok := c.allowedWikis[showSlug]
	if !ok {
		return "", services.Wrap(services.ErrConfiguration, "fandom", "episode recap",
			fmt.Sprintf("show %q has no allow-listed wiki", showSlug), nil)
	}
	if episode <= 0 {
		return "", errors.New("episode must be positive")
	}

	slugs := []string{
		fmt.Sprintf("Episode_%d", episode),
		fmt.Sprintf("Episode_%02d", episode),
		fmt.Sprintf("Episode_%03d", episode),
	}
	var lastErr error
	for _, slug := range slugs {
		recap, err := c.fetchPage(ctx, base+"/wiki/"+slug)
		if err == nil {
			return recap, nil
		}
		if !errors.Is(err, services.ErrNotFound) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "fandom", "fetch page",
			fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", services.Wrap(services.ErrNotFound, "fandom", "fetch page", pageURL, nil)
	default:
		return "", services.Wrap(services.ErrTransient, "fandom", "fetch page",
			fmt.Sprintf("returned %d (latency=%v)", resp.StatusCode, latency), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read page body: %w", err)
	}

	recap := extractRecapSection(string(body))
	if recap == "" {
		return "", services.Wrap(services.ErrNotFound, "fandom", "fetch page",
			"no recap section found", nil)
	}
	return textutil.TruncateRunes(recap, maxRecapRunes), nil
}

// recapHeadings are the section headings tried in order; the first present
// section wins.
var recapHeadings = []string{"Plot", "Synopsis", "Summary"}

// extractRecapSection pulls the text between a recap heading and the next
// section heading.
func extractRecapSection(html string) string {
	for _, heading := range recapHeadings {
		section := sectionAfterHeading(html, heading)
		if section != "" {
			return section
		}
	}
	return ""
}

func sectionAfterHeading(html, heading string) string {
	marker := fmt.Sprintf(`id="%s"`, heading)
	idx := strings.Index(html, marker)
	if idx < 0 {
		return ""
	}
	// Skip past the heading's closing tag.
	rest := html[idx:]
	headingEnd := strings.Index(rest, "</h2>")
	if headingEnd < 0 {
		return ""
	}
	rest = rest[headingEnd+len("</h2>"):]
	if next := strings.Index(rest, "<h2"); next >= 0 {
		rest = rest[:next]
	}
	return textutil.StripHTML(rest)
}
