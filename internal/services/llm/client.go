package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"spoilshield/internal/services"
)

// Sanitizer is the mandatory pass every externally sourced recap goes
// through before it may be cached or surfaced.
type Sanitizer interface {
	Sanitize(ctx context.Context, rawText string, season, episode int) (string, error)
}

// WebRecapper generates a recap from the model's own knowledge, constrained
// to the requested episode only.
type WebRecapper interface {
	WebSearchRecap(ctx context.Context, showTitle string, season, episode int) (string, error)
}

// Config carries the Anthropic connection settings.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// Client is the Anthropic-backed implementation of the AI features.
type Client struct {
	api       *anthropic.Client
	model     string
	maxTokens int
}

var (
	_ Sanitizer   = (*Client)(nil)
	_ WebRecapper = (*Client)(nil)
)

// New creates a client. Extra anthropic options (base URL, HTTP client) are
// passed through, which tests use to point at a fake server.
func New(cfg Config, opts ...anthropic.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic api key required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("anthropic model required")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Client{
		api:       anthropic.NewClient(cfg.APIKey, opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

// Sanitize strips hindsight and forward references from a raw episode
// summary. Any failure, including an empty result, is a sanitization
// failure; callers must treat it as "no recap", never as permission to use
// the raw text.
func (c *Client) Sanitize(ctx context.Context, rawText string, season, episode int) (string, error) {
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return "", errors.New("raw text must not be empty")
	}
	if season <= 0 {
		season = 1
	}
	if episode <= 0 {
		episode = 1
	}

	text, err := c.complete(ctx, sanitizeSystemPrompt,
		fmt.Sprintf(sanitizeUserTemplate, rawText, season, episode), 0.3, 2000)
	if err != nil {
		return "", services.Wrap(services.ErrSanitization, "llm", "sanitize", "", err)
	}
	if text == "" {
		return "", services.Wrap(services.ErrSanitization, "llm", "sanitize", "empty result", nil)
	}
	return text, nil
}

// WebSearchRecap asks the model for a recap of exactly one episode. The
// prompt demands a sentinel reply when the model cannot ground the episode;
// that reply surfaces as ErrNotFound.
func (c *Client) WebSearchRecap(ctx context.Context, showTitle string, season, episode int) (string, error) {
	showTitle = strings.TrimSpace(showTitle)
	if showTitle == "" || season <= 0 || episode <= 0 {
		return "", errors.New("show title, season, and episode required")
	}

	text, err := c.complete(ctx, "",
		fmt.Sprintf(webRecapTemplate, showTitle, season, episode, season, episode), 0.2, 512)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "llm", "web recap", "", err)
	}
	if text == "" || text == noRecapSentinel {
		return "", services.Wrap(services.ErrNotFound, "llm", "web recap",
			fmt.Sprintf("%s s%de%d", showTitle, season, episode), nil)
	}
	return text, nil
}

// AuditAnswer reviews a drafted answer against the episode context and
// rewrites it if it leaks past the spoiler boundary. Callers degrade to the
// original answer when the audit itself fails.
func (c *Client) AuditAnswer(ctx context.Context, contextText, answer string, season, episode int) (string, error) {
	if strings.TrimSpace(answer) == "" {
		return "", errors.New("answer must not be empty")
	}
	if season <= 0 {
		season = 1
	}
	if episode <= 0 {
		episode = 1
	}

	text, err := c.complete(ctx, auditSystemPrompt,
		fmt.Sprintf(auditUserTemplate, contextText, season, episode, answer), 0.2, 1000)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "llm", "audit answer", "", err)
	}
	if text == "" {
		return "", services.Wrap(services.ErrTransient, "llm", "audit answer", "empty result", nil)
	}
	return text, nil
}

// StreamAnswer answers a chat question, invoking onDelta for each streamed
// text chunk. The accumulated text is returned even when the stream errors
// partway; callers preserve partial content rather than discarding it.
func (c *Client) StreamAnswer(ctx context.Context, request AnswerRequest, onDelta func(string)) (string, error) {
	if strings.TrimSpace(request.Question) == "" {
		return "", errors.New("question must not be empty")
	}

	temperature := float32(0.4)
	var builder strings.Builder
	var streamErr error

	req := anthropic.MessagesStreamRequest{
		MessagesRequest: anthropic.MessagesRequest{
			Model: anthropic.Model(c.model),
			Messages: []anthropic.Message{
				{
					Role:    anthropic.RoleUser,
					Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(request.userMessage())},
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: &temperature,
			MultiSystem: []anthropic.MessageSystemPart{
				{Type: "text", Text: chatSystemPrompt},
			},
		},
		OnContentBlockDelta: func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
				builder.WriteString(*delta.Delta.Text)
				if onDelta != nil {
					onDelta(*delta.Delta.Text)
				}
			}
		},
		OnError: func(response anthropic.ErrorResponse) {
			if response.Error != nil {
				streamErr = fmt.Errorf("anthropic stream: %s", response.Error.Message)
			}
		},
	}

	_, err := c.api.CreateMessagesStream(ctx, req)
	if err == nil {
		err = streamErr
	}
	if err != nil {
		return builder.String(), services.Wrap(services.ErrTransient, "llm", "answer", "", err)
	}
	return builder.String(), nil
}

// complete issues one non-streaming request and returns the first text block.
func (c *Client) complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	req := anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(user)},
			},
		},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if system != "" {
		req.MultiSystem = []anthropic.MessageSystemPart{{Type: "text", Text: system}}
	}

	resp, err := c.api.CreateMessages(ctx, req)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			builder.WriteString(*block.Text)
		}
	}
	return strings.TrimSpace(builder.String()), nil
}
