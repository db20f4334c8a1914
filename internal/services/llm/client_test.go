package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"spoilshield/internal/services"
	"spoilshield/internal/services/llm"
)

func newClient(t *testing.T, handler http.HandlerFunc) *llm.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := llm.New(
		llm.Config{APIKey: "test-key", Model: "claude-sonnet-4-20250514", MaxTokens: 1024},
		anthropic.WithBaseURL(server.URL+"/v1"),
	)
	if err != nil {
		t.Fatalf("llm.New: %v", err)
	}
	return client
}

func textResponse(text string) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-sonnet-4-20250514",
		"stop_reason": "end_turn",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"usage":       map[string]int{"input_tokens": 10, "output_tokens": 10},
	})
	return body
}

func TestSanitizeReturnsCleanedText(t *testing.T) {
	var captured struct {
		System   []map[string]any `json:"system"`
		Messages []struct {
			Content []struct {
				Text *string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(textResponse("Yuji swallowed the finger."))
	})

	cleaned, err := client.Sanitize(context.Background(), "Yuji swallowed the finger, which later becomes pivotal.", 1, 1)
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	if cleaned != "Yuji swallowed the finger." {
		t.Fatalf("cleaned = %q", cleaned)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Content[0].Text == nil {
		t.Fatal("expected one user message")
	}
	if !strings.Contains(*captured.Messages[0].Content[0].Text, "USER'S PROGRESS: Season 1, Episode 1") {
		t.Fatal("prompt missing progress line")
	}
}

func TestSanitizeFailureIsSanitizationError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	})

	_, err := client.Sanitize(context.Background(), "raw text", 1, 2)
	if !errors.Is(err, services.ErrSanitization) {
		t.Fatalf("expected ErrSanitization, got %v", err)
	}
}

func TestSanitizeEmptyResultFails(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(textResponse("   "))
	})

	_, err := client.Sanitize(context.Background(), "raw text", 1, 2)
	if !errors.Is(err, services.ErrSanitization) {
		t.Fatalf("expected ErrSanitization for empty result, got %v", err)
	}
}

func TestWebSearchRecapSentinelIsNotFound(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(textResponse("NO_RECAP_FOUND"))
	})

	_, err := client.WebSearchRecap(context.Background(), "Obscure Show", 4, 12)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWebSearchRecapReturnsText(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(textResponse("The crew reached the gate city."))
	})

	recap, err := client.WebSearchRecap(context.Background(), "Made in Abyss", 1, 3)
	if err != nil {
		t.Fatalf("WebSearchRecap: %v", err)
	}
	if recap != "The crew reached the gate city." {
		t.Fatalf("recap = %q", recap)
	}
}

func TestAuditAnswerRewrites(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(textResponse("He is a teacher at Jujutsu High."))
	})

	audited, err := client.AuditAnswer(context.Background(), "some context",
		"He is a teacher and later gets sealed.", 1, 5)
	if err != nil {
		t.Fatalf("AuditAnswer: %v", err)
	}
	if audited != "He is a teacher at Jujutsu High." {
		t.Fatalf("audited = %q", audited)
	}
}
