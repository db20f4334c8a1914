package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"spoilshield/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection refused")
	err := services.Wrap(services.ErrTransient, "tvmaze", "episode lookup", "fetch failed", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped cause to survive")
	}
	if !strings.Contains(err.Error(), "tvmaze: episode lookup: fetch failed") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected default ErrTransient, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestContextAnnotations(t *testing.T) {
	ctx := services.WithSessionID(context.Background(), "dark-s1e3")
	ctx = services.WithRequestID(ctx, "req-1")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "dark-s1e3" {
		t.Fatalf("session id = %q ok=%v", id, ok)
	}
	if id, ok := services.RequestIDFromContext(ctx); !ok || id != "req-1" {
		t.Fatalf("request id = %q ok=%v", id, ok)
	}
	if _, ok := services.SessionIDFromContext(context.Background()); ok {
		t.Fatal("empty context should not carry a session id")
	}
}
