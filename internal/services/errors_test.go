package services_test

import (
	"errors"
	"testing"
	"time"

	"syncabull/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrNetwork, "photos", "list page", "request failed", base)
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected ErrNetwork in chain: %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected cause preserved: %v", err)
	}
}

func TestWrapDefaultsToNetwork(t *testing.T) {
	err := services.Wrap(nil, "photos", "fetch", "", nil)
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("nil marker should default to ErrNetwork: %v", err)
	}
}

func TestRateLimitErrorCarriesHint(t *testing.T) {
	err := services.Wrap(services.ErrRateLimited, "photos", "list page", "throttled",
		&services.RateLimitError{RetryAfter: 30 * time.Second})

	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited in chain: %v", err)
	}
	hint, ok := services.RetryAfterHint(err)
	if !ok || hint != 30*time.Second {
		t.Fatalf("hint = %v ok = %v, want 30s", hint, ok)
	}
}

func TestRateLimitErrorKeepsSentinelWithCause(t *testing.T) {
	cause := errors.New("429 too many requests")
	err := &services.RateLimitError{RetryAfter: time.Minute, Err: cause}
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited in chain: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause preserved: %v", err)
	}
}

func TestRetryAfterHintAbsent(t *testing.T) {
	if _, ok := services.RetryAfterHint(services.ErrNetwork); ok {
		t.Fatal("no hint expected on bare sentinel")
	}
}
