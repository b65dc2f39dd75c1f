package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNetwork marks transient transport failures: timeouts, resets, 5xx.
	ErrNetwork = errors.New("network error")
	// ErrAuth marks refresh or revocation failures that need operator action.
	ErrAuth = errors.New("authorization error")
	// ErrRateLimited marks 429 responses; the hint, when present, rides on a
	// RateLimitError wrapping this sentinel.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound marks items or pages the remote no longer knows about.
	ErrNotFound = errors.New("not found")
	// ErrStorage marks local disk failures while writing downloads.
	ErrStorage = errors.New("storage error")
	// ErrDatabase marks item store failures; the store itself is assumed
	// durable, so callers retry on the next cycle.
	ErrDatabase = errors.New("database error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// RateLimitError carries a server-supplied retry hint from a 429 response.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRateLimited, e.Err}
	}
	return []error{ErrRateLimited}
}

// RetryAfterHint extracts a server retry hint if the error chain carries one.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
