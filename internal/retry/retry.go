// Package retry classifies download failures and schedules re-attempts
// with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"syncabull/internal/config"
	"syncabull/internal/services"
)

// Class partitions failures by how the scheduler should react.
type Class int

const (
	// Retryable failures re-enter the pool after a backoff delay.
	Retryable Class = iota
	// Fatal failures never succeed on retry and go terminal immediately.
	Fatal
	// Canceled means the attempt was interrupted by shutdown and must not
	// be counted against the item.
	Canceled
)

// Policy decides failure classes and backoff delays. The zero value is not
// usable; construct with New.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration

	rand func() float64
}

// New builds a policy from the sync configuration.
func New(cfg *config.Config) Policy {
	return Policy{
		MaxAttempts: cfg.Sync.MaxAttempts,
		Base:        cfg.BackoffBase(),
		Cap:         cfg.BackoffCap(),
		rand:        rand.Float64,
	}
}

// Classify maps an attempt error to a failure class. Unknown errors are
// treated as retryable so an unanticipated failure mode does not silently
// abandon items.
func (p Policy) Classify(err error) Class {
	switch {
	case err == nil:
		return Retryable
	case errors.Is(err, context.Canceled):
		return Canceled
	case errors.Is(err, services.ErrNotFound):
		return Fatal
	case errors.Is(err, services.ErrStorage):
		// Disk faults do not heal on retry and need an operator looking at
		// the local environment.
		return Fatal
	default:
		return Retryable
	}
}

// Delay computes the wait before the next attempt. attempts is the number of
// attempts already consumed. A server-provided retry hint takes precedence
// over the computed backoff when it is longer.
func (p Policy) Delay(attempts int, err error) time.Duration {
	delay := p.backoff(attempts)
	if hint, ok := services.RetryAfterHint(err); ok && hint > delay {
		delay = hint
		if p.Cap > 0 && delay > p.Cap {
			delay = p.Cap
		}
	}
	return delay
}

// Exhausted reports whether the attempt budget is spent.
func (p Policy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// backoff doubles per consumed attempt, capped, with up to 25% added jitter
// so simultaneous failures do not retry in lockstep.
func (p Policy) backoff(attempts int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if p.Cap > 0 && delay >= p.Cap {
			delay = p.Cap
			break
		}
	}
	if p.Cap > 0 && delay > p.Cap {
		delay = p.Cap
	}
	if p.rand != nil {
		delay += time.Duration(p.rand() * 0.25 * float64(delay))
	}
	return delay
}
