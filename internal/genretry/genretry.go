// Package genretry wraps generation calls in a bounded retry policy with
// exponential backoff and an extended cooldown after rate limiting.
package genretry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/fablekit/fable/internal/providers"
)

// Policy controls attempt count and backoff shape for one generation stage.
// The zero value is unusable; start from a preset.
type Policy struct {
	// MaxRetries is the retry count after the first attempt, so total
	// attempts are MaxRetries+1.
	MaxRetries int

	// BaseDelay seeds the standard backoff: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// RateLimitBase and RateLimitShift seed the extended cooldown applied
	// after a 429: RateLimitBase * 2^(attempt+RateLimitShift).
	RateLimitBase  time.Duration
	RateLimitShift uint
}

// Text returns the retry policy for story text generation.
func Text() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, RateLimitBase: time.Second, RateLimitShift: 1}
}

// Image returns the retry policy for illustration generation.
func Image() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, RateLimitBase: 2 * time.Second, RateLimitShift: 1}
}

// Speech returns the retry policy for narration synthesis.
func Speech() Policy {
	return Policy{MaxRetries: 3, BaseDelay: 2 * time.Second, RateLimitBase: 3 * time.Second, RateLimitShift: 2}
}

// Delay returns the wait before retry n (0-based), given the error that
// triggered it. Rate limit errors get the extended cooldown, and a server
// supplied Retry-After wins when longer.
func (p Policy) Delay(n uint, err error) time.Duration {
	var rle *providers.RateLimitError
	if errors.As(err, &rle) {
		d := p.RateLimitBase * (1 << (n + p.RateLimitShift))
		if rle.RetryAfter > d {
			d = rle.RetryAfter
		}
		return d
	}
	return p.BaseDelay * (1 << n)
}

// Do runs fn under the policy, returning the last error when all attempts
// fail. The context cancels waits between attempts.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	return retry.Do(
		func() error { return fn(ctx) },
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			return p.Delay(n, err)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("retrying after failure",
				"op", op,
				"attempt", n+1,
				"max_attempts", attempts,
				"rate_limited", providers.IsRateLimitError(err),
				"error", err)
		}),
	)
}
