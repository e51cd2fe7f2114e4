package genretry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fablekit/fable/internal/providers"
)

// fast returns a policy with negligible delays so tests run quickly.
func fast() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Microsecond, RateLimitBase: time.Microsecond, RateLimitShift: 1}
}

func TestDoStopsAtAttemptCeiling(t *testing.T) {
	calls := 0
	err := fast().Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (1 initial + 3 retries)", calls)
	}
}

func TestDoSucceedsMidway(t *testing.T) {
	calls := 0
	err := fast().Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoReturnsLastError(t *testing.T) {
	sentinel := errors.New("final failure")
	calls := 0
	err := fast().Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		if calls == 4 {
			return sentinel
		}
		return errors.New("earlier failure")
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want last error", err)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxRetries: 5, BaseDelay: time.Hour, RateLimitBase: time.Hour}
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, "test", func(ctx context.Context) error {
			calls++
			return errors.New("fail")
		})
	}()
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
	if calls > 2 {
		t.Errorf("calls = %d, cancellation should stop retries", calls)
	}
}

func TestDelayStandardBackoff(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: time.Second}
	plain := errors.New("transient")
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for n, w := range want {
		if got := p.Delay(uint(n), plain); got != w {
			t.Errorf("Delay(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestDelayRateLimitCooldown(t *testing.T) {
	p := Speech()
	rle := &providers.RateLimitError{Message: "slow down", StatusCode: 429}
	// 3s * 2^(n+2): 12s, 24s, 48s.
	want := []time.Duration{12 * time.Second, 24 * time.Second, 48 * time.Second}
	for n, w := range want {
		if got := p.Delay(uint(n), rle); got != w {
			t.Errorf("Delay(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestDelayHonorsRetryAfter(t *testing.T) {
	p := Image()
	rle := &providers.RateLimitError{Message: "quota", RetryAfter: 5 * time.Minute, StatusCode: 429}
	if got := p.Delay(0, rle); got != 5*time.Minute {
		t.Errorf("Delay = %v, want server Retry-After", got)
	}
	short := &providers.RateLimitError{Message: "quota", RetryAfter: time.Second, StatusCode: 429}
	// 2s * 2^(0+1) = 4s beats a 1s Retry-After.
	if got := p.Delay(0, short); got != 4*time.Second {
		t.Errorf("Delay = %v, want computed cooldown", got)
	}
}
