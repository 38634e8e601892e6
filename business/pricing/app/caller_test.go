package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teuchmannluca/storefront-scanner/internal/apperror"
	"github.com/teuchmannluca/storefront-scanner/internal/logger"
	"github.com/teuchmannluca/storefront-scanner/internal/ratelimit"
)

func newTestCaller(t *testing.T) (*Caller, *[]time.Duration) {
	t.Helper()
	gate := ratelimit.NewGate(map[ratelimit.Class]ratelimit.ClassConfig{
		ratelimit.ClassPricing: {MinInterval: time.Millisecond, Burst: 1},
		ratelimit.ClassFees:    {MinInterval: time.Millisecond, Burst: 1},
	})
	c := NewCaller(gate, CallerConfig{
		PricingCooldown: 5 * time.Second,
		FeesCooldown:    2 * time.Second,
	}, logger.Nop())

	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestCaller_SuccessFirstAttempt(t *testing.T) {
	c, slept := newTestCaller(t)

	attempts := 0
	err := c.Call(context.Background(), ratelimit.ClassPricing, func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if len(*slept) != 0 {
		t.Errorf("unexpected cooldown sleeps: %v", *slept)
	}
}

func TestCaller_ThrottledThenSuccess(t *testing.T) {
	c, slept := newTestCaller(t)

	attempts := 0
	err := c.Call(context.Background(), ratelimit.ClassPricing, func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return apperror.Throttled("quota exceeded", nil)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(*slept) != 1 || (*slept)[0] != 5*time.Second {
		t.Errorf("slept = %v, want one pricing cooldown of 5s", *slept)
	}
}

func TestCaller_AlwaysThrottledMakesExactlyTwoAttempts(t *testing.T) {
	c, _ := newTestCaller(t)

	attempts := 0
	err := c.Call(context.Background(), ratelimit.ClassPricing, func(ctx context.Context) error {
		attempts++
		return apperror.Throttled("quota exceeded", nil)
	})

	if attempts != 2 {
		t.Errorf("attempts = %d, want exactly 2", attempts)
	}
	if !apperror.IsCode(err, apperror.CodeProviderError) {
		t.Errorf("error code = %v, want PROVIDER_ERROR", apperror.GetCode(err))
	}
}

func TestCaller_NonThrottlingErrorNotRetried(t *testing.T) {
	c, slept := newTestCaller(t)

	boom := errors.New("connection reset")
	attempts := 0
	err := c.Call(context.Background(), ratelimit.ClassFees, func(ctx context.Context) error {
		attempts++
		return boom
	})

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry for non-throttling errors)", attempts)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want original error propagated", err)
	}
	if len(*slept) != 0 {
		t.Errorf("unexpected cooldown sleeps: %v", *slept)
	}
}

func TestCaller_FeeClassUsesFeeCooldown(t *testing.T) {
	c, slept := newTestCaller(t)

	attempts := 0
	_ = c.Call(context.Background(), ratelimit.ClassFees, func(ctx context.Context) error {
		attempts++
		return apperror.Throttled("quota exceeded", nil)
	})

	if len(*slept) != 1 || (*slept)[0] != 2*time.Second {
		t.Errorf("slept = %v, want one fees cooldown of 2s", *slept)
	}
}

func TestCaller_CancelledContext(t *testing.T) {
	c, _ := newTestCaller(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Call(ctx, ratelimit.ClassPricing, func(ctx context.Context) error {
		t.Error("fn must not run after cancellation")
		return nil
	})
	if err == nil {
		t.Error("expected error from cancelled context")
	}
}
