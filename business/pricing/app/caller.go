package app

import (
	"context"
	"time"

	"github.com/teuchmannluca/storefront-scanner/internal/apperror"
	"github.com/teuchmannluca/storefront-scanner/internal/logger"
	"github.com/teuchmannluca/storefront-scanner/internal/metrics"
	"github.com/teuchmannluca/storefront-scanner/internal/ratelimit"
)

// CallerConfig holds the per-endpoint-class throttle cooldowns. A
// cooldown must exceed the gate's minimum interval; the two endpoint
// classes carry very different official quotas, so each gets its own.
type CallerConfig struct {
	PricingCooldown time.Duration
	FeesCooldown    time.Duration
}

// Caller wraps an external call with the quota gate and a bounded retry.
// Every attempt, including the retry, re-acquires the gate; a retry must
// not bypass the spacing the gate enforces. On a throttling signal the
// caller sleeps the class cooldown and retries exactly once; a second
// failure of any kind surfaces as a provider error. Non-throttling
// errors propagate immediately without a retry.
type Caller struct {
	gate   *ratelimit.Gate
	config CallerConfig
	logger logger.LoggerInterface

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCaller creates a Caller around the shared quota gate.
func NewCaller(gate *ratelimit.Gate, cfg CallerConfig, log logger.LoggerInterface) *Caller {
	return &Caller{
		gate:   gate,
		config: cfg,
		logger: log,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Caller) cooldown(class ratelimit.Class) time.Duration {
	switch class {
	case ratelimit.ClassFees:
		return c.config.FeesCooldown
	default:
		return c.config.PricingCooldown
	}
}

// Call runs fn under the gate for the given endpoint class with the
// single-retry throttling policy. The worst-case latency per call is
// bounded: two gate waits plus one cooldown.
func (c *Caller) Call(ctx context.Context, class ratelimit.Class, fn func(ctx context.Context) error) error {
	if err := c.gate.Acquire(ctx, class); err != nil {
		return err
	}

	err := fn(ctx)
	if err == nil {
		metrics.ProviderRequests.WithLabelValues(string(class), "ok").Inc()
		return nil
	}
	if !apperror.IsCode(err, apperror.CodeThrottled) {
		metrics.ProviderRequests.WithLabelValues(string(class), "error").Inc()
		return err
	}

	metrics.ProviderRequests.WithLabelValues(string(class), "throttled").Inc()
	metrics.ThrottleRetries.WithLabelValues(string(class)).Inc()
	cooldown := c.cooldown(class)
	c.logger.Warn(ctx, "upstream throttled, cooling down before retry",
		"endpoint", string(class),
		"cooldown", cooldown.String())

	if err := c.sleep(ctx, cooldown); err != nil {
		return err
	}
	if err := c.gate.Acquire(ctx, class); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		metrics.ProviderRequests.WithLabelValues(string(class), "error").Inc()
		return apperror.Provider(apperror.CodeProviderError, "retry after throttle failed", err)
	}
	metrics.ProviderRequests.WithLabelValues(string(class), "ok").Inc()
	return nil
}
