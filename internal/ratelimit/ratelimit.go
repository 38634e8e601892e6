// Package ratelimit provides the per-endpoint-class quota gate built on
// golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Class identifies an upstream endpoint class with its own quota.
type Class string

const (
	// ClassPricing is the competitive-pricing endpoint class.
	ClassPricing Class = "pricing"

	// ClassFees is the fee-estimate endpoint class.
	ClassFees Class = "fees"
)

// ClassConfig holds the quota parameters for one endpoint class.
type ClassConfig struct {
	// MinInterval is the minimum spacing between grants.
	MinInterval time.Duration

	// Burst is the burst ceiling. The upstream quotas tolerate almost
	// no burst, so this is normally 1.
	Burst int
}

// Gate enforces minimum inter-request spacing per endpoint class.
// Acquire only delays, it never rejects; the sole error source is
// context cancellation. Safe for concurrent callers.
type Gate struct {
	mu       sync.RWMutex
	limiters map[Class]*rate.Limiter
	configs  map[Class]ClassConfig
}

// NewGate creates a Gate from per-class configuration.
func NewGate(configs map[Class]ClassConfig) *Gate {
	g := &Gate{
		limiters: make(map[Class]*rate.Limiter, len(configs)),
		configs:  make(map[Class]ClassConfig, len(configs)),
	}
	for class, cfg := range configs {
		g.register(class, cfg)
	}
	return g
}

func (g *Gate) register(class Class, cfg ClassConfig) {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	g.limiters[class] = rate.NewLimiter(rate.Every(cfg.MinInterval), burst)
	g.configs[class] = ClassConfig{MinInterval: cfg.MinInterval, Burst: burst}
}

// Acquire blocks until a request on the given class is permitted, or the
// context is cancelled.
func (g *Gate) Acquire(ctx context.Context, class Class) error {
	g.mu.RLock()
	limiter, ok := g.limiters[class]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ratelimit: unknown endpoint class %q", class)
	}
	return limiter.Wait(ctx)
}

// MinInterval returns the configured spacing for a class. Zero if the
// class is unknown.
func (g *Gate) MinInterval(class Class) time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.configs[class].MinInterval
}

// SetInterval updates a class quota at runtime. Unknown classes are
// registered on first use.
func (g *Gate) SetInterval(class Class, cfg ClassConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.register(class, cfg)
}
