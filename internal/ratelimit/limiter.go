// Package ratelimit gates access to named external resources with token
// bucket limiters shared across all pipeline stages.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrapemonster/catalog-crawler/internal/telemetry"
)

// Policy is the externally configured admission rate for one resource.
type Policy struct {
	RPS   float64
	Burst int
}

// Registry manages one limiter per named resource. All tasks touching a
// resource must acquire through the same registry instance.
type Registry struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	policies     map[string]Policy
	defaultRate  rate.Limit
	defaultBurst int
}

// NewRegistry creates a Registry; names without an explicit policy fall
// back to def. A non-positive default RPS means unlimited.
func NewRegistry(def Policy) *Registry {
	r := rate.Limit(def.RPS)
	if def.RPS <= 0 {
		r = rate.Inf
	}
	burst := def.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Registry{
		limiters:     make(map[string]*rate.Limiter),
		policies:     make(map[string]Policy),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Configure sets the policy for a named resource. Calling Configure after
// a limiter exists for the name replaces it.
func (r *Registry) Configure(name string, p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[name] = p
	delete(r.limiters, name)
}

// Acquire suspends until the named resource admits one operation or the
// context finishes.
func (r *Registry) Acquire(ctx context.Context, name string) error {
	limiter := r.limiterFor(name)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", name, err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		telemetry.ObserveRateLimitDelay(name, delay)
	}
	return nil
}

func (r *Registry) limiterFor(name string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[name]; ok {
		return l
	}
	lim, burst := r.defaultRate, r.defaultBurst
	if p, ok := r.policies[name]; ok {
		lim = rate.Limit(p.RPS)
		if p.RPS <= 0 {
			lim = rate.Inf
		}
		if p.Burst > 0 {
			burst = p.Burst
		}
	}
	l := rate.NewLimiter(lim, burst)
	r.limiters[name] = l
	return l
}
