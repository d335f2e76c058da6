package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scrapemonster/catalog-crawler/internal/cache"
	"github.com/scrapemonster/catalog-crawler/internal/ratelimit"
)

// Invoker layers the shared policies every stage task runs under: a named
// rate limiter gating external fetches, fingerprinted memoization, and one
// automatic retry.
type Invoker struct {
	Cache        *cache.Cache
	Limiter      *ratelimit.Registry
	Retries      int
	RetryBackoff time.Duration
	Logger       *zap.Logger
}

// Request identifies one task invocation for fingerprinting and gating.
type Request struct {
	// Task is the stable task identity.
	Task string
	// Args are the task inputs; they are normalized into the fingerprint.
	Args map[string]any
	// Exclude names args that must not influence the fingerprint (e.g. a
	// shared session handle).
	Exclude []string
	// Resource names the rate-limited resource acquired before each fetch
	// attempt; empty means the task is not gated.
	Resource string
}

// Invoke runs fn under the invoker's policies and returns its typed
// result. Cache hits within the TTL skip the rate limiter and fn entirely;
// misses compute at most once per fingerprint across concurrent callers,
// with one automatic retry. Failed computations are never cached.
func Invoke[O any](ctx context.Context, inv *Invoker, req Request, fn func(ctx context.Context) (O, error)) (O, error) {
	var zero O
	fingerprint := cache.Fingerprint(req.Task, req.Args, req.Exclude...)

	compute := func(ctx context.Context) ([]byte, error) {
		if req.Resource != "" {
			if err := inv.Limiter.Acquire(ctx, req.Resource); err != nil {
				return nil, err
			}
		}
		out, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", req.Task, err)
		}
		return data, nil
	}

	data, hit, err := inv.Cache.Do(ctx, fingerprint,
		WithRetry(inv.Retries+1, inv.RetryBackoff, inv.Logger.With(zap.String("task", req.Task)), compute))
	if err != nil {
		return zero, err
	}
	if hit {
		inv.Logger.Debug("cache hit", zap.String("task", req.Task),
			zap.String("fingerprint", fingerprint))
	}

	var out O
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("decode %s result: %w", req.Task, err)
	}
	return out, nil
}
