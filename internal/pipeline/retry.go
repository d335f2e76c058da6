package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// WithRetry wraps compute with a bounded automatic retry: attempts is the
// total number of tries (the pipeline default is 2, i.e. one retry).
// Context cancellation is never retried.
func WithRetry(
	attempts int,
	backoff time.Duration,
	logger *zap.Logger,
	compute func(ctx context.Context) ([]byte, error),
) func(ctx context.Context) ([]byte, error) {
	if attempts < 1 {
		attempts = 1
	}
	return func(ctx context.Context) ([]byte, error) {
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			out, err := compute(ctx)
			if err == nil {
				return out, nil
			}
			lastErr = err
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}
			if attempt < attempts {
				logger.Warn("unit failed, retrying",
					zap.Int("attempt", attempt), zap.Error(err))
				if backoff > 0 {
					t := time.NewTimer(backoff)
					select {
					case <-t.C:
					case <-ctx.Done():
						t.Stop()
						return nil, fmt.Errorf("retry wait: %w", ctx.Err())
					}
				}
			}
		}
		return nil, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
	}
}
