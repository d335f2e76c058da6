package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/scrapemonster/catalog-crawler/internal/telemetry"
)

// Entry is one memoized task result. Entries are never mutated, only
// replaced after expiry.
type Entry struct {
	Fingerprint string
	Value       []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store persists cache entries. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, fingerprint string) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
}

// Clock abstracts time for TTL checks (swapped out in tests).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Cache memoizes computations by fingerprint. Concurrent invocations of
// the same fingerprint share one in-flight computation; failed
// computations are never stored.
type Cache struct {
	store  Store
	ttl    time.Duration
	clock  Clock
	group  singleflight.Group
	logger *zap.Logger
}

// Option tweaks Cache construction.
type Option func(*Cache)

// WithClock injects a clock, primarily for TTL tests.
func WithClock(c Clock) Option {
	return func(ca *Cache) { ca.clock = c }
}

// New builds a Cache over store with the given TTL. A non-positive ttl
// defaults to 24 hours.
func New(store Store, ttl time.Duration, logger *zap.Logger, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c := &Cache{
		store:  store,
		ttl:    ttl,
		clock:  systemClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do returns the cached value for fingerprint when a non-expired entry
// exists; otherwise it runs compute (at most once per fingerprint across
// concurrent callers), stores the result, and returns it. The second
// return reports whether the value came from cache.
func (c *Cache) Do(
	ctx context.Context,
	fingerprint string,
	compute func(ctx context.Context) ([]byte, error),
) ([]byte, bool, error) {
	if entry, ok := c.lookup(ctx, fingerprint); ok {
		telemetry.CacheHit()
		return entry.Value, true, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (any, error) {
		// A sibling may have stored the entry while we queued.
		if entry, ok := c.lookup(ctx, fingerprint); ok {
			return entry.Value, nil
		}
		telemetry.CacheMiss()

		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		now := c.clock.Now()
		entry := Entry{
			Fingerprint: fingerprint,
			Value:       value,
			CreatedAt:   now,
			ExpiresAt:   now.Add(c.ttl),
		}
		if perr := c.store.Put(ctx, entry); perr != nil {
			// A write failure only costs a future recomputation.
			c.logger.Warn("cache store put failed",
				zap.String("fingerprint", fingerprint), zap.Error(perr))
		}
		return value, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("compute %s: %w", fingerprint, err)
	}
	value, ok := v.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("unexpected cached type %T", v)
	}
	return value, false, nil
}

func (c *Cache) lookup(ctx context.Context, fingerprint string) (Entry, bool) {
	entry, ok, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		c.logger.Warn("cache store get failed",
			zap.String("fingerprint", fingerprint), zap.Error(err))
		return Entry{}, false
	}
	if !ok || c.clock.Now().After(entry.ExpiresAt) {
		return Entry{}, false
	}
	return entry, true
}
