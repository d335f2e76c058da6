package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/scrapemonster/catalog-crawler/internal/telemetry"
)

// Detector decides when a lazily growing collection has stopped growing.
// It keeps a ring of the most recent size samples and declares a plateau
// when every entry in the ring equals the latest sample.
type Detector struct {
	// RingSize is how many consecutive equal samples constitute a plateau.
	RingSize int
	// GrowBatch is how many grow triggers are issued per round.
	GrowBatch int
	// StepDelay is the pause after each grow trigger.
	StepDelay time.Duration
	// SettleDelay is the pause before resampling at the end of a round.
	SettleDelay time.Duration
	// InitialDelay is the pause before the first sample.
	InitialDelay time.Duration
	// MaxWait caps the accumulated waiting across the whole loop.
	MaxWait time.Duration

	Logger *zap.Logger
}

// DefaultDetector returns the detector tuned for infinite-scroll product
// listings: three wheel scrolls at 500ms apart per round, a 2s settle, and
// a five minute ceiling per page.
func DefaultDetector(logger *zap.Logger) Detector {
	return Detector{
		RingSize:     3,
		GrowBatch:    3,
		StepDelay:    500 * time.Millisecond,
		SettleDelay:  2 * time.Second,
		InitialDelay: 3 * time.Second,
		MaxWait:      300 * time.Second,
	}.withLogger(logger)
}

func (d Detector) withLogger(logger *zap.Logger) Detector {
	d.Logger = logger
	return d
}

func (d Detector) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Wait drives grow triggers until the sampled size plateaus or the wait
// budget runs out, then returns the last observed size. It is best-effort:
// a timeout without a plateau is not an error, and a failing sample simply
// counts as no observed growth.
func (d Detector) Wait(
	ctx context.Context,
	grow func(ctx context.Context) error,
	sample func(ctx context.Context) (int, error),
) int {
	ring := make([]int, 0, d.RingSize)
	waited := time.Duration(0)
	rounds := 0

	d.pause(ctx, d.InitialDelay, &waited)

	last := d.sampleSize(ctx, sample, 0)

	for !plateaued(ring, last, d.RingSize) && waited < d.MaxWait {
		if ctx.Err() != nil {
			break
		}
		rounds++
		for i := 0; i < d.GrowBatch; i++ {
			if err := grow(ctx); err != nil {
				d.logger().Debug("grow trigger failed", zap.Error(err))
			}
			d.pause(ctx, d.StepDelay, &waited)
		}
		d.pause(ctx, d.SettleDelay, &waited)

		last = d.sampleSize(ctx, sample, last)
		ring = push(ring, last, d.RingSize)
		d.logger().Debug("stabilization sample",
			zap.Int("size", last), zap.Int("round", rounds))
	}
	telemetry.ObserveStabilizationRounds(rounds)
	return last
}

func (d Detector) sampleSize(
	ctx context.Context,
	sample func(ctx context.Context) (int, error),
	fallback int,
) int {
	n, err := sample(ctx)
	if err != nil {
		d.logger().Debug("size sample failed", zap.Error(err))
		return fallback
	}
	return n
}

func (d Detector) pause(ctx context.Context, delay time.Duration, waited *time.Duration) {
	*waited += delay
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func push(ring []int, v, size int) []int {
	ring = append(ring, v)
	if len(ring) > size {
		ring = ring[1:]
	}
	return ring
}

func plateaued(ring []int, last, size int) bool {
	if len(ring) < size {
		return false
	}
	for _, v := range ring {
		if v != last {
			return false
		}
	}
	return true
}
