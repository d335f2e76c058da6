// Package pipeline provides the fan-out, retry and cached-invocation
// machinery the harvest stages are built from.
package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is one fan-out unit's outcome: a value or a terminal error.
type Result[T any] struct {
	Value T
	Err   error
}

// FanOut invokes task concurrently over every input, at most limit units
// at a time, and returns one result slot per input in input order. A
// failing unit fails only its own slot; siblings keep running.
func FanOut[I, O any](
	ctx context.Context,
	inputs []I,
	limit int,
	task func(ctx context.Context, in I) (O, error),
) []Result[O] {
	if limit <= 0 {
		limit = 1
	}
	results := make([]Result[O], len(inputs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, in := range inputs {
		g.Go(func() error {
			out, err := task(ctx, in)
			results[i] = Result[O]{Value: out, Err: err}
			return nil
		})
	}
	// Units report failure through their slot, never through the group.
	_ = g.Wait()
	return results
}

// Flatten concatenates the successful slots of a list-producing stage into
// one flat collection, preserving input order. Failed slots are reported
// through onErr and skipped.
func Flatten[T any](results []Result[[]T], onErr func(index int, err error)) []T {
	var out []T
	for i, r := range results {
		if r.Err != nil {
			if onErr != nil {
				onErr(i, r.Err)
			}
			continue
		}
		out = append(out, r.Value...)
	}
	return out
}

// Collect gathers the successful slots of a scalar stage in input order,
// reporting failed slots through onErr.
func Collect[T any](results []Result[T], onErr func(index int, err error)) []T {
	out := make([]T, 0, len(results))
	for i, r := range results {
		if r.Err != nil {
			if onErr != nil {
				onErr(i, r.Err)
			}
			continue
		}
		out = append(out, r.Value)
	}
	return out
}
