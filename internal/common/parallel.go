package common

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

type job[T any] struct {
	index int
	item  T
}

type result[R any] struct {
	index int
	value R
	err   error
}

// MapOrdered applies fn to every item on a pool of workers and returns the
// outputs in input order. workers <= 0 uses runtime.NumCPU(). The first error
// by index is returned, wrapped with its position; the remaining outputs are
// still filled in. Cancelling ctx stops dispatching new items.
func MapOrdered[T, R any](ctx context.Context, items []T, workers int,
	fn func(ctx context.Context, index int, item T) (R, error),
) ([]R, error) {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out, ctx.Err()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(items))

	if workers == 1 {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			v, err := fn(ctx, i, item)
			if err != nil {
				return out, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}

	jobs := make(chan job[T], len(items))
	results := make(chan result[R], len(items))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					results <- result[R]{index: j.index, err: ctx.Err()}
					continue
				}
				v, err := fn(ctx, j.index, j.item)
				results <- result[R]{index: j.index, value: v, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job[T]{index: i, item: item}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	errs := make([]error, len(items))
	for r := range results {
		out[r.index] = r.value
		errs[r.index] = r.err
	}

	if err := ctx.Err(); err != nil {
		return out, err
	}
	for i, err := range errs {
		if err != nil {
			return out, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return out, nil
}
