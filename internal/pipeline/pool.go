package pipeline

import (
	"context"
	"sync"
)

// runPool calls fn once per item with at most workers calls in flight and
// returns the results in input order. Completion order is unspecified. If
// ctx is cancelled no further items are started and ctx.Err() is returned
// once the in-flight calls finish.
func runPool[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) R) ([]R, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]R, len(items))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

dispatch:
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fn(ctx, item)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
