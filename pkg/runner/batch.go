// Package runner fans work out over backends: sections for `check`, nodes
// for the Proxmox listings.
package runner

import (
	"context"
	"fmt"

	"github.com/okleinschmidt/pyadm/pkg/logger"
	"golang.org/x/sync/errgroup"
)

type Result[T, R any] struct {
	Item  T
	Value R
	Error error
}

// RunParallel streams one Result per item in completion order. The channel
// is closed after the last task.
func RunParallel[T, R any](items []T, concurrency uint, task func(T) (R, error)) <-chan Result[T, R] {
	pool := NewPool(concurrency)
	results := make(chan Result[T, R], len(items))
	go func() {
		for _, item := range items {
			pool.Go(func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Logger.Error("task panicked", "panic", r)
						results <- Result[T, R]{Item: item, Error: fmt.Errorf("panic: %v", r)}
					}
				}()
				v, err := task(item)
				results <- Result[T, R]{Item: item, Value: v, Error: err}
			})
		}
		pool.Wait()
		close(results)
	}()
	return results
}

// Ordered runs task for every item with at most concurrency in flight and
// returns the results in input order. A failing item does not stop the
// others. concurrency <= 1 runs serially on the calling goroutine.
func Ordered[T, R any](ctx context.Context, items []T, concurrency int, task func(context.Context, T) (R, error)) []Result[T, R] {
	results := make([]Result[T, R], len(items))
	if concurrency <= 1 {
		for i, item := range items {
			v, err := task(ctx, item)
			results[i] = Result[T, R]{Item: item, Value: v, Error: err}
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, item := range items {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					results[i] = Result[T, R]{Item: item, Error: err}
				}
			}()
			v, err := task(ctx, item)
			results[i] = Result[T, R]{Item: item, Value: v, Error: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Collect splits results into successes and failures, logging each failure
// as a warning. It errors only when there were items and none succeeded.
func Collect[T, R any](results []Result[T, R], what string, label func(T) string) ([]R, error) {
	var (
		values []R
		failed int
		last   error
	)
	for _, r := range results {
		if r.Error != nil {
			failed++
			last = r.Error
			logger.Logger.Warn("skipping "+what, "item", label(r.Item), "error", r.Error)
			continue
		}
		values = append(values, r.Value)
	}
	if len(results) > 0 && failed == len(results) {
		return nil, fmt.Errorf("all %d %s failed, last error: %w", failed, what, last)
	}
	return values, nil
}
