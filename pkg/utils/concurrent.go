package utils

import (
	"context"
	"sync"
)

// concurrentExecutor bounds fan-out concurrency with a semaphore.
type concurrentExecutor struct {
	semaphore chan struct{}
}

func newConcurrentExecutor(maxConcurrency int) *concurrentExecutor {
	if maxConcurrency <= 0 {
		maxConcurrency = GetSemaphoreLimit()
	}
	return &concurrentExecutor{
		semaphore: make(chan struct{}, maxConcurrency),
	}
}

// ExecuteWithResults runs functions concurrently, bounded by maxConcurrency,
// and returns each function's result and error at its original index.
// Panics in individual functions are recovered and reported as that
// function's error rather than crashing the batch.
func ExecuteWithResults[T any](ctx context.Context, maxConcurrency int, functions ...func() (T, error)) ([]T, []error) {
	if len(functions) == 0 {
		return nil, nil
	}

	executor := newConcurrentExecutor(maxConcurrency)
	results := make([]T, len(functions))
	errors := make([]error, len(functions))
	var wg sync.WaitGroup

	for i, fn := range functions {
		wg.Add(1)
		go func(index int, function func() (T, error)) {
			defer wg.Done()
			defer RecoverWithCallback(func(err error) {
				errors[index] = err
			})

			select {
			case executor.semaphore <- struct{}{}:
				defer func() { <-executor.semaphore }()
			case <-ctx.Done():
				errors[index] = ctx.Err()
				return
			}

			results[index], errors[index] = function()
		}(i, fn)
	}

	wg.Wait()
	return results, errors
}
