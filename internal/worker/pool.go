// Package worker provides a bounded worker pool for fanning out remote calls.
package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent remote registry operations using a weighted semaphore.
// All fan-out (batch deletes, parallel version enumeration) goes through a Pool
// so one task can never overwhelm the remote system with unbounded calls.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool that allows at most limit concurrent operations.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot.
// Blocks if all slots are busy. Returns ctx.Err() if the context
// is cancelled while waiting for a slot.
// If the pool is nil, fn is executed directly without concurrency control.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Result pairs one item with the error its operation returned.
type Result[T any] struct {
	Item T
	Err  error
}

// Map applies fn to every item under the pool's concurrency ceiling and
// returns one Result per item, positionally matching the input. Items run
// in no particular order; the result slice order is deterministic.
func Map[T any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) error) []Result[T] {
	results := make([]Result[T], len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Run(ctx, func() error {
				return fn(ctx, item)
			})
			results[i] = Result[T]{Item: item, Err: err}
		}()
	}
	wg.Wait()

	return results
}
