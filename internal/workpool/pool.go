// Package workpool bounds fan-out work such as resyncing every lead.
package workpool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent operations using a weighted semaphore.
type Pool struct {
	sem   *semaphore.Weighted
	limit int
}

// New creates a Pool that allows at most limit concurrent operations.
func New(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

// Run acquires a slot, runs fn, and releases the slot. Returns ctx.Err()
// if the context is cancelled while waiting. A nil pool runs fn directly.
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

// Each runs fn for every item through the pool and reports how many
// succeeded. A failing item does not stop the others; onErr, when set,
// sees each failure. At most the pool's limit of goroutines exist at once;
// a nil pool runs the items one by one.
func Each[T any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) error, onErr func(T, error)) int {
	var (
		g  errgroup.Group
		ok atomic.Int64
	)
	limit := 1
	if p != nil && p.limit > 0 {
		limit = p.limit
	}
	g.SetLimit(limit)
	for _, item := range items {
		g.Go(func() error {
			err := p.Run(ctx, func() error { return fn(ctx, item) })
			if err != nil {
				if onErr != nil {
					onErr(item, err)
				}
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load())
}
