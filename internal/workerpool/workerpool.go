// Package workerpool bounds how many background generation jobs may run
// concurrently, generalizing the teacher pipeline's ConcurrencyDegree
// option (pkg/pipeline.BlockOptions) from a fixed worker-goroutine count
// to a semaphore any number of independently-submitted jobs acquire
// before running.
package workerpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrently-running jobs to Degree.
type Pool struct {
	sem    *semaphore.Weighted
	degree int
}

// New creates a pool that runs at most degree jobs at once. degree <= 0
// is normalized to 1 (sequential).
func New(degree int) *Pool {
	if degree <= 0 {
		degree = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(degree)), degree: degree}
}

// Degree reports the pool's configured concurrency.
func (p *Pool) Degree() int { return p.degree }

// Submit runs fn once a slot is free, blocking until one is or ctx is
// cancelled. The error returned is either ctx.Err() (acquire failed) or
// fn's own error.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// Go runs fn in its own goroutine once a slot is free, reporting the
// result on the returned channel. Useful for fire-and-forget submission
// where the caller polls/waits via a separate handle (generator.Handle).
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context) error) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- p.Submit(ctx, fn)
	}()
	return out
}
