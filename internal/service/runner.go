package service

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Runner executes webhook processing detached from the HTTP response,
// bounded by a semaphore so a redelivery storm cannot exhaust the process.
type Runner struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewRunner creates a Runner allowing at most maxConcurrent tasks at once.
func NewRunner(maxConcurrent int64) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Runner{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Go runs fn on a fresh background context. It returns immediately; the
// task waits for a semaphore slot inside its own goroutine so the caller
// (the webhook handler, after responding 200) is never blocked.
func (r *Runner) Go(fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx := context.Background()
		if err := r.sem.Acquire(ctx, 1); err != nil {
			slog.Error("background task slot acquire failed", "error", err)
			return
		}
		defer r.sem.Release(1)

		fn(ctx)
	}()
}

// Drain waits for all in-flight tasks, or until ctx is done.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
