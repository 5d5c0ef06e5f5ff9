package frontend

import (
	"context"
	"sync"

	"github.com/chemcloud-org/chemcloud/internal/logger"
)

// Runner executes fire-and-forget jobs on a small process-wide pool.
// Jobs scheduled here (post-response cleanup) are tied to the server's
// lifetime, never to a request's cancellation scope.
type Runner struct {
	jobs chan func(ctx context.Context)
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRunner starts workers goroutines draining the job queue. ctx is
// the server's base context.
func NewRunner(ctx context.Context, workers, queueSize int) *Runner {
	r := &Runner{jobs: make(chan func(ctx context.Context), queueSize)}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for job := range r.jobs {
				job(ctx)
			}
		}()
	}
	return r
}

// Defer schedules fn. When the queue is saturated or the runner has
// stopped the job is dropped with a warning; deferred cleanup is
// best-effort by design of its callers.
func (r *Runner) Defer(fn func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		logger.Warn(context.Background(), "background runner stopped, job dropped")
		return
	}
	select {
	case r.jobs <- fn:
	default:
		logger.Warn(context.Background(), "background queue full, job dropped")
	}
}

// Stop waits for queued jobs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
