package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"
)

// Op is one route or rule change.
type Op func() error

// Result describes a finished batch. Errors is aligned with the submitted ops;
// a nil entry means the op succeeded.
type Result struct {
	Total     int
	Succeeded int
	Failed    int
	Errors    []error
	Duration  time.Duration
}

// Err summarizes the failures, or nil when every op succeeded.
func (r Result) Err() error {
	if r.Failed == 0 {
		return nil
	}
	for _, err := range r.Errors {
		if err != nil {
			return fmt.Errorf("batch operation failed: %d of %d errors, first: %w", r.Failed, r.Total, err)
		}
	}
	return fmt.Errorf("batch operation failed: %d errors", r.Failed)
}

// Runner executes ops on a bounded goroutine pool at a limited rate.
type Runner struct {
	pool    *ants.Pool
	limiter *rate.Limiter
}

// NewRunner creates a runner with size workers admitting perSecond ops with the given burst.
func NewRunner(size int, perSecond float64, burst int) (*Runner, error) {
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Runner{
		pool:    pool,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}, nil
}

// Run submits every op and waits for all of them to finish.
func (r *Runner) Run(ctx context.Context, ops []Op) Result {
	start := time.Now()
	res := Result{Total: len(ops), Errors: make([]error, len(ops))}

	var wg sync.WaitGroup
	for i, op := range ops {
		if err := r.limiter.Wait(ctx); err != nil {
			res.Errors[i] = fmt.Errorf("rate limiter: %w", err)
			continue
		}

		wg.Add(1)
		i, op := i, op
		if err := r.pool.Submit(func() {
			defer wg.Done()
			res.Errors[i] = op()
		}); err != nil {
			wg.Done()
			res.Errors[i] = fmt.Errorf("failed to submit operation: %w", err)
		}
	}
	wg.Wait()

	for _, err := range res.Errors {
		if err != nil {
			res.Failed++
		} else {
			res.Succeeded++
		}
	}
	res.Duration = time.Since(start)
	return res
}

// Release stops the worker pool.
func (r *Runner) Release() {
	r.pool.Release()
}
