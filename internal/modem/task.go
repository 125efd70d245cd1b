package modem

import (
	"context"
	"fmt"
	"time"

	"github.com/wesleywu/lte-failover/internal/config"
)

// Result is the outcome of one bring-up attempt. A successful attempt
// carries the modem state read right after Init; Snapshot stays nil when
// that read failed.
type Result struct {
	Attempt  int
	OK       bool
	Err      error
	Duration time.Duration
	Snapshot *Snapshot
}

// Task is one asynchronous bring-up. Its outcome is delivered once on Done.
type Task struct {
	attempt  int
	cancel   context.CancelFunc
	done     chan Result
	finished chan struct{}
}

// StartTask runs an optional reset, Init and a status read on its own goroutine.
func StartTask(parent context.Context, d Driver, p config.Policy, attempt int, reset bool) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		attempt:  attempt,
		cancel:   cancel,
		done:     make(chan Result, 1),
		finished: make(chan struct{}),
	}

	go func() {
		defer close(t.finished)
		start := time.Now()
		res := Result{Attempt: attempt}

		if reset {
			if err := d.Reset(ctx); err != nil {
				res.Err = fmt.Errorf("%w: %v", ErrModemInit, err)
				res.Duration = time.Since(start)
				t.done <- res
				return
			}
		}

		res.OK = d.Init(ctx, p)
		if res.OK {
			if snap, err := d.Snapshot(ctx); err == nil {
				res.Snapshot = &snap
			}
		} else {
			res.Err = fmt.Errorf("%w: attempt %d", ErrModemInit, attempt)
			if ctx.Err() != nil {
				res.Err = fmt.Errorf("%w: %v", ErrModemInit, ctx.Err())
			}
		}
		res.Duration = time.Since(start)
		t.done <- res
	}()
	return t
}

func (t *Task) Done() <-chan Result {
	return t.done
}

// Cancel stops the attempt and waits until its process has been reaped.
func (t *Task) Cancel() {
	t.cancel()
	<-t.finished
}
