package modem

import (
	"context"
	"time"

	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/logger"
)

// Supervisor tracks modem readiness and schedules bring-up attempts with
// exponential backoff. A reset precedes every resetAfter-th retry.
type Supervisor struct {
	driver     Driver
	backoff    *Backoff
	resetAfter int
	log        *logger.Logger

	task      *Task
	gen       int
	taskGen   int
	ready     bool
	attempts  int
	failures  int
	notBefore time.Time
	resets    int
}

func NewSupervisor(d Driver, cfg *config.Config, log *logger.Logger) *Supervisor {
	return &Supervisor{
		driver:     d,
		backoff:    NewBackoff(cfg.ModemRetryMin, cfg.ModemRetryMax),
		resetAfter: cfg.ModemResetAfter,
		log:        log.WithComponent("modem"),
	}
}

func (s *Supervisor) Ready() bool   { return s.ready }
func (s *Supervisor) Running() bool { return s.task != nil }
func (s *Supervisor) Failures() int { return s.failures }
func (s *Supervisor) Resets() int   { return s.resets }

// Done delivers the outcome of the running attempt. It is nil when idle,
// which blocks forever in a select.
func (s *Supervisor) Done() <-chan Result {
	if s.task == nil {
		return nil
	}
	return s.task.Done()
}

// Ensure starts a bring-up attempt unless the modem is ready, an attempt is
// running, or the backoff window has not elapsed. It reports whether one started.
func (s *Supervisor) Ensure(ctx context.Context, now time.Time, p config.Policy) bool {
	if s.ready || s.task != nil || now.Before(s.notBefore) {
		return false
	}

	s.attempts++
	reset := s.resetAfter > 0 && s.failures > 0 && s.failures%s.resetAfter == 0
	if reset {
		s.resets++
		s.log.Warn("modem failed repeatedly, resetting", "failures", s.failures)
	}
	s.task = StartTask(ctx, s.driver, p, s.attempts, reset)
	s.taskGen = s.gen
	s.log.Info("modem bring-up started", "attempt", s.attempts, "apn", p.APN, "sim_slot", p.ActiveSimSlot)
	return true
}

// Complete records the outcome delivered on Done. An attempt started before
// the last Invalidate neither makes the modem ready nor counts as a failure.
func (s *Supervisor) Complete(now time.Time, res Result) {
	s.task = nil
	if s.taskGen != s.gen {
		s.log.Info("discarding superseded modem bring-up", "attempt", res.Attempt, "ok", res.OK)
		return
	}
	if res.OK {
		s.ready = true
		s.failures = 0
		s.backoff.Reset()
		s.notBefore = time.Time{}
		s.log.ModemInit(res.Attempt, true, "")
		return
	}

	s.failures++
	wait := s.backoff.Next()
	s.notBefore = now.Add(wait)
	s.log.ModemInit(res.Attempt, false, wait.String())
}

// Invalidate forgets readiness, e.g. after the LTE link dropped or the APN
// changed. A running attempt keeps going but its outcome is discarded.
func (s *Supervisor) Invalidate() {
	s.ready = false
	s.gen++
}

// Cancel stops a running attempt and reaps it.
func (s *Supervisor) Cancel() {
	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}
}

func (s *Supervisor) Snapshot(ctx context.Context) (Snapshot, error) {
	return s.driver.Snapshot(ctx)
}
