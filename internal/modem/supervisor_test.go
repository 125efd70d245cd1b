package modem

import (
	"context"
	"testing"
	"time"

	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/logger"
)

// fakeDriver succeeds once ok is set and records every Init.
type fakeDriver struct {
	ok     bool
	inits  int
	resets int
	apns   []string
}

func (f *fakeDriver) Init(_ context.Context, p config.Policy) bool {
	f.inits++
	f.apns = append(f.apns, p.APN)
	return f.ok
}

func (f *fakeDriver) Snapshot(context.Context) (Snapshot, error) {
	return Snapshot{Operator: "fake", DNS1: "10.10.0.1"}, nil
}

func (f *fakeDriver) Reset(context.Context) error {
	f.resets++
	return nil
}

func testSupervisor(d Driver) *Supervisor {
	cfg := config.NewDefaultConfig()
	cfg.ModemRetryMin = time.Second
	cfg.ModemRetryMax = 4 * time.Second
	cfg.ModemResetAfter = 2
	return NewSupervisor(d, cfg, logger.Discard())
}

func finish(t *testing.T, s *Supervisor, now time.Time) Result {
	t.Helper()
	select {
	case res := <-s.Done():
		s.Complete(now, res)
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for bring-up")
		return Result{}
	}
}

func TestSupervisorBackoffAndReset(t *testing.T) {
	d := &fakeDriver{}
	s := testSupervisor(d)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	if s.Done() != nil {
		t.Error("idle supervisor should have a nil Done channel")
	}

	if !s.Ensure(ctx, now, config.Policy{}) {
		t.Fatal("first Ensure should start an attempt")
	}
	if s.Ensure(ctx, now, config.Policy{}) {
		t.Error("Ensure must not start a second attempt while one runs")
	}
	finish(t, s, now)
	if s.Ready() || s.Failures() != 1 {
		t.Fatalf("Expected one failure, ready=%v failures=%d", s.Ready(), s.Failures())
	}

	// inside the 1s backoff window
	if s.Ensure(ctx, now.Add(500*time.Millisecond), config.Policy{}) {
		t.Error("Ensure must respect backoff")
	}

	now = now.Add(time.Second)
	if !s.Ensure(ctx, now, config.Policy{}) {
		t.Fatal("Ensure should retry after backoff")
	}
	finish(t, s, now)

	// second failure: next wait is 2s and the following attempt resets first
	if s.Ensure(ctx, now.Add(1500*time.Millisecond), config.Policy{}) {
		t.Error("second backoff should be 2s")
	}
	d.ok = true
	now = now.Add(2 * time.Second)
	if !s.Ensure(ctx, now, config.Policy{}) {
		t.Fatal("Ensure should retry after second backoff")
	}
	finish(t, s, now)

	if !s.Ready() {
		t.Fatal("modem should be ready")
	}
	if d.resets != 1 || s.Resets() != 1 {
		t.Errorf("Expected one reset, driver %d supervisor %d", d.resets, s.Resets())
	}
	if s.Failures() != 0 {
		t.Errorf("failures should clear on success, got %d", s.Failures())
	}
	if s.Ensure(ctx, now, config.Policy{}) {
		t.Error("ready modem needs no bring-up")
	}

	s.Invalidate()
	if !s.Ensure(ctx, now, config.Policy{}) {
		t.Error("invalidated modem should be brought up again at once")
	}
	s.Cancel()
	if s.Running() {
		t.Error("Cancel should clear the running attempt")
	}
}

func TestSupervisorDiscardsSupersededAttempt(t *testing.T) {
	d := &fakeDriver{ok: true}
	s := testSupervisor(d)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	if !s.Ensure(ctx, now, config.Policy{APN: "old.apn"}) {
		t.Fatal("Ensure should start an attempt")
	}
	// the APN changes while the old attempt is still in flight
	s.Invalidate()
	res := finish(t, s, now)
	if !res.OK {
		t.Fatalf("driver attempt should have succeeded: %+v", res)
	}
	if s.Ready() {
		t.Fatal("an attempt started before Invalidate must not make the modem ready")
	}
	if s.Failures() != 0 {
		t.Errorf("a superseded attempt is not a failure, got %d", s.Failures())
	}

	if !s.Ensure(ctx, now, config.Policy{APN: "new.apn"}) {
		t.Fatal("Ensure should start a fresh attempt at once")
	}
	finish(t, s, now)
	if !s.Ready() {
		t.Fatal("fresh attempt should make the modem ready")
	}
	if len(d.apns) != 2 || d.apns[0] != "old.apn" || d.apns[1] != "new.apn" {
		t.Errorf("unexpected init APNs %v", d.apns)
	}
}

func TestTaskCarriesSnapshot(t *testing.T) {
	task := StartTask(context.Background(), &fakeDriver{ok: true}, config.Policy{}, 1, false)
	res := <-task.Done()
	if !res.OK || res.Snapshot == nil || res.Snapshot.DNS1 != "10.10.0.1" {
		t.Errorf("successful attempt should carry the snapshot, got %+v", res)
	}

	task = StartTask(context.Background(), &fakeDriver{}, config.Policy{}, 2, false)
	if res := <-task.Done(); res.OK || res.Snapshot != nil {
		t.Errorf("failed attempt should carry no snapshot, got %+v", res)
	}
}
