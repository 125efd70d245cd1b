package modem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/logger"
)

func testDriver(initCmd, statusCmd, resetCmd []string) *CommandDriver {
	cfg := config.NewDefaultConfig()
	cfg.ModemInitCommand = initCmd
	cfg.ModemStatusCommand = statusCmd
	cfg.ModemResetCommand = resetCmd
	cfg.ModemInitTimeout = 5 * time.Second
	return NewCommandDriver(cfg, logger.Discard())
}

func TestInitPassesPolicy(t *testing.T) {
	d := testDriver([]string{"/bin/sh", "-c", `test "$LTEM_APN" = internet.example && test "$LTEM_SIM_SLOT" = 1`}, nil, nil)

	if !d.Init(context.Background(), config.Policy{IfName: "wwan0", APN: "internet.example", ActiveSimSlot: 1}) {
		t.Error("Init should succeed when the helper sees the policy")
	}
	if d.Init(context.Background(), config.Policy{IfName: "wwan0", APN: "other", ActiveSimSlot: 1}) {
		t.Error("Init should fail when the helper exits non-zero")
	}
}

func TestInitWithoutCommand(t *testing.T) {
	d := testDriver(nil, nil, nil)
	if d.Init(context.Background(), config.Policy{}) {
		t.Error("Init without a command must fail")
	}
	if err := d.Reset(context.Background()); err == nil {
		t.Error("Reset without a command must fail")
	}
}

func TestSnapshot(t *testing.T) {
	d := testDriver(nil, []string{"/bin/sh", "-c", `echo '{"imei":"356938035643809","operator":"Mono","rsrp":-95,"sim_slot":1}'`}, nil)

	snap, err := d.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.IMEI != "356938035643809" || snap.RSRP != -95 || snap.SimSlot != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Timestamp.IsZero() {
		t.Error("Timestamp should be filled in")
	}

	bad := testDriver(nil, []string{"/bin/sh", "-c", "echo not-json"}, nil)
	if _, err := bad.Snapshot(context.Background()); err == nil {
		t.Error("Expected parse error")
	}
}

func TestTaskCancelReapsProcessGroup(t *testing.T) {
	// the child forks a grandchild into the same group
	d := testDriver([]string{"/bin/sh", "-c", "sleep 30 & wait"}, nil, nil)

	task := StartTask(context.Background(), d, config.Policy{}, 1, false)

	start := time.Now()
	time.Sleep(100 * time.Millisecond)
	task.Cancel()
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Cancel took %v", elapsed)
	}

	res := <-task.Done()
	if res.OK {
		t.Error("cancelled attempt must not report success")
	}
	if !errors.Is(res.Err, ErrModemInit) {
		t.Errorf("Expected ErrModemInit, got %v", res.Err)
	}
}

func TestTaskResetFailure(t *testing.T) {
	d := testDriver([]string{"/bin/true"}, nil, []string{"/bin/false"})

	task := StartTask(context.Background(), d, config.Policy{}, 3, true)
	res := <-task.Done()
	if res.OK || !errors.Is(res.Err, ErrModemInit) || res.Attempt != 3 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestBackoff(t *testing.T) {
	b := NewBackoff(time.Second, 5*time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("step %d: got %v, want %v", i, got, w)
		}
	}
	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Errorf("after reset got %v", got)
	}
}
