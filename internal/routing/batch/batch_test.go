package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunAllSucceed(t *testing.T) {
	runner, err := NewRunner(4, 1000, 100)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	defer runner.Release()

	var calls int32
	ops := make([]Op, 20)
	for i := range ops {
		ops[i] = func() error {
			atomic.AddInt32(&calls, 1)
			return nil
		}
	}

	res := runner.Run(context.Background(), ops)
	if res.Total != 20 || res.Succeeded != 20 || res.Failed != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if atomic.LoadInt32(&calls) != 20 {
		t.Errorf("Expected 20 calls, got %d", calls)
	}
	if res.Err() != nil {
		t.Errorf("Expected nil error, got %v", res.Err())
	}
}

func TestRunReportsFailuresInPlace(t *testing.T) {
	runner, err := NewRunner(2, 1000, 100)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	defer runner.Release()

	boom := errors.New("boom")
	ops := []Op{
		func() error { return nil },
		func() error { return boom },
		func() error { return nil },
	}

	res := runner.Run(context.Background(), ops)
	if res.Failed != 1 || res.Succeeded != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Errors[1] != boom || res.Errors[0] != nil || res.Errors[2] != nil {
		t.Errorf("errors not aligned with ops: %v", res.Errors)
	}
	if !errors.Is(res.Err(), boom) {
		t.Errorf("Err() should wrap the first failure, got %v", res.Err())
	}
}

func TestRunCancelled(t *testing.T) {
	runner, err := NewRunner(2, 1, 1)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	defer runner.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ops := []Op{func() error { return nil }, func() error { return nil }}
	res := runner.Run(ctx, ops)
	if res.Failed != 2 {
		t.Errorf("cancelled context should fail every op, got %+v", res)
	}
}
