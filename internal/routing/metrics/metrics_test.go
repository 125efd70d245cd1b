package metrics

import (
	"testing"
	"time"
)

func TestRecordOperation(t *testing.T) {
	m := NewMetrics()

	m.RecordOperation(10*time.Millisecond, true)
	m.RecordOperation(30*time.Millisecond, false)
	m.RecordRefresh()

	s := m.Snapshot()
	if s.RouteOperations != 2 {
		t.Errorf("Expected 2 operations, got %d", s.RouteOperations)
	}
	if s.SuccessfulOps != 1 || s.FailedOps != 1 {
		t.Errorf("Expected 1 success and 1 failure, got %d/%d", s.SuccessfulOps, s.FailedOps)
	}
	if s.AverageOpTime != 20*time.Millisecond {
		t.Errorf("Expected average 20ms, got %v", s.AverageOpTime)
	}
	if s.Refreshes != 1 {
		t.Errorf("Expected 1 refresh, got %d", s.Refreshes)
	}
}
