package metrics

import (
	"sync"
	"time"
)

// Metrics counts route operations issued by the route manager
type Metrics struct {
	RouteOperations int64
	SuccessfulOps   int64
	FailedOps       int64
	AverageOpTime   time.Duration
	Refreshes       int64
	LastUpdate      time.Time
	mutex           sync.RWMutex
}

// Snapshot is a copy of the counters suitable for reports.
type Snapshot struct {
	RouteOperations int64         `json:"route_operations"`
	SuccessfulOps   int64         `json:"successful_ops"`
	FailedOps       int64         `json:"failed_ops"`
	AverageOpTime   time.Duration `json:"average_op_time_ns"`
	Refreshes       int64         `json:"descriptor_refreshes"`
	LastUpdate      time.Time     `json:"last_update"`
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		LastUpdate: time.Now(),
	}
}

// RecordOperation records one route or rule change
func (m *Metrics) RecordOperation(duration time.Duration, success bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.RouteOperations++
	if success {
		m.SuccessfulOps++
	} else {
		m.FailedOps++
	}

	if m.AverageOpTime == 0 {
		m.AverageOpTime = duration
	} else {
		m.AverageOpTime = (m.AverageOpTime + duration) / 2
	}

	m.LastUpdate = time.Now()
}

// RecordRefresh records a descriptor change
func (m *Metrics) RecordRefresh() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.Refreshes++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return Snapshot{
		RouteOperations: m.RouteOperations,
		SuccessfulOps:   m.SuccessfulOps,
		FailedOps:       m.FailedOps,
		AverageOpTime:   m.AverageOpTime,
		Refreshes:       m.Refreshes,
		LastUpdate:      m.LastUpdate,
	}
}
