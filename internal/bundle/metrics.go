package bundle

import (
	"sync"
	"time"
)

// Metrics tracks generation performance across cycles.
type Metrics struct {
	mu              sync.RWMutex
	totalTargets    int64
	succeeded       int64
	failed          int64
	totalDuration   time.Duration
	averageDuration time.Duration
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	TotalTargets    int64
	Succeeded       int64
	Failed          int64
	TotalDuration   time.Duration
	AverageDuration time.Duration
}

// NewMetrics creates zeroed metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordTarget folds one target outcome into the counters.
func (m *Metrics) RecordTarget(result TargetResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalTargets++
	m.totalDuration += result.Duration
	if result.Err != nil {
		m.failed++
	} else {
		m.succeeded++
	}
	m.averageDuration = m.totalDuration / time.Duration(m.totalTargets)
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		TotalTargets:    m.totalTargets,
		Succeeded:       m.succeeded,
		Failed:          m.failed,
		TotalDuration:   m.totalDuration,
		AverageDuration: m.averageDuration,
	}
}
