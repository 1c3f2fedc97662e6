package taskpool

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks per-pool scheduling statistics, enabled via WithMetrics:
// lock-free counters for the hot path, a mutex-guarded quantile estimator
// for resume duration (time from a worker resuming a task until the task
// next suspends or completes). Time a task spends waiting in the ready
// queue is not measured.
type Metrics struct {
	resumes    atomic.Int64
	migrations atomic.Int64
	wakes      atomic.Int64

	mu      sync.Mutex
	latency *multiQuantile // milliseconds from resume until the task next suspends or completes
}

func newMetrics() *Metrics {
	return &Metrics{latency: newMultiQuantile(0.5, 0.9, 0.99)}
}

func (m *Metrics) recordResume(waited time.Duration) {
	if m == nil {
		return
	}
	m.resumes.Add(1)
	m.mu.Lock()
	m.latency.Update(float64(waited.Microseconds()) / 1000)
	m.mu.Unlock()
}

func (m *Metrics) recordMigration() {
	if m == nil {
		return
	}
	m.migrations.Add(1)
}

func (m *Metrics) recordWake() {
	if m == nil {
		return
	}
	m.wakes.Add(1)
}

// Snapshot is a point-in-time copy of a pool's Metrics, safe to read after
// Metrics() returns.
type Snapshot struct {
	Resumes      int64
	Migrations   int64
	Wakes        int64
	ResumeCount  int
	ResumeP50ms  float64
	ResumeP90ms  float64
	ResumeP99ms  float64
	ResumeMeanMs float64
	ResumeMaxMs  float64
}

func (m *Metrics) snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Resumes:      m.resumes.Load(),
		Migrations:   m.migrations.Load(),
		Wakes:        m.wakes.Load(),
		ResumeCount:  m.latency.Count(),
		ResumeP50ms:  m.latency.Quantile(0),
		ResumeP90ms:  m.latency.Quantile(1),
		ResumeP99ms:  m.latency.Quantile(2),
		ResumeMeanMs: m.latency.Mean(),
		ResumeMaxMs:  m.latency.Max(),
	}
}
