package monitoring

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Metrics tracks the harness-level counters exposed by Monitor.
type Metrics struct {
	TestsTotal         uint64
	TestsFullSuccess   uint64
	TestsPartial       uint64
	TestsFailure       uint64

	ToolCallsTotal   uint64
	ToolCallsSuccess uint64
	ToolCallsFailed  uint64

	ModelCallsTotal    uint64
	ModelCallsThrottled uint64
	ModelCallsRetried   uint64

	ActiveWorkers int64

	TestLatencySum   uint64
	TestLatencyCount uint64

	ErrorsTotal uint64

	StartTime time.Time
}

// Monitor collects harness-wide performance metrics and keeps a bounded
// history of snapshots for the status server's dashboard.
type Monitor struct {
	metrics *Metrics
	logger  *zap.Logger
	mu      sync.RWMutex

	history      []MetricsSnapshot
	historyLimit int
}

// MetricsSnapshot is a point-in-time view of the run, taken periodically.
type MetricsSnapshot struct {
	Timestamp       time.Time
	TestsPerSecond  float64
	AvgLatencyMs    float64
	ActiveWorkers   int64
	MemoryMB        float64
	Goroutines      int
}

// NewMonitor creates a monitor with its clock started now.
func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		metrics: &Metrics{
			StartTime: time.Now(),
		},
		logger:       logger,
		history:      make([]MetricsSnapshot, 0, 100),
		historyLimit: 100,
	}
}

func (m *Monitor) IncTestTotal()       { atomic.AddUint64(&m.metrics.TestsTotal, 1) }
func (m *Monitor) IncTestFullSuccess() { atomic.AddUint64(&m.metrics.TestsFullSuccess, 1) }
func (m *Monitor) IncTestPartial()     { atomic.AddUint64(&m.metrics.TestsPartial, 1) }
func (m *Monitor) IncTestFailure()     { atomic.AddUint64(&m.metrics.TestsFailure, 1) }
func (m *Monitor) IncToolCallTotal()   { atomic.AddUint64(&m.metrics.ToolCallsTotal, 1) }
func (m *Monitor) IncToolCallSuccess() { atomic.AddUint64(&m.metrics.ToolCallsSuccess, 1) }
func (m *Monitor) IncToolCallFailed()  { atomic.AddUint64(&m.metrics.ToolCallsFailed, 1) }
func (m *Monitor) IncModelCall()       { atomic.AddUint64(&m.metrics.ModelCallsTotal, 1) }
func (m *Monitor) IncModelThrottled()  { atomic.AddUint64(&m.metrics.ModelCallsThrottled, 1) }
func (m *Monitor) IncModelRetried()    { atomic.AddUint64(&m.metrics.ModelCallsRetried, 1) }
func (m *Monitor) IncError()           { atomic.AddUint64(&m.metrics.ErrorsTotal, 1) }

func (m *Monitor) SetActiveWorkers(n int64) {
	atomic.StoreInt64(&m.metrics.ActiveWorkers, n)
}

func (m *Monitor) RecordTestLatency(d time.Duration) {
	atomic.AddUint64(&m.metrics.TestLatencySum, uint64(d.Nanoseconds()))
	atomic.AddUint64(&m.metrics.TestLatencyCount, 1)
}

// GetStats returns a flattened view suitable for JSON responses.
func (m *Monitor) GetStats() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := time.Since(m.metrics.StartTime)
	total := atomic.LoadUint64(&m.metrics.TestsTotal)

	avgLatency := float64(0)
	if count := atomic.LoadUint64(&m.metrics.TestLatencyCount); count > 0 {
		avgLatency = float64(atomic.LoadUint64(&m.metrics.TestLatencySum)) / float64(count) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds":        uptime.Seconds(),
		"tests_total":           total,
		"tests_full_success":    atomic.LoadUint64(&m.metrics.TestsFullSuccess),
		"tests_partial":         atomic.LoadUint64(&m.metrics.TestsPartial),
		"tests_failure":         atomic.LoadUint64(&m.metrics.TestsFailure),
		"tool_calls_total":      atomic.LoadUint64(&m.metrics.ToolCallsTotal),
		"tool_calls_success":    atomic.LoadUint64(&m.metrics.ToolCallsSuccess),
		"tool_calls_failed":     atomic.LoadUint64(&m.metrics.ToolCallsFailed),
		"model_calls_total":     atomic.LoadUint64(&m.metrics.ModelCallsTotal),
		"model_calls_throttled": atomic.LoadUint64(&m.metrics.ModelCallsThrottled),
		"model_calls_retried":   atomic.LoadUint64(&m.metrics.ModelCallsRetried),
		"active_workers":        atomic.LoadInt64(&m.metrics.ActiveWorkers),
		"errors_total":          atomic.LoadUint64(&m.metrics.ErrorsTotal),
		"avg_latency_ms":        avgLatency,
		"memory_mb":             float64(memStats.Alloc) / 1024 / 1024,
		"goroutines":            runtime.NumGoroutine(),
		"tests_per_second":      float64(total) / uptime.Seconds(),
	}
}

// Snapshot records and returns a MetricsSnapshot, trimming the history ring.
func (m *Monitor) Snapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := time.Since(m.metrics.StartTime).Seconds()
	total := atomic.LoadUint64(&m.metrics.TestsTotal)

	avgLatency := float64(0)
	if count := atomic.LoadUint64(&m.metrics.TestLatencyCount); count > 0 {
		avgLatency = float64(atomic.LoadUint64(&m.metrics.TestLatencySum)) / float64(count) / 1e6
	}

	snapshot := MetricsSnapshot{
		Timestamp:      time.Now(),
		TestsPerSecond: float64(total) / uptime,
		AvgLatencyMs:   avgLatency,
		ActiveWorkers:  atomic.LoadInt64(&m.metrics.ActiveWorkers),
		MemoryMB:       float64(memStats.Alloc) / 1024 / 1024,
		Goroutines:     runtime.NumGoroutine(),
	}

	m.mu.Lock()
	m.history = append(m.history, snapshot)
	if len(m.history) > m.historyLimit {
		m.history = m.history[1:]
	}
	m.mu.Unlock()

	return snapshot
}

func (m *Monitor) GetHistory() []MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]MetricsSnapshot, len(m.history))
	copy(result, m.history)
	return result
}

// StartCollector periodically snapshots metrics until ctx is cancelled.
func (m *Monitor) StartCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Snapshot()
		}
	}
}

// DashboardData is served by the optional status server.
type DashboardData struct {
	Stats   map[string]interface{} `json:"stats"`
	History []MetricsSnapshot      `json:"history"`
}

func (m *Monitor) GetDashboardData() *DashboardData {
	return &DashboardData{
		Stats:   m.GetStats(),
		History: m.GetHistory(),
	}
}
